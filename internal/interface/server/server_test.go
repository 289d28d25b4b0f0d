package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwcapture "github.com/wassup-/textpod/internal/adapter/gateway/capture"
	"github.com/wassup-/textpod/internal/adapter/gateway/storage"
	"github.com/wassup-/textpod/internal/app/config"
	"github.com/wassup-/textpod/internal/application/port/output"
	"github.com/wassup-/textpod/internal/application/service"
	"github.com/wassup-/textpod/internal/domain/model/note"
	infrarepo "github.com/wassup-/textpod/internal/infrastructure/repository"
)

type serverFixture struct {
	ts     *httptest.Server
	repo   *infrarepo.DayLogRepository
	pageGW *gwcapture.MockCaptureGateway
	store  *storage.LocalArtifactStore
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	fsys := afero.NewOsFs()
	root := t.TempDir()

	cfg := config.NewAppConfig(
		root, filepath.Join(root, "notes"), filepath.Join(root, "attachments"),
		"127.0.0.1", 0,
		"monolith", "yt-dlp",
		60, 900,
		2, 2, 1, 1,
		"",
		"", "", "",
		"default", "",
	)

	repo, err := infrarepo.NewDayLogRepository(fsys, cfg.NotesDir())
	require.NoError(t, err)

	store := storage.NewLocalArtifactStore(fsys, cfg.AttachmentsDir())
	pageGW := gwcapture.NewMockCaptureGateway(note.KindPageSnapshot)
	mediaGW := gwcapture.NewMockCaptureGateway(note.KindMediaFile)

	capture := service.NewCaptureService(repo, store, nil, service.NewReferenceDetector(nil),
		[]output.CaptureGateway{pageGW, mediaGW},
		service.CaptureConfig{Workers: 1, MaxAttempts: 2, BackoffBase: time.Millisecond})
	capture.Start()
	t.Cleanup(func() { capture.Stop(2 * time.Second) })

	srv := New(cfg, repo, service.NewSearchIndex(), capture, store)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	t.Cleanup(http.DefaultClient.CloseIdleConnections)

	return &serverFixture{ts: ts, repo: repo, pageGW: pageGW, store: store}
}

func (f *serverFixture) postNote(t *testing.T, body string) noteResponse {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"body": body})
	require.NoError(t, err)

	resp, err := http.Post(f.ts.URL+"/notes", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var n noteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&n))
	return n
}

func (f *serverFixture) getJSON(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestServer_CreateNote(t *testing.T) {
	f := newServerFixture(t)

	n := f.postNote(t, "first **note** of the day #work")
	assert.Equal(t, 1, n.Seq)
	assert.Equal(t, "first **note** of the day #work", n.Body)
	assert.Contains(t, n.HTML, "<strong>note</strong>")
	assert.Contains(t, n.Tags, "work")
	assert.Empty(t, n.Attachments)

	n2 := f.postNote(t, "second note")
	assert.Equal(t, 2, n2.Seq)
	assert.Equal(t, n.Day, n2.Day)
}

func TestServer_CreateNote_Invalid(t *testing.T) {
	f := newServerFixture(t)

	resp, err := http.Post(f.ts.URL+"/notes", "application/json", strings.NewReader(`{"body":"   "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(f.ts.URL+"/notes", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_CreateNote_TriggersCapture(t *testing.T) {
	f := newServerFixture(t)

	n := f.postNote(t, "read https://example.com/article")
	require.Len(t, n.Attachments, 1)
	assert.Equal(t, "page-snapshot", n.Attachments[0].Kind)
	assert.Equal(t, "https://example.com/article", n.Attachments[0].URL)

	// Capture completes asynchronously; poll the day listing
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var notes []noteResponse
		f.getJSON(t, "/notes?day="+n.Day, &notes)
		if len(notes) == 1 && len(notes[0].Attachments) == 1 &&
			notes[0].Attachments[0].Status == "done" {
			assert.Equal(t, "/attachments/webpages/example.com_article.html", notes[0].Attachments[0].ArtifactPath)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("capture never completed")
}

func TestServer_ListNotes_BadDay(t *testing.T) {
	f := newServerFixture(t)

	resp := f.getJSON(t, "/notes?day=03-11-2025", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Search(t *testing.T) {
	f := newServerFixture(t)

	f.postNote(t, "deploy pipeline for staging")
	f.postNote(t, "deploy docs")
	f.postNote(t, "unrelated entry")

	var hits []noteResponse
	resp := f.getJSON(t, "/search?q=deploy+pipeline", &hits)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, hits, 1)
	assert.Equal(t, "deploy pipeline for staging", hits[0].Body)

	resp = f.getJSON(t, "/search?q=", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	hits = nil
	f.getJSON(t, "/search?q=nonexistent", &hits)
	assert.Empty(t, hits)
}

func TestServer_UploadAndServeAttachment(t *testing.T) {
	f := newServerFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "report.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("quarterly numbers"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.ts.URL+"/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var locations []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&locations))
	require.Equal(t, []string{"/attachments/report.txt"}, locations)

	got, err := http.Get(f.ts.URL + locations[0])
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	content, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", string(content))
	assert.Contains(t, got.Header.Get("Content-Type"), "text/plain")
}

func TestServer_UploadMultipleFiles(t *testing.T) {
	f := newServerFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"a.txt", "b.txt"} {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("contents of " + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.ts.URL+"/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var locations []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&locations))
	require.Len(t, locations, 2)
	assert.ElementsMatch(t, []string{"/attachments/a.txt", "/attachments/b.txt"}, locations)

	for _, loc := range locations {
		got, err := http.Get(f.ts.URL + loc)
		require.NoError(t, err)
		content, readErr := io.ReadAll(got.Body)
		got.Body.Close()
		require.NoError(t, readErr)
		require.Equal(t, http.StatusOK, got.StatusCode)
		assert.Equal(t, "contents of "+strings.TrimPrefix(loc, "/attachments/"), string(content))
	}
}

func TestServer_ServeAttachment_NotFound(t *testing.T) {
	f := newServerFixture(t)

	resp := f.getJSON(t, "/attachments/webpages/nope.html", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RetryFailedAttachment(t *testing.T) {
	f := newServerFixture(t)
	f.pageGW.Script("https://down.example/a", gwcapture.MockOutcome{FailuresBeforeSuccess: 2})

	n := f.postNote(t, "https://down.example/a")
	require.Len(t, n.Attachments, 1)
	attachmentID := n.Attachments[0].ID

	// MaxAttempts is 2, the first run exhausts it
	waitForHTTPStatus(t, f, n.Day, "failed")

	url := fmt.Sprintf("%s/notes/%s/%d/attachments/%s/retry", f.ts.URL, n.Day, n.Seq, attachmentID)
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitForHTTPStatus(t, f, n.Day, "done")
}

func TestServer_Retry_Conflicts(t *testing.T) {
	f := newServerFixture(t)

	n := f.postNote(t, "https://example.com/fine")
	require.Len(t, n.Attachments, 1)
	waitForHTTPStatus(t, f, n.Day, "done")

	url := fmt.Sprintf("%s/notes/%s/%d/attachments/%s/retry", f.ts.URL, n.Day, n.Seq, n.Attachments[0].ID)
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "a done capture is not retryable")

	missing := fmt.Sprintf("%s/notes/%s/%d/attachments/%s/retry", f.ts.URL, n.Day, 99, n.Attachments[0].ID)
	resp, err = http.Post(missing, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Healthz(t *testing.T) {
	f := newServerFixture(t)

	var status map[string]string
	resp := f.getJSON(t, "/healthz", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", status["status"])
}

// waitForHTTPStatus polls the day listing until its single note's single
// attachment reaches the wanted status.
func waitForHTTPStatus(t *testing.T, f *serverFixture, day string, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var notes []noteResponse
		f.getJSON(t, "/notes?day="+day, &notes)
		if len(notes) > 0 && len(notes[0].Attachments) > 0 && notes[0].Attachments[0].Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("attachment never reached %s", want)
}
