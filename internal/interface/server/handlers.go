package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/wassup-/textpod/internal/app"
	"github.com/wassup-/textpod/internal/application/service"
	"github.com/wassup-/textpod/internal/domain/model/note"
	"github.com/wassup-/textpod/internal/domain/repository"
)

// maxUploadBytes bounds multipart uploads.
const maxUploadBytes = 64 << 20

var markdown = goldmark.New()

// noteResponse is the wire form of a note: the raw body plus its markdown
// rendering and the current attachment states.
type noteResponse struct {
	ID          string                `json:"id"`
	Day         string                `json:"day"`
	Seq         int                   `json:"seq"`
	CreatedAt   time.Time             `json:"created_at"`
	Body        string                `json:"body"`
	HTML        string                `json:"html"`
	Tags        []string              `json:"tags,omitempty"`
	Attachments []*attachmentResponse `json:"attachments,omitempty"`
}

type attachmentResponse struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	Attempts     int    `json:"attempts"`
}

func renderNote(n *note.Note) *noteResponse {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(n.Body), &buf); err != nil {
		app.GetLogger().Warn("render note %s: %v", n.ID, err)
		buf.Reset()
	}

	resp := &noteResponse{
		ID:        n.ID.String(),
		Day:       n.ID.Day,
		Seq:       n.ID.Seq,
		CreatedAt: n.CreatedAt,
		Body:      n.Body,
		HTML:      buf.String(),
		Tags:      n.Tags,
	}
	for _, a := range n.Attachments {
		ar := &attachmentResponse{
			ID:       a.ID,
			URL:      a.URL,
			Kind:     a.Kind.String(),
			Status:   a.Status.String(),
			Attempts: a.Attempts,
		}
		if a.Status == note.StatusDone {
			ar.ArtifactPath = "/attachments/" + a.ArtifactPath
		}
		if a.Status == note.StatusFailed {
			ar.LastError = a.LastError
		}
		resp.Attachments = append(resp.Attachments, ar)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.GetLogger().Error("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type createNoteRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "note body is empty")
		return
	}

	n, err := s.repo.Append(r.Context(), req.Body)
	if err != nil {
		app.GetLogger().Error("append note: %v", err)
		writeError(w, http.StatusInternalServerError, "could not persist note")
		return
	}

	s.index.IndexNote(n)
	n.Attachments = s.capture.ScanNote(r.Context(), n)

	writeJSON(w, http.StatusCreated, renderNote(n))
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if q := r.URL.Query().Get("day"); q != "" {
		parsed, err := time.Parse(note.DayFormat, q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	notes, err := s.repo.ReadDay(r.Context(), day)
	if err != nil {
		app.GetLogger().Error("read day %s: %v", day.Format(note.DayFormat), err)
		writeError(w, http.StatusInternalServerError, "could not read notes")
		return
	}

	out := make([]*noteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, renderNote(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	ids := s.index.Query(strings.Fields(q)...)
	notes, err := service.ResolveNotes(r.Context(), s.repo, ids)
	if err != nil {
		app.GetLogger().Error("resolve search results: %v", err)
		writeError(w, http.StatusInternalServerError, "could not resolve results")
		return
	}

	out := make([]*noteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, renderNote(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleServeAttachment(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/attachments/")
	if rel == "" {
		writeError(w, http.StatusBadRequest, "missing attachment path")
		return
	}

	f, err := s.store.Open(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "attachment not found")
		} else {
			app.GetLogger().Error("open attachment %s: %v", rel, err)
			writeError(w, http.StatusInternalServerError, "could not open attachment")
		}
		return
	}
	defer f.Close()

	if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if _, err := io.Copy(w, f); err != nil {
		app.GetLogger().Warn("serve attachment %s: %v", rel, err)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var paths []string
	for _, headers := range r.MultipartForm.File {
		for _, hdr := range headers {
			f, err := hdr.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "could not read uploaded file")
				return
			}
			data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
			f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "could not read uploaded file")
				return
			}

			rel, err := s.store.SaveUpload(hdr.Filename, data)
			if err != nil {
				app.GetLogger().Error("save upload %s: %v", hdr.Filename, err)
				writeError(w, http.StatusInternalServerError, "could not save upload")
				return
			}
			app.GetLogger().Info("uploaded %s (%d bytes)", rel, len(data))
			paths = append(paths, "/attachments/"+rel)
		}
	}

	if len(paths) == 0 {
		writeError(w, http.StatusBadRequest, "no file in upload")
		return
	}
	writeJSON(w, http.StatusOK, paths)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	day := r.PathValue("day")
	seq, err := strconv.Atoi(r.PathValue("seq"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "seq must be an integer")
		return
	}
	if _, err := time.Parse(note.DayFormat, day); err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}

	noteID := note.NoteID{Day: day, Seq: seq}
	err = s.capture.Retry(r.Context(), noteID, r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": note.StatusPending.String()})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case strings.Contains(err.Error(), "only failed"):
		writeError(w, http.StatusConflict, err.Error())
	default:
		app.GetLogger().Error("retry %s/%d: %v", day, seq, err)
		writeError(w, http.StatusInternalServerError, "retry failed")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
