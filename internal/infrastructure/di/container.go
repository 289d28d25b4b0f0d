package di

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	gwcapture "github.com/wassup-/textpod/internal/adapter/gateway/capture"
	"github.com/wassup-/textpod/internal/adapter/gateway/storage"
	"github.com/wassup-/textpod/internal/app"
	"github.com/wassup-/textpod/internal/app/config"
	"github.com/wassup-/textpod/internal/application/port/output"
	"github.com/wassup-/textpod/internal/application/service"
	"github.com/wassup-/textpod/internal/domain/repository"
	infraconfig "github.com/wassup-/textpod/internal/infra/config"
	infrarepo "github.com/wassup-/textpod/internal/infrastructure/repository"
	"github.com/wassup-/textpod/internal/interface/server"
)

// Container is the DI container that holds all dependencies
// This implements manual dependency injection for Clean Architecture
type Container struct {
	fsys afero.Fs

	// Infrastructure Layer
	noteRepo repository.NoteRepository
	store    output.ArtifactStore
	mirror   output.ArtifactMirror // nil when no bucket is configured

	// Application Layer
	index    *service.SearchIndex
	detector *service.ReferenceDetector
	capture  *service.CaptureService
	recovery *service.RecoveryService

	// Interface Layer
	server *server.Server

	config config.Config
}

// NewContainer creates and initializes the DI container
func NewContainer(cfg config.Config) (*Container, error) {
	c := &Container{
		fsys:   afero.NewOsFs(),
		config: cfg,
	}

	if err := c.initializeInfrastructure(); err != nil {
		return nil, fmt.Errorf("initialize infrastructure: %w", err)
	}
	if err := c.initializeApplication(); err != nil {
		return nil, fmt.Errorf("initialize application: %w", err)
	}
	c.server = server.New(cfg, c.noteRepo, c.index, c.capture, c.store)

	return c, nil
}

func (c *Container) initializeInfrastructure() error {
	repo, err := infrarepo.NewDayLogRepository(c.fsys, c.config.NotesDir())
	if err != nil {
		return fmt.Errorf("open note store: %w", err)
	}
	c.noteRepo = repo

	c.store = storage.NewLocalArtifactStore(c.fsys, c.config.AttachmentsDir())

	if bucket := c.config.MirrorBucket(); bucket != "" {
		mirror, err := storage.NewS3ArtifactMirror(storage.S3MirrorConfig{
			Bucket: bucket,
			Prefix: c.config.MirrorPrefix(),
			Region: c.config.MirrorRegion(),
		})
		if err != nil {
			return fmt.Errorf("configure artifact mirror: %w", err)
		}
		c.mirror = mirror
		app.GetLogger().Info("artifact mirror enabled: s3://%s", bucket)
	}
	return nil
}

func (c *Container) initializeApplication() error {
	rules, err := infraconfig.LoadCaptureRules(c.fsys, c.config.RulesPath())
	if err != nil {
		return fmt.Errorf("load capture rules: %w", err)
	}
	c.detector = service.NewReferenceDetector(rules)

	gateways := []output.CaptureGateway{
		gwcapture.PageArchiver{Bin: c.config.ArchiverBin(), Timeout: c.config.PageTimeout()},
		gwcapture.MediaDownloader{Bin: c.config.DownloaderBin(), Timeout: c.config.MediaTimeout()},
	}

	c.index = service.NewSearchIndex()
	c.capture = service.NewCaptureService(c.noteRepo, c.store, c.mirror, c.detector, gateways,
		service.CaptureConfig{
			Workers:     c.config.Workers(),
			MaxAttempts: c.config.MaxAttempts(),
			BackoffBase: c.config.BackoffBase(),
		})
	c.recovery = service.NewRecoveryService(c.noteRepo, c.index, c.capture)
	return nil
}

// NoteRepository returns the note store
func (c *Container) NoteRepository() repository.NoteRepository { return c.noteRepo }

// SearchIndex returns the in-memory search index
func (c *Container) SearchIndex() *service.SearchIndex { return c.index }

// CaptureService returns the capture orchestrator
func (c *Container) CaptureService() *service.CaptureService { return c.capture }

// Server returns the HTTP boundary
func (c *Container) Server() *server.Server { return c.server }

// Start launches background services and replays persisted state. It must
// complete before the HTTP boundary starts accepting requests.
func (c *Container) Start(ctx context.Context) error {
	c.capture.Start()

	if _, err := c.recovery.Run(ctx); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}
	return nil
}

// Close drains and stops all resources held by the container
func (c *Container) Close() error {
	if c.capture != nil {
		c.capture.Stop(c.config.ShutdownGrace())
	}
	return nil
}
