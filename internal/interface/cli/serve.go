package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wassup-/textpod/internal/app"
	"github.com/wassup-/textpod/internal/infrastructure/di"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the note service",
		Long:  "Start the HTTP API, replay persisted notes into the search index and resume interrupted captures.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	container, err := di.NewContainer(globalConfig)
	if err != nil {
		return err
	}
	defer container.Close()

	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Recovery must finish before the listener opens
	if err := container.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- container.Server().ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.GetLogger().Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), globalConfig.ShutdownGrace())
	defer shutdownCancel()
	if err := container.Server().Shutdown(shutdownCtx); err != nil {
		app.GetLogger().Warn("http shutdown: %v", err)
	}
	return <-errCh
}

// setupSignalHandler sets up graceful shutdown on SIGINT/SIGTERM
func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		os.Interrupt,    // Ctrl+C (SIGINT)
		syscall.SIGTERM, // kill command
	)

	go func() {
		select {
		case sig := <-sigChan:
			app.GetLogger().Info("received signal: %v, initiating graceful shutdown", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
