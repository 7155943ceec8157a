// Command wisemama serves the Mandarin practice app: flashcards with
// pronunciation recording, lesson editing, dictionary search, profiles
// and lesson-pack syncing.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/wisemama/wisemama/internal/audio"
	"github.com/wisemama/wisemama/internal/audio/mic"
	"github.com/wisemama/wisemama/internal/config"
	"github.com/wisemama/wisemama/internal/dictionary"
	"github.com/wisemama/wisemama/internal/lessons"
	"github.com/wisemama/wisemama/internal/packsync"
	"github.com/wisemama/wisemama/internal/practice"
	"github.com/wisemama/wisemama/internal/profile"
	"github.com/wisemama/wisemama/internal/storage"
	"github.com/wisemama/wisemama/internal/web"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if path, _ := fs.GetString("add-pack"); path != "" {
		return addPack(ctx, db, logger, path)
	}

	lessonSvc := lessons.NewService(db, logger)
	if err := lessonSvc.Load(ctx); err != nil {
		return err
	}
	profileSvc := profile.NewService(db, logger)
	if err := profileSvc.Load(ctx); err != nil {
		return err
	}
	dict, err := dictionary.Load()
	if err != nil {
		return err
	}

	syncer := packsync.New(db, lessonSvc, cfg.PacksDir, logger)
	if doSync, _ := fs.GetBool("sync"); doSync {
		res, err := syncer.Run(ctx)
		if err != nil {
			return fmt.Errorf("startup pack sync failed: %w", err)
		}
		logger.Info("startup pack sync finished",
			"sources", res.Sources, "lessons", res.Lessons,
			"upserted", res.Upserted, "errors", len(res.Errors))
	}

	// Both recorders share one microphone; exclusivity keeps a second
	// start from tearing down an active capture.
	device := audio.Exclusive(mic.New())
	reference := audio.NewRecorder(device, audio.WithAcquireTimeout(cfg.Audio.AcquireTimeout))
	attempt := audio.NewRecorder(device, audio.WithAcquireTimeout(cfg.Audio.AcquireTimeout))
	panel := practice.NewPanel(db, reference, attempt,
		practice.WithLogger(logger),
		practice.WithWaveWindow(cfg.Audio.WaveWindow),
		practice.WithMeterInterval(cfg.Audio.MeterInterval),
	)
	defer panel.Close()

	server, err := web.NewServer(db, lessonSvc, dict, profileSvc, panel, syncer, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// addPack registers a lesson-pack source without starting the server, so
// packs can be configured from provisioning scripts.
func addPack(ctx context.Context, db *storage.DB, logger *slog.Logger, path string) error {
	kind := "local"
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://") {
		kind = "git"
	}
	id, err := db.InsertPackSource(ctx, path, kind)
	if err != nil {
		return err
	}
	logger.Info("pack source registered", "id", id, "path", path, "kind", kind)
	return nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
