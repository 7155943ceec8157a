// Package packsync reconciles configured lesson-pack sources into the
// lesson list. A pack is a directory (or git repository) of JSON lesson
// documents; syncing walks every .json file and upserts its lessons.
package packsync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/wisemama/wisemama/internal/lessons"
	"github.com/wisemama/wisemama/internal/storage"
)

// SourceStore is the persistence contract for pack sources.
// *storage.DB satisfies it.
type SourceStore interface {
	GetAllPackSources(ctx context.Context) ([]storage.PackSource, error)
	MarkPackSourceSynced(ctx context.Context, id int64) error
}

// LessonSink receives the lessons found in a pack.
// *lessons.Service satisfies it.
type LessonSink interface {
	Upsert(ctx context.Context, lesson lessons.Lesson) (bool, error)
}

// Syncer runs the reconciliation for all configured sources.
type Syncer struct {
	sources SourceStore
	sink    LessonSink
	logger  *slog.Logger

	// Clone directory for git sources.
	packsDir string
}

// New creates a syncer that clones git packs under packsDir.
func New(sources SourceStore, sink LessonSink, packsDir string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{sources: sources, sink: sink, logger: logger, packsDir: packsDir}
}

// Result summarizes one sync run.
type Result struct {
	Sources  int
	Lessons  int
	Upserted int
	Errors   []error
}

// Run reconciles every configured source. Per-source failures are
// collected rather than aborting the run.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	var res Result

	sources, err := s.sources.GetAllPackSources(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list pack sources: %w", err)
	}
	if len(sources) == 0 {
		s.logger.Info("no lesson-pack sources configured")
		return res, nil
	}

	if err := os.MkdirAll(s.packsDir, 0o755); err != nil {
		return res, fmt.Errorf("failed to create packs directory: %w", err)
	}

	for _, source := range sources {
		res.Sources++
		s.logger.Info("syncing lesson pack", "id", source.ID, "kind", source.Kind, "path", source.Path)

		dir := source.Path
		if source.Kind == "git" {
			localPath, err := gitURLToLocalPath(s.packsDir, source.Path)
			if err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
			if err := syncGitRepo(ctx, s.logger, source.Path, localPath); err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
			dir = localPath
		}

		found, upserted, errs := s.reconcileDir(ctx, dir)
		res.Lessons += found
		res.Upserted += upserted
		res.Errors = append(res.Errors, errs...)

		if err := s.sources.MarkPackSourceSynced(ctx, source.ID); err != nil {
			s.logger.Warn("failed to mark pack source synced", "id", source.ID, "error", err)
		}
	}

	s.logger.Info("lesson-pack sync complete",
		"sources", res.Sources,
		"lessons", res.Lessons,
		"upserted", res.Upserted,
		"errors", len(res.Errors),
	)
	return res, nil
}

func (s *Syncer) reconcileDir(ctx context.Context, dir string) (found, upserted int, errs []error) {
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", path, err))
			return nil
		}
		list, err := lessons.Decode(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing %s: %w", path, err))
			return nil
		}

		for _, lesson := range list {
			found++
			changed, err := s.sink.Upsert(ctx, lesson)
			if err != nil {
				errs = append(errs, fmt.Errorf("upserting lesson %s from %s: %w", lesson.ID, path, err))
				continue
			}
			if changed {
				upserted++
			} else {
				s.logger.Debug("lesson unchanged, skipping", "id", lesson.ID, "path", path)
			}
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, fmt.Errorf("walking pack %s: %w", dir, walkErr))
	}
	return found, upserted, errs
}
