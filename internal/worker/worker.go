// Package worker executes a single word task: it owns the word directory,
// runs the search, and downloads every candidate or rolls the word back.
package worker

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/icon-harvester/internal/icons"
	"github.com/JakeFAU/icon-harvester/internal/metrics"
)

// Worker runs tasks against its collaborators. It holds no per-task state
// and is safe for concurrent use.
type Worker struct {
	searcher  icons.Searcher
	fetcher   icons.Fetcher
	workspace icons.Workspace
	logger    *zap.Logger
}

// New wires a Worker.
func New(searcher icons.Searcher, fetcher icons.Fetcher, workspace icons.Workspace, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		searcher:  searcher,
		fetcher:   fetcher,
		workspace: workspace,
		logger:    logger.Named("worker"),
	}
}

// Execute processes one task. On success the outcome lists the saved file
// names. On failure the word directory has been removed and the returned
// error is a *icons.DirectoryError, *icons.SearchError, or *icons.FetchError.
// A panicking searcher or fetcher fails the word with an error wrapping
// icons.ErrPanicked; the directory is still removed.
func (w *Worker) Execute(ctx context.Context, task icons.Task) (outcome icons.Outcome, err error) {
	start := time.Now()
	logger := w.logger.With(zap.String("word", task.Word), zap.String("batch_id", task.OutputDir))
	dir := task.Dir()

	if err := w.acquire(ctx, task, dir); err != nil {
		metrics.ObserveWord(metrics.StatusFailed)
		logger.Warn("word directory unavailable", zap.Error(err))
		return icons.Outcome{Word: task.Word, Err: err}, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("word panicked", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("harvest %s: %w: %v", task.Word, icons.ErrPanicked, rec)
		}
		if err == nil {
			return
		}
		w.release(ctx, task, dir, logger)
		metrics.ObserveWord(metrics.StatusFailed)
		logger.Info("word failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		outcome = icons.Outcome{Word: task.Word, Err: err}
	}()

	refs, err := w.searcher.Search(ctx, task.Word, task.SourceConfig)
	if err != nil {
		return icons.Outcome{}, &icons.SearchError{Word: task.Word, Err: err}
	}
	if len(refs) == 0 {
		return icons.Outcome{}, &icons.SearchError{Word: task.Word, Err: icons.ErrNoIcons}
	}

	files, err := w.download(ctx, task, dir, refs)
	if err != nil {
		return icons.Outcome{}, err
	}

	metrics.ObserveWord(metrics.StatusSucceeded)
	logger.Info("word harvested", zap.Strings("icons", files), zap.Duration("elapsed", time.Since(start)))
	return icons.Outcome{Word: task.Word, Icons: files}, nil
}

func (w *Worker) acquire(ctx context.Context, task icons.Task, dir string) error {
	if err := icons.ValidateWordDir(task.Word); err != nil {
		return &icons.DirectoryError{Word: task.Word, Path: dir, Err: err}
	}
	if err := w.workspace.MakeDir(ctx, dir); err != nil {
		return &icons.DirectoryError{Word: task.Word, Path: dir, Err: err}
	}
	return nil
}

// release removes the word directory. It runs once, after every fetch has
// stopped, and ignores cancellation so a timed-out job still cleans up.
func (w *Worker) release(ctx context.Context, task icons.Task, dir string, logger *zap.Logger) {
	if err := w.workspace.RemoveDir(context.WithoutCancel(ctx), dir); err != nil {
		logger.Error("word directory cleanup failed",
			zap.Error(&icons.DirectoryError{Word: task.Word, Path: dir, Err: err}))
	}
}

// download fetches every candidate concurrently. The first failure cancels
// the rest and is returned once all of them have stopped. Each fetch
// goroutine recovers its own panic.
func (w *Worker) download(ctx context.Context, task icons.Task, dir string, refs []string) ([]string, error) {
	files := make([]string, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = &icons.FetchError{Word: task.Word, URL: ref, Err: fmt.Errorf("%w: %v", icons.ErrPanicked, rec)}
				}
			}()
			name, err := w.fetchOne(gctx, task, dir, i, ref)
			if err != nil {
				return err
			}
			files[i] = name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var fetchErr *icons.FetchError
		if !errors.As(err, &fetchErr) {
			err = &icons.FetchError{Word: task.Word, Err: err}
		}
		return nil, err
	}
	return files, nil
}

func (w *Worker) fetchOne(ctx context.Context, task icons.Task, dir string, index int, ref string) (string, error) {
	resp, err := w.fetcher.Fetch(ctx, icons.FetchRequest{URL: ref})
	if err != nil {
		return "", &icons.FetchError{Word: task.Word, URL: ref, Err: err}
	}
	name := icons.IconFileName(index, ref)
	if _, err := w.workspace.PutObject(ctx, path.Join(dir, name), resp.ContentType(), resp.Body); err != nil {
		return "", &icons.FetchError{Word: task.Word, URL: ref, Err: fmt.Errorf("save %s: %w", name, err)}
	}
	metrics.ObserveIcon(len(resp.Body))
	return name, nil
}
