// Package batch turns a list of words into worker pool tasks, waits for
// every outcome, and reports per-word failures.
package batch

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/icon-harvester/internal/dispatcher"
	"github.com/JakeFAU/icon-harvester/internal/icons"
	"github.com/JakeFAU/icon-harvester/internal/metrics"
)

// Pool accepts jobs and returns a future per job.
type Pool interface {
	Submit(job dispatcher.Job[icons.Outcome]) *dispatcher.Future[icons.Outcome]
}

// Executor runs one task to completion.
type Executor interface {
	Execute(ctx context.Context, task icons.Task) (icons.Outcome, error)
}

// Runner aggregates a batch over a shared pool.
type Runner struct {
	pool      Pool
	executor  Executor
	publisher icons.Publisher
	topic     string
	logger    *zap.Logger
}

// NewRunner wires a Runner.
func NewRunner(pool Pool, executor Executor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		pool:     pool,
		executor: executor,
		logger:   logger.Named("batch"),
	}
}

// WithPublisher announces every processed batch on topic.
func (r *Runner) WithPublisher(publisher icons.Publisher, topic string) *Runner {
	r.publisher = publisher
	r.topic = topic
	return r
}

// Process schedules one task per distinct word under outputRoot and blocks
// until every task has an outcome. Failures never stop the batch. A word
// repeated within the batch is not scheduled again and is reported as a
// failure, so each word directory has exactly one owner.
func (r *Runner) Process(ctx context.Context, words []string, sourceConfig, outputRoot string) (Report, error) {
	if strings.TrimSpace(outputRoot) == "" {
		return Report{}, errors.New("output root is required")
	}
	start := time.Now()
	logger := r.logger.With(zap.String("batch_id", outputRoot))

	outcomes := make(chan icons.Outcome, len(words))
	seen := make(map[string]struct{}, len(words))
	expected := 0
	for _, raw := range words {
		task, err := icons.NewTask(raw, outputRoot, sourceConfig)
		if err != nil {
			continue
		}
		expected++
		if _, dup := seen[task.Word]; dup {
			outcomes <- icons.Outcome{Word: task.Word, Err: icons.DuplicateWordError(task.Word)}
			continue
		}
		seen[task.Word] = struct{}{}

		future := r.pool.Submit(func(jobCtx context.Context) (icons.Outcome, error) {
			return r.executor.Execute(jobCtx, task)
		})
		go collect(task.Word, future, outcomes)
	}
	logger.Info("batch submitted", zap.Int("words", expected), zap.Int("distinct", len(seen)))

	report := Report{BatchID: outputRoot}
	for range expected {
		report.add(<-outcomes)
	}

	metrics.ObserveBatch(report.Processed)
	logger.Info("batch processed",
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed()),
		zap.Duration("elapsed", time.Since(start)),
	)
	r.announce(ctx, report, logger)
	return report, nil
}

// announce publishes the batch summary. Publishing is best-effort and never
// fails the batch.
func (r *Runner) announce(ctx context.Context, report Report, logger *zap.Logger) {
	if r.publisher == nil {
		return
	}
	id, err := r.publisher.Publish(ctx, r.topic, report.Summary())
	if err != nil {
		logger.Warn("publish batch summary failed", zap.String("topic", r.topic), zap.Error(err))
		return
	}
	logger.Debug("batch summary published", zap.String("topic", r.topic), zap.String("message_id", id))
}

// collect forwards the settled future as an outcome. Pool-level failures
// (closed pool, panic) become failures for the word.
func collect(word string, future *dispatcher.Future[icons.Outcome], out chan<- icons.Outcome) {
	outcome, err := future.Wait()
	if err != nil {
		outcome = icons.Outcome{Word: word, Err: err}
	}
	out <- outcome
}
