package batch

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/icon-harvester/internal/icons"
)

// Workspace provisions and removes batch directories.
type Workspace interface {
	MakeDir(ctx context.Context, dir string) error
	RemoveDir(ctx context.Context, dir string) error
	Path(rel string) (string, error)
}

// Archiver writes the tree under root to w and returns the file count.
type Archiver interface {
	Write(w io.Writer, root string) (int, error)
}

// Harvester runs one batch inside a fresh workspace directory, archives the
// result, and removes the directory again.
type Harvester struct {
	runner    *Runner
	workspace Workspace
	archiver  Archiver
	ids       icons.IDGenerator
	logger    *zap.Logger
}

// NewHarvester wires a Harvester.
func NewHarvester(
	runner *Runner,
	workspace Workspace,
	archiver Archiver,
	ids icons.IDGenerator,
	logger *zap.Logger,
) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		runner:    runner,
		workspace: workspace,
		archiver:  archiver,
		ids:       ids,
		logger:    logger.Named("harvester"),
	}
}

// Harvest processes words and streams the zip archive into w.
func (h *Harvester) Harvest(ctx context.Context, words []string, sourceConfig string, w io.Writer) (Report, error) {
	batchID, err := h.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("generate batch id: %w", err)
	}
	if err := h.workspace.MakeDir(ctx, batchID); err != nil {
		return Report{}, fmt.Errorf("create batch workspace: %w", err)
	}
	defer func() {
		if err := h.workspace.RemoveDir(context.WithoutCancel(ctx), batchID); err != nil {
			h.logger.Warn("batch workspace cleanup failed", zap.String("batch_id", batchID), zap.Error(err))
		}
	}()

	report, err := h.runner.Process(ctx, words, sourceConfig, batchID)
	if err != nil {
		return Report{}, err
	}

	root, err := h.workspace.Path(batchID)
	if err != nil {
		return report, fmt.Errorf("resolve batch workspace: %w", err)
	}
	files, err := h.archiver.Write(w, root)
	if err != nil {
		return report, fmt.Errorf("archive batch: %w", err)
	}
	h.logger.Info("batch archived",
		zap.String("batch_id", batchID),
		zap.Int("files", files),
		zap.Int("failed", report.Failed()),
	)
	return report, nil
}
