package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/icon-harvester/internal/batch"
	"github.com/JakeFAU/icon-harvester/internal/hash/sha256"
)

type batchOptions struct {
	csvPath string
	outPath string
	baseURL string
}

// batchResult is printed to stdout once the archive is written.
type batchResult struct {
	batch.Summary
	Archive string `json:"archive"`
	SHA256  string `json:"sha256"`
}

func newBatchCmd() *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Harvest icons for a local CSV file",
		Long: `Reads words from a CSV file, runs them through the worker pool, and
writes the zip archive to --out. A JSON summary is printed on success.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "CSV file with the words to harvest")
	cmd.Flags().StringVar(&opts.outPath, "out", "icons.zip", "path of the zip archive to write")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "search URL template overriding the configured default")
	if err := cmd.MarkFlagRequired("csv"); err != nil {
		panic(err)
	}
	return cmd
}

func runBatch(cmd *cobra.Command, opts *batchOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := appInstance.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
			zap.L().Warn("application close failed", zap.Error(cerr))
		}
	}()

	words, err := readWords(opts.csvPath)
	if err != nil {
		return err
	}

	out, err := os.Create(opts.outPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	digest := sha256.NewDigest()

	appInstance.Start(cmd.Context())
	report, err := appInstance.Harvest(cmd.Context(), words, opts.baseURL, io.MultiWriter(out, digest))
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close archive: %w", cerr)
	}
	if err != nil {
		if rerr := os.Remove(opts.outPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			zap.L().Warn("remove partial archive failed", zap.String("path", opts.outPath), zap.Error(rerr))
		}
		return fmt.Errorf("harvest: %w", err)
	}

	zap.L().Info("batch complete",
		zap.String("batch_id", report.BatchID),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed()),
		zap.String("archive", opts.outPath),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(batchResult{
		Summary: report.Summary(),
		Archive: opts.outPath,
		SHA256:  digest.Hex(),
	}); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func readWords(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	words, err := batch.ParseWords(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return words, nil
}
