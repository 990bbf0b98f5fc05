// Package archive packs a batch workspace into a zip file.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// Writer zips directory trees from an afero filesystem.
type Writer struct {
	fs    afero.Fs
	level int
}

// New creates a Writer. level follows flate: -2 (Huffman only) through 9.
func New(fs afero.Fs, level int) (*Writer, error) {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}
	return &Writer{fs: fs, level: level}, nil
}

// Write archives every directory and file under root, with paths relative to
// root and directories listed as "name/" entries. Entries are emitted in
// lexical order. It returns the number of files written.
func (a *Writer) Write(w io.Writer, root string) (int, error) {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, a.level)
	})

	files := 0
	err := afero.Walk(a.fs, root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("zip header for %s: %w", name, err)
		}
		if info.IsDir() {
			header.Name = name + "/"
			header.Method = zip.Store
			_, err = zw.CreateHeader(header)
			if err != nil {
				return fmt.Errorf("zip directory %s: %w", name, err)
			}
			return nil
		}

		header.Name = name
		header.Method = zip.Deflate
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", name, err)
		}
		if err := a.copyFile(entry, path); err != nil {
			return fmt.Errorf("zip entry %s: %w", name, err)
		}
		files++
		return nil
	})
	if err != nil {
		return files, fmt.Errorf("walk %s: %w", root, err)
	}
	if err := zw.Close(); err != nil {
		return files, fmt.Errorf("finish zip: %w", err)
	}
	return files, nil
}

func (a *Writer) copyFile(dst io.Writer, path string) error {
	f, err := a.fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}
