package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	v1 "github.com/tactiboard/engine/internal/storage/memory/export/v1"
)

const baseFileName = "library.json"

func (b *Backend) exportPath() string {
	name := baseFileName
	if b.cfg.CompressOutput {
		name += ".gz"
	}
	return filepath.Join(b.cfg.OutputDir, name)
}

// exportJSON writes the library file. Callers hold b.mu.
func (b *Backend) exportJSON() error {
	export := v1.Build(&v1.LibraryData{
		Board:     b.board,
		Sequences: b.sequences,
		Time:      b.now(),
	})
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := b.exportPath()
	if err := writeAtomic(path, b.cfg.CompressOutput, export); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	b.lastExportPath = path
	return nil
}

// readExport loads the library file matching the current compression setting.
func (b *Backend) readExport() (v1.Export, bool, error) {
	path := b.exportPath()
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return v1.Export{}, false, nil
	}
	if err != nil {
		return v1.Export{}, false, err
	}
	defer f.Close()

	var r io.Reader = f
	if b.cfg.CompressOutput {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return v1.Export{}, false, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var export v1.Export
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return v1.Export{}, false, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := v1.Validate(export); err != nil {
		return v1.Export{}, false, fmt.Errorf("invalid library %s: %w", path, err)
	}
	return export, true, nil
}

// writeAtomic encodes data into a temporary file next to path and renames
// it over path, so readers never see a half-written library.
func writeAtomic(path string, compress bool, data v1.Export) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(tmp)
		w = gz
	}
	if err = json.NewEncoder(w).Encode(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if gz != nil {
		if err = gz.Close(); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
