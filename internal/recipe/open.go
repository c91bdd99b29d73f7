package recipe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// RecipeFileName is the recipe file the directory walk looks for.
const RecipeFileName = ".SRCINFO"

var compressedExts = []string{".gz", ".zst", ".xz"}

// IsRecipeFile reports whether name is a plain or compressed .SRCINFO file.
func IsRecipeFile(name string) bool {
	base := filepath.Base(name)
	if base == RecipeFileName {
		return true
	}
	for _, ext := range compressedExts {
		if base == RecipeFileName+ext {
			return true
		}
	}
	return false
}

type readCloser struct {
	io.Reader
	closers []func() error
}

func (rc *readCloser) Close() error {
	var first error
	for i := len(rc.closers) - 1; i >= 0; i-- {
		if err := rc.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens a recipe file, decompressing .gz, .zst and .xz files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipe: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return &readCloser{Reader: gz, closers: []func() error{f.Close, gz.Close}}, nil
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return &readCloser{Reader: zr, closers: []func() error{f.Close, func() error { zr.Close(); return nil }}}, nil
	case ".xz":
		xr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return &readCloser{Reader: xr, closers: []func() error{f.Close}}, nil
	default:
		return f, nil
	}
}

// ReadFile returns the decompressed contents of a recipe file.
func ReadFile(path string) ([]byte, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe %s: %w", path, err)
	}
	return data, nil
}
