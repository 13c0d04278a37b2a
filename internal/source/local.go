package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Local reads documents from a directory on disk. References are file paths.
type Local struct {
	Dir string
}

// NewLocal creates a Local source rooted at dir
func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

// List returns supported files directly inside Dir. Subdirectories are not descended.
func (l *Local) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("input folder %s: %w", l.Dir, ErrNotFound)
		}
		return nil, fmt.Errorf("listing %s: %w", l.Dir, err)
	}

	var refs []string
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		refs = append(refs, filepath.Join(l.Dir, e.Name()))
	}
	sort.Strings(refs)
	return refs, nil
}

// Read returns the file content. A missing file is reported as ErrNotFound.
func (l *Local) Read(ctx context.Context, ref string) ([]byte, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Put writes data to Dir/name, creating Dir if needed
func (l *Local) Put(ctx context.Context, name string, data []byte) error {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", l.Dir, err)
	}
	return os.WriteFile(filepath.Join(l.Dir, name), data, 0644)
}
