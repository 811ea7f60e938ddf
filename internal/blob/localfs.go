package blob

import (
	"io"
	"os"
	"path/filepath"
)

type LocalFS struct {
	Root string
}

func (l LocalFS) Put(relPath string, r io.Reader) (string, error) {
	clean := filepath.Clean(relPath)
	abs := filepath.Join(l.Root, clean)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return clean, nil
}

func (l LocalFS) Open(relPath string) (*os.File, error) {
	clean := filepath.Clean(relPath)
	abs := filepath.Join(l.Root, clean)
	return os.Open(abs)
}

// ReadAll loads an entire blob into memory. The worker uses it to hand the
// full input video to the pipeline engine.
func (l LocalFS) ReadAll(relPath string) ([]byte, error) {
	f, err := l.Open(relPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (l LocalFS) Exists(relPath string) bool {
	clean := filepath.Clean(relPath)
	abs := filepath.Join(l.Root, clean)
	_, err := os.Stat(abs)
	return err == nil
}

// Delete removes a blob. Used for best-effort cleanup of an input blob whose
// job record never made it into the store.
func (l LocalFS) Delete(relPath string) error {
	clean := filepath.Clean(relPath)
	abs := filepath.Join(l.Root, clean)
	return os.Remove(abs)
}
