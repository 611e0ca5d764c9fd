package transcode

import (
	"errors"
	"io/fs"
	"os"
)

// RemoveSource deletes the uploaded source file. A file that is already gone
// is not an error.
func RemoveSource(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &CleanupError{Path: path, Err: err}
	}
	return nil
}

// RemoveOutput recursively deletes a rendition tree, whether complete,
// partially written or missing.
func RemoveOutput(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return &CleanupError{Path: dir, Err: err}
	}
	return nil
}
