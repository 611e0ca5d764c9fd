package transcode

import (
	"errors"
	"fmt"
)

// ErrJobAlreadyRun is returned when an EncodeJob is started twice.
var ErrJobAlreadyRun = errors.New("encode job already run")

// ProbeError means the source stream could not be identified or has no
// usable dimensions. No encode job is launched after it.
type ProbeError struct {
	Source string
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("probe %s: %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProbeError) Unwrap() error { return e.Err }

// EncodeError is the failure of a single rendition. Sibling jobs keep running.
type EncodeError struct {
	Rendition string
	Err       error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Rendition, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// CleanupError is a best-effort filesystem removal that failed.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup %s: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// StorageError wraps a metadata store failure.
type StorageError struct {
	Op      string
	AssetID string
	Err     error
}

func (e *StorageError) Error() string {
	if e.AssetID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s asset %s: %v", e.Op, e.AssetID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
