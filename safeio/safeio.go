// Package safeio writes output files atomically. Content lands in a
// temporary file next to the destination and renames into place only after a
// successful sync, so a failed operation never leaves a partial file behind.
package safeio

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFailureError reports a destination that could not be produced. The
// destination path is untouched when this error is returned.
type WriteFailureError struct {
	Path string
	Err  error
}

func (e *WriteFailureError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteFailureError) Unwrap() error { return e.Err }

// WriteFile atomically replaces dest with data. The temporary file shares
// dest's directory so the final rename stays on one filesystem.
func WriteFile(dest string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return &WriteFailureError{Path: dest, Err: err}
	}
	name := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			tmp.Close()
			os.Remove(name)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return &WriteFailureError{Path: dest, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &WriteFailureError{Path: dest, Err: err}
	}
	if err := tmp.Chmod(perm); err != nil {
		return &WriteFailureError{Path: dest, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &WriteFailureError{Path: dest, Err: err}
	}
	if err := os.Rename(name, dest); err != nil {
		os.Remove(name)
		return &WriteFailureError{Path: dest, Err: err}
	}
	renamed = true
	return nil
}
