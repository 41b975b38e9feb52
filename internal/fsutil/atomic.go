// Package fsutil holds small filesystem helpers shared by the stores.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by a rename. Missing parent directories are created. If any step
// fails the previous file, if any, is left unchanged.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fsys, dir, ".aftr-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = fsys.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := fsys.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := fsys.Rename(tmpPath, path); err != nil {
		return err
	}

	success = true
	return nil
}
