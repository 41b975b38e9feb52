package refs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"
)

// replaceDir replaces dest wholesale with a copy of src. The copy is staged
// in a sibling directory and renamed into place, so files that vanished
// upstream never survive and dest is never left half-written. Any .git
// directory under src is skipped.
func replaceDir(src, dest string) error {
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", parent, err)
	}

	stage, err := os.MkdirTemp(parent, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(stage)
	}()

	opts := copy.Options{
		Skip: func(info os.FileInfo, _, _ string) (bool, error) {
			return info.IsDir() && info.Name() == ".git", nil
		},
	}
	if err := copy.Copy(src, stage, opts); err != nil {
		return fmt.Errorf("failed to copy fetched files: %w", err)
	}
	if err := os.Chmod(stage, 0755); err != nil {
		return err
	}

	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to remove old mirror %s: %w", dest, err)
	}
	if err := os.Rename(stage, dest); err != nil {
		return fmt.Errorf("failed to move mirror into place: %w", err)
	}
	return nil
}
