// Package fsutil holds file helpers shared by the config and output
// writers.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFile replaces path with data so readers see either the old or the
// new content, never a partial file. The temp file lives in path's
// directory because rename is only atomic within one filesystem.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
