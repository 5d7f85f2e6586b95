// Package output writes the schedule document.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"schedimport/internal/fsutil"
	appLog "schedimport/internal/log"
	"schedimport/internal/model"
)

// Targets returns the paths the schedule is written to: output itself,
// plus <frontendDir>/<base of output> when frontendDir exists or create is
// set (the directory is then created).
func Targets(output, frontendDir string, create bool) ([]string, error) {
	paths := []string{output}
	if frontendDir == "" {
		return paths, nil
	}

	info, err := os.Stat(frontendDir)
	switch {
	case err == nil && info.IsDir():
	case err == nil:
		appLog.Warn("frontend path is not a directory; skipping copy", "path", frontendDir)
		return paths, nil
	case errors.Is(err, fs.ErrNotExist) && create:
		if err := os.MkdirAll(frontendDir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", frontendDir, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		return paths, nil
	default:
		return nil, err
	}

	copyPath := filepath.Join(frontendDir, filepath.Base(output))
	if filepath.Clean(copyPath) != filepath.Clean(output) {
		paths = append(paths, copyPath)
	}
	return paths, nil
}

// Encode renders events as an indented JSON array. A nil slice encodes as
// [].
func Encode(events []model.Event) ([]byte, error) {
	if events == nil {
		events = []model.Event{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes events once and writes them to every path. The first
// failure is returned; it is fatal for the run.
func Write(events []model.Event, paths []string) error {
	data, err := Encode(events)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	for _, p := range paths {
		if err := WriteFile(p, data); err != nil {
			return err
		}
		appLog.Info("schedule written", "path", p, "events", len(events), "bytes", len(data))
	}
	return nil
}

// WriteFile replaces path atomically. A lock file beside it serializes
// writers, e.g. a scheduled refresh racing a manual run.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	lock := flock.New(filepath.Join(dir, "."+filepath.Base(path)+".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			appLog.Error("output unlock failed", err, "path", path)
		}
	}()

	if err := fsutil.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
