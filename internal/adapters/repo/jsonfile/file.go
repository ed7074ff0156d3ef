package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	stateFileMode = 0o600
	stateDirMode  = 0o700

	ProgressFileName     = "state.json"
	ChannelBlockFileName = "blocked_accounts.json"
	UnauthorizedFileName = "unauthorized_accounts.json"
)

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

// document is one JSON file guarded by the lock shared by every handle on the
// same path.
type document struct {
	path string
	mu   *sync.RWMutex
}

func newDocument(dir, name string) (document, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return document{}, fmt.Errorf("resolve state directory: %w", err)
	}

	path := filepath.Join(filepath.Clean(absDir), name)
	return document{path: path, mu: lockForPath(path)}, nil
}

// read decodes the file into v and reports false when it does not exist.
func (d document) read(v any) (bool, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", filepath.Base(d.path), err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(d.path), err)
	}
	return true, nil
}

func (d document) write(v any) error {
	if err := os.MkdirAll(filepath.Dir(d.path), stateDirMode); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(d.path), err)
	}
	data = append(data, '\n')

	tempFile, err := os.CreateTemp(filepath.Dir(d.path), "."+filepath.Base(d.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}

	if err := tempFile.Chmod(stateFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp state file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tempName, d.path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(d.path), err)
	}

	cleanup = false
	return nil
}

// Timestamps written by older tools carry no zone offset.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format(time.RFC3339)
}
