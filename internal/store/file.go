package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Load reads the snapshot at path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := New(path)

	lock, err := lockFile(path)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}

	params := orderedmap.New[string, entry]()
	if err := json.Unmarshal(data, params); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	for p := params.Oldest(); p != nil; p = p.Next() {
		e := p.Value
		if !e.Value.IsValid() {
			return nil, fmt.Errorf("parsing snapshot %s: %q has no value", path, p.Key)
		}
		if e.Increment.IsValid() {
			inc, err := e.Increment.As(e.Value.Kind())
			if err != nil {
				return nil, fmt.Errorf("parsing snapshot %s: increment of %q: %w", path, p.Key, err)
			}
			e.Increment = inc
		}
		s.params.Set(p.Key, e)
	}
	return s, nil
}

// Save writes the whole registry to the snapshot path, replacing the file.
// The store stays locked for the duration, so mutations wait.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(s.params)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "    "); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	out.WriteByte('\n')

	lock, err := lockFile(s.path)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	return writeFileAtomic(s.path, out.Bytes())
}

// lockFile takes the advisory lock that serializes snapshot access between
// processes.
func lockFile(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("locking snapshot: %w", err)
	}
	return lock, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}
