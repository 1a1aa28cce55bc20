package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"sixty/internal/events"
)

// FileStore keeps the snapshot as a JSON file. It has no event journal.
type FileStore struct {
	Path string
}

func NewFileStore(workspace string) FileStore {
	if workspace == "" {
		workspace = "."
	}
	return FileStore{Path: filepath.Join(workspace, ".sixty", "progress.json")}
}

func (f FileStore) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading progress file: %w", err)
	}
	return data, nil
}

// Save writes through a temp file and renames it so a crash never leaves half a snapshot.
func (f FileStore) Save(ctx context.Context, snapshot []byte, _ events.Record) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("error creating progress directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".progress-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(snapshot); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("error writing progress file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

func (f FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
