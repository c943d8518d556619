package roster

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// fileStore persists the roster as a single JSON array, written via
// tmp+rename so a crash never leaves a truncated roster behind.
type fileStore struct {
	path string
}

func NewFileStore(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("roster: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{path: path}, nil
}

func (s *fileStore) Load(ctx context.Context) ([]Recipient, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	var out []Recipient
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) Save(ctx context.Context, recipients []Recipient) error {
	if recipients == nil {
		recipients = []Recipient{}
	}
	b, err := json.MarshalIndent(recipients, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
