// Package checkpoint persists the last streamed group id so a restarted
// follower can resume from where it left off.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Store reads and writes a single group id in a plain file.
type Store struct {
	path   string
	logger *logrus.Logger
}

// NewStore creates a store backed by the file at path.
func NewStore(path string, logger *logrus.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
	}
}

// Load returns the saved group id, or fallback when no checkpoint has been
// written yet.
func (s *Store) Load(fallback string) (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	groupID := strings.TrimSpace(string(data))
	if groupID == "" {
		return fallback, nil
	}
	s.logger.Infof("Loaded checkpoint group id %s from %s", groupID, s.path)
	return groupID, nil
}

// Save records groupID as the latest fully processed position. Empty group
// ids are not persisted.
func (s *Store) Save(groupID string) error {
	if groupID == "" {
		return nil
	}
	if err := os.WriteFile(s.path, []byte(groupID+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
