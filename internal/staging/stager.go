// Package staging hands a group of work items to a worker through a temp file,
// keeping large item lists off the worker's command line.
package staging

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
)

const filePattern = "addressbot-group-*.json"

// Stager writes groups into a staging directory
type Stager struct {
	dir    string
	logger arbor.ILogger
}

// NewStager creates a stager. An empty dir uses the OS temp directory.
func NewStager(dir string, logger arbor.ILogger) (*Stager, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Stager{dir: dir, logger: logger}, nil
}

// Dir returns the staging directory
func (s *Stager) Dir() string {
	return s.dir
}

// Stage writes the group as a JSON array and returns the file path
func (s *Stager) Stage(group []models.WorkItem) (string, error) {
	f, err := os.CreateTemp(s.dir, filePattern)
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}
	path := f.Name()

	if err := json.NewEncoder(f).Encode(group); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close staging file: %w", err)
	}

	s.logger.Debug().Str("path", path).Int("items", len(group)).Msg("Group staged")
	return path, nil
}

// Discard removes a staged file no worker will read
func (s *Stager) Discard(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove staging file: %w", err)
	}
	return nil
}

// Consume reads a staged group and deletes the file. The file is removed even when
// it cannot be decoded, so a group is read at most once.
func Consume(path string) ([]models.WorkItem, error) {
	data, readErr := os.ReadFile(path)
	if rmErr := os.Remove(path); rmErr != nil && readErr == nil && !errors.Is(rmErr, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove staging file: %w", rmErr)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read staging file: %w", readErr)
	}

	var group []models.WorkItem
	if err := json.Unmarshal(data, &group); err != nil {
		return nil, fmt.Errorf("failed to parse staging file %s: %w", path, err)
	}
	return group, nil
}
