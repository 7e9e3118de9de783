package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"
)

// FileSource reads address settings from a metadata export on disk (JSON or YAML)
type FileSource struct {
	path   string
	logger arbor.ILogger
}

var _ interfaces.MetadataSource = (*FileSource)(nil)

// NewFileSource creates a source reading path
func NewFileSource(path string, logger arbor.ILogger) *FileSource {
	return &FileSource{path: path, logger: logger}
}

// Retrieve loads the export. Credentials are not needed for a local export and are ignored.
func (s *FileSource) Retrieve(ctx context.Context, loginURL, login, password string) (*models.AddressSettings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("cannot read metadata: %w", err)
	}

	var settings models.AddressSettings
	if err := decode(s.path, data, &settings); err != nil {
		return nil, fmt.Errorf("cannot read metadata %s: %w", s.path, err)
	}

	s.logger.Info().
		Str("path", s.path).
		Int("countries", len(settings.CountriesAndStates.Countries)).
		Msg("Address settings loaded")
	return &settings, nil
}

// decode picks the format from the file extension; anything but .yaml/.yml is JSON
func decode(path string, data []byte, v interface{}) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}
