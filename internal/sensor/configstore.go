package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ConfigSuffix is appended to a sensor id to name its config file.
const ConfigSuffix = "_config.json"

var (
	// ErrConflict is returned when creating a config that already exists.
	ErrConflict = errors.New("config already exists")
	// ErrNotFound is returned when updating a config that does not exist.
	ErrNotFound = errors.New("config not found")
	// ErrInvalidSensorID is returned for ids or file names that are empty or contain path separators.
	ErrInvalidSensorID = errors.New("invalid sensor id")
)

// ValidationError reports a scale outside ValidScales.
type ValidationError struct {
	Scale string
}

func (e *ValidationError) Error() string {
	quoted := make([]string, 0, len(ValidScales()))
	for _, s := range ValidScales() {
		quoted = append(quoted, "'"+string(s)+"'")
	}
	return fmt.Sprintf("Invalid scale '%s'. Valid options: [%s]", e.Scale, strings.Join(quoted, ", "))
}

// configFile is the on-disk shape of a sensor config.
type configFile struct {
	Scale *string `json:"scale"`
}

// ConfigStore keeps one {sensor_id}_config.json file per sensor in a directory.
// Writes are last-write-wins.
type ConfigStore struct {
	fs  afero.Fs
	dir string
}

// NewConfigStore returns a ConfigStore rooted at dir on fsys, creating the directory if needed.
func NewConfigStore(fsys afero.Fs, dir string) (*ConfigStore, error) {
	if fsys == nil {
		return nil, errors.New("filesystem cannot be nil")
	}
	if dir == "" {
		return nil, errors.New("config directory cannot be empty")
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return &ConfigStore{fs: fsys, dir: dir}, nil
}

// Dir returns the config directory.
func (c *ConfigStore) Dir() string {
	return c.dir
}

// FileName returns the config file name for a sensor id.
func FileName(sensorID string) string {
	return sensorID + ConfigSuffix
}

// Create writes a new config for sensorID.
// Nothing is written when the config exists or the scale is invalid.
func (c *ConfigStore) Create(sensorID string, scale Scale) error {
	if err := validateName(sensorID); err != nil {
		return err
	}

	path := c.path(FileName(sensorID))
	exists, err := afero.Exists(c.fs, path)
	if err != nil {
		return fmt.Errorf("failed to stat config %s: %w", path, err)
	}
	if exists {
		return ErrConflict
	}

	if !scale.Valid() {
		return &ValidationError{Scale: string(scale)}
	}

	data, err := encode(scale)
	if err != nil {
		return err
	}

	f, err := c.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create config %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return f.Close()
}

// Update overwrites the config stored under the literal file name configFile.
func (c *ConfigStore) Update(configFile string, scale Scale) error {
	if err := validateName(configFile); err != nil {
		return err
	}

	path := c.path(configFile)
	exists, err := afero.Exists(c.fs, path)
	if err != nil {
		return fmt.Errorf("failed to stat config %s: %w", path, err)
	}
	if !exists {
		return ErrNotFound
	}

	if !scale.Valid() {
		return &ValidationError{Scale: string(scale)}
	}

	data, err := encode(scale)
	if err != nil {
		return err
	}

	if err := afero.WriteFile(c.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// UpdateByID overwrites the config of sensorID.
func (c *ConfigStore) UpdateByID(sensorID string, scale Scale) error {
	if err := validateName(sensorID); err != nil {
		return err
	}
	return c.Update(FileName(sensorID), scale)
}

// Load returns the stored scale of sensorID. When no config exists it returns
// Celsius and false. Stored values are returned as-is, without validation.
func (c *ConfigStore) Load(sensorID string) (Scale, bool, error) {
	if err := validateName(sensorID); err != nil {
		return "", false, err
	}

	path := c.path(FileName(sensorID))
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Celsius, false, nil
		}
		return "", false, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg configFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return "", false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Scale == nil {
		return Celsius, true, nil
	}
	return Scale(*cfg.Scale), true, nil
}

// List returns the ids of every sensor with a config file, sorted.
func (c *ConfigStore) List() ([]string, error) {
	entries, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list config directory %s: %w", c.dir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		id, ok := strings.CutSuffix(entry.Name(), ConfigSuffix)
		if !ok || id == "" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *ConfigStore) path(name string) string {
	return filepath.Join(c.dir, name)
}

func encode(scale Scale) ([]byte, error) {
	s := string(scale)
	data, err := json.Marshal(configFile{Scale: &s})
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidSensorID, name)
	}
	return nil
}
