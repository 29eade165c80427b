package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// GeneratedNameLayout names files created without a client-supplied name.
const GeneratedNameLayout = "20060102_150405.txt"

var (
	// ErrNotFound is returned when the named file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidName is returned for names that are empty or would leave the base directory.
	ErrInvalidName = errors.New("invalid file name")
)

// File is the read model of a stored file.
type File struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Content string `json:"content"`
}

// Store keeps text files in a single base directory.
// There is no locking between writers; the last write wins.
type Store struct {
	fs      afero.Fs
	baseDir string
	now     func() time.Time
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock sets the clock used for generated file names.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns a Store rooted at baseDir on fsys, creating the directory if needed.
func NewStore(fsys afero.Fs, baseDir string, opts ...StoreOption) (*Store, error) {
	if fsys == nil {
		return nil, errors.New("filesystem cannot be nil")
	}
	if baseDir == "" {
		return nil, errors.New("base directory cannot be empty")
	}

	if err := fsys.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", baseDir, err)
	}

	s := &Store{
		fs:      fsys,
		baseDir: baseDir,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BaseDir returns the directory the store manages.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// List returns the name of every entry in the base directory, sorted.
// Subdirectories and other non-regular entries are included.
func (s *Store) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.baseDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the named file. Directories are reported as ErrNotFound.
func (s *Store) Read(name string) (*File, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}

	if err := s.requireFile(path); err != nil {
		return nil, err
	}

	content, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	return &File{
		Path:    path,
		Size:    int64(len(content)),
		Content: string(content),
	}, nil
}

// Create writes content and returns the resolved file name.
// An empty name is replaced by a timestamp name with second precision;
// a given name is used as-is and an existing file of that name is overwritten.
func (s *Store) Create(content, name string) (string, error) {
	if name == "" {
		name = s.now().Format(GeneratedNameLayout)
	}

	path, err := s.path(name)
	if err != nil {
		return "", err
	}

	if err := afero.WriteFile(s.fs, path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return name, nil
}

// Update overwrites an existing file.
func (s *Store) Update(name, content string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	if err := s.requireFile(path); err != nil {
		return err
	}

	if err := afero.WriteFile(s.fs, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Delete removes the named file. Directories are reported as not found.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	if err := s.requireFile(path); err != nil {
		return err
	}

	if err := s.fs.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

func (s *Store) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, name), nil
}

func (s *Store) requireFile(path string) error {
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to stat %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() {
		return ErrNotFound
	}
	return nil
}

// ValidateName rejects names that are empty, dot entries, or contain a path separator.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q must not contain path separators", ErrInvalidName, name)
	}
	return nil
}
