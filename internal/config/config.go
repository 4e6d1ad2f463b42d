package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingField is returned when a required key is absent or empty
	ErrMissingField = errors.New("missing required field")

	// ErrUnknownAction is returned for an action name outside list/analyze/backup/clean
	ErrUnknownAction = errors.New("unknown action")
)

// Error is a configuration failure. It names the file and, when known, the offending field.
type Error struct {
	File  string
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.File != "":
		return fmt.Sprintf("config %s: %s: %v", e.File, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	case e.File != "":
		return fmt.Sprintf("config %s: %v", e.File, e.Err)
	default:
		return fmt.Sprintf("config: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Task is one configured directory action.
type Task struct {
	Action             Action
	Path               string
	IncludeDirectories bool
	Exclude            []string
}

type Config struct {
	Directories    []Task
	BackupRootPath string
}

// file mirrors the on-disk layout. Actions stay strings until validation so errors can
// name the entry they came from.
type file struct {
	Directories    []fileTask `json:"directories" yaml:"directories"`
	BackupRootPath string     `json:"backup_root_path" yaml:"backup_root_path"`
}

type fileTask struct {
	Action             string   `json:"action" yaml:"action"`
	Path               string   `json:"path" yaml:"path"`
	IncludeDirectories bool     `json:"include_directories" yaml:"include_directories"`
	Exclude            []string `json:"exclude" yaml:"exclude"`
}

// Format selects the decoder used by Parse.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatForPath picks YAML for .yaml/.yml files and JSON for everything else.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadConfig reads and validates the task file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{File: path, Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	cfg, err := Parse(data, FormatForPath(path))
	if err != nil {
		var cfgErr *Error
		if errors.As(err, &cfgErr) {
			cfgErr.File = path
			return nil, cfgErr
		}
		return nil, &Error{File: path, Err: err}
	}

	return cfg, nil
}

// Parse decodes and validates config data. Unknown keys are rejected.
func Parse(data []byte, format Format) (*Config, error) {
	var raw file

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, &Error{Err: fmt.Errorf("failed to parse config YAML: %w", err)}
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return nil, &Error{Err: fmt.Errorf("failed to parse config JSON: %w", err)}
		}
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return nil, &Error{Err: errors.New("failed to parse config JSON: unexpected data after top-level object")}
		}
	}

	return raw.build()
}

// build validates the decoded file and converts it. The first problem found is returned.
func (f *file) build() (*Config, error) {
	if f.Directories == nil {
		return nil, &Error{Field: "directories", Err: ErrMissingField}
	}

	cfg := &Config{
		Directories:    make([]Task, 0, len(f.Directories)),
		BackupRootPath: f.BackupRootPath,
	}

	hasBackup := false
	for i, ft := range f.Directories {
		field := fmt.Sprintf("directories[%d]", i)
		if ft.Action == "" {
			return nil, &Error{Field: field + ".action", Err: ErrMissingField}
		}
		action, err := ParseAction(ft.Action)
		if err != nil {
			return nil, &Error{Field: field + ".action", Err: err}
		}
		if strings.TrimSpace(ft.Path) == "" {
			return nil, &Error{Field: field + ".path", Err: ErrMissingField}
		}
		if action == ActionBackup {
			hasBackup = true
		}

		cfg.Directories = append(cfg.Directories, Task{
			Action:             action,
			Path:               ft.Path,
			IncludeDirectories: ft.IncludeDirectories,
			Exclude:            ft.Exclude,
		})
	}

	if hasBackup && strings.TrimSpace(f.BackupRootPath) == "" {
		return nil, &Error{Field: "backup_root_path", Err: ErrMissingField}
	}

	return cfg, nil
}
