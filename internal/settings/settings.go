// Package settings stores per-principal provider configuration in a YAML
// file and reports external edits to it.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/quells-bot/unified-chat/llm"
)

// ErrNotConfigured indicates no provider is configured for a principal.
var ErrNotConfigured = errors.New("provider not configured")

// Entry is the stored form of one provider configuration. A Credential
// that is exactly $NAME or ${NAME} is read from that environment variable;
// any other value is used literally.
type Entry struct {
	Provider   string `yaml:"provider"`
	Credential string `yaml:"credential,omitempty"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	Model      string `yaml:"model,omitempty"`
}

// Document is the whole settings file.
type Document struct {
	Default    *Entry           `yaml:"default,omitempty"`
	Principals map[string]Entry `yaml:"principals,omitempty"`
}

var envRef = regexp.MustCompile(`^\$(?:\{([A-Za-z_][A-Za-z0-9_]*)\}|([A-Za-z_][A-Za-z0-9_]*))$`)

func expandCredential(v string) string {
	m := envRef.FindStringSubmatch(v)
	if m == nil {
		return v
	}
	return os.Getenv(m[1] + m[2])
}

// File is a settings document on disk. It is re-read on every lookup so
// edits take effect on the next send.
type File struct {
	path string
	mu   sync.Mutex // serializes Save and Clear
}

// Open returns a File for path. The file need not exist yet.
func Open(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Load parses the settings file. A missing file is an empty document.
func (f *File) Load() (Document, error) {
	var doc Document
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse settings %s: %w", f.path, err)
	}
	return doc, nil
}

// ProviderConfig resolves the configuration for principal: its own entry if
// present, otherwise the default.
func (f *File) ProviderConfig(_ context.Context, principal string) (llm.ProviderConfig, error) {
	doc, err := f.Load()
	if err != nil {
		return llm.ProviderConfig{}, err
	}

	entry, ok := doc.Principals[principal]
	if !ok {
		if doc.Default == nil {
			return llm.ProviderConfig{}, fmt.Errorf("%w for %q", ErrNotConfigured, principal)
		}
		entry = *doc.Default
	}
	if strings.TrimSpace(entry.Provider) == "" {
		return llm.ProviderConfig{}, fmt.Errorf("%w for %q", ErrNotConfigured, principal)
	}

	return llm.ProviderConfig{
		Provider:   strings.TrimSpace(entry.Provider),
		Credential: expandCredential(entry.Credential),
		Endpoint:   entry.Endpoint,
		Model:      entry.Model,
	}, nil
}

// Save stores entry for principal, or as the default when principal is empty.
func (f *File) Save(principal string, entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.Load()
	if err != nil {
		return err
	}
	if principal == "" {
		doc.Default = &entry
	} else {
		if doc.Principals == nil {
			doc.Principals = make(map[string]Entry)
		}
		doc.Principals[principal] = entry
	}

	return f.write(&doc)
}

// Clear removes the entry for principal, or the default when principal is
// empty. It returns ErrNotConfigured if there was nothing to remove.
func (f *File) Clear(principal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.Load()
	if err != nil {
		return err
	}
	if principal == "" {
		if doc.Default == nil {
			return fmt.Errorf("%w: no default", ErrNotConfigured)
		}
		doc.Default = nil
	} else {
		if _, ok := doc.Principals[principal]; !ok {
			return fmt.Errorf("%w for %q", ErrNotConfigured, principal)
		}
		delete(doc.Principals, principal)
	}
	return f.write(&doc)
}

// write replaces the file atomically with owner-only permissions.
func (f *File) write(doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
