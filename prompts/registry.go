package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
)

// Registry loads versioned prompt templates from a filesystem. Templates are
// named <name>@<version>.tmpl; rendering without an explicit version picks
// the highest one. An override directory lets operators patch prompts at
// runtime without a rebuild.
type Registry struct {
	fs          fs.FS
	overrideDir string

	mu      sync.RWMutex
	prompts map[string]map[string]*templateEntry
}

type templateEntry struct {
	tmpl   *template.Template
	source string
}

// RegistryOption customises registry behaviour.
type RegistryOption func(*Registry)

// WithOverrideDir enables runtime overrides from a local directory.
func WithOverrideDir(dir string) RegistryOption {
	return func(r *Registry) { r.overrideDir = dir }
}

// NewRegistry constructs a prompt registry over the given filesystem.
func NewRegistry(promptFS fs.FS, opts ...RegistryOption) *Registry {
	r := &Registry{fs: promptFS, prompts: map[string]map[string]*templateEntry{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reload parses templates from the underlying filesystem and the override
// directory, overrides winning on name/version collisions.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prompts := map[string]map[string]*templateEntry{}

	if err := fs.WalkDir(r.fs, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return nil
		}
		data, err := fs.ReadFile(r.fs, path)
		if err != nil {
			return err
		}
		return addTemplate(prompts, path, data)
	}); err != nil {
		return err
	}

	if r.overrideDir != "" {
		err := filepath.WalkDir(r.overrideDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".tmpl") {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			return addTemplate(prompts, path, data)
		})
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	r.prompts = prompts
	return nil
}

func addTemplate(store map[string]map[string]*templateEntry, path string, data []byte) error {
	name, version, err := parseFilename(path)
	if err != nil {
		return err
	}
	tmpl, err := template.New(name).Parse(string(data))
	if err != nil {
		return fmt.Errorf("parse prompt %s@%s: %w", name, version, err)
	}
	versions, ok := store[name]
	if !ok {
		versions = map[string]*templateEntry{}
		store[name] = versions
	}
	versions[version] = &templateEntry{tmpl: tmpl, source: path}
	return nil
}

// Render executes the selected prompt template. An empty version selects the
// latest one.
func (r *Registry) Render(name, version string, data any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[name]
	if !ok || len(versions) == 0 {
		return "", fmt.Errorf("prompt %s not found", name)
	}
	if version == "" {
		version = latestVersion(versions)
	}
	entry, ok := versions[version]
	if !ok {
		return "", fmt.Errorf("prompt %s@%s not found", name, version)
	}

	buf := &bytes.Buffer{}
	if err := entry.tmpl.Execute(buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s@%s: %w", name, version, err)
	}
	return buf.String(), nil
}

// ListVersions returns the sorted versions registered for a prompt.
func (r *Registry) ListVersions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.prompts[name]
	if len(versions) == 0 {
		return nil
	}
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func latestVersion(versions map[string]*templateEntry) string {
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out[len(out)-1]
}

func parseFilename(filename string) (name, version string, err error) {
	base := strings.TrimSuffix(filepath.Base(filename), ".tmpl")
	parts := strings.Split(base, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid prompt filename: %s", filename)
	}
	return parts[0], parts[1], nil
}
