package loader

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) AddFile(path string, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func TestTOMLLoader_Load(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/defaults.toml", `
title = "My App"

[Window]
width = 800
height = 600
maximized = false
scale = 1.5

[Window.Toolbar]
visible = true

[Editor]
rulers = [80, 120]
font = "mono"
`)

	got, err := NewTOMLLoaderWithFS(memfs, "/defaults.toml").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := map[string]map[string]string{
		"Default":        {"title": "My App"},
		"Window":         {"width": "800", "height": "600", "maximized": "false", "scale": "1.5"},
		"Window.Toolbar": {"visible": "true"},
		"Editor":         {"rulers": "80, 120", "font": "mono"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %v\nwant %v", got, want)
	}
}

func TestTOMLLoader_LoadNonExistent(t *testing.T) {
	got, err := NewTOMLLoaderWithFS(NewMemFS(), "/missing.toml").Load()
	if err != nil {
		t.Fatalf("expected no error for non-existent file, got: %v", err)
	}
	if got != nil {
		t.Error("expected nil for non-existent file")
	}
}

func TestTOMLLoader_LoadInvalid(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/invalid.toml", "[Window\nwidth = 4\n")

	_, err := NewTOMLLoaderWithFS(memfs, "/invalid.toml").Load()
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T (%v)", err, err)
	}
	if parseErr.Path != "/invalid.toml" {
		t.Errorf("Path = %q, want /invalid.toml", parseErr.Path)
	}
}

func TestTOMLLoader_LoadFromReader(t *testing.T) {
	got, err := (&TOMLLoader{}).LoadFromReader(strings.NewReader("[Theme]\nname = \"light\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got["Theme"]["name"] != "light" {
		t.Errorf("Theme.name = %q, want light", got["Theme"]["name"])
	}
}

func TestYAMLLoader_Load(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/defaults.yaml", `
version: 3
Window:
  width: 800
  fullscreen: false
  tags: [a, b]
  Docks:
    left: true
`)

	got, err := NewYAMLLoaderWithFS(memfs, "/defaults.yaml").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := map[string]map[string]string{
		"Default":      {"version": "3"},
		"Window":       {"width": "800", "fullscreen": "false", "tags": "a, b"},
		"Window.Docks": {"left": "true"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %v\nwant %v", got, want)
	}
}

func TestYAMLLoader_LoadInvalid(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/bad.yaml", "Window: [unclosed\n")

	_, err := NewYAMLLoaderWithFS(memfs, "/bad.yaml").Load()
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T (%v)", err, err)
	}
}

func TestFlatten_RejectsTablesInLists(t *testing.T) {
	_, err := Flatten(map[string]any{
		"Window": map[string]any{"panes": []any{map[string]any{"x": 1}}},
	})
	if err == nil {
		t.Error("expected error for table inside list")
	}
}

func TestTOMLDefaults_RealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.toml")
	if err := os.WriteFile(path, []byte("[Window]\nwidth = 1024\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := TOMLDefaults(path)()
	if err != nil {
		t.Fatal(err)
	}
	if got["Window"]["width"] != "1024" {
		t.Errorf("Window.width = %q, want 1024", got["Window"]["width"])
	}
}
