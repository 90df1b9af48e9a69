package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Extra string `yaml:"extra"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("CORENOTE_TEST_NAME", "from-env")
	path := writeFile(t, "name: ${CORENOTE_TEST_NAME}\nport: 9000\n")

	s := sample{Extra: "default"}
	if err := Load(path, &s); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Name != "from-env" || s.Port != 9000 || s.Extra != "default" {
		t.Errorf("loaded %+v", s)
	}
}

func TestLoad_Validates(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	s := sample{}
	if err := Load(path, &s); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s := sample{Port: 1}
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOptional_MissingFileKeepsTarget(t *testing.T) {
	s := sample{Name: "d", Port: 8080}
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &s); err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if s.Name != "d" || s.Port != 8080 {
		t.Errorf("target changed: %+v", s)
	}
}

func TestLoadOptional_MissingFileStillValidates(t *testing.T) {
	s := sample{}
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Fatal("expected validation error")
	}
}
