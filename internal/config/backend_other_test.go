//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tweaker", "config.json")
	b := newFileBackend(path)

	if err := b.SetInt("server.port", 5005); err != nil {
		t.Fatal(err)
	}
	if err := b.SetString("log.level", "debug"); err != nil {
		t.Fatal(err)
	}

	reloaded := newFileBackend(path)
	if v, ok, err := reloaded.GetInt("server.port"); err != nil || !ok || v != 5005 {
		t.Errorf("GetInt = %d, %v, %v", v, ok, err)
	}
	if v, ok, _ := reloaded.GetString("log.level"); !ok || v != "debug" {
		t.Errorf("GetString = %q, %v", v, ok)
	}

	if err := reloaded.Delete("log.level"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := newFileBackend(path).GetString("log.level"); ok {
		t.Error("deleted key still present")
	}
}

func TestFileBackendBadInt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server.port": 1.5, "http.mcp_enabled": false}`), 0o600); err != nil {
		t.Fatal(err)
	}
	b := newFileBackend(path)
	if _, _, err := b.GetInt("server.port"); err == nil {
		t.Error("expected error for fractional port")
	}
	if v, ok, _ := b.GetString("http.mcp_enabled"); !ok || v != "false" {
		t.Errorf("bool as string = %q, %v", v, ok)
	}
}

func TestConfigFilePathXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got, want := configFilePath(), filepath.Join("/xdg", "tweaker", "config.json"); got != want {
		t.Errorf("configFilePath() = %q, want %q", got, want)
	}
	t.Setenv("XDG_DATA_HOME", "/data")
	if got, want := defaultDataDir(), filepath.Join("/data", "tweaker"); got != want {
		t.Errorf("defaultDataDir() = %q, want %q", got, want)
	}
}
