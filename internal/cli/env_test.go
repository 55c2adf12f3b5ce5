package cli

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvLoader_LoadsRequestedFile(t *testing.T) {
	for _, envVar := range OverrideEnvVars {
		t.Setenv(envVar, "")
	}
	t.Setenv("BABEL_TEST_VALUE", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("BABEL_TEST_VALUE=loaded\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	loader := AddEnvFlag(fs, filepath.Join(dir, ".env"), "")
	if err := fs.Parse([]string{"--env", path}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	loaded, err := loader.Load()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if loaded != path {
		t.Fatalf("unexpected loaded path: got %q want %q", loaded, path)
	}
	if got := os.Getenv("BABEL_TEST_VALUE"); got != "loaded" {
		t.Fatalf("unexpected env value: got %q want loaded", got)
	}
}

func TestEnvLoader_MissingDefaultIsNotAnError(t *testing.T) {
	for _, envVar := range OverrideEnvVars {
		t.Setenv(envVar, "")
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	loader := AddEnvFlag(fs, filepath.Join(t.TempDir(), ".env"), "")
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	loaded, err := loader.Load()
	if err != nil {
		t.Fatalf("expected missing default env file to be tolerated, got %v", err)
	}
	if loaded != "" {
		t.Fatalf("unexpected loaded path: %q", loaded)
	}
}
