package wavryconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnvBoolParsesTruthyValues(t *testing.T) {
	const name = "WAVRY_TEST_ENV_BOOL"
	for _, v := range []string{"1", "true", "TRUE", " yes ", "on"} {
		os.Setenv(name, v)
		if !EnvBool(name, false) {
			t.Fatalf("EnvBool(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"0", "false", "nope", ""} {
		os.Setenv(name, v)
		if EnvBool(name, false) {
			t.Fatalf("EnvBool(%q) = true, want false", v)
		}
	}
	os.Unsetenv(name)
	if EnvBool(name, true) != true {
		t.Fatal("expected default to apply when unset")
	}
}

func TestIsLoopback(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:9000": true,
		"127.0.0.1":      true,
		"::1":            true,
		"0.0.0.0:9000":   false,
		"203.0.113.5":    false,
		"":               false,
	}
	for addr, want := range cases {
		if got := IsLoopback(addr); got != want {
			t.Errorf("IsLoopback(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"listen":"127.0.0.1:9000"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	var cfg struct {
		Listen string `json:"listen"`
	}
	if err := LoadJSON(path, &cfg); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9000" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
}
