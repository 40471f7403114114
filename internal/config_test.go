package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/linkmend/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestWorkspaceConfig_ExcludeMustBeNames(t *testing.T) {
	cfg := WorkspaceConfig{Path: "./docs", Exclude: []string{".git", "build/out"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("exclude entry with a separator should fail")
	}
	cfg.Exclude = []string{".git", ""}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty exclude entry should fail")
	}
}

func TestSearchConfig(t *testing.T) {
	cfg := SearchConfig{MaxResults: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative max_results should fail")
	}

	cfg = SearchConfig{Formats: map[string][]string{"md": {".ipynb"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("format without leading dot should fail")
	}

	cfg = SearchConfig{}
	if got := cfg.FormatMap(); len(got[".md"]) != 1 || got[".md"][0] != ".ipynb" {
		t.Errorf("default formats = %v", got)
	}
	cfg.Formats = map[string][]string{".md": {".markdown"}}
	if got := cfg.FormatMap(); got[".md"][0] != ".markdown" {
		t.Errorf("configured formats = %v", got)
	}
}

func TestScanConfig_Interval(t *testing.T) {
	if err := (&ScanConfig{}).Validate(); err != nil {
		t.Errorf("zero interval disables the scan: %v", err)
	}
	if err := (&ScanConfig{Interval: 10 * time.Millisecond}).Validate(); err == nil {
		t.Error("sub-second interval should fail")
	}
	if err := (&ScanConfig{Interval: time.Minute}).Validate(); err != nil {
		t.Errorf("one minute: %v", err)
	}
}

func TestWatchConfig_NegativeDebounce(t *testing.T) {
	if err := (&WatchConfig{Debounce: -time.Second}).Validate(); err == nil {
		t.Error("negative debounce should fail")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("LINKMEND_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `app:
  log_level: debug
  http:
    port: 9090
workspace:
  path: /srv/docs
  exclude: [".git"]
sqlite:
  path: /tmp/linkmend.db
auth:
  mode: token
  token: ${LINKMEND_TEST_TOKEN}
watch:
  enabled: true
  debounce: 500ms
scan:
  interval: 5m
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.HTTP.Port != 9090 {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q, want expanded env", cfg.Auth.Token)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond || cfg.Scan.Interval != 5*time.Minute {
		t.Errorf("durations = %v %v", cfg.Watch.Debounce, cfg.Scan.Interval)
	}
	if cfg.Search.MaxResults != 50 {
		t.Errorf("max_results default lost: %d", cfg.Search.MaxResults)
	}
}
