package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	t.Setenv("OTSYNC_TEST_DIR", "/from/env")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty string", input: "", want: ""},
		{name: "absolute path", input: "/usr/bin", want: "/usr/bin"},
		{name: "tilde only", input: "~", want: home},
		{name: "tilde with path", input: "~/Documents", want: filepath.Join(home, "Documents")},
		{name: "whitespace trimmed", input: "  /path  ", want: "/path"},
		{name: "env var", input: "$OTSYNC_TEST_DIR/vault", want: "/from/env/vault"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandPath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("expandPath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("expandPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveVaultPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "absolute path unchanged", input: "/vault", want: "/vault"},
		{name: "relative becomes absolute", input: "vault", want: filepath.Join(home, "vault")},
		{name: "tilde path", input: "~/vault", want: filepath.Join(home, "vault")},
		{name: "empty stays empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveVaultPath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("resolveVaultPath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("resolveVaultPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveQueryPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name    string
		query   string
		vault   string
		want    string
		wantErr bool
	}{
		{name: "absolute query unchanged", query: "/queries/q.md", vault: "/vault", want: "/queries/q.md"},
		{name: "relative joins vault", query: "queries/q.md", vault: "/vault", want: "/vault/queries/q.md"},
		{name: "tilde query expands", query: "~/q.md", vault: "/vault", want: filepath.Join(home, "q.md")},
		{name: "empty vault uses relative", query: "q.md", vault: "", want: "q.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveQueryPath(tt.query, tt.vault)
			if (err != nil) != tt.wantErr {
				t.Errorf("resolveQueryPath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("resolveQueryPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateProfile(t *testing.T) {
	tests := []struct {
		name     string
		profile  Profile
		wantErr  bool
		errField string
	}{
		{name: "valid profile", profile: Profile{Vault: "/v", Query: "q.md"}, wantErr: false},
		{name: "empty vault", profile: Profile{Vault: "", Query: "q.md"}, wantErr: true, errField: "vault"},
		{name: "whitespace vault", profile: Profile{Vault: "  ", Query: "q.md"}, wantErr: true, errField: "vault"},
		{name: "empty query is allowed", profile: Profile{Vault: "/v", Query: ""}, wantErr: false},
		{name: "both empty", profile: Profile{}, wantErr: true, errField: "vault"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateProfile("test", tt.profile)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateProfile() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errField != "" {
				var pe *ProfileError
				if errors.As(err, &pe) && pe.Field != tt.errField {
					t.Errorf("error field = %q, want %q", pe.Field, tt.errField)
				}
			}
		})
	}
}

func TestSelectProfile(t *testing.T) {
	tests := []struct {
		name        string
		profileFlag string
		cfg         Config
		wantName    string
		wantNil     bool
		wantErr     bool
	}{
		{
			name:        "explicit flag",
			profileFlag: "work",
			cfg:         Config{Profiles: map[string]Profile{"work": {Vault: "/v", Query: "q"}}},
			wantName:    "work",
		},
		{
			name:        "default profile",
			profileFlag: "",
			cfg:         Config{DefaultProfile: "home", Profiles: map[string]Profile{"home": {Vault: "/v", Query: "q"}}},
			wantName:    "home",
		},
		{
			name:        "no profile",
			profileFlag: "",
			cfg:         Config{},
			wantNil:     true,
		},
		{
			name:        "flag profile not found",
			profileFlag: "missing",
			cfg:         Config{Profiles: map[string]Profile{"work": {}}},
			wantErr:     true,
		},
		{
			name:        "default profile not found",
			profileFlag: "",
			cfg:         Config{DefaultProfile: "missing", Profiles: map[string]Profile{}},
			wantErr:     true,
		},
		{
			name:        "flag with no profiles map",
			profileFlag: "work",
			cfg:         Config{},
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, profile, err := selectProfile(tt.profileFlag, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("selectProfile() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantNil && profile != nil {
				t.Errorf("selectProfile() profile = %v, want nil", profile)
				return
			}
			if !tt.wantNil && !tt.wantErr && name != tt.wantName {
				t.Errorf("selectProfile() name = %q, want %q", name, tt.wantName)
			}
		})
	}
}

func TestResolveProfilePaths(t *testing.T) {
	tmpDir := t.TempDir()
	vaultDir := filepath.Join(tmpDir, "vault")
	os.MkdirAll(vaultDir, 0755)

	fileAsVault := filepath.Join(tmpDir, "file.txt")
	os.WriteFile(fileAsVault, []byte("not a dir"), 0644)

	realVault, err := filepath.EvalSymlinks(vaultDir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		profile  Profile
		wantDB   string
		wantErr  bool
		errField string
	}{
		{
			name:    "default database",
			profile: Profile{Vault: vaultDir, Query: "tasks.md"},
			wantDB:  filepath.Join(realVault, ".otsync", "index.db"),
		},
		{
			name:    "relative database",
			profile: Profile{Vault: vaultDir, Database: "cache/tasks.db"},
			wantDB:  filepath.Join(realVault, "cache", "tasks.db"),
		},
		{
			name:    "absolute database",
			profile: Profile{Vault: vaultDir, Database: filepath.Join(tmpDir, "elsewhere.db")},
			wantDB:  filepath.Join(tmpDir, "elsewhere.db"),
		},
		{
			name:     "non-existent vault",
			profile:  Profile{Vault: filepath.Join(tmpDir, "nonexistent"), Query: "tasks.md"},
			wantErr:  true,
			errField: "vault",
		},
		{
			name:     "vault is file",
			profile:  Profile{Vault: fileAsVault, Query: "tasks.md"},
			wantErr:  true,
			errField: "vault",
		},
		{
			name:     "empty vault",
			profile:  Profile{Vault: "", Query: "tasks.md"},
			wantErr:  true,
			errField: "vault",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := resolveProfilePaths("test", tt.profile)
			if (err != nil) != tt.wantErr {
				t.Errorf("resolveProfilePaths() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				var pe *ProfileError
				if errors.As(err, &pe) && pe.Field != tt.errField {
					t.Errorf("error field = %q, want %q", pe.Field, tt.errField)
				}
				return
			}
			if resolved.VaultPath != realVault {
				t.Errorf("VaultPath = %q, want %q", resolved.VaultPath, realVault)
			}
			if resolved.DatabasePath != tt.wantDB {
				t.Errorf("DatabasePath = %q, want %q", resolved.DatabasePath, tt.wantDB)
			}
			if resolved.StateDir() != filepath.Join(realVault, ".otsync") {
				t.Errorf("StateDir() = %q", resolved.StateDir())
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     Config{DefaultProfile: "work", Profiles: map[string]Profile{"work": {Vault: "/v", Query: "q"}}},
			wantErr: false,
		},
		{
			name:    "no default profile",
			cfg:     Config{Profiles: map[string]Profile{"work": {Vault: "/v", Query: "q"}}},
			wantErr: false,
		},
		{
			name:    "missing default profile",
			cfg:     Config{DefaultProfile: "missing", Profiles: map[string]Profile{"work": {}}},
			wantErr: true,
		},
		{
			name:    "empty config",
			cfg:     Config{},
			wantErr: false,
		},
		{
			name:    "known log level",
			cfg:     Config{LogLevel: "debug"},
			wantErr: false,
		},
		{
			name:    "unknown log level",
			cfg:     Config{LogLevel: "chatty"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadConfigFile(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("missing file error = %v", err)
	}
	if cfg.DefaultProfile != "" || cfg.Profiles != nil {
		t.Errorf("missing file config = %+v, want zero", cfg)
	}

	path := filepath.Join(dir, "config.toml")
	content := `default_profile = "work"
theme = "light"
log_level = "warn"

[profiles.work]
vault = "~/notes"
query = "queries/today.md"
database = "/tmp/work.db"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err = loadConfigFile(path)
	if err != nil {
		t.Fatalf("loadConfigFile() error = %v", err)
	}
	if cfg.DefaultProfile != "work" || cfg.Theme != "light" || cfg.LogLevel != "warn" {
		t.Errorf("top level = %+v", cfg)
	}
	want := Profile{Vault: "~/notes", Query: "queries/today.md", Database: "/tmp/work.db"}
	if cfg.Profiles["work"] != want {
		t.Errorf("profile = %+v, want %+v", cfg.Profiles["work"], want)
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("default_profile = \"nope\"\n[profiles.work]\nvault = \"/v\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfigFile(bad); err == nil {
		t.Error("loadConfigFile() with dangling default_profile should fail")
	}

	broken := filepath.Join(dir, "broken.toml")
	if err := os.WriteFile(broken, []byte("default_profile = \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfigFile(broken); err == nil {
		t.Error("loadConfigFile() with invalid toml should fail")
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	got, err := configPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("/xdg", "otsync", "config.toml"); got != want {
		t.Errorf("configPath() = %q, want %q", got, want)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "", want: slog.LevelInfo},
		{input: "info", want: slog.LevelInfo},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "warning", want: slog.LevelWarn},
		{input: " error ", want: slog.LevelError},
		{input: "trace", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	stateDir := t.TempDir()

	log, closer, err := newLogger(stateDir, "info", true)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	log.Debug("hidden")
	log.Info("indexed vault", "pages", 3)
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(stateDir, "logs", "otsync.jsonl"))
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1: %s", len(lines), data)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if record["msg"] != "indexed vault" || record["pages"] != float64(3) {
		t.Errorf("record = %v", record)
	}
	if _, ok := record["timestamp"]; !ok {
		t.Errorf("record has no timestamp: %v", record)
	}

	if _, _, err := newLogger(stateDir, "loud", true); err == nil {
		t.Error("newLogger() with unknown level should fail")
	}
}
