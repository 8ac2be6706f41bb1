package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	stateDirName  = ".otsync"
	indexFileName = "index.db"
)

type Config struct {
	DefaultProfile string             `toml:"default_profile"`
	Profiles       map[string]Profile `toml:"profiles"`
	Theme          string             `toml:"theme"`
	LogLevel       string             `toml:"log_level"`
}

type Profile struct {
	Vault    string `toml:"vault"`
	Query    string `toml:"query"`
	Database string `toml:"database"`
}

type ResolvedProfile struct {
	Name         string
	VaultPath    string
	Query        string
	DatabasePath string
}

// StateDir is where the index and logs live for the vault
func (r *ResolvedProfile) StateDir() string {
	return filepath.Join(r.VaultPath, stateDirName)
}

type ProfileError struct {
	Profile string
	Field   string
	Err     error
}

func (e *ProfileError) Error() string {
	if e.Profile == "" {
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	}

	if e.Field == "" {
		return fmt.Sprintf("profile %q: %v", e.Profile, e.Err)
	}

	return fmt.Sprintf("profile %q: %s: %v", e.Profile, e.Field, e.Err)
}

func (e *ProfileError) Unwrap() error {
	return e.Err
}

var (
	ErrEmptyPath    = errors.New("path is empty")
	ErrPathNotExist = errors.New("path does not exist")
	ErrNotDirectory = errors.New("path is not a directory")
)

func validateProfile(name string, p Profile) error {
	if strings.TrimSpace(p.Vault) == "" {
		return &ProfileError{Profile: name, Field: "vault", Err: ErrEmptyPath}
	}
	return nil
}

// checkDir reports why path cannot serve as a vault root
func checkDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %s", ErrPathNotExist, path)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	return nil
}

func validateConfig(cfg Config) error {
	if cfg.DefaultProfile != "" {
		if _, ok := cfg.Profiles[cfg.DefaultProfile]; !ok && cfg.Profiles != nil {
			return &ProfileError{Field: "default_profile", Err: fmt.Errorf("profile %q not found", cfg.DefaultProfile)}
		}
	}

	if cfg.LogLevel != "" {
		if _, err := parseLevel(cfg.LogLevel); err != nil {
			return &ProfileError{Field: "log_level", Err: err}
		}
	}

	return nil
}

// selectProfile picks the profile named by the flag, falling back to the
// configured default. No flag and no default selects nothing.
func selectProfile(profileFlag string, cfg Config) (string, *Profile, error) {
	name := profileFlag
	if name == "" {
		name = cfg.DefaultProfile
	}
	if name == "" {
		return "", nil, nil
	}

	p, ok := cfg.Profiles[name]
	switch {
	case ok:
		return name, &p, nil
	case profileFlag == "":
		return "", nil, &ProfileError{Field: "default_profile", Err: fmt.Errorf("profile %q not found", name)}
	case cfg.Profiles == nil:
		return "", nil, &ProfileError{Profile: name, Err: errors.New("no profiles defined in config")}
	default:
		return "", nil, &ProfileError{Profile: name, Err: errors.New("profile not found")}
	}
}

// resolveProfilePaths turns a configured profile into absolute vault and
// index paths. The index defaults to .otsync/index.db inside the vault.
func resolveProfilePaths(name string, p Profile) (*ResolvedProfile, error) {
	if err := validateProfile(name, p); err != nil {
		return nil, err
	}

	vaultPath, err := resolveVaultPath(p.Vault)
	if err != nil {
		return nil, &ProfileError{Profile: name, Field: "vault", Err: err}
	}

	vaultPath = filepath.Clean(vaultPath)
	if real, err := filepath.EvalSymlinks(vaultPath); err == nil {
		vaultPath = real
	}

	if err := checkDir(vaultPath); err != nil {
		return nil, &ProfileError{Profile: name, Field: "vault", Err: err}
	}

	dbPath := filepath.Join(vaultPath, stateDirName, indexFileName)
	if strings.TrimSpace(p.Database) != "" {
		if dbPath, err = resolveQueryPath(p.Database, vaultPath); err != nil {
			return nil, &ProfileError{Profile: name, Field: "database", Err: err}
		}
	}

	return &ResolvedProfile{
		Name:         name,
		VaultPath:    vaultPath,
		Query:        strings.TrimSpace(p.Query),
		DatabasePath: filepath.Clean(dbPath),
	}, nil
}

func configPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "otsync", "config.toml"), nil
}

func loadConfig() (Config, string, error) {
	path, err := configPath()

	if err != nil {
		return Config{}, "", err
	}

	cfg, err := loadConfigFile(path)
	return cfg, path, err
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}

		return Config{}, err
	}

	var cfg Config

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, err
	}

	return cfg, validateConfig(cfg)
}

// expandPath expands environment variables and a leading ~
func expandPath(value string) (string, error) {
	expanded := os.ExpandEnv(strings.TrimSpace(value))
	if expanded != "~" && !strings.HasPrefix(expanded, "~/") && !strings.HasPrefix(expanded, "~\\") {
		return expanded, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, expanded[1:]), nil
}

// resolvePath expands value and anchors it at base when relative
func resolvePath(value, base string) (string, error) {
	expanded, err := expandPath(value)
	if err != nil {
		return "", err
	}

	if expanded == "" || filepath.IsAbs(expanded) || base == "" {
		return expanded, nil
	}
	return filepath.Join(base, expanded), nil
}

// resolveVaultPath resolves a vault path; relative paths are taken from $HOME
func resolveVaultPath(value string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return resolvePath(value, home)
}

// resolveQueryPath resolves a path relative to the vault root
func resolveQueryPath(value, vault string) (string, error) {
	return resolvePath(value, vault)
}
