package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

// ErrPathEscape is returned when a page name resolves outside the vault
var ErrPathEscape = errors.New("path escapes vault boundary")

// PageStore reads and writes page text by name.
// Implementations: Vault
type PageStore interface {
	ReadPage(name string) (string, error)
	WritePage(name, text string) error
}

// Vault is a directory of markdown pages. Page names are slash separated
// paths relative to the root, without the .md extension.
type Vault struct {
	root string
}

func NewVault(root string) *Vault {
	return &Vault{root: root}
}

func (v *Vault) Root() string {
	return v.root
}

// PagePath resolves a page name to its file, refusing names that escape the vault
func (v *Vault) PagePath(name string) (string, error) {
	absPath, err := filepath.Abs(filepath.Join(v.root, filepath.FromSlash(name)+".md"))
	if err != nil {
		return "", fmt.Errorf("resolve page %q: %w", name, err)
	}

	rootAbs, err := filepath.Abs(v.root)
	if err != nil {
		return "", fmt.Errorf("resolve vault path: %w", err)
	}

	if !strings.HasPrefix(absPath, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}

	return absPath, nil
}

// PageName maps a file path inside the vault back to its page name
func (v *Vault) PageName(path string) (string, bool) {
	if !strings.HasSuffix(path, ".md") {
		return "", false
	}

	rel, err := filepath.Rel(v.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}

	return strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel)), true
}

func (v *Vault) ReadPage(name string) (string, error) {
	path, err := v.PagePath(name)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return string(content), nil
}

// WritePage replaces the page's content atomically
func (v *Vault) WritePage(name, text string) error {
	path, err := v.PagePath(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return atomic.WriteFile(path, strings.NewReader(text))
}

// ModTime returns the page file's modification time
func (v *Vault) ModTime(name string) (time.Time, error) {
	path, err := v.PagePath(name)
	if err != nil {
		return time.Time{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}

	return info.ModTime(), nil
}

// ListPages recursively finds all pages, skipping hidden directories
func (v *Vault) ListPages() ([]string, error) {
	var pages []string

	err := filepath.Walk(v.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() && path != v.root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}

		if !info.IsDir() {
			if name, ok := v.PageName(path); ok {
				pages = append(pages, name)
			}
		}

		return nil
	})

	return pages, err
}
