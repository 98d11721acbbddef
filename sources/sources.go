// Package sources reads law texts from disk and watches a directory for new
// or changed files.
package sources

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/service"

	"gopkg.in/yaml.v3"
)

// Extension marks a law text file
const Extension = ".txt"

// sidecar returns the provenance file that may sit next to a law text
func sidecar(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".yaml"
}

// Load reads one law text plus its optional provenance sidecar. The
// sidecar for "民法典.txt" is "民法典.yaml".
func Load(path string) (service.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return service.Document{}, err
	}
	if !utf8.Valid(data) {
		return service.Document{}, fmt.Errorf("%w: %s is not UTF-8 text", models.ErrInvalidInput, path)
	}

	doc := service.Document{
		Text: strings.TrimPrefix(string(data), "\ufeff"),
	}

	raw, err := os.ReadFile(sidecar(path))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return service.Document{}, err
	default:
		if err := yaml.Unmarshal(raw, &doc.Provenance); err != nil {
			return service.Document{}, fmt.Errorf("%w: %s: %v", models.ErrInvalidInput, sidecar(path), err)
		}
	}

	if doc.Provenance.SourceRef == "" {
		doc.Provenance.SourceRef = filepath.ToSlash(path)
	}
	return doc, nil
}

// Collect lists the law texts under root in lexical order. A file path is
// returned as is. Hidden directories are skipped.
func Collect(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), Extension) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
