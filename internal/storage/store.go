package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Namespaces used by the explainer. Uploaded decks and their explanation
// artifacts live side by side under the same key.
const (
	UploadsNamespace = "uploads"
	OutputsNamespace = "outputs"

	resultSuffix = ".json"
)

var ErrNotFound = errors.New("file not found")

// ResultName is the outputs-namespace name of the explanation artifact for
// the upload stored under key.
func ResultName(key string) string {
	return key + resultSuffix
}

type Store struct {
	baseDir string
}

func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) namespaceDir(namespace string) string {
	return filepath.Join(s.baseDir, namespace)
}

func (s *Store) filePath(namespace, path string) (string, error) {
	nsDir := s.namespaceDir(namespace)
	fullPath := filepath.Join(nsDir, path)

	// Join cleans the path, so any ".." segment that escapes shows up here.
	rel, err := filepath.Rel(nsDir, fullPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: %s", path)
	}

	return fullPath, nil
}

// Put writes content through a temp file and a rename so a concurrent List
// or Get never observes a partially written file.
func (s *Store) Put(namespace, path string, content []byte) error {
	fullPath, err := s.filePath(namespace, path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

func (s *Store) Get(namespace, path string) ([]byte, error) {
	fullPath, err := s.filePath(namespace, path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}

	return content, nil
}

func (s *Store) Delete(namespace, path string) error {
	fullPath, err := s.filePath(namespace, path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("delete file: %w", err)
	}

	return nil
}

// List returns the sorted relative paths under namespace that start with
// prefix. Hidden files (including in-flight temp files) are skipped. A
// namespace that has never been written to lists as empty.
func (s *Store) List(namespace, prefix string) ([]string, error) {
	nsDir := s.namespaceDir(namespace)

	var files []string
	err := filepath.WalkDir(nsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == nsDir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}

		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		relPath, err := filepath.Rel(nsDir, path)
		if err != nil {
			return err
		}

		if prefix == "" || strings.HasPrefix(relPath, prefix) {
			files = append(files, relPath)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", namespace, err)
	}

	sort.Strings(files)
	return files, nil
}

func (s *Store) Exists(namespace, path string) bool {
	fullPath, err := s.filePath(namespace, path)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}
