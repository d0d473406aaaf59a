package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"contacts-api/internal/storage"

	"github.com/google/uuid"
)

// TempPrefix marks files that are still being written.
const TempPrefix = "."

type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	return &LocalStorage{baseDir: abs}, nil
}

// Dir returns the absolute directory backing a namespace.
func (s *LocalStorage) Dir(directory string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(directory))
}

// Save writes r under a generated name and renames it into place once complete,
// so watchers of the directory never observe a partial file.
func (s *LocalStorage) Save(ctx context.Context, r io.Reader, opts storage.SaveOptions) (storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return storage.FileInfo{}, err
	}

	rel, err := cleanPath(opts.Directory)
	if err != nil {
		return storage.FileInfo{}, err
	}

	dir := s.Dir(rel)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to create directory: %w", err)
	}

	id := uuid.New().String()
	name := id + strings.ToLower(opts.Extension)

	tmp, err := os.CreateTemp(dir, TempPrefix+id+"-*")
	if err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return storage.FileInfo{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to move file into place: %w", err)
	}

	return storage.FileInfo{
		ID:          id,
		Path:        path.Join(rel, name),
		ContentType: opts.ContentType,
		Size:        size,
	}, nil
}

func (s *LocalStorage) Open(ctx context.Context, p string) (io.ReadCloser, storage.FileInfo, error) {
	rel, err := cleanPath(p)
	if err != nil {
		return nil, storage.FileInfo{}, err
	}

	file, err := os.Open(s.Dir(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.FileInfo{}, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.FileInfo{}, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, storage.FileInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}

	return file, infoFor(rel, stat.Size()), nil
}

func (s *LocalStorage) Delete(ctx context.Context, p string) error {
	rel, err := cleanPath(p)
	if err != nil {
		return err
	}

	err = os.Remove(s.Dir(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List returns the completed files of a namespace sorted by name.
func (s *LocalStorage) List(ctx context.Context, directory string) ([]storage.FileInfo, error) {
	rel, err := cleanPath(directory)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.Dir(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var files []storage.FileInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), TempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, infoFor(path.Join(rel, entry.Name()), info.Size()))
	}
	return files, nil
}

func infoFor(rel string, size int64) storage.FileInfo {
	contentType := "application/octet-stream"
	if strings.EqualFold(path.Ext(rel), ".json") {
		contentType = "application/json"
	}

	base := path.Base(rel)
	return storage.FileInfo{
		ID:          strings.TrimSuffix(base, path.Ext(base)),
		Path:        rel,
		ContentType: contentType,
		Size:        size,
	}
}

// cleanPath normalises a slash separated path and rejects anything leaving the root.
func cleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	cleaned := path.Clean("/" + p)[1:]
	if cleaned == "" || strings.Contains(p, "..") {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidPath, p)
	}
	return cleaned, nil
}
