// Package storage defines the blob storage used for uploaded contact files.
package storage

import (
	"context"
	"errors"
	"io"
)

// ContactsDirectory is the namespace uploaded contact files are stored under.
const ContactsDirectory = "contacts"

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidPath = errors.New("invalid storage path")
)

type SaveOptions struct {
	// Directory is the namespace the file is stored under, e.g. "contacts".
	Directory string
	// Extension is appended to the generated name, including the dot.
	Extension    string
	ContentType  string
	OriginalName string
}

type FileInfo struct {
	ID          string
	Path        string // relative to the storage root, slash separated
	ContentType string
	Size        int64
}

type Storage interface {
	Save(ctx context.Context, r io.Reader, opts SaveOptions) (FileInfo, error)
	Open(ctx context.Context, path string) (io.ReadCloser, FileInfo, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, directory string) ([]FileInfo, error)
}
