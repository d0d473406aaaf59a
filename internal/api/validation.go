package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	uploadField = "contacts"

	// sniffLen matches what mimetype reads by default.
	sniffLen = 3072
)

// ValidationErrors maps a field to every constraint it failed.
type ValidationErrors map[string][]string

func (v ValidationErrors) Error() string {
	return v.Message()
}

// Message is the first failure, with a count of the remaining ones.
func (v ValidationErrors) Message() string {
	var first string
	total := 0
	for _, msgs := range v {
		for _, m := range msgs {
			if first == "" {
				first = m
			}
			total++
		}
	}
	switch {
	case total == 0:
		return "The given data was invalid."
	case total == 1:
		return first
	case total == 2:
		return fmt.Sprintf("%s (and 1 more error)", first)
	default:
		return fmt.Sprintf("%s (and %d more errors)", first, total-1)
	}
}

func (v ValidationErrors) add(field, msg string) {
	v[field] = append(v[field], msg)
}

// validateUpload checks the contacts field of a parsed request: it must be
// present, be a file part and hold JSON. It returns the accepted file header.
func validateUpload(r *http.Request, maxSize int64) (*multipart.FileHeader, ValidationErrors) {
	errs := ValidationErrors{}

	var header *multipart.FileHeader
	if r.MultipartForm != nil && len(r.MultipartForm.File[uploadField]) > 0 {
		header = r.MultipartForm.File[uploadField][0]
	}

	if header == nil {
		if strings.TrimSpace(r.PostFormValue(uploadField)) == "" {
			errs.add(uploadField, "The contacts field is required.")
			return nil, errs
		}
		errs.add(uploadField, "The contacts field must be a file.")
		errs.add(uploadField, "The contacts field must be a file of type: json.")
		return nil, errs
	}

	if maxSize > 0 && header.Size > maxSize {
		errs.add(uploadField, fmt.Sprintf("The contacts field must not be greater than %d kilobytes.", maxSize/1024))
	}

	ok, err := isJSONFile(header)
	if err != nil || !ok {
		errs.add(uploadField, "The contacts field must be a file of type: json.")
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return header, nil
}

// isJSONFile accepts a part whose name or declared type says JSON and whose
// content sniffs as JSON. Empty files sniff as text and are rejected.
func isJSONFile(header *multipart.FileHeader) (bool, error) {
	if !declaresJSON(header) {
		return false, nil
	}

	f, err := header.Open()
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}

	for mt := mimetype.Detect(head[:n]); mt != nil; mt = mt.Parent() {
		if mt.Is("application/json") {
			return true, nil
		}
	}
	return false, nil
}

func declaresJSON(header *multipart.FileHeader) bool {
	if strings.EqualFold(filepath.Ext(header.Filename), ".json") {
		return true
	}

	mediaType, _, err := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json" || mediaType == "text/json" || strings.HasSuffix(mediaType, "+json")
}
