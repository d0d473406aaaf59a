// Package ingest turns uploaded contact files into Contact records.
//
// Each file must hold a JSON array of objects with string name, email and phone
// fields. Invalid entries and entries whose email is already stored are skipped,
// and the file is removed once it has been processed.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"contacts-api/internal/metrics"
	"contacts-api/internal/models"
	"contacts-api/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var ErrNotAList = errors.New("file does not contain a list of contacts")

// ContactStore is the subset of the contact repository ingestion writes through.
type ContactStore interface {
	Create(ctx context.Context, contact *models.Contact) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// Notifier is told about every contact that was inserted.
type Notifier interface {
	NotifyContactCreated(contact models.Contact)
}

type record struct {
	Name  *string `json:"name" validate:"required"`
	Email *string `json:"email" validate:"required,email"`
	Phone *string `json:"phone" validate:"required"`
}

// Result counts the outcome of one file.
type Result struct {
	Inserted   int
	Duplicates int
	Invalid    int
}

type Processor struct {
	store    ContactStore
	files    storage.Storage
	notifier Notifier
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewProcessor(store ContactStore, files storage.Storage, notifier Notifier, logger zerolog.Logger) *Processor {
	return &Processor{
		store:    store,
		files:    files,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// ProcessFile imports the contacts stored at path and deletes the file.
// A file that is not a JSON array is deleted without importing anything.
// A file that is already gone returns storage.ErrNotFound and is not counted.
func (p *Processor) ProcessFile(ctx context.Context, path string) (Result, error) {
	raw, err := p.read(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		// Another pass already imported and removed it.
		p.logger.Debug().Str("path", path).Msg("file already processed")
		return Result{}, err
	}
	if err != nil {
		metrics.RecordIngestFile(metrics.IngestFailed)
		return Result{}, err
	}

	result, err := p.importContacts(ctx, path, raw)
	if err != nil && !errors.Is(err, ErrNotAList) {
		metrics.RecordIngestFile(metrics.IngestFailed)
		return result, err
	}

	if delErr := p.files.Delete(ctx, path); delErr != nil && !errors.Is(delErr, storage.ErrNotFound) {
		return result, fmt.Errorf("remove processed file %s: %w", path, delErr)
	}

	if err != nil {
		metrics.RecordIngestFile(metrics.IngestInvalid)
		p.logger.Error().Err(err).Str("path", path).Msg("file rejected")
		return result, err
	}

	metrics.RecordIngestFile(metrics.IngestProcessed)
	p.logger.Info().
		Str("path", path).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("invalid", result.Invalid).
		Msg("processed and cleaned up file")
	return result, nil
}

func (p *Processor) read(ctx context.Context, path string) ([]byte, error) {
	rc, _, err := p.files.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

func (p *Processor) importContacts(ctx context.Context, path string, raw []byte) (Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return Result{}, ErrNotAList
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNotAList, err)
	}

	var result Result
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		contact, err := p.decode(entry)
		if err != nil {
			result.Invalid++
			metrics.RecordIngestContact(metrics.IngestInvalid)
			p.logger.Warn().Err(err).Str("path", path).Int("index", i).Msg("validation error for contact")
			continue
		}

		exists, err := p.store.ExistsByEmail(ctx, contact.Email)
		if err != nil {
			return result, err
		}
		if exists {
			result.Duplicates++
			metrics.RecordIngestContact(metrics.IngestDuplicate)
			p.logger.Warn().Str("email", contact.Email).Msg("duplicate email found, skipping contact")
			continue
		}

		if err := p.store.Create(ctx, &contact); err != nil {
			return result, err
		}
		result.Inserted++
		metrics.RecordIngestContact(metrics.IngestInserted)
		if p.notifier != nil {
			p.notifier.NotifyContactCreated(contact)
		}
		p.logger.Debug().Uint("id", contact.ID).Str("email", contact.Email).Msg("inserted contact")
	}
	return result, nil
}

func (p *Processor) decode(entry json.RawMessage) (models.Contact, error) {
	var rec record
	if err := json.Unmarshal(entry, &rec); err != nil {
		return models.Contact{}, err
	}
	if err := p.validate.Struct(rec); err != nil {
		return models.Contact{}, err
	}
	return models.Contact{
		Name:  *rec.Name,
		Email: *rec.Email,
		Phone: NormalizePhone(*rec.Phone),
	}, nil
}

// NormalizePhone formats ten-digit numbers as +1-XXX-XXX-XXXX, ignoring any
// punctuation. Anything else is returned unchanged.
func NormalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	if len(d) != 10 {
		return phone
	}
	return fmt.Sprintf("+1-%s-%s-%s", d[:3], d[3:6], d[6:])
}
