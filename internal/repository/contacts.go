// Package repository provides the persistence boundary for contacts.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contacts-api/internal/models"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("contact not found")

// ContactFilter holds optional substring filters. Empty fields are ignored.
type ContactFilter struct {
	Name  string
	Email string
}

// ContactPatch lists the fields of a partial update. Nil means unchanged.
type ContactPatch struct {
	Name  *string
	Email *string
	Phone *string
}

func (p ContactPatch) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Email != nil {
		cols["email"] = *p.Email
	}
	if p.Phone != nil {
		cols["phone"] = *p.Phone
	}
	return cols
}

// Page is one slice of a filtered, id-ordered listing.
type Page struct {
	Contacts []models.Contact
	Total    int64
	Page     int
	PageSize int
}

type ContactRepository interface {
	Get(ctx context.Context, id uint) (models.Contact, error)
	List(ctx context.Context, filter ContactFilter, page, pageSize int) (Page, error)
	Update(ctx context.Context, id uint, patch ContactPatch) (models.Contact, error)
	Delete(ctx context.Context, id uint) error
	Create(ctx context.Context, contact *models.Contact) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type GormContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *GormContactRepository {
	return &GormContactRepository{db: db}
}

func (r *GormContactRepository) Get(ctx context.Context, id uint) (models.Contact, error) {
	var contact models.Contact
	err := r.db.WithContext(ctx).First(&contact, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Contact{}, ErrNotFound
	}
	if err != nil {
		return models.Contact{}, fmt.Errorf("get contact %d: %w", id, err)
	}
	return contact, nil
}

// List matches name and email case-insensitively as literal substrings,
// combining both filters with AND, and orders by id ascending.
func (r *GormContactRepository) List(ctx context.Context, filter ContactFilter, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	query := r.db.WithContext(ctx).Model(&models.Contact{})
	if filter.Name != "" {
		query = query.Where(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(filter.Name))
	}
	if filter.Email != "" {
		query = query.Where(`LOWER(email) LIKE ? ESCAPE '\'`, likePattern(filter.Email))
	}
	query = query.Session(&gorm.Session{})

	result := Page{Page: page, PageSize: pageSize, Contacts: []models.Contact{}}
	if err := query.Count(&result.Total).Error; err != nil {
		return Page{}, fmt.Errorf("count contacts: %w", err)
	}
	if result.Total == 0 {
		return result, nil
	}

	err := query.Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&result.Contacts).Error
	if err != nil {
		return Page{}, fmt.Errorf("list contacts: %w", err)
	}
	return result, nil
}

func (r *GormContactRepository) Update(ctx context.Context, id uint, patch ContactPatch) (models.Contact, error) {
	contact, err := r.Get(ctx, id)
	if err != nil {
		return models.Contact{}, err
	}

	cols := patch.columns()
	if len(cols) == 0 {
		return contact, nil
	}

	if err := r.db.WithContext(ctx).Model(&contact).Updates(cols).Error; err != nil {
		return models.Contact{}, fmt.Errorf("update contact %d: %w", id, err)
	}
	return r.Get(ctx, id)
}

func (r *GormContactRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Contact{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete contact %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormContactRepository) Create(ctx context.Context, contact *models.Contact) error {
	if err := r.db.WithContext(ctx).Create(contact).Error; err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

func (r *GormContactRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Contact{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup email: %w", err)
	}
	return count > 0, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}
