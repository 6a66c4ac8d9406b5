// Package storage provides PostgreSQL-backed repository implementations.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPlace is wrapped by Save when a place fails validation.
var ErrInvalidPlace = errors.New("storage: invalid place")

// Place is a stored restaurant record. Places are append-only: nothing updates
// or deletes them.
type Place struct {
	ID       int64
	Name     string  `validate:"required,max=200"`
	Address  *string `validate:"omitempty,max=500"`
	Category *string `validate:"omitempty,max=500"`
	// Image holds the raw picture bytes. List leaves it empty and reports
	// HasImage instead.
	Image     []byte
	HasImage  bool
	CreatedAt time.Time
}

// PlacesRepository defines operations on the places table.
type PlacesRepository interface {
	// Save validates p and inserts it in a single transaction, filling in ID
	// and CreatedAt. Nothing is written when an error is returned.
	Save(ctx context.Context, p *Place) error

	// List returns every place ordered by ID, without image bytes.
	List(ctx context.Context) ([]Place, error)

	// Get returns a single place by ID, image included.
	// Returns (nil, nil) when the place does not exist.
	Get(ctx context.Context, id int64) (*Place, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims surrounding whitespace and turns blank optional fields
// into nil.
func (p *Place) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Address = blankToNil(p.Address)
	p.Category = blankToNil(p.Category)
}

// Validate reports whether p can be stored.
func (p *Place) Validate() error {
	if err := validate.Struct(p); err != nil {
		return errors.Join(ErrInvalidPlace, err)
	}
	return nil
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
