package service

import (
	"fmt"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

// notFound converts pgx.ErrNoRows into domain.ErrNotFound and wraps anything
// else as a load failure.
func notFound(err error, what string) error {
	if repository.IsNotFound(err) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// Page is a 1-based page request.
type Page struct {
	Page  int32
	Limit int32
}

func (p Page) normalize() (limit, offset int32) {
	limit = p.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}
