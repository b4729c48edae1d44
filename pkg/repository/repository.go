// Package repository provides a small generic gorm-backed store for
// plain create/lookup access. Analytic reads stay in their services as
// raw SQL.
package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository exposes typed CRUD access for a single model.
type Repository[T any] interface {
	Create(ctx context.Context, record *T) error
	CreateAll(ctx context.Context, records []T) error
	Find(ctx context.Context, conds ...any) (*T, error)
	FindAll(ctx context.Context, conds ...any) ([]T, error)
	Updates(ctx context.Context, record *T, values map[string]any) error
}

type store[T any] struct {
	db *gorm.DB
}

// ProvideStore builds a Repository bound to the given connection. The
// connection may be a transaction handle.
func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) Create(ctx context.Context, record *T) error {
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *store[T]) CreateAll(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&records).Error
}

// Find returns the first matching record, or nil when none exists.
func (s *store[T]) Find(ctx context.Context, conds ...any) (*T, error) {
	var record T
	err := s.db.WithContext(ctx).First(&record, conds...).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *store[T]) FindAll(ctx context.Context, conds ...any) ([]T, error) {
	var records []T
	if err := s.db.WithContext(ctx).Find(&records, conds...).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (s *store[T]) Updates(ctx context.Context, record *T, values map[string]any) error {
	return s.db.WithContext(ctx).Model(record).Updates(values).Error
}
