// Package store implements the identity, ledger and trip collaborators on GORM.
package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/kommyut/internal/apperr"
)

type txKey struct{}

// Store is the relational store for accounts, verification history, trips and points.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InTransaction runs fn inside one database transaction. Store calls made with the
// ctx passed to fn join that transaction; nested calls reuse it.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	return apperr.FromStorage("transaction", err)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// lockingConn adds SELECT ... FOR UPDATE when ctx carries a transaction.
func (s *Store) lockingConn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return s.db.WithContext(ctx)
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}
