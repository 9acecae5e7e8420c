package database

import (
	"context"
)

// Repository reads the documents of one model. Every Repository[T] is also a
// RelationQuery[T], so relations can fetch related documents through it.
type Repository[T IModel] interface {
	GetSchema() *Schema
	GetConnector() Connector

	// Find returns the matching documents with their includes resolved, or an
	// empty slice.
	Find(ctx context.Context, filter *FilterBuilder) ([]T, error)

	// FindOne returns the first match, or nil when nothing matches.
	FindOne(ctx context.Context, filter *FilterBuilder) (*T, error)

	// FindById is FindOne narrowed to the document whose id is id.
	FindById(ctx context.Context, id any, filter *FilterBuilder) (*T, error)

	Count(ctx context.Context, filter *FilterBuilder) (int64, error)

	// Exists reports whether a document with the given id is stored.
	Exists(ctx context.Context, id any) (bool, error)
}
