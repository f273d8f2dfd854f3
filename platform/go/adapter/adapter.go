// Package adapter defines the narrow data-access contract shared by the main
// database and every tenant database. Keeping both sides behind the same
// interface is what lets the routing layer dispatch an operation to either
// physical database without the caller noticing.
package adapter

import (
	"context"
	"errors"
)

// Kind identifies the operation being performed.
type Kind string

const (
	KindFindOne  Kind = "find-one"
	KindFindMany Kind = "find-many"
	KindCreate   Kind = "create"
	KindUpdate   Kind = "update"
	KindDelete   Kind = "delete"
)

// Filter is an equality filter over column values. Slice values translate to
// an IN clause.
type Filter map[string]any

// Values carries the column values of a create or update.
type Values map[string]any

// Row is a single decoded result row.
type Row map[string]any

// Operation is the full descriptor of one data-access call. It is what the
// routing layer inspects (and custom resolvers may rewrite) before dispatch.
type Operation struct {
	Model  string
	Kind   Kind
	Filter Filter
	Values Values
	Limit  int
}

// ErrNoRows is returned by FindOne when the filter matches nothing.
var ErrNoRows = errors.New("no rows in result set")

// Adapter is the capability interface every physical database connection
// implements.
type Adapter interface {
	FindOne(ctx context.Context, model string, filter Filter) (Row, error)
	FindMany(ctx context.Context, model string, filter Filter, limit int) ([]Row, error)
	Create(ctx context.Context, model string, values Values) (Row, error)
	Update(ctx context.Context, model string, filter Filter, values Values) (int64, error)
	Delete(ctx context.Context, model string, filter Filter) (int64, error)
}
