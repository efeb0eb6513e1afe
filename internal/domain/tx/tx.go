// Package tx declares the unit-of-work abstraction used by services that must
// apply several repository writes atomically.
package tx

import "context"

// Transactor runs fn inside a storage transaction. Repositories called with
// the context passed to fn take part in that transaction. A nested call joins
// the outer transaction. The transaction commits when fn returns nil and rolls
// back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransactorFunc adapts a function to Transactor.
type TransactorFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// InTx calls f.
func (f TransactorFunc) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

// None runs fn directly. Suitable only for repositories without transactions.
var None Transactor = TransactorFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
})
