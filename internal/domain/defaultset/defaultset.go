// Package defaultset maintains the "exactly one default" invariant over small
// owned collections such as addresses, payment methods and product variants.
//
// Every function is pure: it never mutates its input slice and always returns
// a fresh one. After any call, a non-empty collection has exactly one default
// item and an empty collection has none.
package defaultset

import (
	"github.com/go-faster/errors"

	"github.com/xenking/shop-core/internal/domain/apperr"
)

// ErrNotFound is returned when the referenced item is not in the collection.
var ErrNotFound = apperr.New(apperr.NotFound, "item not found")

// Item is an element of a default collection. WithDefault returns a copy of
// the item with the flag set to the given value.
type Item[T any] interface {
	Key() string
	Default() bool
	WithDefault(bool) T
}

// SetDefault makes the item with the given key the only default.
func SetDefault[T Item[T]](items []T, key string) ([]T, error) {
	if indexOf(items, key) < 0 {
		return nil, errors.Wrapf(ErrNotFound, "set default %q", key)
	}
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.WithDefault(it.Key() == key)
	}
	return out, nil
}

// Add appends item. The item becomes the only default when the collection is
// empty or when it asks to be default; otherwise its flag is cleared.
func Add[T Item[T]](items []T, item T) []T {
	makeDefault := len(items) == 0 || item.Default()

	out := make([]T, 0, len(items)+1)
	for _, it := range items {
		if makeDefault {
			it = it.WithDefault(false)
		}
		out = append(out, it)
	}
	return append(out, item.WithDefault(makeDefault))
}

// Update replaces the item with the same key. Setting the flag moves the
// default to this item. Clearing the flag on the current default is ignored:
// the default only moves when another item is chosen.
func Update[T Item[T]](items []T, item T) ([]T, error) {
	idx := indexOf(items, item.Key())
	if idx < 0 {
		return nil, errors.Wrapf(ErrNotFound, "update %q", item.Key())
	}

	out := make([]T, len(items))
	copy(out, items)
	wasDefault := items[idx].Default()
	out[idx] = item.WithDefault(item.Default() || wasDefault)

	if item.Default() && !wasDefault {
		return SetDefault(out, item.Key())
	}
	return normalize(out), nil
}

// Remove deletes the item with the given key. When the removed item was the
// default, the first remaining item is promoted.
func Remove[T Item[T]](items []T, key string) ([]T, error) {
	idx := indexOf(items, key)
	if idx < 0 {
		return nil, errors.Wrapf(ErrNotFound, "remove %q", key)
	}

	out := make([]T, 0, len(items)-1)
	out = append(out, items[:idx]...)
	out = append(out, items[idx+1:]...)

	if items[idx].Default() && len(out) > 0 {
		out[0] = out[0].WithDefault(true)
	}
	return normalize(out), nil
}

// Default returns the default item, if any.
func Default[T Item[T]](items []T) (T, bool) {
	for _, it := range items {
		if it.Default() {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Find returns the item with the given key.
func Find[T Item[T]](items []T, key string) (T, bool) {
	if idx := indexOf(items, key); idx >= 0 {
		return items[idx], true
	}
	var zero T
	return zero, false
}

// Check reports whether items satisfy the invariant.
func Check[T Item[T]](items []T) error {
	n := 0
	for _, it := range items {
		if it.Default() {
			n++
		}
	}
	switch {
	case len(items) == 0 && n == 0:
		return nil
	case n == 1:
		return nil
	default:
		return errors.Errorf("collection of %d items has %d defaults", len(items), n)
	}
}

// normalize repairs collections that arrive without exactly one default,
// keeping the first flagged item or promoting the first item.
func normalize[T Item[T]](items []T) []T {
	if len(items) == 0 {
		return items
	}
	keep := 0
	for i, it := range items {
		if it.Default() {
			keep = i
			break
		}
	}
	for i, it := range items {
		if want := i == keep; it.Default() != want {
			items[i] = it.WithDefault(want)
		}
	}
	return items
}

func indexOf[T Item[T]](items []T, key string) int {
	for i, it := range items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}
