package api

import (
	"context"
	"errors"
)

// ErrNoMorePages is returned by Next after the last page.
var ErrNoMorePages = errors.New("no more pages")

// Page is one response of a cursor-paginated endpoint.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// FetchFunc loads the page starting at cursor.
type FetchFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Pager walks a cursor-paginated endpoint. It stops when the backend sends
// no next cursor or repeats one it already served.
type Pager[T any] struct {
	fetch  FetchFunc[T]
	cursor string
	seen   map[string]struct{}
	done   bool
}

// NewPager creates a pager starting at the first page.
func NewPager[T any](fetch FetchFunc[T]) *Pager[T] {
	return &Pager[T]{fetch: fetch, seen: make(map[string]struct{})}
}

// HasMore reports whether Next may return another page.
func (p *Pager[T]) HasMore() bool {
	return !p.done
}

// Next fetches the following page. A failed fetch can be retried.
func (p *Pager[T]) Next(ctx context.Context) ([]T, error) {
	if p.done {
		return nil, ErrNoMorePages
	}

	page, err := p.fetch(ctx, p.cursor)
	if err != nil {
		return nil, err
	}
	p.seen[p.cursor] = struct{}{}

	next := page.NextCursor
	if _, repeated := p.seen[next]; next == "" || repeated {
		p.done = true
	}
	p.cursor = next
	return page.Items, nil
}

// All collects pages until the end or until limit items (0 means no limit).
func (p *Pager[T]) All(ctx context.Context, limit int) ([]T, error) {
	var out []T
	for p.HasMore() {
		items, err := p.Next(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, items...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}
