package core

import (
	"context"
	"errors"
	"iter"
	"sync"
)

type cursorRequest[Res any] struct {
	inner  Request[Res]
	param  string
	cursor *string
}

func (r cursorRequest[Res]) Descriptor() Descriptor[Res] {
	return r.inner.Descriptor()
}

func (r cursorRequest[Res]) Params() Params {
	params := r.inner.Params().clone()
	if r.cursor != nil {
		params.Query.Set(r.param, *r.cursor)
	}
	return params
}

// WithCursor returns req with the cursor query parameter set. A nil cursor
// returns req unchanged.
func WithCursor[Res any](req Request[Res], cursor *string) Request[Res] {
	if cursor == nil {
		return req
	}
	return cursorRequest[Res]{
		inner:  req,
		param:  req.Descriptor().Endpoint().CursorParam,
		cursor: cursor,
	}
}

// Walker lazily pages through a list endpoint. Each Next performs at most one
// engine call and only one call is ever in flight. After the last page or the
// first error the walker is finished until Reset.
type Walker[T any] struct {
	client *Client
	req    Request[[]T]

	mu     sync.Mutex
	cursor *string
	pages  int
	total  *int
	done   bool
	err    error
}

func Paginate[T any](client *Client, req Request[[]T]) *Walker[T] {
	return &Walker[T]{client: client, req: req}
}

// FailedWalker returns a walker whose first Next reports err without any I/O.
func FailedWalker[T any](err error) *Walker[T] {
	return &Walker[T]{err: err}
}

// Next returns the next page. It returns ErrNoMorePages once the sequence has
// ended, either because the server omitted the cursor or because a previous
// page failed.
func (w *Walker[T]) Next(ctx context.Context) ([]T, error) {
	if w == nil {
		return nil, ErrNoMorePages
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return nil, ErrNoMorePages
	}
	if w.err != nil {
		w.done = true
		return nil, w.err
	}
	res, err := Execute(ctx, w.client, WithCursor(w.req, w.cursor))
	if err != nil {
		w.done = true
		return nil, err
	}
	w.pages++
	if res.Total != nil {
		total := *res.Total
		w.total = &total
	}
	if res.Cursor == nil || !w.req.Descriptor().Paginated {
		w.done = true
		w.cursor = nil
	} else {
		w.cursor = res.Cursor
	}
	return res.Data, nil
}

// All yields every item in cursor order followed by at most one error.
func (w *Walker[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			items, err := w.Next(ctx)
			if errors.Is(err, ErrNoMorePages) {
				return
			}
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Collect drains the walker. On error the items gathered so far are returned
// with it.
func (w *Walker[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for item, err := range w.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (w *Walker[T]) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cursor = nil
	w.pages = 0
	w.total = nil
	w.done = false
}

func (w *Walker[T]) Done() bool {
	if w == nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *Walker[T]) Pages() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pages
}

// Total is the last "total" reported by the server, if any.
func (w *Walker[T]) Total() *int {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}
