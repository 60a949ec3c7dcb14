package store

import (
	"context"
	"time"
)

type timeoutStore struct {
	next    MessageStore
	timeout time.Duration
}

// WithTimeout bounds every call on ms by d. Calls that outlive d return a
// StorageError wrapping context.DeadlineExceeded even when the underlying
// engine ignores its context. A non-positive d returns ms unchanged.
func WithTimeout(ms MessageStore, d time.Duration) MessageStore {
	if d <= 0 {
		return ms
	}
	return &timeoutStore{next: ms, timeout: d}
}

func (s *timeoutStore) Insert(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.next.Insert(ctx, rec)
	}()

	select {
	case err := <-done:
		return Fail("insert", err)
	case <-ctx.Done():
		return Fail("insert", ctx.Err())
	}
}

func (s *timeoutStore) QueryByRoom(ctx context.Context, roomID string, limit int) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		recs []Record
		err  error
	}
	done := make(chan result, 1)
	go func() {
		recs, err := s.next.QueryByRoom(ctx, roomID, limit)
		done <- result{recs: recs, err: err}
	}()

	select {
	case res := <-done:
		return res.recs, Fail("query", res.err)
	case <-ctx.Done():
		return nil, Fail("query", ctx.Err())
	}
}

func (s *timeoutStore) Close() error {
	return s.next.Close()
}
