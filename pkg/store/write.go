package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/odvcencio/gitcouch/pkg/document"
)

// Outcome describes what a successful Write did.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// WriteResult reports the stored revision and how many attempts the
// write took. Conflicts counts the attempts rejected by the store.
type WriteResult struct {
	Rev       string
	Outcome   Outcome
	Attempts  int
	Conflicts int
}

// RetryPolicy bounds the compare-and-swap loop in Write. Delays grow
// exponentially from BaseDelay and are capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 8,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Delay returns the jittered backoff to wait before the given retry
// (1 for the first retry).
func (p RetryPolicy) Delay(retry int) time.Duration {
	if p.BaseDelay <= 0 || retry < 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < retry && (p.MaxDelay <= 0 || d < p.MaxDelay); i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	// Full delay at most, half at least.
	half := d / 2
	return half + rand.N(d-half+1)
}

// Write persists doc under doc.ID using optimistic concurrency:
//
//  1. read the current document;
//  2. if its content already matches, succeed without writing;
//  3. otherwise put doc with the current revision as precondition;
//  4. on a conflict, back off and start over from 1.
//
// Existing commit, tree and blob documents are never overwritten with
// different content. doc itself is not modified; doc.Rev is ignored.
func Write(ctx context.Context, s Store, doc *document.Document, p RetryPolicy) (WriteResult, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var res WriteResult
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, p.Delay(attempt-1)); err != nil {
				return res, fmt.Errorf("write %s: %w", doc.ID, err)
			}
		}
		res.Attempts = attempt

		cur, err := s.Get(ctx, doc.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			cur = nil
		case err != nil:
			return res, fmt.Errorf("write %s: read: %w", doc.ID, err)
		}

		want := doc.Clone()
		want.Rev = ""
		outcome := OutcomeCreated
		if cur != nil {
			if document.ContentEqual(cur, want) {
				res.Rev = cur.Rev
				res.Outcome = OutcomeUnchanged
				return res, nil
			}
			if !doc.Kind().Mutable() {
				return res, fmt.Errorf("write %s: %w", doc.ID, ErrImmutableChanged)
			}
			want.Rev = cur.Rev
			outcome = OutcomeUpdated
		}

		rev, err := s.Put(ctx, want)
		if err == nil {
			res.Rev = rev
			res.Outcome = outcome
			return res, nil
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrNotFound) {
			return res, fmt.Errorf("write %s: put: %w", doc.ID, err)
		}
		res.Conflicts++
		lastErr = err
	}
	return res, fmt.Errorf("write %s: %w after %d attempts: %w", doc.ID, ErrRetriesExhausted, res.Attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
