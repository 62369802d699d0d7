// Package replicate copies the object graph reachable from a set of seed
// references into a document store, never writing a document before
// every document it references is already stored.
package replicate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/gitcouch/pkg/docref"
	"github.com/odvcencio/gitcouch/pkg/document"
	"github.com/odvcencio/gitcouch/pkg/logging"
	"github.com/odvcencio/gitcouch/pkg/metrics"
	"github.com/odvcencio/gitcouch/pkg/resolve"
	"github.com/odvcencio/gitcouch/pkg/store"
)

const (
	DefaultCacheSize    = 4096
	DefaultPendingLimit = 100000
	DefaultPendingKeep  = 1000
)

// Options tunes a Scheduler. Zero values take the package defaults.
type Options struct {
	// CacheSize bounds how many fetched-but-unwritten documents are held.
	CacheSize int
	// PendingLimit bounds the work list. Past it, only the first and last
	// PendingKeep entries survive and the seeds are queued again.
	PendingLimit int
	PendingKeep  int
	Retry        store.RetryPolicy
	Logger       *slog.Logger
}

// Stats summarizes one pass.
type Stats struct {
	Visited     int
	Fetched     int
	Created     int
	Updated     int
	Unchanged   int
	Deferred    int
	CacheResets int
	Truncations int
	Conflicts   int
}

// Written is the number of documents the pass created or updated.
func (s Stats) Written() int { return s.Created + s.Updated }

func (s Stats) logAttrs() []any {
	return []any{
		"visited", s.Visited,
		"fetched", s.Fetched,
		"created", s.Created,
		"updated", s.Updated,
		"unchanged", s.Unchanged,
		"deferred", s.Deferred,
		"cache_resets", s.CacheResets,
		"truncations", s.Truncations,
		"conflicts", s.Conflicts,
	}
}

// Scheduler drives replication passes. It is not safe for concurrent use;
// run one pass at a time.
type Scheduler struct {
	res  *resolve.Resolver
	dst  store.Store
	opts Options
	log  *slog.Logger

	// confirmed holds immutable refs known to be stored along with their
	// whole dependency closure. It only grows.
	confirmed map[string]struct{}
}

// New returns a Scheduler resolving through res and writing to dst.
func New(res *resolve.Resolver, dst store.Store, opts Options) (*Scheduler, error) {
	if res == nil || dst == nil {
		return nil, errors.New("replicate: resolver and store are required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.PendingLimit <= 0 {
		opts.PendingLimit = DefaultPendingLimit
	}
	if opts.PendingKeep <= 0 {
		opts.PendingKeep = min(DefaultPendingKeep, (opts.PendingLimit-1)/2)
	}
	if opts.PendingKeep < 1 || 2*opts.PendingKeep >= opts.PendingLimit {
		return nil, fmt.Errorf("replicate: pending keep %d must be at least 1 and less than half of pending limit %d",
			opts.PendingKeep, opts.PendingLimit)
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = store.DefaultRetryPolicy()
	}
	return &Scheduler{
		res:       res,
		dst:       dst,
		opts:      opts,
		log:       logging.OrDiscard(opts.Logger),
		confirmed: make(map[string]struct{}),
	}, nil
}

// LoadConfirmed seeds the confirmed set from the ids already present in
// the destination. Branch documents are skipped so they are always
// re-evaluated; ids outside the git-* scheme are ignored.
func (s *Scheduler) LoadConfirmed(ctx context.Context) (int, error) {
	ids, err := s.dst.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load confirmed: %w", err)
	}
	n := 0
	for _, id := range ids {
		r, err := docref.ParseID(id)
		if err != nil || r.Kind.Mutable() {
			continue
		}
		if _, ok := s.confirmed[r.ID]; !ok {
			s.confirmed[r.ID] = struct{}{}
			n++
		}
	}
	s.log.Debug("loaded confirmed set", "listed", len(ids), "added", n, "total", len(s.confirmed))
	return n, nil
}

// Confirmed reports whether ref has been confirmed durable.
func (s *Scheduler) Confirmed(ref docref.Ref) bool {
	_, ok := s.confirmed[ref.ID]
	return ok
}

// Run loads the confirmed set and replicates everything reachable from
// the branch list.
func (s *Scheduler) Run(ctx context.Context) (Stats, error) {
	if _, err := s.LoadConfirmed(ctx); err != nil {
		return Stats{}, err
	}
	return s.Pass(ctx, docref.Branches())
}

// Pass replicates the closure of seeds. On error the partial statistics
// are returned; whatever was written is valid and a later pass resumes
// from it.
func (s *Scheduler) Pass(ctx context.Context, seeds ...docref.Ref) (Stats, error) {
	for _, r := range seeds {
		if err := r.Validate(); err != nil {
			return Stats{}, fmt.Errorf("pass seed: %w", err)
		}
	}
	p := &pass{
		Scheduler:    s,
		id:           uuid.NewString(),
		seeds:        docref.SortForStack(docref.Unique(seeds)),
		materialized: make(map[string]*document.Document),
		retained:     make(map[string]*document.Document),
		mutableDone:  make(map[string]struct{}),
	}
	p.log = s.log.With("pass_id", p.id)
	p.pending = append(p.pending, p.seeds...)

	start := time.Now()
	p.log.Info("pass started", "seeds", len(p.seeds), "confirmed", len(s.confirmed))
	err := p.run(ctx)
	elapsed := time.Since(start)
	metrics.ObservePass(elapsed, err)
	metrics.SetPendingDepth(0)
	if err != nil {
		p.log.Error("pass failed", append([]any{"err", err, "elapsed", elapsed}, p.stats.logAttrs()...)...)
		return p.stats, err
	}
	p.log.Info("pass complete", append([]any{"elapsed", elapsed}, p.stats.logAttrs()...)...)
	return p.stats, nil
}

// pass is the state of one traversal. pending is a stack whose top is
// the end of the slice.
type pass struct {
	*Scheduler
	id    string
	log   *slog.Logger
	seeds []docref.Ref
	stats Stats

	pending      []docref.Ref
	materialized map[string]*document.Document
	// retained mirrors the mutable entries of materialized and survives
	// cache resets.
	retained map[string]*document.Document
	// mutableDone records mutable refs written during this pass only.
	mutableDone map[string]struct{}
}

func (p *pass) isConfirmed(r docref.Ref) bool {
	if r.Kind.Mutable() {
		_, ok := p.mutableDone[r.ID]
		return ok
	}
	return p.Confirmed(r)
}

func (p *pass) run(ctx context.Context) error {
	for len(p.pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := p.pending[len(p.pending)-1]
		p.pending = p.pending[:len(p.pending)-1]
		if p.isConfirmed(r) {
			continue
		}
		p.stats.Visited++

		doc, err := p.materialize(ctx, r)
		if err != nil {
			return err
		}
		deps, err := resolve.Dependencies(doc)
		if err != nil {
			return fmt.Errorf("%s: %w", r, err)
		}
		var missing []docref.Ref
		for _, d := range deps {
			if !p.isConfirmed(d) {
				missing = append(missing, d)
			}
		}
		if len(missing) == 0 {
			if err := p.commit(ctx, r, doc); err != nil {
				return err
			}
			continue
		}

		p.stats.Deferred++
		p.pending = append(p.pending, r)
		p.pending = append(p.pending, docref.SortForStack(missing)...)
		p.truncate()
		metrics.SetPendingDepth(len(p.pending))
	}
	return nil
}

// materialize returns the cached document for r, resolving it on a miss.
func (p *pass) materialize(ctx context.Context, r docref.Ref) (*document.Document, error) {
	if doc, ok := p.materialized[r.ID]; ok {
		return doc, nil
	}
	doc, err := p.res.Resolve(ctx, r)
	if err != nil {
		return nil, err
	}
	p.stats.Fetched++
	metrics.ObserveFetch(string(r.Kind))

	if len(p.materialized) >= p.opts.CacheSize {
		p.resetCache()
	}
	p.materialized[r.ID] = doc
	if r.Kind.Mutable() {
		p.retained[r.ID] = doc
	}
	return doc, nil
}

func (p *pass) resetCache() {
	dropped := len(p.materialized) - len(p.retained)
	clear(p.materialized)
	for id, doc := range p.retained {
		p.materialized[id] = doc
	}
	p.stats.CacheResets++
	metrics.ObserveCacheReset()
	p.log.Debug("materialized cache reset", "dropped", dropped, "retained", len(p.retained))
}

func (p *pass) commit(ctx context.Context, r docref.Ref, doc *document.Document) error {
	res, err := store.Write(ctx, p.dst, doc, p.opts.Retry)
	p.stats.Conflicts += res.Conflicts
	if err != nil {
		return err
	}
	metrics.ObserveWrite(string(r.Kind), string(res.Outcome), res.Conflicts)
	switch res.Outcome {
	case store.OutcomeCreated:
		p.stats.Created++
	case store.OutcomeUpdated:
		p.stats.Updated++
	default:
		p.stats.Unchanged++
	}
	if res.Outcome != store.OutcomeUnchanged {
		p.log.Debug("document written", "id", r.ID, "outcome", res.Outcome, "rev", res.Rev, "attempts", res.Attempts)
	}

	delete(p.materialized, r.ID)
	delete(p.retained, r.ID)
	if r.Kind.Mutable() {
		p.mutableDone[r.ID] = struct{}{}
	} else {
		p.confirmed[r.ID] = struct{}{}
	}
	return nil
}

// truncate enforces PendingLimit. The seeds go beneath the retained
// entries: the top of the stack is the chain currently being descended,
// and it has to stay on top or the traversal restarts from the roots
// after every cut.
func (p *pass) truncate() {
	keep := p.opts.PendingKeep
	n := len(p.pending)
	if n <= p.opts.PendingLimit || 2*keep+len(p.seeds) >= n {
		return
	}
	next := make([]docref.Ref, 0, len(p.seeds)+2*keep)
	next = append(next, p.seeds...)
	next = append(next, p.pending[:keep]...)
	next = append(next, p.pending[n-keep:]...)
	p.pending = next
	p.stats.Truncations++
	metrics.ObserveTruncation()
	p.log.Debug("pending list truncated", "before", n, "after", len(next))
}
