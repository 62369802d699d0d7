package replicate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/odvcencio/gitcouch/pkg/docref"
	"github.com/odvcencio/gitcouch/pkg/resolve"
	"github.com/odvcencio/gitcouch/pkg/store"
)

// Problem is one destination document that breaks referential integrity.
type Problem struct {
	ID string
	// Missing lists dependency ids absent from the destination.
	Missing []string
	// Err is set when the document could not be read or interpreted.
	Err error
}

func (p Problem) String() string {
	if p.Err != nil {
		return fmt.Sprintf("%s: %v", p.ID, p.Err)
	}
	return fmt.Sprintf("%s: missing %v", p.ID, p.Missing)
}

// Report is the result of Verify.
type Report struct {
	Checked  int
	Skipped  int
	Problems []Problem
}

// OK reports whether no problems were found.
func (r Report) OK() bool { return len(r.Problems) == 0 }

// Verify reads every git-* document in s and checks that each of its
// dependencies is also stored. Documents that vanish between listing and
// reading are skipped.
func Verify(ctx context.Context, s store.Store) (Report, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("verify: %w", err)
	}
	present := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
	}

	var rep Report
	for _, id := range ids {
		if _, err := docref.ParseID(id); err != nil {
			rep.Skipped++
			continue
		}
		doc, err := s.Get(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			rep.Skipped++
			continue
		case err != nil:
			if ctx.Err() != nil {
				return rep, fmt.Errorf("verify: %w", ctx.Err())
			}
			rep.Problems = append(rep.Problems, Problem{ID: id, Err: err})
			continue
		}
		rep.Checked++

		deps, err := resolve.Dependencies(doc)
		if err != nil {
			rep.Problems = append(rep.Problems, Problem{ID: id, Err: err})
			continue
		}
		var missing []string
		for _, d := range deps {
			if _, ok := present[d.ID]; !ok {
				missing = append(missing, d.ID)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			rep.Problems = append(rep.Problems, Problem{ID: id, Missing: missing})
		}
	}
	return rep, nil
}
