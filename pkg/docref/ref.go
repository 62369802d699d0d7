package docref

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// ErrInvalidRef is returned for kind/name combinations outside the five
// defined kinds.
var ErrInvalidRef = errors.New("invalid document reference")

// Kind identifies the kind of graph object or pointer a Ref names.
type Kind string

const (
	KindBranches Kind = "branches"
	KindBranch   Kind = "branch"
	KindCommit   Kind = "commit"
	KindTree     Kind = "tree"
	KindBlob     Kind = "blob"
)

const (
	idPrefix   = "git-"
	branchesID = "git-branches"
)

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindBranches, KindBranch, KindCommit, KindTree, KindBlob:
		return true
	}
	return false
}

// Mutable reports whether documents of this kind may be rewritten.
func (k Kind) Mutable() bool {
	return k == KindBranch || k == KindBranches
}

// DocType is the value stored in a document's "type" field.
func (k Kind) DocType() string {
	return idPrefix + string(k)
}

// Ref identifies one logical document. Two refs are equal iff their IDs are.
type Ref struct {
	ID   string `json:"_id"`
	Kind Kind   `json:"kind"`
	Name string `json:"name,omitempty"`
}

// New builds a Ref, deriving its ID from kind and name.
func New(kind Kind, name string) (Ref, error) {
	if !kind.Valid() {
		return Ref{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRef, kind)
	}
	if kind == KindBranches {
		if name != "" {
			return Ref{}, fmt.Errorf("%w: %s ref takes no name (got %q)", ErrInvalidRef, kind, name)
		}
		return Ref{ID: branchesID, Kind: kind}, nil
	}
	if err := validateName(name); err != nil {
		return Ref{}, fmt.Errorf("%w: %s: %v", ErrInvalidRef, kind, err)
	}
	return Ref{ID: idPrefix + string(kind) + "-" + name, Kind: kind, Name: name}, nil
}

// Must is New for arguments known to be valid; it panics otherwise.
func Must(kind Kind, name string) Ref {
	r, err := New(kind, name)
	if err != nil {
		panic(err)
	}
	return r
}

// Branches returns the singleton branch-list root.
func Branches() Ref {
	return Ref{ID: branchesID, Kind: KindBranches}
}

// ParseID inverts New.
func ParseID(id string) (Ref, error) {
	if id == branchesID {
		return Branches(), nil
	}
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return Ref{}, fmt.Errorf("%w: id %q lacks %q prefix", ErrInvalidRef, id, idPrefix)
	}
	kind, name, ok := strings.Cut(rest, "-")
	if !ok {
		return Ref{}, fmt.Errorf("%w: id %q has no name", ErrInvalidRef, id)
	}
	if Kind(kind) == KindBranches {
		return Ref{}, fmt.Errorf("%w: id %q", ErrInvalidRef, id)
	}
	return New(Kind(kind), name)
}

// Validate checks that r is well formed and that its ID matches kind+name.
// Refs decoded from stored documents go through here before use.
func (r Ref) Validate() error {
	want, err := New(r.Kind, r.Name)
	if err != nil {
		return err
	}
	if want.ID != r.ID {
		return fmt.Errorf("%w: id %q does not match %s/%q", ErrInvalidRef, r.ID, r.Kind, r.Name)
	}
	return nil
}

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool {
	return r.ID == ""
}

func (r Ref) String() string {
	return r.ID
}

func validateName(name string) error {
	if name == "" {
		return errors.New("name is required")
	}
	for _, c := range name {
		if unicode.IsSpace(c) || unicode.IsControl(c) {
			return fmt.Errorf("name %q contains whitespace or control characters", name)
		}
	}
	return nil
}

// Priority orders kinds for work-list scheduling; lower runs first.
func Priority(k Kind) int {
	switch k {
	case KindCommit:
		return 0
	case KindTree:
		return 1
	default:
		return 2
	}
}

// Less orders refs by priority, then name, then id.
func Less(a, b Ref) bool {
	pa, pb := Priority(a.Kind), Priority(b.Kind)
	if pa != pb {
		return pa < pb
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

// SortForStack returns refs in push order for a LIFO work list: popping
// the result yields commits first, then trees, then everything else, each
// class in ascending name order. The input is not modified.
func SortForStack(refs []Ref) []Ref {
	out := make([]Ref, len(refs))
	copy(out, refs)
	sort.SliceStable(out, func(i, j int) bool { return Less(out[j], out[i]) })
	return out
}

// Unique drops duplicate IDs, keeping the first occurrence.
func Unique(refs []Ref) []Ref {
	if len(refs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(refs))
	out := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// SortByName sorts refs in place by name, then id.
func SortByName(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Name != refs[j].Name {
			return refs[i].Name < refs[j].Name
		}
		return refs[i].ID < refs[j].ID
	})
}
