// Package document defines the destination-side materialization of a
// docref.Ref: a JSON object keyed by _id, carrying a _rev once stored.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/odvcencio/gitcouch/pkg/docref"
	"github.com/odvcencio/gitcouch/pkg/encoding"
	"github.com/odvcencio/gitcouch/pkg/object"
)

// Person is an author or committer as stored in commit documents.
type Person struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date"`
}

// TreeChild is one entry of a tree document.
type TreeChild struct {
	Child    Link   `json:"child"`
	Basename string `json:"basename"`
	Mode     string `json:"mode"`
}

// Submodule records a gitlink tree entry. Gitlinks point outside the
// repository, so they are kept out of the dependency graph.
type Submodule struct {
	Basename string `json:"basename"`
	SHA      string `json:"sha"`
}

// Document is one destination document. Which fields are populated
// depends on Type; the rest stay at their zero values and are omitted
// from the JSON form, except that the list of the document's own kind
// (branches, parents, children) is always present, possibly empty.
type Document struct {
	ID   string `json:"_id"`
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`

	// branches
	Branches []Link `json:"branches,omitempty"`

	// branch
	Branch string `json:"branch,omitempty"`
	Commit *Link  `json:"commit,omitempty"`

	// commit, tree, blob
	SHA string `json:"sha,omitempty"`

	// commit
	Author    *Person `json:"author,omitempty"`
	Committer *Person `json:"committer,omitempty"`
	Message   string  `json:"message,omitempty"`
	Tree      *Link   `json:"tree,omitempty"`
	Parents   []Link  `json:"parents,omitempty"`

	// tree
	Children   []TreeChild `json:"children,omitempty"`
	Submodules []Submodule `json:"submodules,omitempty"`

	// blob
	Encoding string  `json:"encoding,omitempty"`
	Raw      *string `json:"raw,omitempty"`
	Base64   *string `json:"base64,omitempty"`
	Size     *int    `json:"size,omitempty"`
}

// MarshalJSON writes the kind's own list as [] rather than dropping it
// when empty, so readers can iterate it without a presence check.
func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	out := struct {
		plain
		Branches *[]Link      `json:"branches,omitempty"`
		Parents  *[]Link      `json:"parents,omitempty"`
		Children *[]TreeChild `json:"children,omitempty"`
	}{plain: plain(d)}
	switch d.Type {
	case docref.KindBranches.DocType():
		out.Branches = nonNil(d.Branches)
	case docref.KindCommit.DocType():
		out.Parents = nonNil(d.Parents)
	case docref.KindTree.DocType():
		out.Children = nonNil(d.Children)
	}
	return json.Marshal(out)
}

func nonNil[T any](s []T) *[]T {
	if s == nil {
		s = []T{}
	}
	return &s
}

// Ref recovers the reference this document materializes.
func (d *Document) Ref() (docref.Ref, error) {
	r, err := docref.ParseID(d.ID)
	if err != nil {
		return docref.Ref{}, err
	}
	if r.Kind.DocType() != d.Type {
		return docref.Ref{}, fmt.Errorf("%w: document %q has type %q, want %q",
			docref.ErrInvalidRef, d.ID, d.Type, r.Kind.DocType())
	}
	return r, nil
}

// Kind returns the document kind implied by its ID, or "" if the ID is
// not one of ours.
func (d *Document) Kind() docref.Kind {
	r, err := docref.ParseID(d.ID)
	if err != nil {
		return ""
	}
	return r.Kind
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		panic(fmt.Sprintf("document: clone %s: %v", d.ID, err))
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("document: clone %s: %v", d.ID, err))
	}
	return &out
}

// Body returns the canonical JSON of d without its revision token.
func (d *Document) Body() ([]byte, error) {
	c := *d
	c.Rev = ""
	return json.Marshal(&c)
}

// ContentEqual reports whether a and b hold the same content, ignoring
// revision tokens.
func ContentEqual(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	ab, err := a.Body()
	if err != nil {
		return false
	}
	bb, err := b.Body()
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Decode parses a stored JSON document.
func Decode(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if d.ID == "" {
		return nil, fmt.Errorf("decode document: missing _id")
	}
	return &d, nil
}

// BlobBytes decodes the content of a blob document.
func (d *Document) BlobBytes() ([]byte, error) {
	if d.Type != docref.KindBlob.DocType() {
		return nil, fmt.Errorf("document %q is a %s, not a blob", d.ID, d.Type)
	}
	var payload *string
	switch d.Encoding {
	case encoding.Raw:
		payload = d.Raw
	case encoding.Base64:
		payload = d.Base64
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: blob %q has no %q payload", encoding.ErrInvalidContent, d.ID, d.Encoding)
	}
	return encoding.DecodeContent(d.Encoding, *payload)
}

// NewBranches builds the branch-list document. Branch links are sorted by
// name.
func NewBranches(names []string) (*Document, error) {
	links := make([]docref.Ref, 0, len(names))
	for _, name := range names {
		r, err := docref.New(docref.KindBranch, name)
		if err != nil {
			return nil, err
		}
		links = append(links, r)
	}
	links = docref.Unique(links)
	docref.SortByName(links)

	root := docref.Branches()
	d := &Document{ID: root.ID, Type: root.Kind.DocType(), Branches: make([]Link, len(links))}
	for i, r := range links {
		d.Branches[i] = LinkTo(r)
	}
	return d, nil
}

// NewBranch builds a branch pointer document.
func NewBranch(name string, head object.Hash) (*Document, error) {
	r, err := docref.New(docref.KindBranch, name)
	if err != nil {
		return nil, err
	}
	commit, err := docref.New(docref.KindCommit, string(head))
	if err != nil {
		return nil, fmt.Errorf("branch %q head: %w", name, err)
	}
	link := LinkTo(commit)
	return &Document{ID: r.ID, Type: r.Kind.DocType(), Branch: name, Commit: &link}, nil
}

// NewCommit builds a commit document. Parent links are sorted by name.
func NewCommit(c *object.Commit) (*Document, error) {
	r, err := docref.New(docref.KindCommit, string(c.Hash))
	if err != nil {
		return nil, err
	}
	tree, err := docref.New(docref.KindTree, string(c.TreeHash))
	if err != nil {
		return nil, fmt.Errorf("commit %s tree: %w", c.Hash, err)
	}
	parents := make([]docref.Ref, 0, len(c.Parents))
	for _, p := range c.Parents {
		pr, err := docref.New(docref.KindCommit, string(p))
		if err != nil {
			return nil, fmt.Errorf("commit %s parent: %w", c.Hash, err)
		}
		parents = append(parents, pr)
	}
	parents = docref.Unique(parents)
	docref.SortByName(parents)

	treeLink := LinkTo(tree)
	d := &Document{
		ID:        r.ID,
		Type:      r.Kind.DocType(),
		SHA:       string(c.Hash),
		Author:    personFrom(c.Author),
		Committer: personFrom(c.Committer),
		Message:   c.Message,
		Tree:      &treeLink,
		Parents:   make([]Link, 0, len(parents)),
	}
	for _, p := range parents {
		d.Parents = append(d.Parents, LinkTo(p))
	}
	return d, nil
}

// personFrom renders dates in UTC so the same commit read from different
// sources yields the same document.
func personFrom(s object.Signature) *Person {
	p := &Person{Name: s.Name, Email: s.Email}
	if !s.When.IsZero() {
		p.Date = s.When.UTC().Format(time.RFC3339)
	}
	return p
}

// NewTree builds a tree document. Children are sorted by child name, then
// basename; gitlink entries go to Submodules.
func NewTree(t *object.Tree) (*Document, error) {
	r, err := docref.New(docref.KindTree, string(t.Hash))
	if err != nil {
		return nil, err
	}
	d := &Document{ID: r.ID, Type: r.Kind.DocType(), SHA: string(t.Hash), Children: []TreeChild{}}
	for _, e := range t.Entries {
		octal := encoding.NormalizeOctal(e.Mode)
		if e.Type == object.TypeCommit || encoding.IsGitlink(octal) {
			d.Submodules = append(d.Submodules, Submodule{Basename: e.Name, SHA: string(e.Hash)})
			continue
		}
		var kind docref.Kind
		switch e.Type {
		case object.TypeTree:
			kind = docref.KindTree
		case object.TypeBlob:
			kind = docref.KindBlob
		default:
			return nil, fmt.Errorf("tree %s entry %q: unsupported type %q", t.Hash, e.Name, e.Type)
		}
		child, err := docref.New(kind, string(e.Hash))
		if err != nil {
			return nil, fmt.Errorf("tree %s entry %q: %w", t.Hash, e.Name, err)
		}
		mode, err := encoding.OctalToSymbolic(octal)
		if err != nil {
			return nil, fmt.Errorf("tree %s entry %q: %w", t.Hash, e.Name, err)
		}
		d.Children = append(d.Children, TreeChild{Child: LinkTo(child), Basename: e.Name, Mode: mode})
	}
	sort.Slice(d.Children, func(i, j int) bool {
		a, b := d.Children[i], d.Children[j]
		if a.Child.Name != b.Child.Name {
			return a.Child.Name < b.Child.Name
		}
		return a.Basename < b.Basename
	})
	sort.Slice(d.Submodules, func(i, j int) bool { return d.Submodules[i].Basename < d.Submodules[j].Basename })
	return d, nil
}

// NewBlob builds a blob document, storing content raw when it passes
// encoding.IsRawText and base64 otherwise.
func NewBlob(h object.Hash, data []byte) (*Document, error) {
	r, err := docref.New(docref.KindBlob, string(h))
	if err != nil {
		return nil, err
	}
	enc, payload := encoding.EncodeContent(data)
	size := len(data)
	d := &Document{ID: r.ID, Type: r.Kind.DocType(), SHA: string(h), Encoding: enc, Size: &size}
	if enc == encoding.Raw {
		d.Raw = &payload
	} else {
		d.Base64 = &payload
	}
	return d, nil
}
