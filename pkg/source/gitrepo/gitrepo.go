// Package gitrepo reads the object graph of a local git repository.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	gitobject "github.com/go-git/go-git/v5/plumbing/object"

	"github.com/odvcencio/gitcouch/pkg/encoding"
	"github.com/odvcencio/gitcouch/pkg/object"
	"github.com/odvcencio/gitcouch/pkg/source"
)

// Source implements source.Source over a go-git repository.
type Source struct {
	repo *git.Repository
}

var _ source.Source = (*Source)(nil)

// Open opens the repository containing path. Both work trees and bare
// repositories are accepted.
func Open(path string) (*Source, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository %q: %w", path, err)
	}
	return New(repo), nil
}

// New wraps an already opened repository.
func New(repo *git.Repository) *Source {
	return &Source{repo: repo}
}

// GitDir returns the directory holding refs for the repository at path:
// path/.git for a work tree, path itself for a bare repository.
func GitDir(path string) (string, error) {
	dotGit := filepath.Join(path, git.GitDirName)
	if fi, err := os.Stat(dotGit); err == nil && fi.IsDir() {
		return dotGit, nil
	}
	if fi, err := os.Stat(filepath.Join(path, "refs")); err == nil && fi.IsDir() {
		return path, nil
	}
	return "", fmt.Errorf("%q is not a git directory", path)
}

func (s *Source) Branches(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter, err := s.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer iter.Close()
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Source) BranchHead(ctx context.Context, name string) (object.Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref, err := s.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		return "", wrapErr(fmt.Sprintf("branch %q", name), err)
	}
	return object.Hash(ref.Hash().String()), nil
}

func (s *Source) Commit(ctx context.Context, h object.Hash) (*object.Commit, error) {
	gh, err := s.hash(ctx, h)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.CommitObject(gh)
	if err != nil {
		return nil, wrapErr("commit "+string(h), err)
	}
	out := &object.Commit{
		Hash:      h,
		Author:    signature(c.Author),
		Committer: signature(c.Committer),
		Message:   c.Message,
		TreeHash:  object.Hash(c.TreeHash.String()),
	}
	for _, p := range c.ParentHashes {
		out.Parents = append(out.Parents, object.Hash(p.String()))
	}
	return out, nil
}

func signature(sig gitobject.Signature) object.Signature {
	return object.Signature{Name: sig.Name, Email: sig.Email, When: sig.When}
}

func (s *Source) Tree(ctx context.Context, h object.Hash) (*object.Tree, error) {
	gh, err := s.hash(ctx, h)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.TreeObject(gh)
	if err != nil {
		return nil, wrapErr("tree "+string(h), err)
	}
	out := &object.Tree{Hash: h, Entries: make([]object.TreeEntry, 0, len(t.Entries))}
	for _, e := range t.Entries {
		out.Entries = append(out.Entries, object.TreeEntry{
			Name: e.Name,
			Type: entryType(e.Mode),
			Hash: object.Hash(e.Hash.String()),
			Mode: canonicalMode(e.Mode),
		})
	}
	return out, nil
}

func entryType(m filemode.FileMode) object.ObjectType {
	switch m {
	case filemode.Dir:
		return object.TypeTree
	case filemode.Submodule:
		return object.TypeCommit
	default:
		return object.TypeBlob
	}
}

// canonicalMode renders m the way git tree objects do ("40000",
// "100644"), then pads it to six digits.
func canonicalMode(m filemode.FileMode) string {
	s := strings.TrimLeft(m.String(), "0")
	return encoding.NormalizeOctal(s)
}

func (s *Source) Blob(ctx context.Context, h object.Hash) (*object.Blob, error) {
	gh, err := s.hash(ctx, h)
	if err != nil {
		return nil, err
	}
	b, err := s.repo.BlobObject(gh)
	if err != nil {
		return nil, wrapErr("blob "+string(h), err)
	}
	r, err := b.Reader()
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", h, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("blob %s: read: %w", h, err)
	}
	if data == nil {
		data = []byte{}
	}
	return &object.Blob{Hash: h, Data: data}, nil
}

func (s *Source) hash(ctx context.Context, h object.Hash) (plumbing.Hash, error) {
	if err := ctx.Err(); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := object.ValidateHash(h); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %v", source.ErrMalformed, err)
	}
	return plumbing.NewHash(string(h)), nil
}

func wrapErr(what string, err error) error {
	if errors.Is(err, plumbing.ErrObjectNotFound) || errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("%s: %w", what, source.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
