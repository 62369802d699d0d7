package object

import "time"

// Hash is a lowercase hex-encoded git object id (40 characters for SHA-1
// repositories, 64 for SHA-256 repositories).
type Hash string

// ObjectType identifies the kind of a tree entry's target.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	TreeModeSymlink    = "120000"
	TreeModeGitlink    = "160000"
)

// EmptyBlobHash is the id of the zero-length blob. Some hosts refuse to
// serve it, so it is resolved without a source round trip.
const EmptyBlobHash Hash = "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"

// Signature identifies an author or committer.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Commit is the source-side view of a commit object.
type Commit struct {
	Hash      Hash
	Author    Signature
	Committer Signature
	Message   string
	TreeHash  Hash
	Parents   []Hash
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string
	Type ObjectType
	Hash Hash
	Mode string // octal, as reported by the source
}

// Tree holds the entries of a tree object in source order.
type Tree struct {
	Hash    Hash
	Entries []TreeEntry
}

// Blob holds raw file data. A nil Data means the source returned no
// content at all, which is distinct from an empty file.
type Blob struct {
	Hash Hash
	Data []byte
}
