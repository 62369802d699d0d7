package document

import (
	"encoding/json"
	"fmt"

	"github.com/odvcencio/gitcouch/pkg/docref"
)

// Link is a reference embedded in a document. Its JSON form carries the
// target's type plus a kind-specific name field: "sha" for commits, trees
// and blobs, "branch" for branches, nothing for the branch list.
type Link struct {
	docref.Ref
}

// LinkTo wraps r.
func LinkTo(r docref.Ref) Link {
	return Link{Ref: r}
}

type linkJSON struct {
	ID     string `json:"_id"`
	Type   string `json:"type"`
	SHA    string `json:"sha,omitempty"`
	Branch string `json:"branch,omitempty"`
}

func (l Link) MarshalJSON() ([]byte, error) {
	out := linkJSON{ID: l.ID, Type: l.Kind.DocType()}
	switch l.Kind {
	case docref.KindBranch:
		out.Branch = l.Name
	case docref.KindBranches:
	default:
		out.SHA = l.Name
	}
	return json.Marshal(out)
}

func (l *Link) UnmarshalJSON(data []byte) error {
	var in linkJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	kind, ok := kindFromDocType(in.Type)
	if !ok {
		return fmt.Errorf("%w: link %q has unknown type %q", docref.ErrInvalidRef, in.ID, in.Type)
	}
	name := in.SHA
	if kind == docref.KindBranch {
		name = in.Branch
	}
	r := docref.Ref{ID: in.ID, Kind: kind, Name: name}
	if err := r.Validate(); err != nil {
		return err
	}
	l.Ref = r
	return nil
}

func kindFromDocType(t string) (docref.Kind, bool) {
	for _, k := range []docref.Kind{
		docref.KindBranches, docref.KindBranch, docref.KindCommit, docref.KindTree, docref.KindBlob,
	} {
		if k.DocType() == t {
			return k, true
		}
	}
	return "", false
}

// Refs unwraps links.
func Refs(links []Link) []docref.Ref {
	out := make([]docref.Ref, len(links))
	for i, l := range links {
		out[i] = l.Ref
	}
	return out
}
