package store

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// NextRev derives the revision that follows prev for a document whose
// canonical body is body. Tokens have CouchDB's "<generation>-<md5>" shape.
func NextRev(prev string, body []byte) string {
	gen, _ := RevGeneration(prev)
	sum := md5.Sum(body)
	return strconv.Itoa(gen+1) + "-" + hex.EncodeToString(sum[:])
}

// RevGeneration returns the generation counter of rev. The empty revision
// is generation 0.
func RevGeneration(rev string) (int, error) {
	if rev == "" {
		return 0, nil
	}
	head, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0, fmt.Errorf("revision %q: missing generation", rev)
	}
	gen, err := strconv.Atoi(head)
	if err != nil || gen < 1 {
		return 0, fmt.Errorf("revision %q: bad generation", rev)
	}
	return gen, nil
}
