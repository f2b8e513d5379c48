// Package fingerprint derives stable article identities.
package fingerprint

import (
	"crypto/sha256"
	"fmt"

	"speedreader/internal/model"
)

// Func computes the identity of a candidate within a feed. The result
// must be stable across re-fetches of an unchanged item and must not
// collide across feeds. The function is pluggable because the fallback
// inputs (title, publish date) are not stable for sources that edit
// items after publication.
type Func func(feedURL string, c model.Candidate) string

// Default fingerprints by GUID when the source provides one, then by
// link, then by title plus publish date. All variants are scoped to the
// feed URL so identical items in different feeds stay distinct.
func Default(feedURL string, c model.Candidate) string {
	switch {
	case c.GUID != "":
		return hash(feedURL, "guid", c.GUID)
	case c.Link != "":
		return hash(feedURL, "link", c.Link)
	default:
		published := ""
		if c.Published != nil {
			published = c.Published.UTC().Format("2006-01-02T15:04:05Z")
		}
		return hash(feedURL, "title", c.Title+"|"+published)
	}
}

func hash(feedURL, kind, value string) string {
	h := sha256.Sum256([]byte(feedURL + "|" + kind + "|" + value))
	return fmt.Sprintf("sha256:%x", h[:16])
}
