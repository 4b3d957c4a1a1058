// Package resolver turns raw link destinations into refs: normalized note paths
// in the same form as note ids.
package resolver

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)

// Warning reports a link destination with an unexpected shape. It never stops
// indexing: the ref is kept literally or skipped, as Reason says.
type Warning struct {
	Source string
	Target string
	Reason string
}

func (w Warning) Error() string {
	return fmt.Sprintf("link %q in %s: %s", w.Target, w.Source, w.Reason)
}

// Resolve normalizes the local destinations found in the note noteID.
//
// Destinations carrying a URI scheme are not note references and are dropped.
// Relative destinations are resolved against the note's directory. Targets are
// never checked for existence.
func Resolve(noteID string, targets []string) ([]string, []Warning) {
	dir := filepath.Dir(noteID)
	seen := make(map[string]struct{}, len(targets))
	var refs []string
	var warnings []Warning

	for _, raw := range targets {
		target := strings.TrimSpace(raw)
		if target == "" {
			warnings = append(warnings, Warning{Source: noteID, Target: raw, Reason: "empty destination skipped"})
			continue
		}
		if schemeRe.MatchString(target) {
			continue
		}
		if i := strings.IndexAny(target, "#?"); i >= 0 {
			target = target[:i]
		}
		if target == "" {
			// same-note anchor
			continue
		}

		decoded, err := url.PathUnescape(target)
		if err != nil {
			warnings = append(warnings, Warning{Source: noteID, Target: raw, Reason: "invalid escape, kept literally"})
			decoded = target
		}

		ref := normalize(dir, decoded)
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	sort.Strings(refs)
	return refs, warnings
}

func normalize(dir, target string) string {
	p := filepath.FromSlash(target)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}
