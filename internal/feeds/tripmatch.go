package feeds

import "strings"

// TripMatcher joins a live feed trip reference to a static trip id. The
// live and static systems share no key, so implementations are heuristics.
type TripMatcher interface {
	Match(ref string, tripIDs []string) (string, bool)
}

// SubstringMatcher accepts a static trip whose id contains the reference.
// It can over-match short references and under-match reformatted ones.
type SubstringMatcher struct{}

func (SubstringMatcher) Match(ref string, tripIDs []string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	for _, id := range tripIDs {
		if strings.Contains(id, ref) {
			return id, true
		}
	}
	return "", false
}
