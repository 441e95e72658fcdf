package calypso

import "slices"

// Capability describes what a module can process and what resources it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
	Metadata         map[string]string
}

// InterestSet describes action selection criteria.
type InterestSet struct {
	// Kinds restricts matching to the listed action kinds. Empty matches every kind.
	Kinds []ActionKind
	// Sites restricts matching to the listed site ids. Empty matches every site.
	Sites []int64
	// RequireTrackRequest matches only actions that opted into request tracking.
	RequireTrackRequest bool
}

// Matches reports whether an action satisfies the declared interest set.
func (i InterestSet) Matches(action *Action) bool {
	if action == nil {
		return false
	}
	if len(i.Kinds) > 0 && !slices.Contains(i.Kinds, action.Kind) {
		return false
	}
	if len(i.Sites) > 0 && !slices.Contains(i.Sites, action.SiteID) {
		return false
	}
	if i.RequireTrackRequest && !action.TracksRequest() {
		return false
	}

	return true
}

// Allows reports whether this interest set can safely satisfy another filter.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && (len(filter.Kinds) == 0 || !allIncluded(filter.Kinds, i.Kinds)) {
		return false
	}
	if len(i.Sites) > 0 && (len(filter.Sites) == 0 || !allIncluded(filter.Sites, i.Sites)) {
		return false
	}
	if i.RequireTrackRequest && !filter.RequireTrackRequest {
		return false
	}

	return true
}

// allIncluded reports whether subset is fully contained in allowed.
func allIncluded[T comparable](subset, allowed []T) bool {
	for _, item := range subset {
		if !slices.Contains(allowed, item) {
			return false
		}
	}

	return true
}
