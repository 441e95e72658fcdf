package commentcache

import (
	"maps"
	"slices"

	"ex-calypso/pkg/calypso"
)

// Pages maps a page number to the ordered comment ids on it.
type Pages map[int][]int64

// Signatures maps a filter signature to its cached pages.
type Signatures map[string]Pages

// Queries is one site's comment list cache keyed by scope.
type Queries map[calypso.CommentScope]Signatures

// Page returns the cached ids for one page. Missing levels report false.
func (q Queries) Page(scope calypso.CommentScope, signature string, page int) ([]int64, bool) {
	ids, ok := q.signatures(scope).pages(signature)[page]
	if !ok {
		return nil, false
	}

	return slices.Clone(ids), true
}

// signatures returns the scope level, empty when missing.
func (q Queries) signatures(scope calypso.CommentScope) Signatures {
	if signatures, ok := q[scope]; ok {
		return signatures
	}

	return Signatures{}
}

// pages returns the signature level, empty when missing.
func (s Signatures) pages(signature string) Pages {
	if pages, ok := s[signature]; ok {
		return pages
	}

	return Pages{}
}

// withPages returns a copy of q whose scope/signature level is replaced by pages.
// Only the maps on the path are copied; untouched levels are shared.
func (q Queries) withPages(scope calypso.CommentScope, signature string, pages Pages) Queries {
	next := maps.Clone(q)
	if next == nil {
		next = Queries{}
	}

	signatures := maps.Clone(q.signatures(scope))
	signatures[signature] = pages
	next[scope] = signatures

	return next
}

// ReduceQueries folds one action into a site's query cache without mutating state.
func ReduceQueries(state Queries, action *calypso.Action) Queries {
	if action == nil {
		return state
	}

	switch action.Kind {
	case calypso.ActionKindCommentsQueryUpdate:
		if action.Query == nil {
			return state
		}
		return applyQueryResult(state, *action.Query, action.Comments)
	case calypso.ActionKindCommentsDelete:
		if action.RefreshQuery == nil {
			return state
		}
		return removeComment(state, *action.RefreshQuery, action.CommentID)
	case calypso.ActionKindCommentsChangeStatus:
		if action.RefreshQuery == nil || statusStaysInFilter(*action.RefreshQuery, action.Status) {
			return state
		}
		return removeComment(state, *action.RefreshQuery, action.CommentID)
	default:
		return state
	}
}

// applyQueryResult replaces one page wholesale with the de-duplicated ids of comments.
func applyQueryResult(state Queries, query calypso.CommentQuery, comments []calypso.CommentRef) Queries {
	ids := make([]int64, 0, len(comments))
	seen := make(map[int64]struct{}, len(comments))
	for _, comment := range comments {
		if _, dup := seen[comment.ID]; dup {
			continue
		}
		seen[comment.ID] = struct{}{}
		ids = append(ids, comment.ID)
	}

	scope := query.Scope()
	signature := query.Signature()
	pages := maps.Clone(state.signatures(scope).pages(signature))
	pages[query.Page] = ids

	return state.withPages(scope, signature, pages)
}

// removeComment drops commentID from every page under the refresh query's
// scope and signature. State is returned unchanged when the id is absent.
func removeComment(state Queries, refresh calypso.CommentQuery, commentID int64) Queries {
	scope := refresh.Scope()
	signature := refresh.Signature()
	current := state.signatures(scope).pages(signature)

	var pages Pages
	for page, ids := range current {
		if !slices.Contains(ids, commentID) {
			continue
		}
		if pages == nil {
			pages = maps.Clone(current)
		}
		pages[page] = slices.DeleteFunc(slices.Clone(ids), func(id int64) bool {
			return id == commentID
		})
	}
	if pages == nil {
		return state
	}

	return state.withPages(scope, signature, pages)
}

// statusStaysInFilter reports whether a comment moved to status still belongs
// to the list filtered by refresh.
func statusStaysInFilter(refresh calypso.CommentQuery, status string) bool {
	filter := refresh.EffectiveStatus()
	if filter == calypso.CommentStatusAll {
		return status == "approved" || status == "unapproved"
	}

	return status == filter
}
