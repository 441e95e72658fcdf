package commentcache

import "ex-calypso/pkg/calypso"

// ReducePendingActions tracks request keys of mutations that opted into request
// tracking. A fresh list request clears the set.
func ReducePendingActions(state []string, action *calypso.Action) []string {
	if action == nil {
		return state
	}

	switch action.Kind {
	case calypso.ActionKindCommentsChangeStatus, calypso.ActionKindCommentsDelete:
		if !action.TracksRequest() {
			return state
		}
		next := make([]string, 0, len(state)+1)
		next = append(next, state...)
		return append(next, calypso.RequestKey(action))
	case calypso.ActionKindCommentsListRequest:
		return []string{}
	default:
		return state
	}
}
