package jetpackconnect

import (
	"maps"

	"ex-calypso/pkg/calypso"
	"ex-calypso/pkg/jetpack"
)

// Sites maps a cleaned connect URL to its probe record.
type Sites map[string]jetpack.SiteRecord

// Reduce folds one connect action into state without mutating it.
func Reduce(state Sites, action *calypso.Action) Sites {
	if action == nil || action.Connect == nil || action.Connect.URL == "" {
		return state
	}
	url := jetpack.CleanURL(action.Connect.URL)

	switch action.Kind {
	case calypso.ActionKindConnectCheckURL:
		return state.with(url, jetpack.SiteRecord{
			URL:        url,
			IsFetching: true,
		})
	case calypso.ActionKindConnectCheckURLReceive:
		record, ok := state[url]
		if !ok {
			return state
		}
		record.IsFetching = false
		record.IsFetched = true
		record.Error = action.Connect.Error
		record.FromRequesterSites = action.Connect.FromRequesterSites
		record.Probe = nil
		if action.Connect.Probe != nil {
			probe := *action.Connect.Probe
			record.Probe = &probe
		}
		return state.with(url, record)
	case calypso.ActionKindConnectConfirmStatus:
		record, ok := state[url]
		if !ok || action.Connect.InstallConfirmed == nil {
			return state
		}
		record.InstallConfirmedByUser = jetpack.TristateOf(*action.Connect.InstallConfirmed)
		return state.with(url, record)
	case calypso.ActionKindConnectDismissURL:
		record, ok := state[url]
		if !ok {
			return state
		}
		record.IsDismissed = true
		return state.with(url, record)
	default:
		return state
	}
}

func (s Sites) with(url string, record jetpack.SiteRecord) Sites {
	next := maps.Clone(s)
	if next == nil {
		next = Sites{}
	}
	next[url] = record

	return next
}
