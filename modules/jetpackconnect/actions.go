package jetpackconnect

import (
	"ex-calypso/pkg/calypso"
	"ex-calypso/pkg/jetpack"
)

// CheckURL builds the action that starts probing rawURL. isURLOnSites marks
// URLs already present in the requester's site list.
func CheckURL(rawURL string, isURLOnSites bool) *calypso.Action {
	return &calypso.Action{
		Kind: calypso.ActionKindConnectCheckURL,
		Connect: &calypso.ConnectPayload{
			URL:          jetpack.CleanURL(rawURL),
			IsURLOnSites: isURLOnSites,
		},
	}
}

// ReceiveProbe builds the action that stores a finished probe for url.
func ReceiveProbe(url string, probe *jetpack.SiteProbe, fromRequesterSites bool, errText string) *calypso.Action {
	return &calypso.Action{
		Kind: calypso.ActionKindConnectCheckURLReceive,
		Connect: &calypso.ConnectPayload{
			URL:                jetpack.CleanURL(url),
			Probe:              probe,
			FromRequesterSites: fromRequesterSites,
			Error:              errText,
		},
	}
}

// ConfirmInstall records whether the user says the plugin is installed.
func ConfirmInstall(url string, installed bool) *calypso.Action {
	return &calypso.Action{
		Kind: calypso.ActionKindConnectConfirmStatus,
		Connect: &calypso.ConnectPayload{
			URL:              jetpack.CleanURL(url),
			InstallConfirmed: &installed,
		},
	}
}

// DismissURL hides the status notice for url.
func DismissURL(url string) *calypso.Action {
	return &calypso.Action{
		Kind:    calypso.ActionKindConnectDismissURL,
		Connect: &calypso.ConnectPayload{URL: jetpack.CleanURL(url)},
	}
}
