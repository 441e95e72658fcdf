package onboarding

import (
	"maps"

	"ex-calypso/pkg/calypso"
)

// BusinessAddress is the business address step payload.
type BusinessAddress struct {
	Name   string `json:"name"`
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// Settings returns the partial settings document saving this address.
func (a BusinessAddress) Settings() map[string]any {
	return map[string]any{
		"businessAddress": map[string]any{
			"name":   a.Name,
			"street": a.Street,
			"city":   a.City,
			"state":  a.State,
			"zip":    a.Zip,
		},
	}
}

// ReceiveCredentials stores onboarding credentials for siteID.
func ReceiveCredentials(siteID int64, credentials calypso.OnboardingCredentials) *calypso.Action {
	return &calypso.Action{
		Kind:       calypso.ActionKindOnboardingCredentialsReceive,
		SiteID:     siteID,
		Onboarding: &calypso.OnboardingPayload{Credentials: &credentials},
	}
}

// AddSettings merges settings fetched for siteID.
func AddSettings(siteID int64, settings map[string]any) *calypso.Action {
	return &calypso.Action{
		Kind:       calypso.ActionKindOnboardingSettingsReceive,
		SiteID:     siteID,
		Onboarding: &calypso.OnboardingPayload{Settings: settings},
	}
}

// SaveSettings merges settings locally and persists them to siteID.
func SaveSettings(siteID int64, settings map[string]any) *calypso.Action {
	return &calypso.Action{
		Kind:       calypso.ActionKindOnboardingSettingsSave,
		SiteID:     siteID,
		Onboarding: &calypso.OnboardingPayload{Settings: settings},
	}
}

// RequestSettings asks the data layer to fetch settings for siteID.
func RequestSettings(siteID int64) *calypso.Action {
	return &calypso.Action{
		Kind:   calypso.ActionKindOnboardingSettingsRequest,
		SiteID: siteID,
	}
}

// ReduceCredentials stores credentials per site.
func ReduceCredentials(state map[int64]calypso.OnboardingCredentials, action *calypso.Action) map[int64]calypso.OnboardingCredentials {
	if action == nil || action.Kind != calypso.ActionKindOnboardingCredentialsReceive ||
		action.Onboarding == nil || action.Onboarding.Credentials == nil {
		return state
	}

	next := maps.Clone(state)
	if next == nil {
		next = make(map[int64]calypso.OnboardingCredentials)
	}
	next[action.SiteID] = *action.Onboarding.Credentials

	return next
}

// ReduceSettings shallow-merges received or saved settings per site.
func ReduceSettings(state map[int64]map[string]any, action *calypso.Action) map[int64]map[string]any {
	if action == nil || action.Onboarding == nil || action.Onboarding.Settings == nil {
		return state
	}
	if action.Kind != calypso.ActionKindOnboardingSettingsReceive && action.Kind != calypso.ActionKindOnboardingSettingsSave {
		return state
	}

	merged := maps.Clone(state[action.SiteID])
	if merged == nil {
		merged = make(map[string]any, len(action.Onboarding.Settings))
	}
	maps.Copy(merged, action.Onboarding.Settings)

	next := maps.Clone(state)
	if next == nil {
		next = make(map[int64]map[string]any)
	}
	next[action.SiteID] = merged

	return next
}
