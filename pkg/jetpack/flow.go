package jetpack

import (
	"sync/atomic"
)

const (
	// PathPlans is the in-app plans route prefix.
	PathPlans = "/jetpack/connect/plans"
	// RemotePathActivate is the wp-admin plugins screen.
	RemotePathActivate = "/wp-admin/plugins.php"
	// RemotePathAuth starts the remote Jetpack authorization.
	RemotePathAuth = "/wp-admin/admin.php?page=jetpack&connect_url_redirect=true"
	// RemotePathInstall opens the Jetpack plugin install screen.
	RemotePathInstall = "/wp-admin/plugin-install.php?tab=plugin-information&plugin=jetpack"
)

// RedirectKind names a redirect destination.
type RedirectKind string

const (
	// RedirectPlans sends the requester to plan selection.
	RedirectPlans RedirectKind = "plans_selection"
	// RedirectRemoteAuth sends the requester to authorize on the remote site.
	RedirectRemoteAuth RedirectKind = "remote_auth"
	// RedirectPluginInstall sends the requester to install the plugin.
	RedirectPluginInstall RedirectKind = "plugin_install"
	// RedirectPluginActivation sends the requester to activate the plugin.
	RedirectPluginActivation RedirectKind = "plugin_activation"
)

// Redirect is one navigation the flow decided on.
type Redirect struct {
	Kind RedirectKind `json:"type"`
	// SiteURL is the connect URL that caused the redirect.
	SiteURL string `json:"url"`
	// Location is the navigation target.
	Location string `json:"location"`
	// External is true for targets outside the application.
	External bool `json:"external"`
}

// Redirector performs navigation.
type Redirector interface {
	Redirect(redirect Redirect)
}

// RedirectorFunc adapts a function to Redirector.
type RedirectorFunc func(redirect Redirect)

// Redirect calls f.
func (f RedirectorFunc) Redirect(redirect Redirect) {
	f(redirect)
}

// Flow sequences connect redirects for one session.
//
// Every redirect goes through a one-shot latch: the first call navigates and
// every later call is a no-op for the lifetime of the Flow.
type Flow struct {
	envID       string
	redirector  Redirector
	redirecting atomic.Bool
}

// NewFlow creates a flow that navigates through redirector. envID is appended
// as calypso_env to remote targets when non-empty.
func NewFlow(envID string, redirector Redirector) *Flow {
	if redirector == nil {
		redirector = RedirectorFunc(func(Redirect) {})
	}

	return &Flow{
		envID:      envID,
		redirector: redirector,
	}
}

// Redirecting reports whether the flow has already navigated.
func (f *Flow) Redirecting() bool {
	return f.redirecting.Load()
}

// GoToPlans navigates to plan selection for siteURL.
func (f *Flow) GoToPlans(siteURL string) bool {
	return f.fire(plansRedirect(siteURL))
}

// GoToRemoteAuth navigates to the remote site's Jetpack authorization.
func (f *Flow) GoToRemoteAuth(siteURL string) bool {
	return f.fireRemote(RedirectRemoteAuth, siteURL, RemotePathAuth)
}

// GoToPluginInstall navigates to the remote plugin install screen.
func (f *Flow) GoToPluginInstall(siteURL string) bool {
	return f.fireRemote(RedirectPluginInstall, siteURL, RemotePathInstall)
}

// GoToPluginActivation navigates to the remote plugin activation screen.
func (f *Flow) GoToPluginActivation(siteURL string) bool {
	return f.fireRemote(RedirectPluginActivation, siteURL, RemotePathActivate)
}

// Advance applies the automatic redirect rules after a state change:
// a fetched notConnectedJetpack site goes to remote authorization and an
// alreadyOwned site goes to plans. It reports the redirect that fired, if any.
func (f *Flow) Advance(currentURL string, site *SiteRecord) (Redirect, bool) {
	var next Redirect
	switch Resolve(currentURL, site) {
	case StatusNotConnectedJetpack:
		if !IsCurrentURLFetched(currentURL, site) {
			return Redirect{}, false
		}
		next = remoteRedirect(RedirectRemoteAuth, currentURL, RemotePathAuth, f.envID)
	case StatusAlreadyOwned:
		next = plansRedirect(currentURL)
	default:
		return Redirect{}, false
	}

	if !f.fire(next) {
		return Redirect{}, false
	}

	return next, true
}

func (f *Flow) fireRemote(kind RedirectKind, siteURL string, remotePath string) bool {
	return f.fire(remoteRedirect(kind, siteURL, remotePath, f.envID))
}

func (f *Flow) fire(redirect Redirect) bool {
	if !f.redirecting.CompareAndSwap(false, true) {
		return false
	}
	f.redirector.Redirect(redirect)

	return true
}

func plansRedirect(siteURL string) Redirect {
	return Redirect{
		Kind:     RedirectPlans,
		SiteURL:  siteURL,
		Location: PathPlans + "/" + URLToSlug(siteURL),
	}
}

func remoteRedirect(kind RedirectKind, siteURL string, remotePath string, envID string) Redirect {
	return Redirect{
		Kind:     kind,
		SiteURL:  siteURL,
		Location: AddCalypsoEnvQueryArg(siteURL+remotePath, envID),
		External: true,
	}
}
