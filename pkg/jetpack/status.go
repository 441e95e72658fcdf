package jetpack

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// MinimumJetpackVersion is the oldest plugin release the connect flow supports.
const MinimumJetpackVersion = "3.9.6"

// Status is the connect screen state derived for a URL.
type Status string

const (
	// StatusNone means no status applies yet.
	StatusNone Status = ""
	// StatusAlreadyOwned means the URL is already one of the requester's sites.
	StatusAlreadyOwned Status = "alreadyOwned"
	// StatusNotJetpack means the plugin is not installed.
	StatusNotJetpack Status = "notJetpack"
	// StatusNotActiveJetpack means the plugin is installed but inactive.
	StatusNotActiveJetpack Status = "notActiveJetpack"
	// StatusWordPressCom means the user typed the hosted platform's own address.
	StatusWordPressCom Status = "wordpress.com"
	// StatusIsDotCom means the URL is a site hosted on the platform.
	StatusIsDotCom Status = "isDotCom"
	// StatusNotExists means nothing answers at the URL.
	StatusNotExists Status = "notExists"
	// StatusNotWordPress means the URL is not a WordPress site.
	StatusNotWordPress Status = "notWordPress"
	// StatusOutdatedJetpack means the plugin is older than MinimumJetpackVersion.
	StatusOutdatedJetpack Status = "outdatedJetpack"
	// StatusNotConnectedJetpack means the plugin is active but not connected to the requester.
	StatusNotConnectedJetpack Status = "notConnectedJetpack"
	// StatusAlreadyConnected means the plugin is connected and owned by the requester.
	StatusAlreadyConnected Status = "alreadyConnected"
)

// IsInstructions reports whether the status renders the manual install/activate instructions.
func (s Status) IsInstructions() bool {
	return s == StatusNotJetpack || s == StatusNotActiveJetpack
}

// Resolve derives the connect status for currentURL from the probe record.
//
// The checks run in a fixed order and the first match wins. Probe properties
// only count when the record belongs to currentURL and has finished fetching;
// until then every property is Unknown and only the empty-URL and
// wordpress.com checks can match. A property that is Unknown never triggers a
// negative status. A fetched record without a probe, as left by a failed
// site-info request, resolves to StatusNone so callers never redirect on it.
func Resolve(currentURL string, site *SiteRecord) Status {
	if currentURL == "" {
		return StatusNone
	}

	probe, usable := usableProbe(currentURL, site)

	if usable && probe.UserOwnsSite.IsTrue() && site.FromRequesterSites {
		return StatusAlreadyOwned
	}
	if usable && site.InstallConfirmedByUser.IsFalse() {
		return StatusNotJetpack
	}
	if usable && site.InstallConfirmedByUser.IsTrue() {
		return StatusNotActiveJetpack
	}

	lowered := strings.ToLower(currentURL)
	if lowered == "http://wordpress.com" || lowered == "https://wordpress.com" {
		return StatusWordPressCom
	}
	if !usable {
		return StatusNone
	}

	switch {
	case probe.IsWordPressDotCom.IsTrue():
		return StatusIsDotCom
	case probe.Exists.IsFalse():
		return StatusNotExists
	case probe.IsWordPress.IsFalse():
		return StatusNotWordPress
	case probe.HasJetpack.IsFalse():
		return StatusNotJetpack
	case IsOutdatedVersion(probe.JetpackVersion):
		return StatusOutdatedJetpack
	case probe.IsJetpackActive.IsFalse():
		return StatusNotActiveJetpack
	case probe.IsJetpackConnected.IsFalse(),
		probe.IsJetpackConnected.IsTrue() && !probe.UserOwnsSite.IsTrue():
		return StatusNotConnectedJetpack
	case probe.IsJetpackConnected.IsTrue() && probe.UserOwnsSite.IsTrue():
		return StatusAlreadyConnected
	default:
		return StatusNone
	}
}

// IsCurrentURLFetched reports whether site holds a finished probe for currentURL.
func IsCurrentURLFetched(currentURL string, site *SiteRecord) bool {
	return site != nil && currentURL != "" && site.URL == currentURL && site.IsFetched
}

// IsCurrentURLFetching reports whether a probe for currentURL is in flight.
func IsCurrentURLFetching(currentURL string, site *SiteRecord) bool {
	return site != nil && currentURL != "" && site.URL == currentURL && site.IsFetching
}

// IsOutdatedVersion reports whether version is a parsable release older than
// MinimumJetpackVersion. Empty or unparsable versions are not outdated.
func IsOutdatedVersion(version string) bool {
	version = strings.TrimSpace(version)
	if version == "" {
		return false
	}

	reported, err := semver.NewVersion(version)
	if err != nil {
		return false
	}

	return reported.LessThan(minimumVersion)
}

var minimumVersion = semver.MustParse(MinimumJetpackVersion)

func usableProbe(currentURL string, site *SiteRecord) (SiteProbe, bool) {
	if !IsCurrentURLFetched(currentURL, site) || site.Probe == nil {
		return SiteProbe{}, false
	}

	return *site.Probe, true
}
