// Package jetpackconnect tracks the site probe record for each URL a user is
// connecting and runs the check-url data layer against the site-info API.
//
// Each checked URL also gets a jetpack.Flow, so the automatic redirect after a
// probe arrives fires at most once per check.
package jetpackconnect
