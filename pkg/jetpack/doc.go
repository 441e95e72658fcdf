// Package jetpack resolves the Jetpack connect screen state for a site URL and
// sequences the redirects that state triggers.
//
// Resolve is a pure function over the URL typed by the user and the probe
// record fetched for it. Flow wraps the redirect side effects behind a
// one-shot latch so a session redirects at most once.
package jetpack
