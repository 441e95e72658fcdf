// Package commentcache keeps the moderation view's comment list pages and the
// set of in-flight comment mutations.
//
// Pages live in a keyed arena, site → scope → signature → page → ids, where
// scope is "site" or a post id and signature is the canonical filter key from
// calypso.CommentQuery.Signature. Reducers are pure copy-on-write functions; the
// Module applies them under its own lock and exposes the result as the
// calypso.CommentQueryStore service.
package commentcache
