package calypso

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// ServiceCommentQueryStore is the canonical service registry key for comment list cache reads.
const ServiceCommentQueryStore = "calypso.comment_query_store"

const (
	// CommentStatusAll is the unfiltered moderation view.
	CommentStatusAll = "all"
	// CommentOrderDesc is the default list order.
	CommentOrderDesc = "DESC"
	// CommentOrderAsc lists oldest comments first.
	CommentOrderAsc = "ASC"
)

// CommentScope identifies who owns a cached comment list: the whole site or one post.
type CommentScope string

// CommentScopeSite is the scope of site-wide comment lists.
const CommentScopeSite CommentScope = "site"

// CommentScopeForPost returns the scope of one post's comment lists.
// A zero post id selects the site scope.
func CommentScopeForPost(postID int64) CommentScope {
	if postID == 0 {
		return CommentScopeSite
	}

	return CommentScope(strconv.FormatInt(postID, 10))
}

// CommentQuery describes one comment list request.
type CommentQuery struct {
	Page   int    `json:"page"`
	Order  string `json:"order,omitempty"`
	PostID int64  `json:"postId,omitempty"`
	Search string `json:"search,omitempty"`
	Status string `json:"status,omitempty"`
}

// Scope returns the cache scope that owns lists for this query.
func (q CommentQuery) Scope() CommentScope {
	return CommentScopeForPost(q.PostID)
}

// EffectiveStatus returns the status filter with the "all" default applied.
func (q CommentQuery) EffectiveStatus() string {
	if status := strings.TrimSpace(q.Status); status != "" {
		return status
	}

	return CommentStatusAll
}

// EffectiveOrder returns the upper-cased order with the DESC default applied.
func (q CommentQuery) EffectiveOrder() string {
	if order := strings.ToUpper(strings.TrimSpace(q.Order)); order != "" {
		return order
	}

	return CommentOrderDesc
}

// Signature returns the canonical filter key for this query, for example
// "all?order=DESC" or "spam?order=ASC&s=foo".
//
// Page and post id are not part of the signature. Parameters are encoded with
// sorted keys so equivalent filters always produce the same key.
func (q CommentQuery) Signature() string {
	params := url.Values{}
	params.Set("order", q.EffectiveOrder())
	if q.Search != "" {
		params.Set("s", q.Search)
	}

	return q.EffectiveStatus() + "?" + params.Encode()
}

// CommentQueryStore provides read access to cached comment list pages.
//
// Implementations must be concurrency-safe and return caller-owned slices.
type CommentQueryStore interface {
	// CommentPage returns the ordered comment ids cached for one site's query page.
	//
	// When no page is cached, found is false and err is nil.
	CommentPage(ctx context.Context, siteID int64, query CommentQuery) (ids []int64, found bool, err error)
	// PendingActions returns the request keys of tracked in-flight comment mutations.
	PendingActions(ctx context.Context) ([]string, error)
}
