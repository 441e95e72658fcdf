package commentcache

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"ex-calypso/pkg/calypso"
)

const (
	testSiteID = 12345678
	testPostID = 1234
)

func refs(ids ...int64) []calypso.CommentRef {
	comments := make([]calypso.CommentRef, 0, len(ids))
	for _, id := range ids {
		comments = append(comments, calypso.CommentRef{ID: id})
	}

	return comments
}

func TestReduceQueries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		state  Queries
		action *calypso.Action
		want   Queries
	}{
		{
			name: "creates site page with no filters",
			action: &calypso.Action{
				Kind:     calypso.ActionKindCommentsQueryUpdate,
				SiteID:   testSiteID,
				Comments: refs(1, 2, 3, 4, 5),
				Query:    &calypso.CommentQuery{Page: 1},
			},
			want: Queries{"site": {"all?order=DESC": {1: {1, 2, 3, 4, 5}}}},
		},
		{
			name:  "adds post page with no filters",
			state: Queries{"site": {"all?order=DESC": {1: {1, 2, 3, 4, 5}}}},
			action: &calypso.Action{
				Kind:     calypso.ActionKindCommentsQueryUpdate,
				SiteID:   testSiteID,
				Comments: refs(6, 7, 8, 9, 10),
				Query:    &calypso.CommentQuery{Page: 1, PostID: testPostID},
			},
			want: Queries{
				"site": {"all?order=DESC": {1: {1, 2, 3, 4, 5}}},
				"1234": {"all?order=DESC": {1: {6, 7, 8, 9, 10}}},
			},
		},
		{
			name: "adds post page with several filters",
			state: Queries{
				"site": {"all?order=DESC": {1: {1, 2, 3, 4, 5}}},
				"1234": {"all?order=DESC": {1: {6, 7, 8, 9, 10}}},
			},
			action: &calypso.Action{
				Kind:     calypso.ActionKindCommentsQueryUpdate,
				SiteID:   testSiteID,
				Comments: refs(11, 12, 13, 14, 15),
				Query: &calypso.CommentQuery{
					Order:  "ASC",
					Page:   2,
					PostID: testPostID,
					Search: "foo",
					Status: "spam",
				},
			},
			want: Queries{
				"site": {"all?order=DESC": {1: {1, 2, 3, 4, 5}}},
				"1234": {
					"all?order=DESC":       {1: {6, 7, 8, 9, 10}},
					"spam?order=ASC&s=foo": {2: {11, 12, 13, 14, 15}},
				},
			},
		},
		{
			name: "replaces page after a new request",
			state: Queries{
				"site": {"all?order=DESC": {1: {1, 2, 3, 4, 5}}},
				"1234": {
					"all?order=DESC":       {1: {6, 7, 8, 9, 10}},
					"spam?order=ASC&s=foo": {2: {11, 12, 13, 14, 15}},
				},
			},
			action: &calypso.Action{
				Kind:     calypso.ActionKindCommentsQueryUpdate,
				SiteID:   testSiteID,
				Comments: refs(11, 12, 13, 14, 15),
				Query:    &calypso.CommentQuery{Page: 1},
			},
			want: Queries{
				"site": {"all?order=DESC": {1: {11, 12, 13, 14, 15}}},
				"1234": {
					"all?order=DESC":       {1: {6, 7, 8, 9, 10}},
					"spam?order=ASC&s=foo": {2: {11, 12, 13, 14, 15}},
				},
			},
		},
		{
			name: "drops duplicate ids keeping first occurrence",
			action: &calypso.Action{
				Kind:     calypso.ActionKindCommentsQueryUpdate,
				Comments: refs(3, 1, 3, 2, 1),
				Query:    &calypso.CommentQuery{Page: 1},
			},
			want: Queries{"site": {"all?order=DESC": {1: {3, 1, 2}}}},
		},
		{
			name:  "removes deleted comment",
			state: Queries{"site": {"all?order=DESC": {1: {1, 2, 3, 4, 5}}}},
			action: &calypso.Action{
				Kind:         calypso.ActionKindCommentsDelete,
				SiteID:       testSiteID,
				CommentID:    5,
				RefreshQuery: &calypso.CommentQuery{Page: 1, Status: "all"},
			},
			want: Queries{"site": {"all?order=DESC": {1: {1, 2, 3, 4}}}},
		},
		{
			name: "removes deleted comment from every page of the signature only",
			state: Queries{
				"site": {
					"all?order=DESC":  {1: {1, 5}, 2: {5, 6}},
					"spam?order=DESC": {1: {5}},
				},
				"1234": {"all?order=DESC": {1: {5}}},
			},
			action: &calypso.Action{
				Kind:         calypso.ActionKindCommentsDelete,
				CommentID:    5,
				RefreshQuery: &calypso.CommentQuery{Page: 1},
			},
			want: Queries{
				"site": {
					"all?order=DESC":  {1: {1}, 2: {6}},
					"spam?order=DESC": {1: {5}},
				},
				"1234": {"all?order=DESC": {1: {5}}},
			},
		},
		{
			name:  "removes comment when status leaves the filter",
			state: Queries{"site": {"spam?order=DESC": {1: {1, 2, 3, 4, 5}}}},
			action: &calypso.Action{
				Kind:         calypso.ActionKindCommentsChangeStatus,
				SiteID:       testSiteID,
				CommentID:    5,
				Status:       "approved",
				RefreshQuery: &calypso.CommentQuery{Page: 1, Status: "spam"},
			},
			want: Queries{"site": {"spam?order=DESC": {1: {1, 2, 3, 4}}}},
		},
		{
			name:  "keeps comment when status change stays in all filter",
			state: Queries{"site": {"all?order=DESC": {1: {1, 2, 3, 4, 5}}}},
			action: &calypso.Action{
				Kind:         calypso.ActionKindCommentsChangeStatus,
				SiteID:       testSiteID,
				CommentID:    5,
				Status:       "approved",
				RefreshQuery: &calypso.CommentQuery{Page: 1, Status: "all"},
			},
			want: Queries{"site": {"all?order=DESC": {1: {1, 2, 3, 4, 5}}}},
		},
		{
			name:  "removes spammed comment from all filter",
			state: Queries{"site": {"all?order=DESC": {1: {1, 2, 3}}}},
			action: &calypso.Action{
				Kind:         calypso.ActionKindCommentsChangeStatus,
				CommentID:    2,
				Status:       "spam",
				RefreshQuery: &calypso.CommentQuery{Page: 1},
			},
			want: Queries{"site": {"all?order=DESC": {1: {1, 3}}}},
		},
		{
			name:  "keeps comment when new status equals filter",
			state: Queries{"site": {"trash?order=DESC": {1: {1, 2}}}},
			action: &calypso.Action{
				Kind:         calypso.ActionKindCommentsChangeStatus,
				CommentID:    2,
				Status:       "trash",
				RefreshQuery: &calypso.CommentQuery{Page: 1, Status: "trash"},
			},
			want: Queries{"site": {"trash?order=DESC": {1: {1, 2}}}},
		},
		{
			name:  "uses post scope of refresh query",
			state: Queries{"1234": {"all?order=DESC": {1: {7, 8}}}, "site": {"all?order=DESC": {1: {8}}}},
			action: &calypso.Action{
				Kind:         calypso.ActionKindCommentsDelete,
				CommentID:    8,
				RefreshQuery: &calypso.CommentQuery{Page: 1, PostID: testPostID},
			},
			want: Queries{"1234": {"all?order=DESC": {1: {7}}}, "site": {"all?order=DESC": {1: {8}}}},
		},
		{
			name:  "delete without refresh query is ignored",
			state: Queries{"site": {"all?order=DESC": {1: {1, 2}}}},
			action: &calypso.Action{
				Kind:      calypso.ActionKindCommentsDelete,
				CommentID: 2,
			},
			want: Queries{"site": {"all?order=DESC": {1: {1, 2}}}},
		},
		{
			name:  "absent comment leaves state unchanged",
			state: Queries{"site": {"all?order=DESC": {1: {1, 2}}}},
			action: &calypso.Action{
				Kind:         calypso.ActionKindCommentsDelete,
				CommentID:    99,
				RefreshQuery: &calypso.CommentQuery{Page: 1},
			},
			want: Queries{"site": {"all?order=DESC": {1: {1, 2}}}},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			before := cloneQueries(testCase.state)
			got := ReduceQueries(testCase.state, testCase.action)
			if diff := cmp.Diff(testCase.want, got); diff != "" {
				t.Fatalf("ReduceQueries() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(before, testCase.state); diff != "" {
				t.Fatalf("input state mutated (-before +after):\n%s", diff)
			}
		})
	}
}

func TestReduceQueriesIsIdempotent(t *testing.T) {
	t.Parallel()

	cached := Queries{calypso.CommentScopeSite: {"all?order=DESC": {1: {1, 2, 3, 4, 5}}}}

	tests := []struct {
		name   string
		state  Queries
		action *calypso.Action
		want   Queries
	}{
		{
			name:  "apply query result",
			state: nil,
			action: &calypso.Action{
				Kind:     calypso.ActionKindCommentsQueryUpdate,
				Comments: refs(1, 2, 3),
				Query:    &calypso.CommentQuery{Page: 1, Status: "approved"},
			},
			want: Queries{calypso.CommentScopeSite: {"approved?order=DESC": {1: {1, 2, 3}}}},
		},
		{
			name:  "remove comment",
			state: cached,
			action: &calypso.Action{
				Kind:         calypso.ActionKindCommentsDelete,
				CommentID:    5,
				RefreshQuery: &calypso.CommentQuery{Page: 1, Status: "all"},
			},
			want: Queries{calypso.CommentScopeSite: {"all?order=DESC": {1: {1, 2, 3, 4}}}},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			once := ReduceQueries(testCase.state, testCase.action)
			if diff := cmp.Diff(testCase.want, once); diff != "" {
				t.Fatalf("first apply mismatch (-want +got):\n%s", diff)
			}
			twice := ReduceQueries(once, testCase.action)
			if diff := cmp.Diff(once, twice); diff != "" {
				t.Fatalf("second apply changed state (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestDeleteAfterQueryEndToEnd(t *testing.T) {
	t.Parallel()

	state := ReduceQueries(nil, &calypso.Action{
		Kind:     calypso.ActionKindCommentsQueryUpdate,
		Comments: refs(1, 2, 3, 4, 5),
		Query:    &calypso.CommentQuery{Page: 1},
	})
	state = ReduceQueries(state, &calypso.Action{
		Kind:         calypso.ActionKindCommentsDelete,
		CommentID:    5,
		RefreshQuery: &calypso.CommentQuery{Page: 1, Status: "all"},
	})

	ids, ok := state.Page(calypso.CommentScopeSite, "all?order=DESC", 1)
	if !ok {
		t.Fatal("page 1 missing")
	}
	if diff := cmp.Diff([]int64{1, 2, 3, 4}, ids); diff != "" {
		t.Fatalf("page mismatch (-want +got):\n%s", diff)
	}
	if _, ok := state.Page("99", "all?order=DESC", 1); ok {
		t.Fatal("missing scope must report not found")
	}
}

func cloneQueries(state Queries) Queries {
	if state == nil {
		return nil
	}

	cloned := make(Queries, len(state))
	for scope, signatures := range state {
		clonedSignatures := make(Signatures, len(signatures))
		for signature, pages := range signatures {
			clonedPages := make(Pages, len(pages))
			for page, ids := range pages {
				clonedPages[page] = append([]int64(nil), ids...)
			}
			clonedSignatures[signature] = clonedPages
		}
		cloned[scope] = clonedSignatures
	}

	return cloned
}
