package jetpackconnect

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"ex-calypso/pkg/calypso"
	"ex-calypso/pkg/jetpack"
)

const testURL = "http://example.com"

func TestReduce(t *testing.T) {
	t.Parallel()

	probe := jetpack.SiteProbe{Exists: jetpack.True, HasJetpack: jetpack.False}
	fetched := Sites{testURL: {
		URL:                    testURL,
		IsFetched:              true,
		IsDismissed:            true,
		InstallConfirmedByUser: jetpack.True,
		Probe:                  &probe,
	}}

	tests := []struct {
		name   string
		state  Sites
		action *calypso.Action
		want   Sites
	}{
		{
			name:   "check url starts a fresh fetching record",
			state:  fetched,
			action: CheckURL(" Example.com/ ", false),
			want:   Sites{testURL: {URL: testURL, IsFetching: true}},
		},
		{
			name:   "check url on empty state",
			action: CheckURL(testURL, false),
			want:   Sites{testURL: {URL: testURL, IsFetching: true}},
		},
		{
			name:   "receive stores the probe",
			state:  Sites{testURL: {URL: testURL, IsFetching: true}},
			action: ReceiveProbe(testURL, &probe, false, ""),
			want:   Sites{testURL: {URL: testURL, IsFetched: true, Probe: &probe}},
		},
		{
			name:   "receive keeps error text",
			state:  Sites{testURL: {URL: testURL, IsFetching: true}},
			action: ReceiveProbe(testURL, nil, false, "boom"),
			want:   Sites{testURL: {URL: testURL, IsFetched: true, Error: "boom"}},
		},
		{
			name:   "receive marks requester sites",
			state:  Sites{testURL: {URL: testURL, IsFetching: true}},
			action: ReceiveProbe(testURL, &probe, true, ""),
			want:   Sites{testURL: {URL: testURL, IsFetched: true, Probe: &probe, FromRequesterSites: true}},
		},
		{
			name:   "receive for unknown url is ignored",
			state:  Sites{testURL: {URL: testURL, IsFetching: true}},
			action: ReceiveProbe("http://other.example", &probe, false, ""),
			want:   Sites{testURL: {URL: testURL, IsFetching: true}},
		},
		{
			name:   "confirm install false",
			state:  Sites{testURL: {URL: testURL, IsFetched: true}},
			action: ConfirmInstall(testURL, false),
			want:   Sites{testURL: {URL: testURL, IsFetched: true, InstallConfirmedByUser: jetpack.False}},
		},
		{
			name:   "dismiss url",
			state:  Sites{testURL: {URL: testURL, IsFetched: true}},
			action: DismissURL(testURL),
			want:   Sites{testURL: {URL: testURL, IsFetched: true, IsDismissed: true}},
		},
		{
			name:  "confirm install with uncleaned url",
			state: Sites{testURL: {URL: testURL, IsFetched: true}},
			action: &calypso.Action{
				Kind:    calypso.ActionKindConnectConfirmStatus,
				Connect: &calypso.ConnectPayload{URL: "Example.com/", InstallConfirmed: ptr(false)},
			},
			want: Sites{testURL: {URL: testURL, IsFetched: true, InstallConfirmedByUser: jetpack.False}},
		},
		{
			name:  "dismiss with uncleaned url",
			state: Sites{testURL: {URL: testURL, IsFetched: true}},
			action: &calypso.Action{
				Kind:    calypso.ActionKindConnectDismissURL,
				Connect: &calypso.ConnectPayload{URL: " HTTP://Example.com// "},
			},
			want: Sites{testURL: {URL: testURL, IsFetched: true, IsDismissed: true}},
		},
		{
			name:  "raw check url is stored under the cleaned url",
			state: nil,
			action: &calypso.Action{
				Kind:    calypso.ActionKindConnectCheckURL,
				Connect: &calypso.ConnectPayload{URL: "Example.com/"},
			},
			want: Sites{testURL: {URL: testURL, IsFetching: true}},
		},
		{
			name:   "unrelated action keeps state",
			state:  Sites{testURL: {URL: testURL}},
			action: &calypso.Action{Kind: calypso.ActionKindNoticeCreate},
			want:   Sites{testURL: {URL: testURL}},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := Reduce(testCase.state, testCase.action)
			if diff := cmp.Diff(testCase.want, got); diff != "" {
				t.Fatalf("Reduce() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	state := Sites{testURL: {URL: testURL, IsFetching: true}}
	next := Reduce(state, DismissURL(testURL))

	if state[testURL].IsDismissed {
		t.Fatal("Reduce mutated its input")
	}
	if !next[testURL].IsDismissed {
		t.Fatal("Reduce did not dismiss the record")
	}
}

func ptr[T any](value T) *T {
	return &value
}
