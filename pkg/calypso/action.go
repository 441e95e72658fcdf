package calypso

import (
	"encoding/json"
	"fmt"
	"time"

	"ex-calypso/pkg/jetpack"
)

// ActionKind identifies a neutral store action type.
type ActionKind string

const (
	// ActionKindCommentsQueryUpdate is emitted when a comment list page arrives from the API.
	ActionKindCommentsQueryUpdate ActionKind = "comments.query_update"
	// ActionKindCommentsListRequest is emitted when a fresh comment list view is requested.
	ActionKindCommentsListRequest ActionKind = "comments.list_request"
	// ActionKindCommentsChangeStatus is emitted when a comment moderation status changes.
	ActionKindCommentsChangeStatus ActionKind = "comments.change_status"
	// ActionKindCommentsDelete is emitted when a comment is permanently deleted.
	ActionKindCommentsDelete ActionKind = "comments.delete"

	// ActionKindConnectCheckURL starts a site probe for one connect URL.
	ActionKindConnectCheckURL ActionKind = "jetpack_connect.check_url"
	// ActionKindConnectCheckURLReceive carries a finished site probe.
	ActionKindConnectCheckURLReceive ActionKind = "jetpack_connect.check_url_receive"
	// ActionKindConnectConfirmStatus records the user's manual install confirmation.
	ActionKindConnectConfirmStatus ActionKind = "jetpack_connect.confirm_status"
	// ActionKindConnectDismissURL hides the notice shown for one connect URL.
	ActionKindConnectDismissURL ActionKind = "jetpack_connect.dismiss_url"

	// ActionKindOnboardingCredentialsReceive stores per-site onboarding credentials.
	ActionKindOnboardingCredentialsReceive ActionKind = "jetpack_onboarding.credentials_receive"
	// ActionKindOnboardingSettingsRequest asks the data layer to fetch onboarding settings.
	ActionKindOnboardingSettingsRequest ActionKind = "jetpack_onboarding.settings_request"
	// ActionKindOnboardingSettingsReceive merges fetched onboarding settings.
	ActionKindOnboardingSettingsReceive ActionKind = "jetpack_onboarding.settings_receive"
	// ActionKindOnboardingSettingsSave merges and persists onboarding settings.
	ActionKindOnboardingSettingsSave ActionKind = "jetpack_onboarding.settings_save"

	// ActionKindNoticeCreate appends a user-facing notice.
	ActionKindNoticeCreate ActionKind = "notice.create"
	// ActionKindNoticeRemove removes a user-facing notice by id.
	ActionKindNoticeRemove ActionKind = "notice.remove"
)

// Action is the neutral envelope that drivers dispatch, reducers fold, and
// data-layer handlers react to.
//
// Payload fields are optional branches selected by Kind.
type Action struct {
	// ID is assigned by the kernel when the dispatcher leaves it empty.
	ID string `json:"id,omitempty"`
	// Kind selects which payload branch is expected.
	Kind ActionKind `json:"type"`
	// DispatchedAt is assigned by the kernel when the dispatcher leaves it zero.
	DispatchedAt time.Time `json:"dispatchedAt,omitzero"`
	// SiteID identifies the site the action applies to.
	SiteID int64 `json:"siteId,omitempty"`
	// PostID optionally narrows the action to one post.
	PostID int64 `json:"postId,omitempty"`
	// Comments carries an ordered comment page for query updates.
	Comments []CommentRef `json:"comments,omitempty"`
	// Query describes the comment list filter a page belongs to.
	Query *CommentQuery `json:"query,omitempty"`
	// CommentID identifies the comment affected by a mutation.
	CommentID int64 `json:"commentId,omitempty"`
	// Status is the new moderation status for status changes.
	Status string `json:"status,omitempty"`
	// RefreshQuery is the list filter currently displayed when a mutation happens.
	RefreshQuery *CommentQuery `json:"refreshCommentListQuery,omitempty"`
	// Connect carries Jetpack connect flow payloads.
	Connect *ConnectPayload `json:"connect,omitempty"`
	// Onboarding carries Jetpack onboarding payloads.
	Onboarding *OnboardingPayload `json:"onboarding,omitempty"`
	// Notice carries user-facing notice payloads.
	Notice *Notice `json:"notice,omitempty"`
	// Meta carries data-layer bookkeeping flags.
	Meta *ActionMeta `json:"meta,omitempty"`
}

// CommentRef identifies one comment in a list page.
type CommentRef struct {
	ID int64 `json:"ID"`
}

// ConnectPayload carries Jetpack connect URL checks and their results.
type ConnectPayload struct {
	// URL is the cleaned site URL being connected.
	URL string `json:"url"`
	// IsURLOnSites reports whether the URL already belongs to the requester's site list.
	IsURLOnSites bool `json:"isUrlOnSites,omitempty"`
	// Probe is the remote site-info result for receive actions.
	Probe *jetpack.SiteProbe `json:"data,omitempty"`
	// FromRequesterSites marks probes synthesized from the requester's site list.
	FromRequesterSites bool `json:"fromRequesterSites,omitempty"`
	// InstallConfirmed records the user's manual install answer.
	InstallConfirmed *bool `json:"installConfirmed,omitempty"`
	// Error carries the probe failure text when the site-info request failed.
	Error string `json:"error,omitempty"`
}

// OnboardingPayload carries Jetpack onboarding credentials and settings.
type OnboardingPayload struct {
	// Credentials are the per-site onboarding secrets.
	Credentials *OnboardingCredentials `json:"credentials,omitempty"`
	// Settings is a partial onboarding settings document.
	Settings map[string]any `json:"settings,omitempty"`
}

// OnboardingCredentials authorize onboarding calls against a freshly connected site.
type OnboardingCredentials struct {
	Token     string `json:"token"`
	SiteURL   string `json:"siteUrl"`
	UserEmail string `json:"userEmail"`
}

// ActionMeta carries non-payload bookkeeping.
type ActionMeta struct {
	DataLayer DataLayerMeta `json:"dataLayer"`
}

// DataLayerMeta controls request tracking in the data layer.
type DataLayerMeta struct {
	// TrackRequest opts a mutating action into pending-request tracking.
	TrackRequest bool `json:"trackRequest,omitempty"`
	// RequestKey overrides the derived request key.
	RequestKey string `json:"requestKey,omitempty"`
}

// TracksRequest reports whether the action opted into request tracking.
func (a *Action) TracksRequest() bool {
	return a != nil && a.Meta != nil && a.Meta.DataLayer.TrackRequest
}

// RequestKey returns the stable tracking key for one action.
//
// An explicit meta request key wins. Otherwise the key is the JSON encoding of
// the action without meta and kernel-assigned identity, which is deterministic
// because struct fields encode in declaration order and maps in sorted order.
func RequestKey(action *Action) string {
	if action == nil {
		return ""
	}
	if action.Meta != nil && action.Meta.DataLayer.RequestKey != "" {
		return action.Meta.DataLayer.RequestKey
	}

	keyed := *action
	keyed.ID = ""
	keyed.DispatchedAt = time.Time{}
	keyed.Meta = nil

	encoded, err := json.Marshal(keyed)
	if err != nil {
		return fmt.Sprintf("%s:%d:%d", action.Kind, action.SiteID, action.CommentID)
	}

	return string(encoded)
}

// Validate checks action envelope and payload coherence.
func (a *Action) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil action", ErrInvalidAction)
	}
	if a.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidAction)
	}
	if a.Kind == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidAction)
	}
	if a.DispatchedAt.IsZero() {
		return fmt.Errorf("%w: missing dispatched_at", ErrInvalidAction)
	}

	return validatePayloadByKind(a)
}

// validatePayloadByKind enforces payload branch requirements for each action kind.
func validatePayloadByKind(a *Action) error {
	switch a.Kind {
	case ActionKindCommentsQueryUpdate:
		if a.Query == nil {
			return fmt.Errorf("%w: comments.query_update requires query", ErrInvalidAction)
		}
		if a.Query.Page < 1 {
			return fmt.Errorf("%w: comments.query_update requires page >= 1", ErrInvalidAction)
		}
	case ActionKindCommentsListRequest:
	case ActionKindCommentsChangeStatus:
		if a.CommentID == 0 {
			return fmt.Errorf("%w: comments.change_status requires comment id", ErrInvalidAction)
		}
		if a.Status == "" {
			return fmt.Errorf("%w: comments.change_status requires status", ErrInvalidAction)
		}
	case ActionKindCommentsDelete:
		if a.CommentID == 0 {
			return fmt.Errorf("%w: comments.delete requires comment id", ErrInvalidAction)
		}
	case ActionKindConnectCheckURL, ActionKindConnectCheckURLReceive, ActionKindConnectDismissURL:
		if a.Connect == nil || a.Connect.URL == "" {
			return fmt.Errorf("%w: %s requires connect url", ErrInvalidAction, a.Kind)
		}
	case ActionKindConnectConfirmStatus:
		if a.Connect == nil || a.Connect.URL == "" {
			return fmt.Errorf("%w: %s requires connect url", ErrInvalidAction, a.Kind)
		}
		if a.Connect.InstallConfirmed == nil {
			return fmt.Errorf("%w: %s requires install confirmation", ErrInvalidAction, a.Kind)
		}
	case ActionKindOnboardingCredentialsReceive:
		if a.SiteID == 0 {
			return fmt.Errorf("%w: %s requires site id", ErrInvalidAction, a.Kind)
		}
		if a.Onboarding == nil || a.Onboarding.Credentials == nil {
			return fmt.Errorf("%w: %s requires credentials", ErrInvalidAction, a.Kind)
		}
	case ActionKindOnboardingSettingsRequest:
		if a.SiteID == 0 {
			return fmt.Errorf("%w: %s requires site id", ErrInvalidAction, a.Kind)
		}
	case ActionKindOnboardingSettingsReceive, ActionKindOnboardingSettingsSave:
		if a.SiteID == 0 {
			return fmt.Errorf("%w: %s requires site id", ErrInvalidAction, a.Kind)
		}
		if a.Onboarding == nil || a.Onboarding.Settings == nil {
			return fmt.Errorf("%w: %s requires settings", ErrInvalidAction, a.Kind)
		}
	case ActionKindNoticeCreate:
		if a.Notice == nil || a.Notice.Text == "" {
			return fmt.Errorf("%w: notice.create requires notice text", ErrInvalidAction)
		}
	case ActionKindNoticeRemove:
		if a.Notice == nil || a.Notice.ID == "" {
			return fmt.Errorf("%w: notice.remove requires notice id", ErrInvalidAction)
		}
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidAction, a.Kind)
	}

	return nil
}
