package calypso

import "context"

// ServiceNoticeLog is the canonical service registry key for notice reads.
const ServiceNoticeLog = "calypso.notice_log"

// NoticeStatus classifies a user-facing notice.
type NoticeStatus string

const (
	// NoticeStatusError marks failure notices.
	NoticeStatusError NoticeStatus = "is-error"
	// NoticeStatusSuccess marks success notices.
	NoticeStatusSuccess NoticeStatus = "is-success"
	// NoticeStatusInfo marks informational notices.
	NoticeStatusInfo NoticeStatus = "is-info"
)

// Notice is one user-facing message.
type Notice struct {
	ID     string       `json:"noticeId,omitempty"`
	Status NoticeStatus `json:"status,omitempty"`
	Text   string       `json:"text"`
}

// ErrorNotice builds an action that shows text as an error notice.
func ErrorNotice(text string) *Action {
	return &Action{
		Kind: ActionKindNoticeCreate,
		Notice: &Notice{
			Status: NoticeStatusError,
			Text:   text,
		},
	}
}

// NoticeLog provides read access to currently displayed notices.
type NoticeLog interface {
	// Notices returns displayed notices in creation order.
	Notices(ctx context.Context) ([]Notice, error)
}
