package core

import (
	"sync"
	"time"
)

// NoticeSeverity grades a notice.
type NoticeSeverity string

// Notice severities.
const (
	NoticeInfo    NoticeSeverity = "info"
	NoticeWarning NoticeSeverity = "warning"
	NoticeError   NoticeSeverity = "error"
)

// Notice is a non-blocking message about a background outcome, such as a
// failed backend call.
type Notice struct {
	Severity   NoticeSeverity `json:"severity"`
	Operation  string         `json:"operation"`
	MutationID string         `json:"mutation_id,omitempty"`
	Message    string         `json:"message"`
	At         time.Time      `json:"at"`
}

// noticeList keeps the most recent notices up to a fixed capacity.
type noticeList struct {
	mu    sync.Mutex
	cap   int
	items []Notice
}

func newNoticeList(capacity int) *noticeList {
	if capacity <= 0 {
		capacity = 50
	}
	return &noticeList{cap: capacity}
}

func (l *noticeList) add(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, n)
	if over := len(l.items) - l.cap; over > 0 {
		l.items = append([]Notice(nil), l.items[over:]...)
	}
}

// list returns notices newest first.
func (l *noticeList) list() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Notice, 0, len(l.items))
	for i := len(l.items) - 1; i >= 0; i-- {
		out = append(out, l.items[i])
	}
	return out
}
