package web

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-clinic-auth"
)

// NoticeBoard keeps the most recent visitor notice. It is registered as the
// gate notifier so every operation outcome lands here.
type NoticeBoard struct {
	mu     sync.RWMutex
	notice *auth.Notice
	now    func() time.Time
}

// NewNoticeBoard returns an empty board using clock for expiry checks.
func NewNoticeBoard(clock func() time.Time) *NoticeBoard {
	if clock == nil {
		clock = time.Now
	}
	return &NoticeBoard{now: clock}
}

// Notify implements auth.Notifier.
func (b *NoticeBoard) Notify(_ context.Context, notice auth.Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notice = &notice
}

// Post records a notice that did not come from a gate operation.
func (b *NoticeBoard) Post(kind auth.NoticeKind, message string) auth.Notice {
	n := auth.NewNotice(kind, message, b.now())
	b.Notify(context.Background(), n)
	return n
}

// Current returns the latest notice while it has not expired.
func (b *NoticeBoard) Current() *auth.Notice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.notice == nil || b.notice.Expired(b.now()) {
		return nil
	}
	n := *b.notice
	return &n
}
