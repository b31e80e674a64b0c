package auth

import "time"

// Result is the outcome of a user initiated gate operation. Message is always
// set and already localized.
type Result struct {
	Success bool
	Kind    ErrorKind
	Message string
	Err     error
	Session Session
	User    *ProviderUser
	Case    *TreatmentCase
}

// Notice converts the result into a visitor notice.
func (r Result) Notice(now time.Time) Notice {
	kind := NoticeSuccess
	if !r.Success {
		kind = NoticeError
	}
	return NewNotice(kind, r.Message, now)
}
