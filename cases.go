package auth

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Message keys for saving treatment cases.
const (
	KeyCaseSaved   = "auth.case.saved"
	KeyCaseFailure = "auth.case.failure"
	KeyCaseImages  = "auth.validation.case_images"
)

// TreatmentCaseInput is a new gallery entry submitted by a signed in user.
type TreatmentCaseInput struct {
	BeforeImage string `json:"before_image" form:"before_image"`
	AfterImage  string `json:"after_image" form:"after_image"`
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
}

// Validate requires both image references.
func (in TreatmentCaseInput) Validate() error {
	err := validation.Errors{
		"before_image": validation.Validate(strings.TrimSpace(in.BeforeImage), validation.Required),
		"after_image":  validation.Validate(strings.TrimSpace(in.AfterImage), validation.Required),
	}.Filter()
	if err == nil {
		return nil
	}
	return &ValidationError{
		Key:    KeyCaseImages,
		Fields: FormatValidationErrorToMap(err),
		msg:    "before_image and after_image are required",
	}
}

func (in TreatmentCaseInput) record(createdBy string) Record {
	return Record{
		"before_image": strings.TrimSpace(in.BeforeImage),
		"after_image":  strings.TrimSpace(in.AfterImage),
		"title":        strings.TrimSpace(in.Title),
		"description":  strings.TrimSpace(in.Description),
		"created_by":   createdBy,
	}
}

// SaveTreatmentCase stores a new treatment case credited to the current
// user. Without a session it fails with ErrNotAuthenticated and nothing is
// written. The provider decides who may insert; a refusal is reported as a
// save failure.
func (g *SessionGate) SaveTreatmentCase(ctx context.Context, in TreatmentCaseInput) Result {
	ctx, span := g.startSpan(ctx, OpSaveCase)
	defer span.End()

	session := g.Session()

	if err := g.ensureOpen(); err != nil {
		return g.fail(ctx, OpSaveCase, ActivityEventCaseSaveFailure, err, session)
	}
	if !session.IsAuthenticated || session.UserID == "" {
		return g.fail(ctx, OpSaveCase, ActivityEventCaseSaveFailure, ErrNotAuthenticated, session)
	}
	if err := in.Validate(); err != nil {
		return g.fail(ctx, OpSaveCase, ActivityEventCaseSaveFailure, err, session)
	}

	record := in.record(session.UserID)

	var saved Record
	err := g.call(ctx, OpSaveCase, func(ctx context.Context) error {
		var err error
		saved, err = g.provider.InsertRecord(ctx, g.tables.Cases, record)
		return err
	})
	if err != nil {
		msg := g.messages.Text(KeyCaseFailure)
		if IsExpiredSessionError(err) {
			msg = g.messages.ErrorMessage(err)
			g.expire(ctx, session, OpSaveCase)
		}
		return g.failWith(ctx, OpSaveCase, ActivityEventCaseSaveFailure, err, session, msg)
	}

	if len(saved) == 0 {
		saved = record
	}
	tc, err := TreatmentCaseFromRecord(saved)
	if err != nil {
		g.logger.Warn("saved treatment case is malformed", "error", err)
	}

	g.mu.Lock()
	if g.gallery.Loaded && g.snapshot.Session.UserID == session.UserID {
		g.gallery.Cases = append([]TreatmentCase{tc}, g.gallery.Cases...)
	}
	g.mu.Unlock()

	res := Result{
		Success: true,
		Message: g.messages.Text(KeyCaseSaved),
		Session: g.Session(),
		Case:    &tc,
	}
	g.record(ctx, ActivityEventCaseSaved, session, map[string]any{"case_id": tc.ID})
	g.notify(ctx, res)

	return res
}
