package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Table names read and written by the gate.
const (
	TableTreatmentCases = "treatment_cases"
	TableAdminUsers     = "admin_users"
	TableUserProfiles   = "user_profiles"
)

// TreatmentCase is a before/after gallery entry. It is only visible to
// authenticated users.
type TreatmentCase struct {
	bun.BaseModel `bun:"table:treatment_cases,alias:tc"`
	ID            string     `bun:"id,pk" json:"id"`
	Title         string     `bun:"title" json:"title,omitempty"`
	Description   string     `bun:"description" json:"description,omitempty"`
	BeforeImage   string     `bun:"before_image,notnull" json:"before_image"`
	AfterImage    string     `bun:"after_image,notnull" json:"after_image"`
	CreatedBy     string     `bun:"created_by,nullzero" json:"created_by,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// AdminUser marks a user as staff. Presence of a row grants admin rights.
type AdminUser struct {
	bun.BaseModel `bun:"table:admin_users,alias:adm"`
	UserID        string     `bun:"user_id,pk" json:"user_id"`
	Email         string     `bun:"email" json:"email,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// UserProfile holds per user bookkeeping kept next to the identity.
type UserProfile struct {
	bun.BaseModel `bun:"table:user_profiles,alias:up"`
	ID            string     `bun:"id,pk" json:"id"`
	Email         string     `bun:"email" json:"email,omitempty"`
	Phone         string     `bun:"phone" json:"phone,omitempty"`
	Source        string     `bun:"source" json:"source,omitempty"`
	LastSignInAt  *time.Time `bun:"last_sign_in_at,nullzero" json:"last_sign_in_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// TreatmentCaseFromRecord maps a table row onto a TreatmentCase. Both image
// references are required.
func TreatmentCaseFromRecord(r Record) (TreatmentCase, error) {
	tc := TreatmentCase{
		ID:          recordString(r, "id"),
		Title:       recordString(r, "title"),
		Description: recordString(r, "description"),
		BeforeImage: recordString(r, "before_image"),
		AfterImage:  recordString(r, "after_image"),
		CreatedBy:   recordString(r, "created_by"),
		CreatedAt:   recordTime(r, "created_at"),
	}

	if tc.BeforeImage == "" || tc.AfterImage == "" {
		return tc, fmt.Errorf("treatment case %q: before_image and after_image are required", tc.ID)
	}

	return tc, nil
}

// TreatmentCasesFromRecords maps rows in order, skipping malformed ones. The
// skipped row errors are returned alongside.
func TreatmentCasesFromRecords(records []Record) ([]TreatmentCase, []error) {
	out := make([]TreatmentCase, 0, len(records))
	var errs []error
	for _, r := range records {
		tc, err := TreatmentCaseFromRecord(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, tc)
	}
	return out, errs
}

func recordString(r Record, key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func recordTime(r Record, key string) *time.Time {
	switch v := r[key].(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return &v
	case *time.Time:
		return v
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v); err == nil {
				return &t
			}
		}
	}
	return nil
}
