package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

// GateStatus is what status reports.
type GateStatus struct {
	Provider string         `json:"provider"`
	State    auth.GateState `json:"state"`
	Email    string         `json:"email,omitempty"`
	Admin    bool           `json:"admin"`
	Expires  *time.Time     `json:"expires_at,omitempty"`
	Cases    *int           `json:"cases,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session gate state",
		Long: `Resolves the stored session the way the page does on load and
prints the resulting gate state. Signed in members also get a gallery count.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 15*time.Second, "timeout for provider calls")

	return cmd
}

func runStatus(cmd *cobra.Command, flags *statusConfig) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	status := collectStatus(ctx, cfg.Provider.Kind, a.gate)

	if flags.jsonOutput {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}

	if cfg.Debug {
		cmd.Println(print.MaybePrettyJSON(a.gate.Snapshot()))
	}
	cmd.Println(formatStatusTable(status))
	return nil
}

func collectStatus(ctx context.Context, kind string, gate *auth.SessionGate) GateStatus {
	status := GateStatus{Provider: kind}

	if err := gate.Start(ctx); err != nil {
		status.Error = err.Error()
	}

	snap := gate.Snapshot()
	status.State = snap.State
	status.Email = snap.Session.Email
	status.Admin = snap.Session.IsAuthenticated && snap.Session.IsAdmin
	status.Expires = snap.Session.ExpiresAt

	if snap.State.IsAuthenticated() {
		cases, err := gate.LoadGatedContent(ctx)
		if err != nil {
			status.Error = err.Error()
		} else {
			n := len(cases)
			status.Cases = &n
		}
	}

	return status
}

func formatStatusTable(s GateStatus) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "PROVIDER\t%s\n", s.Provider)
	_, _ = fmt.Fprintf(w, "STATE\t%s\n", s.State)
	if s.Email != "" {
		_, _ = fmt.Fprintf(w, "EMAIL\t%s\n", s.Email)
		_, _ = fmt.Fprintf(w, "ADMIN\t%t\n", s.Admin)
	}
	if s.Expires != nil {
		_, _ = fmt.Fprintf(w, "EXPIRES\t%s\n", s.Expires.Format(time.RFC3339))
	}
	if s.Cases != nil {
		_, _ = fmt.Fprintf(w, "CASES\t%d\n", *s.Cases)
	}
	if s.Error != "" {
		_, _ = fmt.Fprintf(w, "ERROR\t%s\n", s.Error)
	}

	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n")
}
