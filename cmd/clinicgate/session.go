package main

import (
	"context"
	"os"
	"time"

	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

// passwordEnv is read when --password is not given.
const passwordEnv = "CLINIC_PASSWORD"

type signInConfig struct {
	email    string
	password string
	timeout  time.Duration
}

// NewSignInCmd creates the signin subcommand.
func NewSignInCmd() *cobra.Command {
	cfg := &signInConfig{}

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in through the session gate",
		Long: `Signs in with email and password and prints the localized outcome.
With the rest provider and rest.session_file set, the session is kept for
later status and signout runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSignIn(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.email, "email", "", "account email")
	cmd.Flags().StringVar(&cfg.password, "password", "", "account password, defaults to $"+passwordEnv)
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 15*time.Second, "timeout for provider calls")

	return cmd
}

func runSignIn(cmd *cobra.Command, flags *signInConfig) error {
	password := flags.password
	if password == "" {
		password = os.Getenv(passwordEnv)
	}

	return withGate(cmd, flags.timeout, func(ctx context.Context, a *app) error {
		res := a.gate.SignIn(ctx, flags.email, password)
		return report(cmd, a, res)
	})
}

type signOutConfig struct {
	timeout time.Duration
}

// NewSignOutCmd creates the signout subcommand.
func NewSignOutCmd() *cobra.Command {
	cfg := &signOutConfig{}

	cmd := &cobra.Command{
		Use:   "signout",
		Short: "Sign out the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGate(cmd, cfg.timeout, func(ctx context.Context, a *app) error {
				return report(cmd, a, a.gate.SignOut(ctx))
			})
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 15*time.Second, "timeout for provider calls")

	return cmd
}

func withGate(cmd *cobra.Command, timeout time.Duration, fn func(context.Context, *app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.gate.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

func report(cmd *cobra.Command, a *app, res auth.Result) error {
	cmd.Println(res.Message)
	cmd.Printf("state: %s\n", a.gate.State())

	if a.cfg.Debug {
		cmd.Println(print.MaybePrettyJSON(res))
	}

	if !res.Success {
		return errors.New(res.Message, errors.CategoryAuth).
			WithTextCode(string(res.Kind))
	}
	return nil
}
