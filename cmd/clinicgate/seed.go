package main

import (
	"context"
	_ "embed"
	"os"
	"time"

	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-clinic-auth/provider/local"
	"github.com/goliatone/go-errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultSeedTimeout = 30 * time.Second

//go:embed fixtures/seed.yaml
var defaultFixtures []byte

// Fixtures is the seed file layout.
type Fixtures struct {
	Users []FixtureUser `yaml:"users"`
	Cases []FixtureCase `yaml:"cases"`
}

// FixtureUser is a confirmed account created by seed.
type FixtureUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Admin    bool   `yaml:"admin"`
}

// FixtureCase is a treatment case created by seed.
type FixtureCase struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	BeforeImage string     `yaml:"before_image"`
	AfterImage  string     `yaml:"after_image"`
	CreatedAt   *time.Time `yaml:"created_at"`
}

type seedConfig struct {
	file    string
	timeout time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the local provider with accounts and treatment cases",
		Long: `Creates confirmed accounts, admin grants and gallery cases in the
local provider database. Running it again skips rows that already exist.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.file, "file", "", "fixtures file, defaults to the bundled sample data")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

func runSeed(cmd *cobra.Command, flags *seedConfig) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fixtures, err := readFixtures(flags.file)
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

	if a.local == nil {
		return errors.New("seed requires the local provider", errors.CategoryBadInput).
			WithTextCode("SEED_PROVIDER_UNSUPPORTED")
	}

	stats, err := seed(ctx, a.local, fixtures)
	if err != nil {
		return err
	}

	cmd.Printf("users: %d created, %d existing, %d admins\n", stats.usersCreated, stats.usersExisting, stats.admins)
	cmd.Printf("cases: %d created, %d existing\n", stats.casesCreated, stats.casesExisting)
	return nil
}

func readFixtures(path string) (*Fixtures, error) {
	raw := defaultFixtures
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "read fixtures file").
				WithMetadata(map[string]any{"path": path})
		}
		raw = data
	}

	var f Fixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "parse fixtures").
			WithTextCode("SEED_FIXTURES_INVALID")
	}
	return &f, nil
}

type seedStats struct {
	usersCreated  int
	usersExisting int
	admins        int
	casesCreated  int
	casesExisting int
}

func seed(ctx context.Context, p *local.Provider, f *Fixtures) (seedStats, error) {
	var stats seedStats

	for _, u := range f.Users {
		_, err := p.CreateUser(ctx, u.Email, u.Password, true)
		switch {
		case err == nil:
			stats.usersCreated++
		case auth.ClassifyError(err) == auth.KindAlreadyRegistered:
			stats.usersExisting++
		default:
			return stats, errors.Wrap(err, errors.CategoryOperation, "seed user").
				WithMetadata(map[string]any{"email": u.Email})
		}

		if u.Admin {
			if err := p.GrantAdmin(ctx, u.Email); err != nil {
				return stats, err
			}
			stats.admins++
		}
	}

	for _, c := range f.Cases {
		if c.ID != "" {
			exists, err := p.DB().NewSelect().
				Model((*auth.TreatmentCase)(nil)).
				Where("id = ?", c.ID).
				Exists(ctx)
			if err != nil {
				return stats, errors.Wrap(err, errors.CategoryInternal, "check treatment case")
			}
			if exists {
				stats.casesExisting++
				continue
			}
		}

		_, err := p.AddTreatmentCase(ctx, auth.TreatmentCase{
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			BeforeImage: c.BeforeImage,
			AfterImage:  c.AfterImage,
			CreatedAt:   c.CreatedAt,
		})
		if err != nil {
			return stats, errors.Wrap(err, errors.CategoryOperation, "seed treatment case").
				WithMetadata(map[string]any{"title": c.Title})
		}
		stats.casesCreated++
	}

	return stats, nil
}
