package main

import (
	"github.com/goliatone/go-clinic-auth/config"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configFile string
	envFiles   []string
}

var globals = &globalFlags{}

// flagKeys maps persistent flag names to configuration keys.
var flagKeys = map[string]string{
	"locale":   "locale",
	"origin":   "origin",
	"provider": "provider.kind",
	"debug":    "debug",
	"addr":     "server.addr",
}

// NewRootCmd creates the root command for the clinicgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinicgate",
		Short: "Clinic member gate",
		Long: `clinicgate serves the treatment case gallery behind the member
session gate and offers operator commands to seed and inspect it.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&globals.configFile, "config", "", "config file path")
	flags.StringSliceVar(&globals.envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	flags.String("locale", "", "message locale (ko-KR, en-US)")
	flags.String("origin", "", "public origin used in email links")
	flags.String("provider", "", "backend provider (rest, local)")
	flags.Bool("debug", false, "verbose logging and result dumps")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewSignInCmd())
	cmd.AddCommand(NewSignOutCmd())

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.Options{
		Path:     globals.configFile,
		Flags:    cmd.Flags(),
		FlagKeys: flagKeys,
		DotEnv:   globals.envFiles,
	})
}
