package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/plotbeam/renderauth/cmd/renderauth/commands"
	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/logging"
	"github.com/plotbeam/renderauth/pkg/verifier"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes. Callers distinguish rejection from infrastructure failure to
// decide whether a retry makes sense.
const (
	exitOK             = 0
	exitError          = 1
	exitRejected       = 2
	exitRateLimited    = 3
	exitInfrastructure = 4
)

func main() {
	// Wipe all memguard-protected buffers on the way out.
	defer memguard.Purge()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		memguard.Purge()
		os.Exit(exitCode(err))
	}
}

func run() error {
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "renderauth",
		Short: "Credential verification for the rendering API",
		Long: `renderauth decides whether a client credential may reach the rendering
pipeline: an in-process cache in front of the credential backing store, or
delegation to an external authorization service, selected by configuration.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "renderauth.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewVerifyCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewServeCommand(cfg),
	)

	return rootCmd.Execute()
}

// exitCode maps error classes to process exit codes
func exitCode(err error) int {
	switch {
	case verifier.IsRateLimited(err):
		return exitRateLimited
	case verifier.IsCredentialRejection(err):
		return exitRejected
	case verifier.IsInfrastructure(err):
		return exitInfrastructure
	default:
		return exitError
	}
}
