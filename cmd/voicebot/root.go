package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/voicecore/gateway/internal/config"
	"github.com/voicecore/gateway/pkg/logging"
)

type rootState struct {
	cfg    *config.Config
	logger *slog.Logger

	logLevel string
	logJSON  bool
}

func newRootCmd() *cobra.Command {
	state := &rootState{}

	root := &cobra.Command{
		Use:   "voicebot",
		Short: "Voice client core CLI harness",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			state.cfg = cfg
			state.logger = logging.New(logging.Options{Level: state.logLevel, JSON: state.logJSON})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&state.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&state.logJSON, "log-json", false, "emit logs as JSON")

	root.AddCommand(newConfigCmd(state))
	root.AddCommand(newConnectCmd(state))

	return root
}
