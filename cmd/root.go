package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/zsprackett/event-reserve/internal/applog"
	"github.com/zsprackett/event-reserve/internal/config"
)

var (
	configPath string
	logLevel   string
	logStderr  bool
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "event-reserve <command> [flags]",
		Short:         "event reservation server and client",
		Long:          "Run the event reservation server, or connect to one and follow event updates.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to the JSON config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&logStderr, "stderr", true, "also write logs to stderr")

	cmd.AddCommand(newServeCmd(), newClientCmd())
	return cmd
}

// setup loads the config and starts logging for role. The returned func
// closes the log file.
func setup(role string) (config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("cmd: %w", err)
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, nil, nil, fmt.Errorf("cmd: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, closer, err := applog.Init(applog.InitConfig{
		LogDir:   cfg.LogDir,
		LogLevel: cfg.LogLevel,
		Role:     role,
		Format:   cfg.LogFormat,
		Stderr:   logStderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not init log file: %v\n", err)
		return cfg, slog.Default(), func() {}, nil
	}
	return cfg, logger, func() { closer.Close() }, nil
}
