package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pixrepo/internal/bootstrap"
	"pixrepo/internal/config"
)

var (
	logger = logrus.New()

	cfg      config.Config
	services *bootstrap.Services
	output   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "pixctl",
	Short:         "Manage image sources and the images stored in them",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch output {
		case formatTable, formatYAML, formatJSON:
		default:
			return fmt.Errorf("unknown output format %q", output)
		}
		if err := closeServices(); err != nil {
			return err
		}
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		bootstrap.ConfigureLogger(logger, cfg)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeServices()
	},
}

// openServices wires the service graph on first use; commands that only need
// the config never touch the database.
func openServices(ctx context.Context) (*bootstrap.Services, error) {
	if services != nil {
		return services, nil
	}
	svc, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	services = svc
	return services, nil
}

func closeServices() error {
	if services == nil {
		return nil
	}
	err := services.Close()
	services = nil
	return err
}

func Execute() {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = closeServices()
	if err != nil {
		logger.Errorf("pixctl: %v", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", formatTable, "Output format: table, yaml or json")
}
