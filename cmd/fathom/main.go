package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/component/weather"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/connector/csvlog"
	"github.com/fathom-io/fathom/pkg/connector/sqldb"
	"github.com/fathom-io/fathom/pkg/data"
	"github.com/fathom-io/fathom/pkg/logger"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "fathom",
		Short: "Fathom - Channel-based data acquisition runtime",
		Long: `Fathom acquires, buffers and persists time-stamped channel values across
heterogeneous connectors. Channels are declared in YAML configuration and
bound to the connectors that read, write and log them.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Fathom v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connector and component types",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager()
			if err != nil {
				return err
			}
			fmt.Println("Available connector types:")
			for _, name := range m.Connectors().Registry().Types() {
				fmt.Printf("  - %s\n", name)
			}
			fmt.Println("\nAvailable component types:")
			for _, name := range m.Components().Registry().Types() {
				fmt.Printf("  - %s\n", name)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cfg, err := configure(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d connectors, %d components, %d channels\n",
				cfg.Name(), m.Connectors().Len(), m.Components().Len(), m.Len())
			return nil
		},
	})

	var interval time.Duration
	var metricsAddress string
	runCmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Run the acquisition loop",
		Long: `Run the acquisition loop with the given configuration. Connectors are
connected, components activated, and channel values are read and logged on
every interval until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], interval, metricsAddress)
		},
	}
	runCmd.Flags().DurationVar(&interval, "interval", time.Minute, "Read and log interval")
	runCmd.Flags().StringVar(&metricsAddress, "metrics-address", "", "Address to serve prometheus metrics on (e.g. :9090)")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newManager creates a manager with all built-in connector and component
// types registered.
func newManager() (*data.Manager, error) {
	m := data.NewManager()
	if err := sqldb.Register(m.Connectors()); err != nil {
		return nil, err
	}
	if err := csvlog.Register(m.Connectors()); err != nil {
		return nil, err
	}
	if err := weather.Register(m.Components()); err != nil {
		return nil, err
	}
	return m, nil
}

// configure loads the configuration file, initializes logging and builds a
// fully configured manager from it.
func configure(path string) (*data.Manager, *config.Section, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	logging := cfg.SectionOr("logging")
	if err := logger.Init(logger.Config{
		Level:       logging.StringOr("level", "info"),
		Development: logging.BoolOr("development", false),
		Encoding:    logging.StringOr("encoding", "console"),
	}); err != nil {
		return nil, nil, err
	}

	m, err := newManager()
	if err != nil {
		return nil, nil, err
	}
	if err := m.Configure(cfg); err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}

func run(path string, interval time.Duration, metricsAddress string) error {
	m, _, err := configure(path)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.With(zap.String("context", "main"))

	if metricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddress, mux); err != nil {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Activate(ctx)
	defer m.Deactivate(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("running", zap.Duration("interval", interval))
	for {
		select {
		case <-ticker.C:
			m.Reconnect(ctx)
			m.ReadAll(ctx)
			m.Log(ctx)
		case sig := <-signals:
			log.Info("shutting down", zap.String("signal", sig.String()))
			return nil
		}
	}
}
