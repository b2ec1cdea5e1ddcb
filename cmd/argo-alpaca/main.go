package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rxtech-lab/argo-alpaca/internal/config"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/engine"
	enginev1 "github.com/rxtech-lab/argo-alpaca/internal/trading/engine/engine_v1"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/internal/version"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to the YAML configuration `FILE`. Credentials may also come from APCA_API_KEY_ID and APCA_API_SECRET_KEY",
	Sources: cli.EnvVars("ARGO_ALPACA_CONFIG"),
}

// runAction loads the configuration, starts the engine and blocks until SIGINT or SIGTERM.
func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	if env := cmd.String("env"); env != "" {
		cfg.Environment = env
	}

	if addr := cmd.String("ops-address"); addr != "" {
		cfg.Ops.Address = addr
	}

	appLog, err := logger.NewLoggerWithConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defer func() { _ = appLog.Sync() }()

	eng, err := enginev1.NewAlpacaEngineV1(appLog)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	if err := eng.Initialize(cfg); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	onStart := engine.OnEngineStartCallback(func(status types.ConnectionStatusSnapshot) error {
		for _, s := range status.Streams {
			appLog.Info("stream ready", zap.String("stream", string(s.Stream)), zap.String("state", string(s.State)))
		}

		if sess := eng.Session(); sess != nil {
			appLog.Info("run output", zap.String("dir", sess.Dir))
		}

		return nil
	})
	onStop := engine.OnEngineStopCallback(func(err error) {
		if err != nil {
			appLog.Error("engine stopped with error", zap.Error(err))

			return
		}

		appLog.Info("engine stopped")
	})
	onError := engine.OnErrorCallback(func(err error) {
		appLog.Error("engine error", zap.Error(err))
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLog.Info("starting argo-alpaca",
		zap.String("version", version.Version),
		zap.String("environment", cfg.Environment),
	)

	return eng.Run(ctx, engine.Callbacks{
		OnEngineStart: &onStart,
		OnEngineStop:  &onStop,
		OnError:       &onError,
	})
}

func schemaAction(_ context.Context, cmd *cli.Command) error {
	schema, err := engine.GetConfigSchema()
	if err != nil {
		return err
	}

	if out := cmd.String("output"); out != "" {
		return os.WriteFile(out, []byte(schema), 0o600)
	}

	fmt.Println(schema)

	return nil
}

func validateAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	fmt.Printf("configuration ok: environment=%s market=%s trading=%s repository=%s\n",
		cfg.Environment, cfg.Streams.MarketDataURL, cfg.TradingStreamURL(), cfg.Repository.Driver)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "argo-alpaca",
		Usage:   "Stream Alpaca market data and execute orders",
		Version: version.Version,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Connect both streams and run the order executor",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "env",
						Usage: "Override the brokerage environment (paper or live)",
					},
					&cli.StringFlag{
						Name:  "ops-address",
						Usage: "Override the ops HTTP listen address, for example :9090",
					},
				},
				Action: runAction,
			},
			{
				Name:  "schema",
				Usage: "Print the JSON schema of the configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the schema to `FILE` instead of stdout",
					},
				},
				Action: schemaAction,
			},
			{
				Name:   "validate-config",
				Usage:  "Load and validate a configuration file",
				Flags:  []cli.Flag{configFlag},
				Action: validateAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
