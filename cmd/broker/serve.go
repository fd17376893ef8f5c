package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/baca2/kolejka-broker/internal/config"
	"github.com/baca2/kolejka-broker/internal/echofx"
	"github.com/baca2/kolejka-broker/internal/fxapp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker's HTTP ingress and janitor",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	serveCmd.Flags().String("host", "localhost", "host to listen on")
	cobra.CheckErr(viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host")))

	serveCmd.Flags().Uint("port", 8080, "port to listen on")
	cobra.CheckErr(viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port")))
}

func serve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	rawCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	appCfg, err := rawCfg.ToApp()
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	fxApp := fx.New(
		fx.RecoverFromPanics(),
		fx.WithLogger(func() fxevent.Logger {
			el := &fxevent.ZapLogger{Logger: log.Desugar()}
			el.UseLogLevel(zapcore.DebugLevel)
			return el
		}),
		fx.Supply(appCfg),
		fxapp.Module,
		echofx.Module,
	)

	if err := fxApp.Err(); err != nil {
		return fmt.Errorf("initializing broker: %w", err)
	}
	if err := fxApp.Start(ctx); err != nil {
		return fmt.Errorf("starting broker: %w", err)
	}

	log.Infof("kolejka-broker listening on %s:%d", appCfg.Server.Host, appCfg.Server.Port)

	<-ctx.Done()
	log.Info("received shutdown signal, beginning graceful shutdown")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("stopping broker: shutdown exceeded grace period: %w", err)
		}
		return fmt.Errorf("stopping broker: %w", err)
	}
	return nil
}
