package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openxiino/dataserver/internal/config"
	"github.com/openxiino/dataserver/internal/db"
	"github.com/openxiino/dataserver/internal/logging"
	"github.com/openxiino/dataserver/internal/pages"
	"github.com/openxiino/dataserver/internal/proxy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy",
	Long:  `Starts the DataServer listening for Xiino browser requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, warnings, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if verbose {
			cfg.Log.Level = "debug"
		}
		if err := logging.Setup(cfg.Log.Level, cfg.Log.File); err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
		log := logging.Named("server")
		for _, w := range warnings {
			log.Warn(w)
		}

		var database *db.DB
		if cfg.Cookies.DBPath != "" {
			database, err = db.Open(cfg.Cookies.DBPath)
			if err != nil {
				return fmt.Errorf("opening cookie database: %w", err)
			}
			defer database.Close()
		}

		pages.Version = Version
		srv, err := proxy.New(cfg, database)
		if err != nil {
			return fmt.Errorf("building proxy: %w", err)
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server: %w", err)
			}
		case sig := <-sigCh:
			log.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warn("shutdown incomplete", "error", err)
			}
			exitCode = 2
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
