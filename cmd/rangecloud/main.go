package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Range-Software/range-cloud/pkg/catalog"
	"github.com/Range-Software/range-cloud/pkg/config"
	"github.com/Range-Software/range-cloud/pkg/directory"
	"github.com/Range-Software/range-cloud/pkg/dispatcher"
	"github.com/Range-Software/range-cloud/pkg/filestore"
	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/mailer"
	"github.com/Range-Software/range-cloud/pkg/metrics"
	"github.com/Range-Software/range-cloud/pkg/process"
	"github.com/Range-Software/range-cloud/pkg/report"
	"github.com/Range-Software/range-cloud/pkg/security"
	"github.com/Range-Software/range-cloud/pkg/server"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rangecloud",
	Short: "Range Cloud - multi-tenant file, user and process service",
	Long: `Range Cloud is a small multi-tenant cloud service exposing an
authenticated action API over dual TLS endpoints, backed by a local file
store, a user/group/token directory, a process catalog and a report
archive.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Range Cloud version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	_ = log.Init(log.Config{
		Level: logLevel,
		JSON:  logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cloud server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cloudDir, _ := cmd.Flags().GetString("cloud-dir")

		cfg, err := config.Load(cloudDir)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)

		if printSettings, _ := cmd.Flags().GetBool("print-settings"); printSettings {
			data, err := cfg.Document()
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}
		if err := cfg.Store(); err != nil {
			return err
		}
		if storeSettings, _ := cmd.Flags().GetBool("store-settings"); storeSettings {
			return nil
		}

		// Reinitialize logging now that the cloud directory layout exists,
		// adding the server log file next to the console output.
		logLevel, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")
		if err := log.Init(log.Config{
			Level: logLevel,
			JSON:  logJSON,
			File:  cfg.LogFile(),
		}); err != nil {
			return err
		}

		return runServer(cfg)
	},
}

func init() {
	serveCmd.Flags().String("cloud-dir", config.DefaultCloudDirectory(), "Path to the cloud data directory")
	serveCmd.Flags().String("ca-dir", "", "Path to the Range CA directory")
	serveCmd.Flags().Int("public-port", config.DefaultPublicPort, "Public HTTP server port")
	serveCmd.Flags().Int("private-port", config.DefaultPrivatePort, "Private HTTP server port")
	serveCmd.Flags().String("public-key", "", "Host public key in PEM format")
	serveCmd.Flags().String("private-key", "", "Host private key in PEM format")
	serveCmd.Flags().String("private-key-password", "", "Password to host private key")
	serveCmd.Flags().String("ca-public-key", "", "Client or CA public key in PEM format")
	serveCmd.Flags().String("file-store", "", "Path to the file store directory")
	serveCmd.Flags().Int64("file-store-max-size", config.DefaultMaxStoreSize, "Maximum file store size")
	serveCmd.Flags().Int64("file-store-max-file-size", config.DefaultMaxFileSize, "Maximum file size in file store")
	serveCmd.Flags().Bool("print-settings", false, "Print settings and exit")
	serveCmd.Flags().Bool("store-settings", false, "Store settings and exit")
}

// applyFlags overlays explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("ca-dir") {
		cfg.CaDirectory, _ = cmd.Flags().GetString("ca-dir")
	}
	if cmd.Flags().Changed("public-port") {
		cfg.PublicPort, _ = cmd.Flags().GetInt("public-port")
	}
	if cmd.Flags().Changed("private-port") {
		cfg.PrivatePort, _ = cmd.Flags().GetInt("private-port")
	}
	if cmd.Flags().Changed("public-key") {
		cfg.PublicKey, _ = cmd.Flags().GetString("public-key")
	}
	if cmd.Flags().Changed("private-key") {
		cfg.PrivateKey, _ = cmd.Flags().GetString("private-key")
	}
	if cmd.Flags().Changed("private-key-password") {
		cfg.PrivateKeyPassword, _ = cmd.Flags().GetString("private-key-password")
	}
	if cmd.Flags().Changed("ca-public-key") {
		cfg.CaPublicKey, _ = cmd.Flags().GetString("ca-public-key")
	}
	if cmd.Flags().Changed("file-store") {
		cfg.FileStore, _ = cmd.Flags().GetString("file-store")
	}
	if cmd.Flags().Changed("file-store-max-size") {
		cfg.FileStoreMaxSize, _ = cmd.Flags().GetInt64("file-store-max-size")
	}
	if cmd.Flags().Changed("file-store-max-file-size") {
		cfg.FileStoreMaxFileSize, _ = cmd.Flags().GetInt64("file-store-max-file-size")
	}
}

func runServer(cfg *config.Config) error {
	logger := log.WithComponent("server")

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "range-cloud"
	}
	if err := security.EnsureServerCertificate(cfg.PublicKey, cfg.PrivateKey, hostname); err != nil {
		return fmt.Errorf("failed to ensure server certificate: %w", err)
	}

	dir, err := directory.New(cfg.UsersFile())
	if err != nil {
		return fmt.Errorf("failed to start directory: %w", err)
	}

	actions, err := catalog.New(cfg.ActionsFile())
	if err != nil {
		return fmt.Errorf("failed to start action catalog: %w", err)
	}

	processes, err := process.New(process.Settings{
		ProcessesFile:      cfg.ProcessesFile(),
		ProcessesDirectory: cfg.ProcessesDirectory(),
		WorkingDirectory:   cfg.VariableDirectory(),
		LogDirectory:       cfg.LogDirectory(),
		CaDirectory:        cfg.CaDirectory,
	})
	if err != nil {
		return fmt.Errorf("failed to start process manager: %w", err)
	}

	files, err := filestore.New(filestore.Settings{
		StorePath:    cfg.FileStore,
		MaxFileSize:  cfg.FileStoreMaxFileSize,
		MaxStoreSize: cfg.FileStoreMaxSize,
	}, dir)
	if err != nil {
		return fmt.Errorf("failed to start file service: %w", err)
	}

	reports := report.New(report.Settings{
		ReportDirectory:  cfg.ReportsDirectory(),
		MaxReportLength:  cfg.MaxReportLength,
		MaxCommentLength: cfg.MaxCommentLength,
	})

	mail := mailer.New(mailer.Settings{
		FromAddress: cfg.SenderEmailAddress,
		Command:     cfg.SendmailCommand,
		SendTimeout: time.Duration(cfg.SendTimeoutMs) * time.Millisecond,
	})

	disp := dispatcher.New(dir, actions, processes, files, reports, mail, Version)

	hub := server.NewHub()
	disp.OnResolved(hub.Deliver)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A resolved stop action shuts the server down after the reply has been
	// delivered.
	disp.OnStop(func() { cancel() })

	files.Start()
	mail.Start()

	// Loopback metrics endpoint.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn().Err(err).Msg("Metrics server stopped")
		}
	}()

	publicListener := server.NewListener(server.Settings{
		Kind:               server.Public,
		Port:               cfg.PublicPort,
		CertFile:           cfg.PublicKey,
		KeyFile:            cfg.PrivateKey,
		ClientCAFile:       cfg.CaPublicKey,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
	}, disp, hub, dir)

	privateListener := server.NewListener(server.Settings{
		Kind:               server.Private,
		Port:               cfg.PrivatePort,
		CertFile:           cfg.PublicKey,
		KeyFile:            cfg.PrivateKey,
		ClientCAFile:       cfg.CaPublicKey,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
	}, disp, hub, nil)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	for _, l := range []*server.Listener{publicListener, privateListener} {
		wg.Add(1)
		go func(l *server.Listener) {
			defer wg.Done()
			if err := l.Start(ctx); err != nil {
				errCh <- err
				cancel()
			}
		}(l)
	}

	logger.Info().
		Int("public_port", cfg.PublicPort).
		Int("private_port", cfg.PrivatePort).
		Msg("All services are ready")

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	// Drain the asynchronous workers, stop the listeners, wait for
	// in-flight requests, then flush the persisted catalogs.
	files.Stop()
	mail.Stop()
	wg.Wait()

	for disp.PendingRequests() > 0 {
		time.Sleep(10 * time.Millisecond)
	}

	if err := dir.Flush(); err != nil {
		logger.Error().Err(err).Msg("Failed to flush users")
	}
	if err := actions.Flush(); err != nil {
		logger.Error().Err(err).Msg("Failed to flush actions")
	}
	if err := processes.Flush(); err != nil {
		logger.Error().Err(err).Msg("Failed to flush processes")
	}

	select {
	case err := <-errCh:
		return err
	default:
	}

	logger.Info().Msg("Stopped")
	return nil
}
