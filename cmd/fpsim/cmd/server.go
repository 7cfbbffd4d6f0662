package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/fpsim/api"
	"github.com/jmcleod/fpsim/engine"
	"github.com/jmcleod/fpsim/hat"
	"github.com/jmcleod/fpsim/internal/config"
	"github.com/jmcleod/fpsim/internal/util"
	"github.com/jmcleod/fpsim/journal"
	bboltjournal "github.com/jmcleod/fpsim/journal/bbolt"
	"github.com/jmcleod/fpsim/journal/memory"
	pgjournal "github.com/jmcleod/fpsim/journal/postgres"
	"github.com/jmcleod/fpsim/session"
	"github.com/jmcleod/fpsim/web"
)

var (
	configPath string
	port       int
	dataDir    string
	tlsCert    string
	tlsKey     string
	sensors    int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the simulated sensor API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadServerConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Server.LogLevel)

		store, err := openJournal(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		signer := hat.NewRandomSigner()
		defer signer.Destroy()

		opts := []session.Option{session.WithLogger(logger), session.WithSigner(signer)}
		for i := range cfg.Sensors {
			eopts := append(cfg.EngineOptions(),
				engine.WithTokenSigner(signer),
				engine.WithLogger(logger.With("sensor_id", i)),
			)
			opts = append(opts, session.WithSensor(engine.New(eopts...)))
		}
		sessions := session.NewManager(store, opts...)

		a := api.New(sessions,
			api.WithLogger(logger),
			api.WithAlertFunc(func(ev api.AlertEvent) {
				logger.Warn("anomaly detected",
					"alert", string(ev.Type), "count", ev.Count, "threshold", ev.Threshold)
			}),
		)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		webHandler, err := web.Handler()
		if err != nil {
			return err
		}
		r.Handle("/*", webHandler)

		tlsConfig, err := serverTLSConfig(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d with %d sensor(s) (journal: %s)...\n",
			cfg.Server.Port, cfg.Sensors, cfg.Server.Journal)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return sessions.Shutdown()
		case err := <-done:
			return errors.Join(err, sessions.Shutdown())
		}
	},
}

// loadServerConfig reads the config file and applies any flags the user set.
func loadServerConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("data-dir") {
		cfg.Server.DataDir = dataDir
	}
	if flags.Changed("tls-cert") {
		cfg.Server.TLSCert = tlsCert
	}
	if flags.Changed("tls-key") {
		cfg.Server.TLSKey = tlsKey
	}
	if flags.Changed("sensors") {
		cfg.Sensors = sensors
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func openJournal(ctx context.Context, cfg config.Config) (journal.Store, error) {
	switch cfg.Server.Journal {
	case "memory":
		return memory.NewStore(), nil
	case "postgres":
		store, err := pgjournal.NewStoreFromDSN(ctx, cfg.Server.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		return store, nil
	}
	if err := os.MkdirAll(cfg.Server.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := bboltjournal.NewStoreFromFile(filepath.Join(cfg.Server.DataDir, journalFile), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return store, nil
}

func serverTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	var cert tls.Certificate
	var err error
	if certFile != "" && keyFile != "" {
		cert, err = tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
	} else {
		cert, err = util.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		fmt.Println("Using self-signed runtime generated certificate for TLS")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	serverCmd.Flags().IntVar(&sensors, "sensors", 1, "Number of simulated sensors")
}
