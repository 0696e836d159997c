package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wardenhq/core/internal/infrastructure/config"
	"github.com/wardenhq/core/internal/infrastructure/logger"
	"github.com/wardenhq/core/internal/infrastructure/server"
	"github.com/wardenhq/core/internal/state"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Warden daemon",
		Long:  "Start the Warden daemon with its state store and IPC server",
		Run: func(cmd *cobra.Command, args []string) {
			runServer(cmd)
		},
	}

	cmd.Flags().String("config", "config/warden.json", "Path to the config document")
	cmd.Flags().String("state", "data/warden.db", "Path to the state document")
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "json", "Log format (json, console)")

	return cmd
}

// NewCheckConfigCommand creates the check-config command
func NewCheckConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config document",
		Long:  "Load and validate the config document, then report the verdict",
		Run: func(cmd *cobra.Command, args []string) {
			checkConfig(cmd)
		},
	}

	cmd.Flags().String("config", "config/warden.json", "Path to the config document")

	return cmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print Warden version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Warden Core v1.0.0")
			fmt.Println("Git Commit: development")
		},
	}
}

// resolve prefers an explicitly set flag, then the environment, then the
// flag's default.
func resolve(cmd *cobra.Command, flagName, envName string) string {
	value, _ := cmd.Flags().GetString(flagName)
	if cmd.Flags().Changed(flagName) {
		return value
	}
	if env := os.Getenv(envName); env != "" {
		return env
	}
	return value
}

func newLogger(cmd *cobra.Command) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:    resolve(cmd, "log-level", "WARDEN_LOG_LEVEL"),
		Format:   resolve(cmd, "log-format", "WARDEN_LOG_FORMAT"),
		Output:   os.Getenv("WARDEN_LOG_OUTPUT"),
		Filename: os.Getenv("WARDEN_LOG_FILE"),
	})
}

func runServer(cmd *cobra.Command) {
	// A .env file is optional.
	_ = godotenv.Load()

	appLogger, err := newLogger(cmd)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()

	configPath := resolve(cmd, "config", "WARDEN_CONFIG")
	statePath := resolve(cmd, "state", "WARDEN_STATE")

	cfg, err := config.Load(configPath, appLogger.WithComponent("config"))
	if err != nil {
		appLogger.Fatalw("Failed to load configuration", "path", configPath, "error", err.Error())
	}
	if cfg == nil {
		appLogger.Infow("No config document found, using defaults", "path", configPath)
		cfg = config.Default()
	}

	store, err := state.Open(statePath, appLogger.WithComponent("state"))
	if err != nil {
		appLogger.Fatalw("Failed to open state store", "path", statePath, "error", err.Error())
	}

	srv, err := server.New(cfg, store, appLogger.WithComponent("ipc"))
	if err != nil {
		appLogger.Fatalw("Failed to initialize server", "error", err.Error())
	}

	appLogger.Infow("Starting Warden daemon",
		"ipc_addr", cfg.IPCAddr(),
		"instance_id", store.InstanceID(),
		"ipc_auth", cfg.IPCAuthEnabled(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.IPCAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		appLogger.Fatalw("Server failed", "error", err.Error())
	case sig := <-quit:
		appLogger.Infow("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Errorw("Graceful shutdown failed", "error", err.Error())
	}
}

func checkConfig(cmd *cobra.Command) {
	_ = godotenv.Load()

	appLogger, err := logger.New(logger.Config{Level: "warn", Format: "console"})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()

	configPath := resolve(cmd, "config", "WARDEN_CONFIG")

	cfg, err := config.Load(configPath, appLogger)
	if err != nil {
		log.Fatalf("Configuration invalid: %v", err)
	}
	if cfg == nil {
		fmt.Printf("No config document at %s, defaults apply\n", configPath)
		return
	}

	fmt.Println("Configuration OK")
	fmt.Printf("  IPC address: %s\n", cfg.IPCAddr())
	fmt.Printf("  IPC auth: %t\n", cfg.IPCAuthEnabled())
	fmt.Printf("  Protocols: %s\n", cfg.Protocols())
	fmt.Printf("  Update channel: %s\n", cfg.UpdateChannel())
}
