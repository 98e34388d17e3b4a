package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/notecrew/ai/observability/logging"
	"github.com/hrygo/notecrew/internal/profile"
	"github.com/hrygo/notecrew/internal/version"
	"github.com/hrygo/notecrew/server"
	"github.com/hrygo/notecrew/store"
	"github.com/hrygo/notecrew/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "notecrew",
		Short: `Turns a few photos and an idea into a ready-to-post Xiaohongshu note.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// systemd 环境下由 EnvironmentFile 提供配置
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			return nil
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceProfile, closeLog, err := loadProfile()
			if err != nil {
				return err
			}
			defer closeLog.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			storeInstance, err := openStore(ctx, instanceProfile)
			if err != nil {
				return err
			}

			s, err := server.NewServer(ctx, instanceProfile, storeInstance)
			if err != nil {
				_ = storeInstance.Close()
				return errors.Wrap(err, "failed to create server")
			}

			c := make(chan os.Signal, 1)
			// SIGTERM 是 kill 与 Kubernetes 的默认优雅退出信号
			signal.Notify(c, terminationSignals...)

			if err := s.Start(ctx); err != nil {
				_ = storeInstance.Close()
				return errors.Wrap(err, "failed to start server")
			}

			printGreetings(cmd.OutOrStdout(), instanceProfile)

			go func() {
				<-c
				s.Shutdown(ctx)
				cancel()
			}()

			// Wait for CTRL-C.
			<-ctx.Done()
			return nil
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8072)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8072, "port of server")
	rootCmd.PersistentFlags().String("data", "", "output directory for staged images and the sqlite database")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().String("templates", "", "directory overriding the embedded agents.yaml and tasks.yaml")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "log-level", "templates"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("notecrew")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindEnv("data", "NOTECREW_DATA_DIR"); err != nil {
		panic(err)
	}
	if err := viper.BindEnv("templates", "NOTECREW_TEMPLATE_DIR"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(runCmd, versionCmd)
}

// loadProfile builds the profile from flags and environment and installs
// the default logger.
func loadProfile() (*profile.Profile, io.Closer, error) {
	instanceProfile := &profile.Profile{
		Mode:     viper.GetString("mode"),
		Addr:     viper.GetString("addr"),
		Port:     viper.GetInt("port"),
		Data:     viper.GetString("data"),
		Driver:   viper.GetString("driver"),
		DSN:      viper.GetString("dsn"),
		LogLevel: viper.GetString("log-level"),
		Version:  version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if dir := viper.GetString("templates"); dir != "" {
		instanceProfile.TemplateDir = dir
	}
	if err := instanceProfile.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid configuration")
	}

	level, err := logging.ParseLevel(instanceProfile.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	closer, err := logging.Setup(logging.Options{
		Level:  level,
		Format: instanceProfile.LogFormat,
		Dir:    instanceProfile.LogDir,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to set up logging")
	}
	return instanceProfile, closer, nil
}

func openStore(ctx context.Context, instanceProfile *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		printDatabaseError(err, instanceProfile)
		return nil, err
	}

	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, err
	}
	return storeInstance, nil
}

func printGreetings(w io.Writer, profile *profile.Profile) {
	fmt.Fprintf(w, "notecrew %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if !profile.AuthRequired() {
			fmt.Fprint(os.Stderr, "API key auth is disabled (set NOTECREW_API_KEYS to enable)\n")
		}
	}
	if !profile.IsAIEnabled() {
		fmt.Fprint(os.Stderr, "No LLM API key configured, note generation will fail\n")
	}

	fmt.Fprintf(w, "Data directory: %s\n", profile.Data)
	fmt.Fprintf(w, "Database driver: %s\n", profile.Driver)
	fmt.Fprintf(w, "LLM model: %s (vision: %s)\n", profile.LLMModel, profile.LLMImageModel)

	host := profile.Addr
	if host == "" {
		host = "localhost"
	}
	fmt.Fprintf(w, "Server running on %s:%d\n", host, profile.Port)
	fmt.Fprintf(w, "POST http://%s:%d/api/v1/xhs/notes/report\n", host, profile.Port)
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError provides user-friendly error messages for database connection issues
func printDatabaseError(err error, profile *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nDatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "  PostgreSQL is not reachable.")
		fmt.Fprintln(os.Stderr, "  Or use SQLite instead: NOTECREW_DRIVER=sqlite")
	case strings.Contains(errMsg, "sslmode") || strings.Contains(errMsg, "SSL is not enabled"):
		fmt.Fprintln(os.Stderr, "  Add ?sslmode=disable to your DSN.")
	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "  Check the credentials in NOTECREW_DSN.")
	case strings.Contains(errMsg, "unable to open database file") || strings.Contains(errMsg, "permission denied"):
		fmt.Fprintf(os.Stderr, "  Check that %s is writable.\n", profile.Data)
	default:
		fmt.Fprintln(os.Stderr, "  Error:", errMsg)
	}
	slog.Error("failed to create db driver", "driver", profile.Driver, "error", err)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
