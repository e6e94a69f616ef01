// Package cmd implements the command-line surface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/proxycat/proxycat/internal/app"
	"github.com/proxycat/proxycat/internal/logger"
	"github.com/proxycat/proxycat/internal/settings"
	"github.com/proxycat/proxycat/internal/sysproxy"
)

var (
	cfgFile      string
	portFlag     uint16
	hostFlag     string
	pacPathFlag  string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "proxycat",
	Short: "A system utility to manage the OS proxy settings via a PAC file",
	Long: `ProxyCat publishes a locally generated master PAC file over HTTP,
points the operating system's auto-config URL at it, and keeps the
setting reconciled: foreign PAC configurations are absorbed into the
master file instead of being lost.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initViper(cmd); err != nil {
			return fmt.Errorf("initialize configuration: %w", err)
		}

		level, err := logger.ParseLevel(viper.GetString("log_level"))
		if err != nil {
			return err
		}
		if err := logger.Setup(level); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("starting ProxyCat...")

		st := settings.New()
		if port := viper.GetUint("port"); port > 0 && port <= 65535 {
			st.SetPort(uint16(port))
		}
		if host := viper.GetString("host"); host != "" {
			st.SetHost(host)
		}
		if path := viper.GetString("pac_path"); path != "" {
			st.SetPACPath(path)
		}
		logger.Info("master PAC URL: %s", st.PACURL())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a := app.New(st, sysproxy.NewManager())
		return a.Run(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the config file (default $XDG_CONFIG_HOME/proxycat/config.yaml)")
	rootCmd.PersistentFlags().Uint16VarP(&portFlag, "port", "p", settings.DefaultPort, "Port for the HTTP server")
	rootCmd.PersistentFlags().StringVarP(&hostFlag, "host", "H", settings.DefaultHost, "Host for the HTTP server")
	rootCmd.PersistentFlags().StringVarP(&pacPathFlag, "pac-path", "P", settings.DefaultPACPath, "Path for the master PAC file")
	rootCmd.PersistentFlags().StringVarP(&logLevelFlag, "log-level", "l", "info", "Log level (error, warn, info, debug, trace)")
}

// initViper layers the settings sources: flag > environment > config
// file > default.
func initViper(cmd *cobra.Command) error {
	viper.SetDefault("port", settings.DefaultPort)
	viper.SetDefault("host", settings.DefaultHost)
	viper.SetDefault("pac_path", settings.DefaultPACPath)
	viper.SetDefault("log_level", "info")

	if err := viper.BindPFlag("port", cmd.Flags().Lookup("port")); err != nil {
		return err
	}
	if err := viper.BindPFlag("host", cmd.Flags().Lookup("host")); err != nil {
		return err
	}
	if err := viper.BindPFlag("pac_path", cmd.Flags().Lookup("pac-path")); err != nil {
		return err
	}
	if err := viper.BindPFlag("log_level", cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}

	viper.SetEnvPrefix("PROXYCAT")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil
		}
		viper.AddConfigPath(filepath.Join(configDir, "proxycat"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; flags and defaults cover
		// everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	return nil
}

// Execute runs the root command. It returns on fatal startup errors or
// when the process is interrupted.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
