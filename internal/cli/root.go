package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mutualcredit/ledgerd/internal/config"
	"github.com/mutualcredit/ledgerd/internal/di"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ledgerd",
	Short: "ledgerd - a mutual-credit payment engine",
	Long: `ledgerd hosts a bilateral mutual-credit ledger: accounts between
pairs of participants bounded by credit limits, multi-hop payments routed
through the credit graph, and the administrative commands (audit, graph
cache verification, direct credit-limit adjustment) needed to operate it.`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path (defaults to ./ledgerd.toml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

// loadProvider loads configuration and wires a di.Provider, the shared
// entry point every subcommand uses to reach the store/engine.
func loadProvider() (*di.Provider, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadConfig(configFile)
	} else {
		cfg, err = config.LoadDefaultConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	container := di.New()
	provider := di.NewProvider(container, cfg)
	if err := provider.RegisterAll(); err != nil {
		return nil, fmt.Errorf("wiring services: %w", err)
	}
	return provider, nil
}
