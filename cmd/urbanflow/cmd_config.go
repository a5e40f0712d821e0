package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/urbanflow/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the workspace configuration",
	Long: `Inspect and edit the workspace configuration file. Keys use dot notation,
e.g. backend.base_url, backend.api_key, health.schedule, server.addr.
Leaving backend.base_url empty keeps the workspace in demo mode. The
running daemon picks up edits without a restart.`,
}

// knownConfigKeys returns every dot-key the config carries, sorted for
// display.
func knownConfigKeys(cfg *config.Config) []string {
	values, err := config.ListValues(cfg, false)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unknownKeyError(err error) error {
	return fmt.Errorf("%w\nKnown keys:\n  %s", err, strings.Join(knownConfigKeys(loadConfig()), "\n  "))
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all configuration values, secrets masked",
	Example: "  urbanflow config list",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		values, err := config.ListValues(cfg, true)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}

		for _, k := range knownConfigKeys(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, values[k])
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:     "get <key>",
	Short:   "Print one configuration value",
	Example: "  urbanflow config get backend.base_url",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			if errors.Is(err, config.ErrUnknownKey) {
				return unknownKeyError(err)
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one configuration value",
	Example: `  urbanflow config set backend.base_url http://localhost:8100
  urbanflow config set backend.api_key sk-...
  urbanflow config set health.schedule "@every 30s"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetValue(cfgPath, args[0], args[1]); err != nil {
			if errors.Is(err, config.ErrUnknownKey) {
				return unknownKeyError(err)
			}
			return err
		}
		display := args[1]
		if config.IsSecretKey(args[0]) {
			display = "***"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], display)
		return nil
	},
}
