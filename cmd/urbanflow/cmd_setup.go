package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/urbanflow/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("urbanflow Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println("Leave the backend URL empty to run in offline demo mode.")
		fmt.Println()

		cfg.Backend.BaseURL = prompt(scanner, "Backend API URL (optional)", cfg.Backend.BaseURL)
		cfg.Backend.APIKey = prompt(scanner, "Backend API key (optional)", cfg.Backend.APIKey)

		timeoutStr := prompt(scanner, "Backend timeout seconds", strconv.Itoa(cfg.Backend.TimeoutSecs))
		if n, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.Backend.TimeoutSecs = n
		}

		cfg.Server.Addr = prompt(scanner, "API listen address", cfg.Server.Addr)
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		if cfg.Configured() {
			fmt.Println("Backend configured; the daemon will run in live mode.")
		} else {
			fmt.Println("No backend configured; the daemon will run in demo mode.")
		}
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
