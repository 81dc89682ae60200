package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/nwanne56/PlanetTerp/internal/config"
	"github.com/nwanne56/PlanetTerp/internal/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var keychainCmd = &cobra.Command{
	Use:   "keychain",
	Short: "Manage the database password in the OS keychain",
	Long: `Stores the database password in the OS keychain so it can be left out of
config files. Set database.use_keychain: true to read it at startup.`,
}

var keychainSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the database password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		km := config.NewKeyringManager()
		if !km.IsAvailable() {
			return errors.ConfigError("OS keychain is not available; set PLANETTERP_MYSQL_PASSWORD instead")
		}

		password, err := readPassword(cmd, "Database password: ")
		if err != nil {
			return err
		}
		if err := km.SaveDBPassword(password); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved database password (%s)\n", config.MaskSecret(password))
		return nil
	},
}

var keychainDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored database password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.NewKeyringManager().DeleteDBPassword(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Removed database password")
		return nil
	},
}

func init() {
	keychainCmd.AddCommand(keychainSetCmd)
	keychainCmd.AddCommand(keychainDeleteCmd)
}

// readPassword reads without echo from a terminal, or one line from piped stdin
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.OutOrStdout(), prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
