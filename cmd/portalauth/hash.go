package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/premproperties/portalauth/password"
)

// NewHashPasswordCmd creates the hash-password subcommand. The password is
// read from stdin so it stays out of shell history.
func NewHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its argon2id hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				return errors.New("no password on stdin")
			}
			plain := strings.TrimRight(scanner.Text(), "\r")
			if plain == "" {
				return errors.New("empty password")
			}

			hasher, err := password.NewArgon2(password.DefaultConfig())
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
