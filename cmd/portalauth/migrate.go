package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/premproperties/portalauth/session"
)

// NewMigratePasswordsCmd creates the migrate-passwords subcommand.
func NewMigratePasswordsCmd(flags *globalFlags) *cobra.Command {
	var kindFlag string
	cmd := &cobra.Command{
		Use:   "migrate-passwords",
		Short: "Hash every legacy plaintext credential with argon2id",
		Long: `Rewrite plaintext admin and member credentials as argon2id hashes.
Values that are already hashed are skipped, so the command is safe to rerun.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds, err := parseKinds(kindFlag)
			if err != nil {
				return err
			}

			rt, err := loadRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			for _, kind := range kinds {
				if kind == session.KindMember && rt.cfg.Postgres.DSN == "" {
					fmt.Fprintln(out, "member: skipped, no postgres dsn configured")
					continue
				}
				report, err := rt.engine.MigrateLegacyCredentials(cmd.Context(), kind)
				fmt.Fprintf(out, "%s: migrated=%d skipped=%d failed=%d\n", kind, report.Migrated, report.Skipped, report.Failed)
				if err != nil {
					return fmt.Errorf("migrate %s credentials: %w", kind, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kindFlag, "type", "all", "admin, member or all")
	return cmd
}

func parseKinds(raw string) ([]session.Kind, error) {
	if raw == "" || raw == "all" {
		return []session.Kind{session.KindAdmin, session.KindMember}, nil
	}
	kind, ok := session.ParseKind(raw)
	if !ok {
		return nil, fmt.Errorf("unknown --type %q: want admin, member or all", raw)
	}
	return []session.Kind{kind}, nil
}
