package main

import (
	"fmt"

	"github.com/openmined/metasync/internal/metacache"
	"github.com/spf13/cobra"
)

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the identity record of a backup storage",
	}
	cmd.AddCommand(newIdentityInitCmd())
	return cmd
}

func newIdentityInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write an identity record if the backup storage is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			written, err := metacache.EnsureIdentity(cmd.Context(), s.store)
			if err != nil {
				return err
			}
			if written {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "identity written")
			} else {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "backup storage already has metadata, nothing to do")
			}
			return err
		},
	}
}
