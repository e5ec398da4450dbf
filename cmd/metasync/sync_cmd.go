package main

import (
	"fmt"
	"io"
	"time"

	"github.com/openmined/metasync/internal/metacache"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Bring the local metadata cache in line with the backup storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.openCache(); err != nil {
				return err
			}

			_, report, err := s.sync(cmd.Context())
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
}

func printReport(w io.Writer, r *metacache.Report) error {
	_, err := fmt.Fprintf(w,
		"remote files: %d\nup to date:   %d\ndownloaded:   %d\nevicted:      %d\nrecords:      %d\ntook:         %s\n",
		r.RemoteFiles, r.UpToDate, r.Downloaded, r.Evicted, r.Records, r.Duration.Round(time.Millisecond))
	if err != nil {
		return err
	}
	if r.Bootstrapped {
		_, err = fmt.Fprintln(w, "backup storage was empty, identity written")
	}
	return err
}
