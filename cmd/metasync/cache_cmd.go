package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/metasync/internal/metacache"
	"github.com/openmined/metasync/internal/utils"
	"github.com/spf13/cobra"
)

var errNoCacheDir = errors.New("cache ls needs a persistent --cache-dir")

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local metadata cache",
	}
	cmd.AddCommand(newCacheLsCmd())
	return cmd
}

func newCacheLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List cached metadata files and the remote files they came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.CacheDir == "" {
				return errNoCacheDir
			}
			root, err := utils.ResolvePath(cfg.CacheDir)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if !utils.DirExists(root) {
				return fmt.Errorf("cache dir %s does not exist", root)
			}
			journal, err := metacache.OpenJournal(filepath.Join(root, metacache.JournalFileName))
			if err != nil {
				return err
			}
			defer journal.Close()

			entries, err := journal.List()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tHANDLE\tSIZE\tDOWNLOADED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Key, e.Handle, humanize.Bytes(uint64(e.Size)), e.DownloadedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}
