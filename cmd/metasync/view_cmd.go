package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/openmined/metasync/internal/metadata"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func newViewCmd() *cobra.Command {
	var kindName string
	var output string
	var state bool

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Sync, then print the metadata records or the storage state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := metadata.KindUnknown
			if kindName != "" {
				k, err := metadata.ParseKind(kindName)
				if err != nil {
					return err
				}
				kind = k
			}
			if output != outputTable && output != outputJSON && output != outputYAML {
				return fmt.Errorf("unknown output format %q", output)
			}

			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.openCache(); err != nil {
				return err
			}

			view, _, err := s.sync(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if state {
				return printState(w, view.StorageState(), output)
			}
			records := view.Records()
			if kind != metadata.KindUnknown {
				records = view.ByKind(kind)
			}
			return printRecords(w, records, output)
		},
	}

	cmd.Flags().StringVarP(&kindName, "kind", "k", "", "only records of this kind (epoch_ending, state_snapshot, transaction, identity)")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format (table, json, yaml)")
	cmd.Flags().BoolVar(&state, "state", false, "print the latest epoch and versions instead of records")
	return cmd
}

func printRecords(w io.Writer, records []metadata.Metadata, output string) error {
	switch output {
	case outputJSON:
		return writeJSON(w, records)
	case outputYAML:
		return writeYAML(w, records)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tDETAILS")
	for _, m := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Kind(), m.Name(), m)
	}
	return tw.Flush()
}

func printState(w io.Writer, st metadata.StorageState, output string) error {
	switch output {
	case outputJSON:
		return writeJSON(w, st)
	case outputYAML:
		return writeYAML(w, st)
	}
	_, err := fmt.Fprintln(w, st)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
