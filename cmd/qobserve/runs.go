package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fumin/qobserve/store"
)

func newRunsCommand() *cobra.Command {
	var (
		db    string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(db)
			if err != nil {
				return errors.Wrap(err, "")
			}
			defer s.Close()
			runs, err := s.List(cmd.Context(), limit)
			if err != nil {
				return errors.Wrap(err, "")
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tTARGET\tSIZE\tSHOTS\tPARAMS\tEXPECTATION")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%v\t%v\n", r.ID, r.CreatedAt.Format(time.RFC3339), r.Target, r.Size, r.Shots, r.Params, r.Expectation)
			}
			return errors.Wrap(w.Flush(), "")
		},
	}
	cmd.Flags().StringVar(&db, "db", "qobserve.db", "SQLite run log")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}
