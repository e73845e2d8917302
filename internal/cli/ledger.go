package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
	"github.com/akatsuki-labs/akatsuki/internal/ledger"
)

// NewLedgerCommand groups ledger inspection commands.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the purchase ledger",
	}
	cmd.AddCommand(newLedgerShowCommand(rootOpts))
	return cmd
}

func newLedgerShowCommand(opts *RootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print every ledger record of a target date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime(cmd)
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			day, err := bet.NormalizeDate(date, time.Now().In(rt.Config.Location()))
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid date", err)
			}
			entries, err := rt.Ledger.Get(cmd.Context(), day)
			if err != nil {
				return WrapExitError(ExitCommandError, "read ledger", err)
			}
			records := ledger.Sorted(entries)

			out := printer{format: opts.Format, w: cmd.OutOrStdout()}
			view := struct {
				TargetDate string          `json:"target_date"`
				Tickets    []ledger.Record `json:"tickets"`
			}{day, records}
			return out.print(view, func(w io.Writer) {
				if len(records) == 0 {
					fmt.Fprintf(w, "no records for %s\n", day)
					return
				}
				for _, rec := range records {
					fmt.Fprintf(w, "%s  %s R%d #%d %s  %d  %s", rec.VenueCode, rec.VenueName, rec.RaceNumber, rec.SelectionNumber, rec.BetType, rec.Amount, rec.Status)
					if rec.Note != "" {
						fmt.Fprintf(w, "  (%s)", rec.Note)
					}
					fmt.Fprintln(w)
				}
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", bet.AutoDate, "target date (YYYYMMDD, YYYY-MM-DD or auto)")
	return cmd
}
