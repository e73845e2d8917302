package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
	"github.com/akatsuki-labs/akatsuki/internal/evaluation"
)

// NewEvaluateCommand settles a day's purchases against the race results.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compute hit rate and ROI of a target date's purchases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := rootOpts.runtime(cmd)
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			report, err := rt.Evaluator.Evaluate(cmd.Context(), date)
			if err != nil {
				if errors.Is(err, bet.ErrInvalidInstruction) {
					return WrapExitError(ExitCommandError, "invalid date", err)
				}
				return WrapExitError(ExitCommandError, "evaluate", err)
			}
			out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			return out.print(report, func(w io.Writer) { writeReport(w, report) })
		},
	}
	cmd.Flags().StringVar(&date, "date", bet.AutoDate, "target date (YYYYMMDD, YYYY-MM-DD or auto)")
	return cmd
}

func writeReport(w io.Writer, r evaluation.Report) {
	fmt.Fprintf(w, "evaluation %s  status=%s\n", r.TargetDate, r.Status)
	if r.Status != evaluation.StatusEvaluated {
		return
	}
	s := r.Summary
	fmt.Fprintf(w, "day:        hits=%d/%d (%.1f%%)  invested=%d  payout=%d  profit=%+d  roi=%+.2f%%\n",
		s.Hits, s.TotalBets, s.HitRate*100, s.Investment, s.Payout, s.Profit, s.ROI)
	if c := r.Cumulative; c != nil {
		fmt.Fprintf(w, "cumulative: hits=%d/%d (%.1f%%)  invested=%d  payout=%d  profit=%+d  roi=%+.2f%%  streak=%+d  max_drawdown=%d\n",
			c.Hits, c.TotalBets, c.HitRate*100, c.Investment, c.Payout, c.Profit, c.ROI, c.CurrentStreak, c.MaxDrawdown)
	}
	for _, d := range r.Details {
		mark := "miss"
		if d.Hit {
			mark = fmt.Sprintf("hit x%.1f", d.Odds)
		}
		fmt.Fprintf(w, "  %s %s R%d #%d %s  %d -> %d  %s\n", d.VenueCode, d.VenueName, d.RaceNumber, d.SelectionNumber, d.BetType, d.Amount, d.Payout, mark)
	}
	if r.Location != "" {
		fmt.Fprintf(w, "stored at %s\n", r.Location)
	}
}
