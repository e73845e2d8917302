package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
	"github.com/akatsuki-labs/akatsuki/internal/purchase"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Date   string
	Bets   string
	DryRun bool
	Budget int64
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Purchase the bets of a target date",
		Long: `Authenticate, fund the account and purchase every bet that the ledger
does not already record as purchased. Re-running the same date is safe.

Example:
  akatsuki run --date 20250105 --bets ./bets.csv
  akatsuki run --date auto --bets ./bets.yaml --dry-run --budget 3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurchase(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", bet.AutoDate, "target date (YYYYMMDD, YYYY-MM-DD or auto)")
	cmd.Flags().StringVar(&opts.Bets, "bets", "", "bet file (.csv, .yaml or .json)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log in and fund, but simulate every purchase")
	cmd.Flags().Int64Var(&opts.Budget, "budget", -1, "total budget override in yen")

	return cmd
}

func runPurchase(opts *RunOptions, cmd *cobra.Command) error {
	req := purchase.Request{TargetDate: opts.Date, DryRun: opts.DryRun}
	if cmd.Flags().Changed("budget") {
		budget := opts.Budget
		req.TotalBudget = &budget
	}
	if opts.Bets != "" {
		bets, err := readBets(opts.Bets)
		if err != nil {
			return WrapExitError(ExitCommandError, "read bets", err)
		}
		req.Bets = bets
	}

	rt, err := opts.runtime(cmd)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	summary, err := rt.Runner.Invoke(cmd.Context(), req)
	if err != nil {
		if errors.Is(err, purchase.ErrConfiguration) {
			return WrapExitError(ExitCommandError, "invalid run request", err)
		}
		return WrapExitError(ExitCommandError, "run failed", err)
	}

	out := printer{format: opts.Format, w: cmd.OutOrStdout()}
	if err := out.print(summary, func(w io.Writer) { writeSummary(w, summary) }); err != nil {
		return err
	}
	if !summary.Success || summary.Incomplete {
		return &ExitError{Code: ExitFailure, Message: "run finished with status " + summary.Status()}
	}
	return nil
}

func readBets(path string) ([]bet.Instruction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bet.ParseFile(path, f)
}

func writeSummary(w io.Writer, s purchase.Summary) {
	fmt.Fprintf(w, "run %s  target_date=%s  status=%s  dry_run=%t\n", s.RunID, s.TargetDate, s.Status(), s.DryRun)
	fmt.Fprintf(w, "total_amount=%d  purchased_amount=%d\n", s.TotalAmount, s.PurchasedAmount)
	if s.Failure != nil {
		fmt.Fprintf(w, "failure: %s: %s\n", s.Failure.Kind, s.Failure.Message)
	}
	if s.Funding != nil {
		fmt.Fprintf(w, "funding: %s  balance=%d  deposited=%d\n", s.Funding.Outcome, s.Funding.Balance, s.Funding.Deposited)
	}

	outcomes := make([]string, 0, len(s.Counts))
	for o := range s.Counts {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(w, "  %-10s %d\n", o, s.Counts[purchase.Outcome(o)])
	}

	for _, r := range s.Results {
		line := fmt.Sprintf("  %s  %s  %d  %s", r.Identity.Key(), r.VenueName, r.Amount, r.Outcome)
		if r.Reason != "" {
			line += " (" + r.Reason + ")"
		}
		if r.PreExisting {
			line += " [ledger]"
		}
		if r.Reconciled {
			line += " [reconciled]"
		}
		fmt.Fprintln(w, line)
	}
	if s.Location != "" {
		fmt.Fprintf(w, "summary: %s\n", s.Location)
	}
}
