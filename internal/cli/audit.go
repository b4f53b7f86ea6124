package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mutualcredit/ledgerd/internal/core/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check stored balances and completed payments against the ledger invariants",
	Long: `audit runs the offline invariant checks of spec.md §4.G: every
account's stored balance must equal the sum of its posted entries, and
every completed payment's entries must net to -amount for the payer,
+amount for the recipient and zero for every intermediary. It reports offenders
but never mutates the store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := loadProvider()
		if err != nil {
			return err
		}
		store, err := provider.GetStore()
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := audit.Run(context.Background(), store)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		for _, v := range report.AccountViolations {
			fmt.Fprintln(os.Stdout, v.Error())
		}
		for _, v := range report.PaymentViolations {
			fmt.Fprintln(os.Stdout, v.Error())
		}

		if report.Clean() {
			fmt.Fprintln(os.Stdout, "audit: clean")
			return nil
		}
		fmt.Fprintf(os.Stdout, "audit: %d account violation(s), %d payment violation(s)\n",
			len(report.AccountViolations), len(report.PaymentViolations))
		os.Exit(1)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
