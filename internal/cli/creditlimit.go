package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
)

var setCreditLimitCmd = &cobra.Command{
	Use:   "set-credit-limit <endorser> <recipient> <limit>",
	Short: "Set how much credit endorser extends to recipient",
	Long: `set-credit-limit changes the one-directional limit on the
recipient->endorser edge of their shared account, i.e. how much
recipient may owe endorser (spec.md §4.B). Pass
"inf" for an unbounded limit, or a decimal amount. Lowering a limit below
the current balance owed on that edge fails with LimitBelowBalance.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		endorser, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		recipient, err := parseNodeID(args[1])
		if err != nil {
			return err
		}
		limit, err := amount.Parse(args[2])
		if err != nil {
			return fmt.Errorf("invalid limit %q: %w", args[2], err)
		}

		provider, err := loadProvider()
		if err != nil {
			return err
		}
		eng, err := provider.GetEngine()
		if err != nil {
			return err
		}

		if err := eng.SetCreditLimit(context.Background(), endorser, recipient, limit); err != nil {
			return fmt.Errorf("set-credit-limit: %w", err)
		}
		fmt.Printf("set %d -> %d limit to %s\n", endorser, recipient, limit)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setCreditLimitCmd)
}
