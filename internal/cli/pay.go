package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mutualcredit/ledgerd/internal/capability"
	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/engine"
)

var (
	payMode  string
	payMemo  string
	payAdmin bool
)

var payCmd = &cobra.Command{
	Use:   "pay <payer> <recipient> <amount>",
	Short: "Attempt a payment from payer to recipient",
	Long: `pay runs spec.md §4.E attempt_payment. --mode=routed (the
default) finds a path through the credit graph via the router;
--mode=direct posts straight to the payer/recipient creditline without
routing and requires --admin, per spec.md §9's capability gate.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		payer, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		recipient, err := parseNodeID(args[1])
		if err != nil {
			return err
		}
		amt, err := amount.Parse(args[2])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[2], err)
		}

		var mode engine.PaymentMode
		switch payMode {
		case "routed":
			mode = engine.ModeRouted
		case "direct":
			mode = engine.ModeDirect
		default:
			return fmt.Errorf("--mode must be \"routed\" or \"direct\", got %q", payMode)
		}

		var admin capability.Admin
		if mode == engine.ModeDirect {
			if !payAdmin {
				return fmt.Errorf("pay: --mode=direct requires --admin")
			}
			admin = capability.GrantAdmin()
		}

		provider, err := loadProvider()
		if err != nil {
			return err
		}
		eng, err := provider.GetEngine()
		if err != nil {
			return err
		}

		outcome, err := eng.AttemptPayment(context.Background(), payer, recipient, amt, payMemo, mode, admin)
		if err != nil {
			return fmt.Errorf("pay: %w", err)
		}

		fmt.Printf("payment %d status=%s\n", outcome.Payment, outcome.Status)
		if outcome.Err != nil {
			fmt.Printf("reason: %v\n", outcome.Err)
		}
		return nil
	},
}

func init() {
	payCmd.Flags().StringVar(&payMode, "mode", "routed", `payment mode: "routed" or "direct"`)
	payCmd.Flags().StringVar(&payMemo, "memo", "", "free-text memo attached to the payment")
	payCmd.Flags().BoolVar(&payAdmin, "admin", false, "grant an administrative capability token (required for --mode=direct)")
	rootCmd.AddCommand(payCmd)
}
