package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mutualcredit/ledgerd/internal/core/ledger"
)

var createNodeCmd = &cobra.Command{
	Use:   "create-node",
	Short: "Create a new participant node",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := loadProvider()
		if err != nil {
			return err
		}
		eng, err := provider.GetEngine()
		if err != nil {
			return err
		}

		id, err := eng.CreateNode(context.Background())
		if err != nil {
			return fmt.Errorf("create-node: %w", err)
		}
		fmt.Printf("node %d\n", id)
		return nil
	},
}

var deleteNodeCmd = &cobra.Command{
	Use:   "delete-node <node-id>",
	Short: "Delete a node and all of its creditlines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := parseNodeID(args[0])
		if err != nil {
			return err
		}

		provider, err := loadProvider()
		if err != nil {
			return err
		}
		eng, err := provider.GetEngine()
		if err != nil {
			return err
		}

		if err := eng.DeleteNode(context.Background(), n); err != nil {
			return fmt.Errorf("delete-node: %w", err)
		}
		fmt.Printf("deleted node %d\n", n)
		return nil
	},
}

var getAccountCmd = &cobra.Command{
	Use:   "get-account <node-a> <node-b>",
	Short: "Show node-a's view of its account with node-b",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		b, err := parseNodeID(args[1])
		if err != nil {
			return err
		}

		provider, err := loadProvider()
		if err != nil {
			return err
		}
		eng, err := provider.GetEngine()
		if err != nil {
			return err
		}

		view, err := eng.GetAccount(context.Background(), a, b)
		if err != nil {
			return fmt.Errorf("get-account: %w", err)
		}
		fmt.Printf("balance=%s out_limit=%s in_limit=%s\n", view.Balance, view.OutLimit, view.InLimit)
		return nil
	},
}

func parseNodeID(s string) (ledger.NodeID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return ledger.NodeID(n), nil
}

func init() {
	rootCmd.AddCommand(createNodeCmd)
	rootCmd.AddCommand(deleteNodeCmd)
	rootCmd.AddCommand(getAccountCmd)
}
