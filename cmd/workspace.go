package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/chainsec-adk/pkg/wrappers"
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Manage audit workspaces",
}

var wsCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		chains, _ := cmd.Flags().GetStringSlice("chains")
		ws, err := a.store.Create(args[0], chains)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created workspace %s (%d chains, targets: %s)\n",
			ws.ID, len(ws.Chains), strings.Join(ws.Targets, ", "))
		return nil
	},
}

var wsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ids, err := a.store.List()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No workspaces found.")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var wsStatsCmd = &cobra.Command{
	Use:   "stats <id>",
	Short: "Show workspace statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		stats, err := a.store.Stats(args[0])
		if err != nil {
			return err
		}
		if stats == nil {
			return fmt.Errorf("workspace %s does not exist", args[0])
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		fmt.Fprint(cmd.OutOrStdout(), wrappers.FormatStats(args[0], stats))
		return nil
	},
}

var wsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a workspace and its reports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted workspace %s\n", args[0])
		return nil
	},
}

var wsAddContractCmd = &cobra.Command{
	Use:   "add-contract <id>",
	Short: "Track a contract in a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, _ := cmd.Flags().GetString("address")
		chain, _ := cmd.Flags().GetString("chain")
		meta, _ := cmd.Flags().GetStringToString("meta")

		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.store.AddContract(args[0], address, chain, meta); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s on %s to workspace %s\n", address, chain, args[0])
		return nil
	},
}

func init() {
	wsCreateCmd.Flags().StringSlice("chains", nil, "Target chains (e.g. ethereum,bnb)")
	wsStatsCmd.Flags().Bool("json", false, "Print statistics as JSON")

	wsAddContractCmd.Flags().String("address", "", "Contract address")
	wsAddContractCmd.Flags().String("chain", "ethereum", "Chain the contract is deployed on")
	wsAddContractCmd.Flags().StringToString("meta", nil, "Metadata key=value pairs")
	_ = wsAddContractCmd.MarkFlagRequired("address")

	workspaceCmd.AddCommand(wsCreateCmd, wsListCmd, wsStatsCmd, wsDeleteCmd, wsAddContractCmd)
	rootCmd.AddCommand(workspaceCmd)
}
