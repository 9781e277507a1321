package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/chainsec-adk/pkg/audit"
	"github.com/user/chainsec-adk/pkg/workspace"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit a contract and record the results in a workspace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		wsID, _ := flags.GetString("workspace")
		chain, _ := flags.GetString("chain")
		address, _ := flags.GetString("address")
		target, _ := flags.GetString("target")
		tools, _ := flags.GetStringSlice("tools")
		noLLM, _ := flags.GetBool("no-llm")
		meta, _ := flags.GetStringToString("meta")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if !a.store.Exists(wsID) {
			if _, err := a.store.Create(wsID, []string{chain}); err != nil && !errors.Is(err, workspace.ErrAlreadyExists) {
				return err
			}
		}
		if address == "" {
			address = target
		}

		ctx := cmd.Context()
		out, err := a.runner(ctx, !noLLM, nil).Run(ctx, audit.Request{
			Workspace: wsID,
			Chain:     chain,
			Address:   address,
			Target:    target,
			Metadata:  meta,
			Tools:     tools,
		})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%d findings (%d filtered), report written to %s\n",
			len(out.Analysis.Findings), out.Analysis.Filtered, out.Report.Path)
		for _, f := range out.Analysis.Findings {
			fmt.Fprintf(w, "  [%s/%s %.0f] %s %s:%d (%s)\n", strings.ToUpper(f.Severity.String()), f.Tier, f.Score,
				f.Title, f.File, f.LineStart, strings.Join(f.Tools, ", "))
		}
		names := make([]string, 0, len(out.ToolErrors))
		for name := range out.ToolErrors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  analyzer %s failed: %v\n", name, out.ToolErrors[name])
		}
		return nil
	},
}

func init() {
	f := auditCmd.Flags()
	f.StringP("workspace", "w", "default", "Workspace id (created when missing)")
	f.StringP("chain", "c", "ethereum", "Chain the contract is deployed on")
	f.StringP("address", "a", "", "Contract address (defaults to the target path)")
	f.StringP("target", "t", "", "Solidity file or project directory")
	f.StringSlice("tools", nil, "Analyzers to run (default: all enabled)")
	f.Bool("no-llm", false, "Skip the AI reviewer")
	f.StringToString("meta", nil, "Contract metadata key=value pairs")
	_ = auditCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(auditCmd)
}
