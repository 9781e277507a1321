package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/chainsec-adk/pkg/adk"
	"github.com/user/chainsec-adk/pkg/engine"
	"github.com/user/chainsec-adk/pkg/wrappers"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start the interactive agent session",
	Run: func(cmd *cobra.Command, args []string) {
		wsID, _ := cmd.Flags().GetString("workspace")

		a, err := newApp()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		defer a.close()

		ctx := cmd.Context()
		fmt.Printf("Connecting to %s (Model: %s)...\n", a.cfg.SelectedProvider, a.cfg.SelectedModel)
		if err := a.connectLLM(ctx); err != nil {
			fmt.Printf("Error creating AI provider: %v\n", err)
			fmt.Println("Please run 'chainsec-adk config setup' to configure your keys.")
			return
		}

		if !a.store.Exists(wsID) {
			if _, err := a.store.Create(wsID, nil); err != nil {
				fmt.Printf("Error creating workspace %s: %v\n", wsID, err)
				return
			}
		}

		graph := engine.NewUnifiedGraph(a.engine)
		runner := a.runner(ctx, true, graph)

		agent := adk.NewAgent(a.llm)
		agent.RegisterTool(&wrappers.AuditWrapper{Runner: runner, DefaultWorkspace: wsID})
		agent.RegisterTool(&wrappers.GraphViewerWrapper{Graph: graph})
		agent.RegisterTool(&wrappers.RemediationWrapper{Engine: a.remediation})
		agent.RegisterTool(&wrappers.SaveSnapshotWrapper{Graph: graph})
		agent.RegisterTool(&wrappers.DiffSnapshotWrapper{Graph: graph})
		agent.RegisterTool(&wrappers.WorkspaceStatsWrapper{Store: a.store, DefaultWorkspace: wsID})
		agent.SetSystemPrompt(adk.GetSystemPrompt())

		scanner := bufio.NewScanner(os.Stdin)
		fmt.Println("\n---------------------------------------------------------")
		fmt.Printf("ChainSec-ADK Agent Initialized (workspace: %s).\n", wsID)
		fmt.Println("Example: 'Audit contracts/Vault.sol deployed at 0x1234 on polygon'")
		fmt.Println("Example: 'Save a baseline snapshot'")
		fmt.Println("Type 'quit' or 'exit' to stop.")
		fmt.Println("---------------------------------------------------------")

		for {
			fmt.Print("\n> ")
			if !scanner.Scan() {
				break
			}
			input := scanner.Text()
			if input == "quit" || input == "exit" {
				break
			}
			if input == "" {
				continue
			}

			fmt.Print("Agent thinking... ")
			resp, err := agent.Chat(ctx, input, func(msg string) {
				fmt.Printf("\r\033[K[Progress]: %s\nAgent thinking... ", msg)
			})
			fmt.Print("\r\033[K")

			if err != nil {
				fmt.Printf("Error: %v\n", err)
			} else {
				fmt.Printf("\n[Agent]: %s\n", resp)
			}
		}
	},
}

func init() {
	interactiveCmd.Flags().StringP("workspace", "w", "default", "Workspace the session records audits in")
	rootCmd.AddCommand(interactiveCmd)
}
