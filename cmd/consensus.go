package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/chainsec-adk/pkg/engine"
)

var consensusCmd = &cobra.Command{
	Use:   "consensus",
	Short: "Merge findings from several tools into consensus findings",
	Long: `Reads a JSON object mapping each source name to its list of findings,
for example {"slither": [...], "mythril": [...]}, and prints the merged,
confidence-scored result.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		asJSON, _ := cmd.Flags().GetBool("json")

		data, err := readInput(cmd, input)
		if err != nil {
			return err
		}
		var bySource map[string][]engine.Finding
		if err := json.Unmarshal(data, &bySource); err != nil {
			return fmt.Errorf("decode findings: %w", err)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		graph := engine.NewUnifiedGraph(a.engine)
		for source, findings := range bySource {
			graph.AddFindings(source, findings)
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(graph.Analyze())
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GetReport())
		return nil
	},
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func init() {
	consensusCmd.Flags().StringP("input", "i", "-", "Findings JSON file (- for stdin)")
	consensusCmd.Flags().Bool("json", false, "Print the analysis as JSON")
	rootCmd.AddCommand(consensusCmd)
}
