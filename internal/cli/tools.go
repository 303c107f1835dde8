package cli

import (
	"github.com/spf13/cobra"

	"github.com/fadhil/opsagent/internal/config"
	"github.com/fadhil/opsagent/pkg/tool"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the available tools",
	Long: `Tools lists every tool the planner may use, given the credentials in
the current configuration.`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}

	registry := tool.NewRegistry()
	if err := registerBuiltins(registry, cfg); err != nil {
		return err
	}

	for _, def := range registry.Schemas() {
		cmd.Printf("%s - %s\n", def.Name, def.Description)
		for _, param := range def.Parameters {
			required := ""
			if param.Required {
				required = " (required)"
			}
			cmd.Printf("    %s %s%s: %s\n", param.Name, param.Type, required, param.Description)
		}
	}
	return nil
}
