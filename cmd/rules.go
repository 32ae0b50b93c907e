package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/resonance/internal/rules"
)

func init() {
	rulesCmd.AddCommand(rulesValidateCmd, rulesShowCmd)
	rootCmd.AddCommand(rulesCmd)
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate law tables",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a law table file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := rules.Load(args[0], rules.Config{})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d bands, %d rules, rewrite %t, add lawful %t)\n",
			args[0], len(e.Bands().List()), e.Table().Len(), e.Config().AllowRewrite, e.Lawful(rules.OpAdd))
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active law table as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(engine.Export()); err != nil {
			return err
		}
		return enc.Close()
	},
}
