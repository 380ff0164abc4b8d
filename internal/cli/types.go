package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watzon/actra/internal/config"
	"github.com/watzon/actra/internal/engine"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the action types in the definitions directory",
	RunE:  runTypes,
}

func init() {
	rootCmd.AddCommand(typesCmd)
}

func runTypes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		// Listing types needs no tenant; fall back to defaults.
		if cfgFile != "" {
			return err
		}
		cfg = config.Default()
	}

	eng := engine.New(engine.Collaborators{})
	report, err := eng.LoadDefinitionsFromDir(cfg.Engine.DefinitionsDir)
	if err != nil {
		return err
	}

	for _, typeID := range eng.Types() {
		def, _ := eng.Definition(typeID)
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s v%s\n", typeID, def.Version)
	}
	for name, loadErr := range report.Failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", name, loadErr)
	}
	return nil
}
