package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/watzon/actra/internal/definition"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate action-type definition files",
	Long: `Parse one or more definition files (JSON or YAML) and report every
validation finding. Exits non-zero if any file is invalid.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed++
			continue
		}

		def, err := definition.ParseBytes(path, data)
		if err != nil {
			failed++
			var findings definition.ValidationErrors
			if errors.As(err, &findings) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: invalid\n", path)
				for _, f := range findings {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", f.Path, f.Message)
				}
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			}
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s)\n", path, def.Type)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files invalid", failed, len(args))
	}
	return nil
}
