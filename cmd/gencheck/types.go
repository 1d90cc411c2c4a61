package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gencheck/internal/typeparse"
	"gencheck/internal/types"
)

var typesCmd = &cobra.Command{
	Use:   "types [flags] <type-expr>...",
	Short: "Parse type expressions and print their canonical form",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTypes,
}

func init() {
	typesCmd.Flags().StringSlice("template", nil, "names that denote template parameters in the expressions")
	typesCmd.Flags().Bool("kind", false, "print the kind of each parsed type")
}

// runTypes prints one canonical form per argument. A malformed expression
// is reported on stderr and makes the command fail after the rest printed.
func runTypes(cmd *cobra.Command, args []string) error {
	templates, err := cmd.Flags().GetStringSlice("template")
	if err != nil {
		return fmt.Errorf("failed to get template flag: %w", err)
	}
	showKind, err := cmd.Flags().GetBool("kind")
	if err != nil {
		return fmt.Errorf("failed to get kind flag: %w", err)
	}

	in := types.NewInterner()
	scope := typeparse.Params{}
	for i, name := range templates {
		scope[name] = in.RegisterTypeParam("", name, i)
	}

	out := cmd.OutOrStdout()
	failed := false
	for _, src := range args {
		id, err := typeparse.Parse(in, src, scope)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %q: %v\n", src, err)
			failed = true
			continue
		}
		if showKind {
			fmt.Fprintf(out, "%s\t%s\n", in.Format(id), in.Kind(id))
			continue
		}
		fmt.Fprintln(out, in.Format(id))
	}
	if failed {
		return errFindings
	}
	return nil
}
