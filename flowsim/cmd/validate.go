package cmd

import (
	"fmt"

	"github.com/sarchlab/flowsim/scenario"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Check a scenario file without running it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			if err := sc.Validate(); err != nil {
				return fmt.Errorf("%s is invalid:\n%w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"%s is valid: %d nodes, %d links, %d flows\n",
				args[0], len(sc.Nodes), len(sc.Links), len(sc.Flows))

			return nil
		},
	}
}
