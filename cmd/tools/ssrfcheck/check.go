package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var pf policyFlags
	cmd := &cobra.Command{
		Use:   "check <url>...",
		Short: "Validate URLs against the target policy",
		Long:  "Validate each URL and print ALLOW or REJECT with the reason. Exits 1 if any URL is rejected.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := pf.policy()
			if err != nil {
				return fmt.Errorf("building policy: %w", err)
			}

			green := color.New(color.FgGreen, color.Bold).SprintFunc()
			red := color.New(color.FgRed, color.Bold).SprintFunc()
			faint := color.New(color.Faint).SprintFunc()
			out := cmd.OutOrStdout()

			rejected := 0
			for _, raw := range args {
				res := policy.Validate(raw)
				if res.Valid {
					fmt.Fprintf(out, "%s  %s %s\n", green("ALLOW "), raw, faint("-> "+res.ParsedURL.String()))
					continue
				}
				rejected++
				fmt.Fprintf(out, "%s  %s %s\n", red("REJECT"), raw, faint("("+res.Error+")"))
			}

			if rejected > 0 {
				return errRejected
			}
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}
