package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fetchgate/internal/security"
)

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "normalize <host>...",
		Aliases: []string{"norm"},
		Short:   "Show how numeric IPv4 host spellings are read",
		Long:    "Print the canonical dotted-quad form of each host and whether it is private or reserved.",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			red := color.New(color.FgRed).SprintFunc()
			green := color.New(color.FgGreen).SprintFunc()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOST\tCANONICAL\tCLASS")
			for _, host := range args {
				canonical, ok := security.NormalizeIPv4(host)
				target := canonical
				if !ok {
					canonical, target = "-", host
				}
				class := green("public")
				switch {
				case security.IsPrivateOrReserved(target):
					class = red("blocked")
				case !ok && !strings.Contains(host, ":"):
					class = "hostname"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", host, canonical, class)
			}
			return tw.Flush()
		},
	}
}
