package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fetchgate/internal/config"
	"fetchgate/internal/security"
)

// errRejected signals that at least one URL failed the policy. The
// per-URL verdicts have already been printed.
var errRejected = errors.New("one or more URLs rejected")

// policyFlags are shared by every subcommand that builds a policy.
type policyFlags struct {
	schemes   []string
	blocked   []string
	blocklist string
}

func (f *policyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.schemes, "schemes", []string{"http", "https"}, "allowed URL schemes")
	cmd.Flags().StringSliceVar(&f.blocked, "block", nil, "extra hostnames to block")
	cmd.Flags().StringVar(&f.blocklist, "blocklist", "", "YAML blocklist file to merge")
}

func (f *policyFlags) policy() (*security.Policy, error) {
	blocked := f.blocked
	if f.blocklist != "" {
		extra, err := config.LoadBlocklistFile(f.blocklist)
		if err != nil {
			return nil, err
		}
		blocked = append(blocked, extra...)
	}
	return security.NewPolicy(f.schemes, blocked)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ssrfcheck",
		Short: "Inspect the fetch gateway's URL policy",
		Long: `ssrfcheck runs target URLs through the same validator, IPv4 normalizer
and redirect-safe fetcher the fetch gateway uses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCheckCmd(), newNormalizeCmd(), newFetchCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			b := config.NewBuildInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ssrfcheck %s\n", b.Version)
			fmt.Fprintf(out, "  commit:  %s\n", b.Commit)
			fmt.Fprintf(out, "  built:   %s\n", b.BuildTime)
		},
	}
}
