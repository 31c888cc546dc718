// File: cmd/cosyctl/version.go
// Brief: CLI command wiring and implementation for 'version'.

package main

import (
	"fmt"

	"github.com/example/cosyctl/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:           "version",
		Short:         "Print the cosyctl version information",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, info.Version)
				return nil
			}
			fmt.Fprintf(out, "Version: %s\n", info.Version)
			for _, kv := range [][2]string{
				{"GitCommit", info.GitCommit},
				{"GitTreeState", info.GitTreeState},
				{"BuildDate", info.BuildDate},
			} {
				if kv[1] != "" && kv[1] != "unknown" {
					fmt.Fprintf(out, "%s: %s\n", kv[0], kv[1])
				}
			}
			fmt.Fprintf(out, "GoVersion: %s\n", info.GoVersion)
			fmt.Fprintf(out, "Platform: %s\n", info.Platform)
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print just the version number")
	decorateCommandHelp(cmd, "Version Flags")
	return cmd
}
