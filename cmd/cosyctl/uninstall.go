// File: cmd/cosyctl/uninstall.go
// Brief: CLI command wiring and implementation for 'uninstall'.

package main

import (
	"github.com/example/cosyctl/internal/request"
	"github.com/example/cosyctl/internal/steps"
	"github.com/example/cosyctl/internal/teardown"
	"github.com/example/cosyctl/internal/ui"
	"github.com/spf13/cobra"
)

func newUninstallCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove an installed Cosy stack",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newUninstallBackendCommand(a, request.Compose), newUninstallBackendCommand(a, request.Cluster))
	decorateCommandHelp(cmd, "Uninstall Flags")
	return cmd
}

func newUninstallBackendCommand(a *app, b request.Backend) *cobra.Command {
	handle := request.DefaultInstallPath
	var yes bool
	cmd := &cobra.Command{
		Use:           string(b),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := request.NewTeardown(b, handle, yes)
			if err != nil {
				return err
			}
			engine := &teardown.Engine{
				Registry:  a.registry(a),
				Confirm:   ui.NewPrompter(a.in, a.out),
				Log:       a.log,
				Observers: []steps.Observer{ui.NewStepConsole(a.out)},
			}
			res, err := engine.Teardown(cmd.Context(), req)
			if err != nil {
				return err
			}
			ui.PrintTeardownSummary(a.out, res.Handle, res.Report, res.Notes)
			return nil
		},
	}
	switch b {
	case request.Compose:
		cmd.Short = "Remove a Docker Compose installation"
		cmd.Flags().StringVar(&handle, "path", handle, "Parent directory given at install time")
	case request.Cluster:
		cmd.Short = "Remove a Kubernetes installation by deleting its namespace"
		handle = request.DefaultNamespace
		cmd.Flags().StringVar(&handle, "namespace", handle, "Namespace given at install time")
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation (also COSYCTL_YES=1)")
	decorateCommandHelp(cmd, "Uninstall Flags")
	return cmd
}
