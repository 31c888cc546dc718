// File: cmd/cosyctl/install.go
// Brief: CLI command wiring and implementation for 'install'.

package main

import (
	"strconv"

	"github.com/example/cosyctl/internal/install"
	"github.com/example/cosyctl/internal/request"
	"github.com/example/cosyctl/internal/steps"
	"github.com/example/cosyctl/internal/ui"
	"github.com/spf13/cobra"
)

type installFlags struct {
	path      string
	namespace string
	port      int
	username  string
	domain    string
	defaults  bool
}

func newInstallCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the Cosy stack",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newInstallBackendCommand(a, request.Compose), newInstallBackendCommand(a, request.Cluster))
	decorateCommandHelp(cmd, "Install Flags")
	return cmd
}

func newInstallBackendCommand(a *app, b request.Backend) *cobra.Command {
	f := installFlags{
		path:      request.DefaultInstallPath,
		namespace: request.DefaultNamespace,
		port:      request.DefaultPort,
		username:  request.DefaultUsername,
		domain:    request.DefaultDomain,
	}
	cmd := &cobra.Command{
		Use:           string(b),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, a, b, &f)
		},
	}
	switch b {
	case request.Compose:
		cmd.Short = "Install with Docker Compose on this host"
		cmd.Flags().StringVar(&f.path, "path", f.path, "Parent directory of the installation (a \"cosy\" directory is created inside)")
		cmd.Flags().IntVar(&f.port, "port", f.port, "Host port the stack is exposed on")
	case request.Cluster:
		cmd.Short = "Install into a Kubernetes namespace"
		cmd.Flags().StringVar(&f.namespace, "namespace", f.namespace, "Namespace to install into")
	}
	cmd.Flags().StringVar(&f.username, "username", f.username, "Application admin username")
	cmd.Flags().StringVar(&f.domain, "domain", f.domain, "Domain the application is served on")
	cmd.Flags().BoolVar(&f.defaults, "default", false, "Accept defaults for every value not given as a flag; never prompt")
	a.settings.AddInstallFlags(cmd)
	decorateCommandHelp(cmd, "Install Flags")
	return cmd
}

func runInstall(cmd *cobra.Command, a *app, b request.Backend, f *installFlags) error {
	ctx := cmd.Context()
	prompter := ui.NewPrompter(a.in, a.out)
	interactive := prompter.Interactive && !f.defaults

	// Prompts cover only values the user did not pass explicitly.
	ask := func(flag, label string, value *string, validate func(string) error) error {
		if !interactive || cmd.Flags().Changed(flag) {
			return nil
		}
		answer, err := prompter.Ask(ctx, label, *value, validate)
		if err != nil {
			return err
		}
		*value = answer
		return nil
	}
	switch b {
	case request.Compose:
		if err := ask("path", "Install directory", &f.path, nil); err != nil {
			return err
		}
		port := strconv.Itoa(f.port)
		if err := ask("port", "Port", &port, func(s string) error {
			_, err := request.ParsePort(s)
			return err
		}); err != nil {
			return err
		}
		p, err := request.ParsePort(port)
		if err != nil {
			return err
		}
		f.port = p
	case request.Cluster:
		if err := ask("namespace", "Namespace", &f.namespace, func(s string) error {
			_, err := request.ValidateNamespace(s)
			return err
		}); err != nil {
			return err
		}
	}
	if err := ask("username", "Admin username", &f.username, nil); err != nil {
		return err
	}
	if err := ask("domain", "Domain", &f.domain, request.ValidateDomain); err != nil {
		return err
	}

	handle := f.path
	if b == request.Cluster {
		handle = f.namespace
	}
	req, err := request.New(request.Params{
		Backend:       b,
		Handle:        handle,
		AdminUsername: f.username,
		Port:          f.port,
		Domain:        f.domain,
		VerifyImages:  a.settings.VerifyImages,
	})
	if err != nil {
		return err
	}

	engine := &install.Engine{
		Registry:  a.registry(a),
		Settings:  a.settings,
		Log:       a.log,
		Observers: []steps.Observer{ui.NewStepConsole(a.out)},
	}
	res, err := engine.Install(ctx, req)
	if err != nil {
		return err
	}
	ui.PrintInstallSummary(a.out, res.Summary, res.Report)
	return nil
}
