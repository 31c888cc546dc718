// main.go bootstraps cosyctl: it builds the root Cobra command, binds
// configuration and executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/example/cosyctl/internal/backend"
	"github.com/example/cosyctl/internal/backend/cluster"
	"github.com/example/cosyctl/internal/backend/compose"
	"github.com/example/cosyctl/internal/config"
	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/execx"
	"github.com/example/cosyctl/internal/logging"
	"github.com/go-logr/logr"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	err := newRootCommand(a).ExecuteContext(ctx)
	code := handleError(err, os.Stderr)
	cancel()
	os.Exit(code)
}

// app carries the state shared by every command.
type app struct {
	settings *config.Settings
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	log      logr.Logger
	// registry builds the available backends once flags are parsed.
	registry func(a *app) backend.Registry
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		settings: config.NewSettings(),
		in:       in,
		out:      out,
		errOut:   errOut,
		log:      logr.Discard(),
		registry: defaultRegistry,
	}
}

func defaultRegistry(a *app) backend.Registry {
	return backend.NewRegistry(
		compose.New(compose.Options{
			Settings: a.settings,
			Runner:   execx.NewOS(),
			Log:      a.log,
			Out:      a.out,
		}),
		cluster.New(cluster.Options{
			Settings: a.settings,
			Log:      a.log,
		}),
	)
}

func newRootCommand(a *app) *cobra.Command {
	var loadConfig func() error
	cmd := &cobra.Command{
		Use:           "cosyctl",
		Short:         "Install and remove the Cosy stack on Docker Compose or Kubernetes",
		Long:          "cosyctl provisions the Cosy application with its database, log store and metrics store, and tears it down again.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(); err != nil {
				return deployerr.New(deployerr.InvalidInput, fmt.Errorf("load config: %w", err))
			}
			log, err := logging.New(a.settings.LogLevel, a.errOut)
			if err != nil {
				return deployerr.New(deployerr.InvalidInput, err)
			}
			logging.RedirectKlog(log)
			a.log = log
			if err := a.settings.Validate(); err != nil {
				return deployerr.New(deployerr.InvalidInput, err)
			}
			return nil
		},
	}
	cmd.SetIn(a.in)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)
	a.settings.BindGlobalFlags(cmd.PersistentFlags())
	cmd.PersistentFlags().String("config", "", "Path to a cosyctl config file (default: search $XDG_CONFIG_HOME/cosyctl, ~/.config/cosyctl, ~/.cosyctl)")

	installCmd := newInstallCommand(a)
	uninstallCmd := newUninstallCommand(a)
	cmd.AddCommand(installCmd, uninstallCmd, newVersionCommand())
	cmd.Example = `  # Install with Docker Compose on port 8080 without questions
  cosyctl install compose --port 8080 --domain cosy.example.com --default

  # Install into the "cosy" namespace of the current kube context
  cosyctl install cluster --domain games.example.org

  # Remove a compose install without a confirmation prompt
  cosyctl uninstall compose --path /srv --yes`
	decorateCommandHelp(cmd, "Global Flags")

	commands := []*cobra.Command{cmd}
	commands = append(commands, installCmd.Commands()...)
	commands = append(commands, uninstallCmd.Commands()...)
	loadConfig = bindViper(cmd, commands...)
	return cmd
}

// bindViper returns a loader that lets COSYCTL_* environment variables and
// the config file supply any flag the user did not set explicitly.
func bindViper(root *cobra.Command, commands ...*cobra.Command) func() error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("COSYCTL")
	v.AutomaticEnv()

	return func() error {
		configFile := os.Getenv("COSYCTL_CONFIG")
		if f := root.PersistentFlags().Lookup("config"); f != nil && f.Changed {
			configFile = f.Value.String()
		}
		configureConfigFile(v, configFile)
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				return err
			}
		}
		if err := readConfigFile(v, configFile != ""); err != nil {
			return err
		}
		for _, cmd := range commands {
			for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed || f.Name == "config" || !v.IsSet(f.Name) {
						return
					}
					val := v.Get(f.Name)
					if list, ok := val.([]any); ok {
						parts := make([]string, 0, len(list))
						for _, item := range list {
							parts = append(parts, fmt.Sprint(item))
						}
						val = strings.Join(parts, ",")
					}
					if s := fmt.Sprintf("%v", val); s != "" {
						_ = f.Value.Set(s)
					}
				})
			}
		}
		return nil
	}
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func configSearchDirs() []string {
	added := make(map[string]struct{})
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := added[path]; ok {
			return
		}
		added[path] = struct{}{}
		dirs = append(dirs, path)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		add(filepath.Join(xdg, "cosyctl"))
	}
	if home, err := homedir.Dir(); err == nil {
		add(filepath.Join(home, ".config", "cosyctl"))
		add(filepath.Join(home, ".cosyctl"))
	}
	return dirs
}

// handleError prints err with its hint and returns the process exit code.
// A cancelled confirmation is not a failure.
func handleError(err error, w io.Writer) int {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if deployerr.Cancelled(err) {
		fmt.Fprintf(w, "Cancelled: %s\n", err)
		if hint := deployerr.HintOf(err); hint != "" {
			fmt.Fprintf(w, "Hint: %s\n", hint)
		}
		return 0
	}
	hint := deployerr.HintOf(err)
	switch {
	case hint != "":
	case errors.Is(err, context.Canceled):
		hint = "interrupted; files and resources created so far were left in place."
	case errors.Is(err, context.DeadlineExceeded):
		hint = "the operation timed out; verify network connectivity and retry."
	case apierrors.IsUnauthorized(err):
		hint = "kubeconfig credentials were rejected. Run 'kubectl config view' to confirm the active user."
	case apierrors.IsForbidden(err):
		hint = "missing Kubernetes permissions; cosyctl needs to manage namespaces, secrets and workloads."
	}
	fmt.Fprintf(w, "Error: %s\n", err)
	if hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
	return 1
}
