// File: cmd/cosyctl/help.go
// Brief: Shared help template with a per-command flag heading.

package main

import (
	"strings"

	"github.com/spf13/cobra"
)

const localFlagsHeadingKey = "localFlagsHeading"

const commandHelpTemplate = `{{with or .Long .Short}}{{. | trimTrailingWhitespaces}}{{end}}

Usage:
  {{.UseLine}}{{if .HasAvailableSubCommands}}

Subcommands:
{{range .Commands}}{{if (and .IsAvailableCommand (ne .Name "help"))}}  {{rpad .Name .NamePadding}} {{.Short}}
{{end}}{{end}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}

{{with index .Annotations "localFlagsHeading"}}{{.}}{{else}}Flags{{end}}:
{{if .HasAvailableLocalFlags}}{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{else}}  (none){{end}}
{{if .HasAvailableInheritedFlags}}
Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}`

// decorateCommandHelp installs the shared help template and names the local
// flag section.
func decorateCommandHelp(cmd *cobra.Command, heading string) {
	if strings.TrimSpace(heading) == "" {
		heading = "Flags"
	}
	if cmd.Annotations == nil {
		cmd.Annotations = make(map[string]string)
	}
	cmd.Annotations[localFlagsHeadingKey] = heading
	cmd.SetHelpTemplate(commandHelpTemplate)
}
