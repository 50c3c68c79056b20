package console

import (
	"github.com/spf13/cobra"
)

func NewConsoleCommand() *cobra.Command {
	var (
		message string
		sender  string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:     "console",
		Aliases: []string{"c"},
		Short:   "Inject chat lines into a local relay",
		Long: `Runs the relay without a game client and reads chat lines from the terminal.

Lines have the form "[type] sender@world: text". The type and the sender are
optional; plain text is sent as a say line from --sender.`,
		Example: `  chatbridge console
  chatbridge console --sender Rhoda@Zalera
  chatbridge console -m "[fc] Rhoda@Zalera: gm"`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return consoleCmd(message, sender, debug)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Send a single line and exit")
	cmd.Flags().StringVarP(&sender, "sender", "s", "Console", "Default sender for lines without one")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
