// chatbridge relays game chat to a Discord webhook and removes the
// duplicates that appear when several relays watch the same chat.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/chatbridge/cmd/chatbridge/internal"
	"github.com/tinyland-inc/chatbridge/cmd/chatbridge/internal/config"
	"github.com/tinyland-inc/chatbridge/cmd/chatbridge/internal/console"
	"github.com/tinyland-inc/chatbridge/cmd/chatbridge/internal/relay"
	"github.com/tinyland-inc/chatbridge/cmd/chatbridge/internal/version"
)

func NewChatbridgeCommand() *cobra.Command {
	short := fmt.Sprintf("%s chatbridge - game chat to Discord relay v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "chatbridge",
		Short:   short,
		Example: "chatbridge relay --debug",
	}

	cmd.AddCommand(
		relay.NewRelayCommand(),
		console.NewConsoleCommand(),
		config.NewConfigCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewChatbridgeCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
