package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/chatbridge/cmd/chatbridge/internal"
	"github.com/tinyland-inc/chatbridge/cmd/chatbridge/internal/relay"
	"github.com/tinyland-inc/chatbridge/pkg/bus"
	"github.com/tinyland-inc/chatbridge/pkg/logger"
)

const defaultChatType = "say"

// How long a single -m line waits for its delivery before the console exits.
const singleLineTimeout = 10 * time.Second

var errEmptyLine = errors.New("empty line")

// ParseLine turns "[type] sender@world: text" into a chat event. Missing
// parts fall back to the say type and defaultSender.
func ParseLine(line, defaultSender string) (bus.ChatEvent, error) {
	line = strings.TrimSpace(line)
	ev := bus.ChatEvent{Type: defaultChatType, Timestamp: time.Now()}

	if strings.HasPrefix(line, "[") {
		if end := strings.Index(line, "]"); end > 1 {
			ev.Type = strings.TrimSpace(line[1:end])
			line = strings.TrimSpace(line[end+1:])
		}
	}

	sender := defaultSender
	if idx := strings.Index(line, ":"); idx > 0 && !strings.ContainsAny(line[:idx], " \t") &&
		(idx == len(line)-1 || line[idx+1] == ' ') {
		sender = line[:idx]
		line = strings.TrimSpace(line[idx+1:])
	}
	ev.Sender, ev.World, _ = strings.Cut(sender, "@")

	if line == "" {
		return bus.ChatEvent{}, errEmptyLine
	}
	ev.Message = line
	return ev, nil
}

func consoleCmd(message, sender string, debug bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	relay.ApplyLogLevel(cfg, debug)

	stack, err := relay.NewStack(cfg, relay.StackOptions{})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := stack.Start(ctx); err != nil {
		return err
	}
	defer stack.Shutdown()

	if message != "" {
		ev, err := ParseLine(message, sender)
		if err != nil {
			return err
		}
		if err := stack.Bus.PublishInbound(ctx, ev); err != nil {
			return err
		}
		waitDelivered(stack, 1)
		printStats(stack)
		return nil
	}

	fmt.Printf("%s Console mode (Ctrl+C to exit)\n\n", internal.Logo)
	interactiveMode(ctx, stack, sender)
	printStats(stack)
	return nil
}

// waitDelivered waits until n events have been received and each one was
// sent, suppressed, filtered or failed.
func waitDelivered(stack *relay.Stack, n int64) {
	deadline := time.Now().Add(singleLineTimeout)
	for time.Now().Before(deadline) {
		s := stack.Relay.Stats()
		if s.Received >= n && s.Sent+s.Suppressed+s.Filtered+s.Failed >= n {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	logger.WarnC("console", "Timed out waiting for delivery")
}

func printStats(stack *relay.Stack) {
	s := stack.Relay.Stats()
	fmt.Printf("sent=%d suppressed=%d filtered=%d failed=%d deleted=%d\n",
		s.Sent, s.Suppressed, s.Filtered, s.Failed, s.Deleted)
}

func interactiveMode(ctx context.Context, stack *relay.Stack, sender string) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s %s: ", internal.Logo, sender),
		HistoryFile:     filepath.Join(os.TempDir(), ".chatbridge_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctx, stack, sender)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleLine(ctx, stack, line, sender) {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, stack *relay.Stack, sender string) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s %s: ", internal.Logo, sender)
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleLine(ctx, stack, line, sender) {
			return
		}
	}
}

// handleLine publishes one console line. It returns false when the
// console should exit.
func handleLine(ctx context.Context, stack *relay.Stack, line, sender string) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return true
	case "exit", "quit":
		fmt.Println("Goodbye!")
		return false
	case "stats":
		printStats(stack)
		return true
	}

	ev, err := ParseLine(input, sender)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return true
	}
	if err := stack.Bus.PublishInbound(ctx, ev); err != nil {
		fmt.Printf("Error: %v\n", err)
		return false
	}
	return true
}
