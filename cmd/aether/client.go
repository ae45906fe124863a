package main

import (
	"bufio"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/aether/internal/client"
)

// clientCmd is a line-oriented client: every stdin line is sent as one
// frame and every frame received is printed on its own line.
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Send commands to a running server",
	Long: `Connect to an Aether server and exchange JSON frames.

Each line read from stdin is sent as one frame. Every frame received,
including broadcast deliveries, is printed to stdout on its own line. The
client id greeting is printed to stderr.

When stdin ends the client waits for --linger before disconnecting, so
replies to the last commands are printed.

Example:
  aether client --url ws://127.0.0.1:3000/ws
  echo '{"get_string": {"key": "greeting"}}' | aether client --url ws://127.0.0.1:3000/ws
  aether client --url ws://127.0.0.1:3000/ws --client-id alice`,
	RunE: runClient,
}

func init() {
	rootCmd.AddCommand(clientCmd)

	flags := clientCmd.Flags()
	flags.String("url", "ws://127.0.0.1:3000/ws", "server WebSocket URL")
	flags.String("client-id", "", "client id to request (default: server assigned)")
	flags.Uint("retries", 5, "connection attempts before giving up")
	flags.Duration("linger", 500*time.Millisecond, "time to wait for replies after stdin ends")
}

func runClient(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	url, _ := flags.GetString("url")
	clientID, _ := flags.GetString("client-id")
	retries, _ := flags.GetUint("retries")
	linger, _ := flags.GetDuration("linger")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errOut := cmd.ErrOrStderr()
	c, err := client.Dial(ctx, url, client.Options{
		ClientID: clientID,
		Attempts: retries,
		OnRetry: func(n uint, err error) {
			fmt.Fprintf(errOut, "connect attempt %d failed: %v\n", n+1, err)
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	fmt.Fprintf(errOut, "connected as %s\n", c.ID())

	// print frames until the connection ends
	readDone := make(chan error, 1)
	out := cmd.OutOrStdout()
	go func() {
		for {
			frame, err := c.NextRaw(ctx)
			if err != nil {
				readDone <- err
				return
			}
			fmt.Fprintln(out, string(frame))
		}
	}()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				scanErr <- nil
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readDone:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection closed: %w", err)

		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				select {
				case <-time.After(linger):
				case <-readDone:
				case <-ctx.Done():
				}
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := c.SendRaw([]byte(line)); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}
