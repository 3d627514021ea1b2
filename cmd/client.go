package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rawburt/chatd/client"
	"github.com/rawburt/chatd/internal/env"
	"github.com/rawburt/chatd/protocol"
)

var (
	clientHost string
	clientPort int
)

func init() {
	flags := ClientCmd.PersistentFlags()

	flags.StringVarP(&clientHost, "host", "a", "127.0.0.1", "The chatd server host to connect to")
	flags.IntVarP(&clientPort, "port", "p", 5456, "The chatd server port to connect to")
}

var ClientCmd = &cobra.Command{
	Use:   "client",
	Short: "Connect to a chatd server",
	Long: `Connect to a chatd server and exchange protocol lines over stdin/stdout

Usage
	chatd client

`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		log, err := env.MakeLogger()
		if err != nil {
			return err
		}

		c := client.New(log.Named("client"))

		addr := net.JoinHostPort(clientHost, fmt.Sprintf("%d", clientPort))
		if err := c.Connect(ctx, addr); err != nil {
			return err
		}
		defer c.Disconnect()

		lines := make(chan []byte)
		go readStdin(lines)

		registered := false

		for {
			select {
			case <-ctx.Done():
				return nil

			case <-c.Done():
				return nil

			case line, ok := <-lines:
				if !ok {
					return c.SendLine([]byte("QUIT"))
				}

				if !registered && !bytes.HasPrefix(line, []byte(protocol.CmdName)) {
					fmt.Fprintln(os.Stderr, "! NAME @<you> required before anything else")
					continue
				}

				if err := c.SendLine(line); err != nil {
					fmt.Fprintln(os.Stderr, "!", err)
				}

			case msg := <-c.Inbound():
				if msg.Command == protocol.CmdRegistered {
					registered = true
				}

				printMessage(msg)
			}
		}
	},
}

func readStdin(lines chan<- []byte) {
	defer close(lines)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines <- []byte(scanner.Text())
	}
}

func printMessage(msg *protocol.Message) {
	if msg.Prefix != nil {
		fmt.Print(msg.Prefix.String(), " ")
	}

	fmt.Print(msg.Command)

	for _, p := range msg.Params {
		fmt.Print(" ", p.String())
	}

	if len(msg.Payload) > 0 {
		fmt.Print(" ", string(msg.Payload))
	}

	fmt.Println()
}
