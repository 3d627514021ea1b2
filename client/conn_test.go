package client_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rawburt/chatd/client"
	"github.com/rawburt/chatd/protocol"
)

func newClientOverPipe(t *testing.T) (*client.Conn, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	serverSide := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			serverSide <- c
		}
	}()

	c := client.New(zap.NewNop())
	if err := c.Connect(context.Background(), ln.Addr().String()); err != nil {
		t.Fatal(err)
	}

	var server net.Conn
	select {
	case server = <-serverSide:
	case <-time.After(time.Second):
		t.Fatal("server side never accepted")
	}

	t.Cleanup(func() {
		c.Disconnect()
		server.Close()
	})

	return c, server
}

func TestAutoPongOnPing(t *testing.T) {
	c, server := newClientOverPipe(t)

	if _, err := server.Write([]byte("PING\n")); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(server)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}

	if line != "PONG\n" {
		t.Fatalf("expected PONG, got %q", line)
	}

	select {
	case msg := <-c.Inbound():
		if msg.Command != protocol.CmdPing {
			t.Fatalf("expected PING surfaced to caller, got %s", msg.Command)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound PING")
	}
}

func TestSendLineForwardsVerbatim(t *testing.T) {
	c, server := newClientOverPipe(t)

	if err := c.SendLine([]byte("NAME @alice")); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(server)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}

	if line != "NAME @alice\n" {
		t.Fatalf("unexpected forwarded line: %q", line)
	}
}

func TestDoneClosesOnDisconnect(t *testing.T) {
	c, _ := newClientOverPipe(t)
	c.Disconnect()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("expected Done to close after Disconnect")
	}
}
