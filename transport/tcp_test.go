package transport_test

import (
	"bufio"
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/rawburt/chatd/hub"
	"github.com/rawburt/chatd/transport"
)

var _ = Describe("transport", func() {
	Describe("TCP", func() {
		It("listens on the desired port and registers a session", func() {
			tcp, h := makeTCPServer(6682)

			defer func() {
				Expect(tcp.Close()).To(Succeed())
				h.Stop()
				h.Wait()
			}()

			c, err := net.Dial("tcp", "0.0.0.0:6682")
			Expect(err).To(Succeed())
			defer c.Close()

			line, err := readLine(c)
			Expect(err).To(Succeed())
			Expect(string(line)).To(Equal("CONNECTED"))

			_, err = c.Write([]byte("NAME @alice\n"))
			Expect(err).To(Succeed())

			line, err = readLine(c)
			Expect(err).To(Succeed())
			Expect(string(line)).To(Equal("REGISTERED"))
		})

		It("closes the connection when the client QUITs", func() {
			tcp, h := makeTCPServer(6683)

			defer func() {
				Expect(tcp.Close()).To(Succeed())
				h.Stop()
				h.Wait()
			}()

			c, err := net.Dial("tcp", "0.0.0.0:6683")
			Expect(err).To(Succeed())
			defer c.Close()

			_, err = readLine(c)
			Expect(err).To(Succeed())

			_, err = c.Write([]byte("QUIT\n"))
			Expect(err).To(Succeed())

			waitForClose(c)
		})
	})
})

func waitForClose(conn net.Conn) {
	timeout := time.After(5 * time.Second)

waitForClose:
	for {
		select {
		case <-timeout:
			Fail("the client was never closed by the server")
			break waitForClose

		case <-time.After(10 * time.Millisecond):
			one := make([]byte, 1)
			Expect(conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))).To(Succeed())
			_, err := conn.Read(one)

			if err != nil {
				if _, ok := err.(net.Error); ok && err.(net.Error).Timeout() {
					continue
				}
				break waitForClose
			}
		}
	}
}

func makeTCPServer(port int) (*transport.TCP, *hub.Hub) {
	log, err := zap.NewDevelopment()
	Expect(err).To(Succeed())

	h := hub.New(log, nil)
	go h.Run()

	tcp := transport.NewTCP(transport.Options{
		Log:          log,
		NumListeners: 1,
		Port:         port,
		Hub:          h,
	})

	err = tcp.Start(context.Background())
	Expect(err).To(Succeed())

	time.Sleep(100 * time.Millisecond)

	return tcp, h
}

func readLine(conn net.Conn) ([]byte, error) {
	r := bufio.NewReader(conn)

	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	return line[:len(line)-1], nil
}
