package protocol_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/rawburt/chatd/protocol"
)

var _ = Describe("Serialize", func() {
	It("serializes a bare command", func() {
		line, err := protocol.Serialize(protocol.NewMessage("REGISTERED"))
		Expect(err).To(Succeed())
		Expect(string(line)).To(Equal("REGISTERED\n"))
	})

	It("serializes a room-prefixed JOINED fan-out", func() {
		msg := protocol.NewMessage("JOINED").WithRoomPrefix(mustRoom("sports"), mustUser("alice"))
		line, err := protocol.Serialize(msg)
		Expect(err).To(Succeed())
		Expect(string(line)).To(Equal("#sports @alice JOINED\n"))
	})

	It("serializes a private SAID with a payload", func() {
		msg := protocol.NewMessage("SAID").WithPrefix(mustUser("alice")).WithPayload("are you home?")
		line, err := protocol.Serialize(msg)
		Expect(err).To(Succeed())
		Expect(string(line)).To(Equal("@alice SAID are you home?\n"))
	})

	It("serializes an ERROR message", func() {
		line, err := protocol.Serialize(protocol.ErrorMessage("room unknown #sports"))
		Expect(err).To(Succeed())
		Expect(string(line)).To(Equal("ERROR room unknown #sports\n"))
	})

	It("refuses to serialize a message over the size cap", func() {
		msg := protocol.NewMessage("SAID").
			WithPrefix(mustUser("alice")).
			WithPayload(strings.Repeat("a", protocol.MaxMessageBytes))

		_, err := protocol.Serialize(msg)
		Expect(errors.Is(err, protocol.ErrMessageTooLong)).To(BeTrue())
	})
})
