package protocol_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/rawburt/chatd/protocol"
)

var _ = Describe("Parse", func() {
	It("parses a bare command", func() {
		msg, err := protocol.Parse([]byte("ROOMS"))
		Expect(err).To(Succeed())
		Expect(msg.Command).To(Equal("ROOMS"))
		Expect(msg.Prefix).To(BeNil())
		Expect(msg.Params).To(BeEmpty())
		Expect(msg.Payload).To(BeEmpty())
	})

	It("parses NAME with a user param", func() {
		msg, err := protocol.Parse([]byte("NAME @alice"))
		Expect(err).To(Succeed())
		Expect(msg.Command).To(Equal("NAME"))
		Expect(msg.Params).To(HaveLen(1))
		Expect(msg.Params[0]).To(Equal(mustUser("alice")))
	})

	It("parses JOIN with a room param", func() {
		msg, err := protocol.Parse([]byte("JOIN #sports"))
		Expect(err).To(Succeed())
		Expect(msg.Command).To(Equal("JOIN"))
		Expect(msg.Params).To(HaveLen(1))
		Expect(msg.Params[0]).To(Equal(mustRoom("sports")))
	})

	It("parses SAY to a room with a payload containing spaces", func() {
		msg, err := protocol.Parse([]byte("SAY #sports hello everybody!"))
		Expect(err).To(Succeed())
		Expect(msg.Command).To(Equal("SAY"))
		Expect(msg.Params).To(Equal([]protocol.Token{mustRoom("sports")}))
		Expect(string(msg.Payload)).To(Equal("hello everybody!"))
	})

	It("parses SAY to a user", func() {
		msg, err := protocol.Parse([]byte("SAY @bob are you home?"))
		Expect(err).To(Succeed())
		Expect(msg.Params).To(Equal([]protocol.Token{mustUser("bob")}))
		Expect(string(msg.Payload)).To(Equal("are you home?"))
	})

	It("parses a room+user prefixed fan-out message", func() {
		msg, err := protocol.Parse([]byte("#sports @alice JOINED"))
		Expect(err).To(Succeed())
		Expect(msg.Prefix).NotTo(BeNil())
		Expect(msg.Prefix.HasRoom).To(BeTrue())
		Expect(msg.Prefix.Room).To(Equal(mustRoom("sports")))
		Expect(msg.Prefix.User).To(Equal(mustUser("alice")))
		Expect(msg.Command).To(Equal("JOINED"))
	})

	It("parses a user-prefixed private SAID message", func() {
		msg, err := protocol.Parse([]byte("@alice SAID are you home?"))
		Expect(err).To(Succeed())
		Expect(msg.Prefix.HasRoom).To(BeFalse())
		Expect(msg.Prefix.User).To(Equal(mustUser("alice")))
		Expect(msg.Command).To(Equal("SAID"))
		Expect(string(msg.Payload)).To(Equal("are you home?"))
	})

	It("rejects a line over the size cap", func() {
		line := strings.Repeat("a", protocol.MaxMessageBytes)
		_, err := protocol.Parse([]byte(line))
		Expect(errors.Is(err, protocol.ErrTooLong)).To(BeTrue())
	})

	It("rejects a command that isn't all uppercase letters", func() {
		_, err := protocol.Parse([]byte("say #sports hi"))
		Expect(errors.Is(err, protocol.ErrBadCommand)).To(BeTrue())
	})

	It("rejects an ident that is too short", func() {
		_, err := protocol.Parse([]byte("NAME @a"))
		Expect(errors.Is(err, protocol.ErrBadIdent)).To(BeTrue())
	})

	It("rejects an ident that is too long", func() {
		_, err := protocol.Parse([]byte("NAME @" + strings.Repeat("a", 20)))
		Expect(errors.Is(err, protocol.ErrBadIdent)).To(BeTrue())
	})

	It("rejects an ident with an invalid byte", func() {
		_, err := protocol.Parse([]byte("NAME @al!ce"))
		Expect(errors.Is(err, protocol.ErrBadIdent)).To(BeTrue())
	})

	It("rejects a room prefix with no following user", func() {
		_, err := protocol.Parse([]byte("#sports"))
		Expect(errors.Is(err, protocol.ErrBadPrefix)).To(BeTrue())
	})

	It("round-trips a simple message through Serialize", func() {
		msg := protocol.NewMessage("JOIN", mustRoom("sports"))
		line, err := protocol.Serialize(msg)
		Expect(err).To(Succeed())

		parsed, err := protocol.Parse(line[:len(line)-1])
		Expect(err).To(Succeed())
		Expect(parsed.Command).To(Equal(msg.Command))
		Expect(parsed.Params).To(Equal(msg.Params))
	})
})

func mustUser(name string) protocol.User {
	u, err := protocol.NewUser([]byte("@" + name))
	if err != nil {
		panic(err)
	}

	return u
}

func mustRoom(name string) protocol.Room {
	r, err := protocol.NewRoom([]byte("#" + name))
	if err != nil {
		panic(err)
	}

	return r
}
