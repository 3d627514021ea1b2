package protocol

import "bytes"

// Serialize encodes m as a single '\n'-terminated protocol line. It refuses
// to produce a line longer than MaxMessageBytes; callers that hit this are
// building malformed payloads, not handling attacker input.
func Serialize(m *Message) ([]byte, error) {
	var buf bytes.Buffer

	if m.Prefix != nil {
		buf.WriteString(m.Prefix.String())
		buf.WriteByte(' ')
	}

	buf.WriteString(m.Command)

	for _, p := range m.Params {
		buf.WriteByte(' ')
		buf.WriteString(p.String())
	}

	if len(m.Payload) > 0 {
		buf.WriteByte(' ')
		buf.Write(m.Payload)
	}

	buf.WriteByte('\n')

	if buf.Len() > MaxMessageBytes {
		return nil, ErrMessageTooLong
	}

	return buf.Bytes(), nil
}

// ErrorMessage builds a Message for `ERROR <reason>`.
func ErrorMessage(reason string) *Message {
	return &Message{Command: CmdError, Payload: []byte(reason)}
}
