package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ReadLine reads one protocol line (without its trailing '\n') from r,
// enforcing MaxMessageBytes before any parsing is attempted. Framing lives
// here, outside Parse, so over-length input is rejected without allocating
// parse state, per the codec's size-bound contract. r must be sized with
// bufio.NewReaderSize(conn, MaxMessageBytes) so ReadSlice itself bounds how
// much an unterminated line can make it buffer.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			// Buffer filled without a newline: drain to the next '\n' so
			// framing resyncs on the following read instead of treating
			// the remainder of this oversized line as a new message.
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = r.ReadSlice('\n')
			}

			if err != nil && err != io.EOF {
				return nil, err
			}

			return nil, ErrTooLong
		}

		if err == io.EOF && len(line) > 0 {
			// Partial line with no terminator: the caller will see EOF on
			// the next read, treat it as a short read now.
			return nil, io.ErrUnexpectedEOF
		}

		return nil, err
	}

	if len(line) > MaxMessageBytes {
		return nil, ErrTooLong
	}

	out := make([]byte, len(line)-1)
	copy(out, line[:len(line)-1])

	return out, nil
}

// Parse parses a single line (with its trailing '\n' already stripped) into
// a Message.
func Parse(line []byte) (*Message, error) {
	if len(line)+1 > MaxMessageBytes {
		return nil, ErrTooLong
	}

	msg := &Message{}
	rest := line

	tok, after, hasMore := nextToken(rest)

	switch {
	case len(tok) > 0 && tok[0] == '#':
		room, err := NewRoom(tok)
		if err != nil {
			return nil, err
		}

		if !hasMore {
			return nil, fmt.Errorf("room prefix without user: %w", ErrBadPrefix)
		}

		userTok, after2, hasMore2 := nextToken(after)
		if len(userTok) == 0 || userTok[0] != '@' {
			return nil, fmt.Errorf("room prefix without user: %w", ErrBadPrefix)
		}

		user, err := NewUser(userTok)
		if err != nil {
			return nil, err
		}

		msg.Prefix = &Prefix{HasRoom: true, Room: room, User: user}
		rest, hasMore = after2, hasMore2
		_ = hasMore

	case len(tok) > 0 && tok[0] == '@':
		user, err := NewUser(tok)
		if err != nil {
			return nil, err
		}

		msg.Prefix = &Prefix{User: user}
		rest = after

	default:
		// No prefix; rest is unchanged.
	}

	tok, after, _ = nextToken(rest)
	if !isCommandToken(tok) {
		return nil, fmt.Errorf("%q: %w", string(tok), ErrBadCommand)
	}

	msg.Command = string(tok)
	rest = after

	for len(rest) > 0 {
		tok, after, hasMore = nextToken(rest)

		if len(tok) == 0 {
			break
		}

		switch tok[0] {
		case '@':
			user, err := NewUser(tok)
			if err != nil {
				return nil, err
			}

			msg.Params = append(msg.Params, user)

		case '#':
			room, err := NewRoom(tok)
			if err != nil {
				return nil, err
			}

			msg.Params = append(msg.Params, room)

		default:
			// This token, and everything after it, is the payload.
			msg.Payload = rest
			rest = nil
		}

		if rest == nil {
			break
		}

		if !hasMore {
			rest = nil
			break
		}

		rest = after
	}

	return msg, nil
}

// nextToken splits b on the first space, returning the token, the bytes
// after it (with the separating space consumed) and whether a separator was
// found at all.
func nextToken(b []byte) (tok, after []byte, hasMore bool) {
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		return b[:i], b[i+1:], true
	}

	return b, nil, false
}
