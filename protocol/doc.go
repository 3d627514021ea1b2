// Package protocol implements the wire grammar chatd uses between clients
// and the server, and between server and clients for fan-out.
//
// It aims to be
//
// - trivial to parse by hand
// - strict, so malformed input is always rejected the same way
// - human readable
//
// Lines are '\n' delimited and at most 1024 bytes including the
// terminator. A line is:
//
//	[prefix SP] command [SP param]... [SP payload]
//
// - `prefix` is either a user token (`@name`), or a room token followed by a
//   user token (`#room @name`). It is only ever present on messages the
//   server emits (fan-out); client requests never carry one.
// - `command` is one or more uppercase ASCII letters.
// - `param` is a user token or a room token. Parsing stops at the first
//   token that isn't one of those, or at the end of the line.
// - `payload`, if present, is everything after the last param, and may
//   itself contain spaces.
//
// Examples:
//
//	NAME @alice
//	REGISTERED
//	#sports @alice JOINED
//	SAY #sports hello everybody!
//	#sports @alice SAID hello everybody!
//	@alice SAID are you home?
//	ERROR room unknown #sports
package protocol
