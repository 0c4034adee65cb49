// Package resp implements the slice of the Redis serialization protocol the
// scripting engine needs: reply constructors for command implementations,
// decoding of command replies into Lua values, and encoding of a script's
// return value back into a single wire reply.
//
// Exactly five reply tags exist: ':' integer, '$' bulk, '+' status,
// '-' error, '*' multi-bulk. No other component touches raw reply bytes on
// behalf of a script.
package resp

import (
	"fmt"
	"strconv"
	"strings"
)

// Integer formats an integer reply.
func Integer(v int64) []byte {
	return []byte(":" + strconv.FormatInt(v, 10) + "\r\n")
}

// Bulk formats a bulk string reply. Embedded NUL and CRLF bytes are legal;
// the length prefix frames the payload.
func Bulk(s string) []byte {
	return []byte("$" + strconv.Itoa(len(s)) + "\r\n" + s + "\r\n")
}

// Nil is the nil bulk reply.
func Nil() []byte {
	return []byte("$-1\r\n")
}

// NilArray is the nil multi-bulk reply.
func NilArray() []byte {
	return []byte("*-1\r\n")
}

// Status formats a single-line status reply. The line must not contain CR or
// LF; SanitizeLine is applied defensively.
func Status(s string) []byte {
	return []byte("+" + SanitizeLine(s) + "\r\n")
}

// Error formats a single-line error reply.
func Error(msg string) []byte {
	return []byte("-" + SanitizeLine(msg) + "\r\n")
}

// Array concatenates already-encoded replies under a multi-bulk header.
func Array(elems ...[]byte) []byte {
	out := []byte("*" + strconv.Itoa(len(elems)) + "\r\n")
	for _, e := range elems {
		out = append(out, e...)
	}
	return out
}

// SanitizeLine remaps CR and LF to spaces so a payload cannot break the
// single-line framing of status and error replies.
func SanitizeLine(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, s)
}

// readLine returns the bytes before the next CRLF and the remainder after it.
func readLine(b []byte) (line, rest []byte, err error) {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return b[:i], b[i+2:], nil
		}
	}
	return nil, nil, fmt.Errorf("resp: unterminated line")
}
