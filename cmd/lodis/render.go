package main

import (
	"fmt"
	"strconv"
	"strings"
)

// renderReply formats an encoded wire reply the way an interactive client
// prints it: quoted bulk strings, "(integer) n", "(error) ...", numbered
// array elements.
func renderReply(reply []byte) string {
	out, _, err := renderValue(reply, 0)
	if err != nil {
		return fmt.Sprintf("(malformed reply: %v)", err)
	}
	return out
}

func renderValue(b []byte, depth int) (string, []byte, error) {
	if len(b) == 0 {
		return "", nil, fmt.Errorf("empty reply")
	}
	line, rest, err := cutLine(b[1:])
	if err != nil {
		return "", nil, err
	}

	switch b[0] {
	case '+':
		return line, rest, nil
	case '-':
		return "(error) " + line, rest, nil
	case ':':
		return "(integer) " + line, rest, nil
	case '$':
		n, err := strconv.Atoi(line)
		if err != nil {
			return "", nil, fmt.Errorf("bad bulk length %q", line)
		}
		if n < 0 {
			return "(nil)", rest, nil
		}
		if len(rest) < n+2 {
			return "", nil, fmt.Errorf("truncated bulk string")
		}
		return strconv.Quote(string(rest[:n])), rest[n+2:], nil
	case '*':
		n, err := strconv.Atoi(line)
		if err != nil {
			return "", nil, fmt.Errorf("bad array length %q", line)
		}
		if n < 0 {
			return "(nil)", rest, nil
		}
		if n == 0 {
			return "(empty array)", rest, nil
		}
		indent := strings.Repeat("   ", depth)
		var sb strings.Builder
		for i := 0; i < n; i++ {
			var elem string
			elem, rest, err = renderValue(rest, depth+1)
			if err != nil {
				return "", nil, err
			}
			if i > 0 {
				sb.WriteString("\n")
				sb.WriteString(indent)
			}
			fmt.Fprintf(&sb, "%d) %s", i+1, elem)
		}
		return sb.String(), rest, nil
	default:
		return "", nil, fmt.Errorf("unknown reply tag %q", b[0])
	}
}

func cutLine(b []byte) (string, []byte, error) {
	i := strings.Index(string(b), "\r\n")
	if i < 0 {
		return "", nil, fmt.Errorf("missing line terminator")
	}
	return string(b[:i]), b[i+2:], nil
}
