package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyVerb       = errors.New("protocol: empty verb")
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds datagram limit")
	ErrNotNumber       = errors.New("protocol: not a decimal integer")
)

// Decoded is the result of Decode: either Recognized or Unrecognized.
type Decoded interface {
	decoded()
}

type Recognized struct {
	Verb Verb
	Args []string
}

type Unrecognized struct {
	Raw string
}

func (Recognized) decoded()   {}
func (Unrecognized) decoded() {}

// Tail joins the arguments from index i onwards with single spaces.
// Free text (race paragraphs, error reasons) is always the last argument.
func (r Recognized) Tail(i int) string {
	if i >= len(r.Args) {
		return ""
	}
	return strings.Join(r.Args[i:], " ")
}

func (r Recognized) String() string {
	if len(r.Args) == 0 {
		return string(r.Verb)
	}
	return string(r.Verb) + " " + strings.Join(r.Args, " ")
}

func Encode(verb Verb, args ...string) ([]byte, error) {
	if verb == "" {
		return nil, ErrEmptyVerb
	}
	var sb strings.Builder
	sb.WriteString(string(verb))
	for _, a := range args {
		sb.WriteByte(' ')
		sb.WriteString(a)
	}
	if sb.Len() > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, sb.Len())
	}
	return []byte(sb.String()), nil
}

// Decode splits a datagram on whitespace. It never fails: an empty payload or
// an unknown first token comes back as Unrecognized.
func Decode(b []byte) Decoded {
	raw := string(b)
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Unrecognized{Raw: raw}
	}
	v := Verb(fields[0])
	if !IsKnown(v) {
		return Unrecognized{Raw: raw}
	}
	return Recognized{Verb: v, Args: fields[1:]}
}

// ParsePercent parses a decimal ASCII integer. Range checks are left to the caller.
func ParsePercent(s string) (int, error) {
	digits := strings.TrimPrefix(s, "-")
	if digits == "" {
		return 0, ErrNotNumber
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrNotNumber, s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNumber, s)
	}
	return n, nil
}
