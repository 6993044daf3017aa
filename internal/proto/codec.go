// Package proto implements the wire codec: escape-aware text framing,
// item-based payload (de)serialization, and the ClientMessage/ServerMessage
// vocabularies. Grounded in original_source/src/proto/{codec,mod,message,
// serialize,deserialize}.rs.
package proto

import (
	"container/list"
	"strconv"
	"strings"
)

const (
	MessageEnd           = '\n'
	PayloadStart         = ':'
	PayloadItemSeparator = ';'
	Escape               = '\\'

	// MaxMessageLength is the ceiling on undelimited buffered text per
	// message; exceeding it without a terminator fails the connection.
	MaxMessageLength = 1024
)

// split breaks string into tokens on separator, honoring escape. An escaped
// character (including an escaped separator) never ends a token. A final
// token is always appended, even if empty, so that "a;" splits into
// ["a", ""].
func split(s string, separator, escape rune) []string {
	tokens := make([]string, 0, 4)
	var token strings.Builder
	isEscaped := false

	for _, c := range s {
		if isEscaped {
			isEscaped = false
		} else if c == escape {
			isEscaped = true
		} else if c == separator {
			tokens = append(tokens, token.String())
			token.Reset()
			continue
		}
		token.WriteRune(c)
	}
	tokens = append(tokens, token.String())
	return tokens
}

// find returns the byte offset of the first unescaped occurrence of toFind
// in s, or -1 if none exists. A run of escape immediately followed by
// escape matches toFind==escape at the second rune's position, mirroring
// the original's treatment of a doubled escape character.
func find(s string, toFind, escape rune) int {
	isEscaped := false
	for i, c := range s {
		if isEscaped {
			isEscaped = false
			if c == escape && toFind == escape {
				return i
			}
			continue
		}
		if c == escape {
			isEscaped = true
			continue
		}
		if c == toFind {
			return i
		}
	}
	return -1
}

// escapeChars prefixes every occurrence of any rune in chars with escape.
func escapeChars(s string, chars []rune, escape rune) string {
	var out strings.Builder
	for _, c := range s {
		for _, ec := range chars {
			if c == ec {
				out.WriteRune(escape)
				break
			}
		}
		out.WriteRune(c)
	}
	return out.String()
}

// unescapeChars reverses escapeChars: a backslash followed by a rune in
// chars is collapsed to the bare rune; a backslash followed by anything
// else is left untouched (it was not meant to escape that rune).
func unescapeChars(s string, chars []rune, escape rune) string {
	var out strings.Builder
	isEscape := false

	for _, c := range s {
		if isEscape {
			isEscape = false
			shouldUnescape := false
			for _, uc := range chars {
				if c == uc {
					shouldUnescape = true
					break
				}
			}
			if !shouldUnescape {
				out.WriteRune(escape)
			}
		} else if c == escape {
			isEscape = true
			continue
		}
		out.WriteRune(c)
	}
	return out.String()
}

// Payload is a FIFO of wire items. Producers append with PutString/PutInt;
// consumers pull in order with TakeString/TakeInt, failing with
// ErrNoMorePayloadItems on underrun.
type Payload struct {
	items *list.List
}

// NewPayload returns an empty payload.
func NewPayload() *Payload {
	return &Payload{items: list.New()}
}

func (p *Payload) PutString(s string) { p.items.PushBack(s) }

func (p *Payload) PutInt(n int) { p.items.PushBack(strconv.Itoa(n)) }

// TakeString pops the next item verbatim.
func (p *Payload) TakeString() (string, error) {
	front := p.items.Front()
	if front == nil {
		return "", ErrNoMorePayloadItems
	}
	p.items.Remove(front)
	return front.Value.(string), nil
}

// TakeUint8 pops the next item and parses it as a decimal byte.
func (p *Payload) TakeUint8() (uint8, error) {
	s, err := p.TakeString()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, &ParseIntError{Cause: err}
	}
	return uint8(n), nil
}

// TakeInt pops the next item and parses it as a decimal int.
func (p *Payload) TakeInt() (int, error) {
	s, err := p.TakeString()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ParseIntError{Cause: err}
	}
	return n, nil
}

// Empty reports whether the payload carries no items.
func (p *Payload) Empty() bool { return p.items.Len() == 0 }

// Serialize joins all remaining items with PayloadItemSeparator, escaping
// each item against [escape, separator]. Returns "", false for an empty
// payload: an empty payload is represented by omitting the ':' entirely.
func (p *Payload) Serialize() (string, bool) {
	if p.items.Len() == 0 {
		return "", false
	}
	parts := make([]string, 0, p.items.Len())
	for e := p.items.Front(); e != nil; e = e.Next() {
		parts = append(parts, escapeChars(e.Value.(string), []rune{Escape, PayloadItemSeparator}, Escape))
	}
	return strings.Join(parts, string(PayloadItemSeparator)), true
}

// DeserializePayload splits serialized on unescaped ';' and unescapes each
// item against [escape, separator]; items need not escape ':'.
func DeserializePayload(serialized string) *Payload {
	p := NewPayload()
	for _, part := range split(serialized, PayloadItemSeparator, Escape) {
		p.items.PushBack(unescapeChars(part, []rune{Escape, PayloadItemSeparator}, Escape))
	}
	return p
}
