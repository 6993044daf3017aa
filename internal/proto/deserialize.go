package proto

import (
	"strings"
	"unicode/utf8"

	"github.com/miroslavkrysl/bssrv/internal/types"
)

func takePosition(p *Payload) (types.Position, error) {
	row, err := p.TakeUint8()
	if err != nil {
		return types.Position{}, err
	}
	col, err := p.TakeUint8()
	if err != nil {
		return types.Position{}, err
	}
	pos, err := types.NewPosition(row, col)
	if err != nil {
		return types.Position{}, err
	}
	return pos, nil
}

func takeOrientation(p *Payload) (types.Orientation, error) {
	s, err := p.TakeString()
	if err != nil {
		return 0, err
	}
	o, ok := types.OrientationFromString(s)
	if !ok {
		return 0, ErrInvalidEnumValue
	}
	return o, nil
}

func takeShipKind(p *Payload) (types.ShipKind, error) {
	s, err := p.TakeString()
	if err != nil {
		return 0, err
	}
	kind, ok := types.ShipKindFromCode(s)
	if !ok {
		return 0, ErrInvalidEnumValue
	}
	return kind, nil
}

func takePlacement(p *Payload) (types.Placement, error) {
	pos, err := takePosition(p)
	if err != nil {
		return types.Placement{}, err
	}
	orientation, err := takeOrientation(p)
	if err != nil {
		return types.Placement{}, err
	}
	return types.Placement{Anchor: pos, Orientation: orientation}, nil
}

// takeLayout reads the five wire-format "<kind>;<row>;<col>;<orient>"
// entries announced by a leading count item.
func takeLayout(p *Payload) (types.Layout, error) {
	count, err := p.TakeInt()
	if err != nil {
		return nil, err
	}
	if count != len(types.AllShipKinds) {
		return nil, ErrInvalidEnumValue
	}

	layout := make(types.Layout, count)
	for i := 0; i < count; i++ {
		kind, err := takeShipKind(p)
		if err != nil {
			return nil, err
		}
		placement, err := takePlacement(p)
		if err != nil {
			return nil, err
		}
		if _, exists := layout[kind]; exists {
			return nil, ErrInvalidEnumValue
		}
		layout[kind] = placement
	}
	return layout, nil
}

// DeserializeClientMessage parses one framed, unescaped line (without its
// terminator) into a ClientMessage. The inbound vocabulary is exactly the
// seven headers of §6: alive, login, join_game, layout, shoot, leave_game,
// logout.
func DeserializeClientMessage(line string) (ClientMessage, error) {
	var header, payloadStr string
	if i := find(line, PayloadStart, Escape); i >= 0 {
		header = line[:i]
		payloadStr = line[i+1:]
	} else {
		header = line
	}

	payload := DeserializePayload(payloadStr)

	switch header {
	case "alive":
		return Alive{}, nil
	case "login":
		s, err := payload.TakeString()
		if err != nil {
			return nil, wrapStruct(FieldNickname, err)
		}
		nickname, err := types.NewNickname(s)
		if err != nil {
			return nil, wrapStruct(FieldNickname, err)
		}
		return Login{Nickname: nickname}, nil
	case "join_game":
		return JoinGame{}, nil
	case "layout":
		layout, err := takeLayout(payload)
		if err != nil {
			return nil, wrapStruct(FieldLayout, err)
		}
		return SubmitLayout{Layout: layout}, nil
	case "shoot":
		pos, err := takePosition(payload)
		if err != nil {
			return nil, wrapStruct(FieldPosition, err)
		}
		return Shoot{Position: pos}, nil
	case "leave_game":
		return LeaveGame{}, nil
	case "logout":
		return Logout{}, nil
	default:
		return nil, &DeserializeError{Cause: ErrUnknownHeader}
	}
}

// Decoder is the per-peer decoder state machine of §4.1: it owns a byte
// backlog for incomplete UTF-8 sequences, a string backlog for decoded
// text not yet containing a terminator, and a FIFO of fully-parsed
// messages.
type Decoder struct {
	byteBacklog   []byte
	stringBacklog strings.Builder
	queue         []ClientMessage
}

// Decode appends bytes to the decoder state, extracts every complete
// terminated message it can, and enqueues the parsed result. It returns an
// error (and stops decoding) on invalid UTF-8 mid-stream, an oversized
// unterminated message, or malformed message framing — any of which is a
// protocol violation that should close the connection.
func (d *Decoder) Decode(data []byte) error {
	d.byteBacklog = append(d.byteBacklog, data...)

	validPrefix, remainder, invalid := splitValidUTF8(d.byteBacklog)
	if invalid {
		return &DeserializeError{Cause: ErrInvalidUtf8}
	}
	d.stringBacklog.Write(validPrefix)
	d.byteBacklog = remainder

	for {
		text := d.stringBacklog.String()
		idx := find(text, MessageEnd, Escape)
		if idx < 0 {
			break
		}

		framed := text[:idx]
		rest := text[idx+1:]

		unescaped := unescapeChars(framed, []rune{MessageEnd}, Escape)
		message, err := DeserializeClientMessage(unescaped)
		if err != nil {
			return err
		}
		d.queue = append(d.queue, message)

		d.stringBacklog.Reset()
		d.stringBacklog.WriteString(rest)
	}

	if d.stringBacklog.Len() > MaxMessageLength {
		return &DeserializeError{Cause: ErrMessageLengthExceeded}
	}

	return nil
}

// TakeMessages drains and returns every message accumulated since the last
// call.
func (d *Decoder) TakeMessages() []ClientMessage {
	messages := d.queue
	d.queue = nil
	return messages
}

// splitValidUTF8 returns the maximal valid UTF-8 prefix of b and the
// remaining tail. The tail is non-empty only when it is an incomplete
// trailing multi-byte sequence that could become valid with more bytes;
// invalid set to true means the tail contains a genuinely malformed byte
// sequence rather than merely an incomplete one.
func splitValidUTF8(b []byte) (valid, tail []byte, invalid bool) {
	i := 0
	for i < len(b) {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			if utf8.FullRune(b[i:]) {
				return b[:i], nil, true
			}
			return b[:i], b[i:], false
		}
		i += size
	}
	return b, nil, false
}
