package types

import (
	"crypto/rand"
	"encoding/binary"
)

// PlayerId identifies a registered session. Assigned on first successful
// login.
type PlayerId uint64

// PeerId identifies a live TCP connection, independent of any logged-in
// player. Assigned on accept.
type PeerId uint64

// GameId identifies a two-player match. Assigned on game creation.
type GameId uint64

// RandomUint64 draws a uniformly random 64-bit value from a cryptographic
// source. Callers that need uniqueness against a live index (PlayerId,
// PeerId, GameId assignment) must rejection-sample by retrying until the
// draw is absent from that index; this mirrors app.rs's
// unique_session_key/unique_game_id loops, which redraw from
// rand::thread_rng() until the candidate is not already a map key.
func RandomUint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("types: failed to read random bytes: " + err.Error())
	}
	return binary.BigEndian.Uint64(buf[:])
}
