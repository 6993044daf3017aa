// Package app implements the session/match manager (the "App"): the
// cross-cutting indices mapping peers, sessions and games, matchmaking,
// reconnection and inactivity cleanup. Grounded in
// original_source/src/app.rs, the single owner of all mutable indices per
// §5's no-lock, structural-exclusivity concurrency model.
package app

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/miroslavkrysl/bssrv/internal/game"
	"github.com/miroslavkrysl/bssrv/internal/proto"
	"github.com/miroslavkrysl/bssrv/internal/types"
)

// App owns every cross-cutting index of §3: nickname<->player, player
// last-active, peer<->player, player->game, the game table, and the
// at-most-one pending player. No other component may read or mutate this
// state; the server loop is single-threaded, so no locking is needed.
type App struct {
	logger zerolog.Logger

	maxPlayers     int
	sessionTimeout time.Duration

	pendingPlayer *types.PlayerId

	nicknamesPlayers map[string]types.PlayerId
	playersNicknames map[types.PlayerId]types.Nickname
	lastActive       map[types.PlayerId]time.Time
	peersPlayers     map[types.PeerId]types.PlayerId
	playersPeers     map[types.PlayerId]types.PeerId
	playersGames     map[types.PlayerId]types.GameId
	games            map[types.GameId]*game.Game
}

// New creates an App with empty indices.
func New(maxPlayers int, sessionTimeout time.Duration, logger zerolog.Logger) *App {
	return &App{
		logger:           logger,
		maxPlayers:       maxPlayers,
		sessionTimeout:   sessionTimeout,
		nicknamesPlayers: make(map[string]types.PlayerId),
		playersNicknames: make(map[types.PlayerId]types.Nickname),
		lastActive:       make(map[types.PlayerId]time.Time),
		peersPlayers:     make(map[types.PeerId]types.PlayerId),
		playersPeers:     make(map[types.PlayerId]types.PeerId),
		playersGames:     make(map[types.PlayerId]types.GameId),
		games:            make(map[types.GameId]*game.Game),
	}
}

func send(peerId types.PeerId, message proto.ServerMessage) Command {
	return SendMessage{PeerId: peerId, Message: message}
}

// uniquePlayerId draws a random PlayerId and rejection-samples against the
// live player index, mirroring app.rs's unique_session_key.
func (a *App) uniquePlayerId() types.PlayerId {
	for {
		id := types.PlayerId(types.RandomUint64())
		if _, exists := a.playersNicknames[id]; !exists {
			return id
		}
	}
}

// uniqueGameId draws a random GameId and rejection-samples against the
// live game index, mirroring app.rs's unique_game_id.
func (a *App) uniqueGameId() types.GameId {
	for {
		id := types.GameId(types.RandomUint64())
		if _, exists := a.games[id]; !exists {
			return id
		}
	}
}

// HandleMessage dispatches an inbound ClientMessage from a bound or
// unbound peer to the matching handler.
func (a *App) HandleMessage(peerId types.PeerId, message proto.ClientMessage) []Command {
	switch m := message.(type) {
	case proto.Alive:
		return a.handleAlive(peerId)
	case proto.Login:
		return a.handleLogin(peerId, m.Nickname)
	case proto.JoinGame:
		return a.handleJoinGame(peerId)
	case proto.SubmitLayout:
		return a.handleLayout(peerId, m.Layout)
	case proto.Shoot:
		return a.handleShoot(peerId, m.Position)
	case proto.LeaveGame:
		return a.handleLeaveGame(peerId)
	case proto.Logout:
		return a.handleLogout(peerId)
	default:
		a.logger.Warn().Type("message", message).Msg("unhandled client message type")
		return nil
	}
}

func (a *App) handleAlive(peerId types.PeerId) []Command {
	if player, bound := a.peersPlayers[peerId]; bound {
		a.lastActive[player] = time.Now()
	}
	return []Command{send(peerId, proto.AliveOk{})}
}

func (a *App) handleLogin(peerId types.PeerId, nickname types.Nickname) []Command {
	if _, alreadyBound := a.peersPlayers[peerId]; alreadyBound {
		return []Command{send(peerId, proto.IllegalState{})}
	}

	existingPlayer, known := a.nicknamesPlayers[nickname.String()]
	if !known {
		if len(a.playersNicknames) >= a.maxPlayers {
			return []Command{send(peerId, proto.LoginFull{})}
		}

		player := a.uniquePlayerId()
		a.nicknamesPlayers[nickname.String()] = player
		a.playersNicknames[player] = nickname
		a.lastActive[player] = time.Now()
		a.bindPeer(peerId, player)
		return []Command{send(peerId, proto.LoginOk{})}
	}

	if _, online := a.playersPeers[existingPlayer]; online {
		return []Command{send(peerId, proto.LoginTaken{})}
	}

	a.bindPeer(peerId, existingPlayer)
	a.lastActive[existingPlayer] = time.Now()

	gameId, inGame := a.playersGames[existingPlayer]
	if !inGame {
		return []Command{send(peerId, proto.LoginRestored{State: proto.RestoreLobby{}})}
	}

	g := a.games[gameId]
	state := g.State(existingPlayer)
	opponent := g.OtherPlayer(existingPlayer)

	restored := proto.RestoreGame{
		OpponentNickname: a.playersNicknames[opponent],
		OnTurn:           state.OnTurn,
		PlayerHits:       state.PlayerHits,
		PlayerMisses:     state.PlayerMisses,
		PlayerLayout:     state.PlayerLayout,
		OpponentHits:     state.OpponentHits,
		OpponentMisses:   state.OpponentMisses,
		SunkShips:        state.SunkShips,
	}

	commands := []Command{send(peerId, proto.LoginRestored{State: restored})}
	if opponentPeer, ok := a.playersPeers[opponent]; ok {
		commands = append(commands, send(opponentPeer, proto.OpponentReady{}))
	}
	return commands
}

func (a *App) bindPeer(peerId types.PeerId, player types.PlayerId) {
	a.peersPlayers[peerId] = player
	a.playersPeers[player] = peerId
}

func (a *App) handleJoinGame(peerId types.PeerId) []Command {
	player, bound := a.peersPlayers[peerId]
	if !bound {
		return []Command{send(peerId, proto.IllegalState{})}
	}
	if _, inGame := a.playersGames[player]; inGame {
		return []Command{send(peerId, proto.IllegalState{})}
	}

	if a.pendingPlayer == nil {
		a.pendingPlayer = &player
		return []Command{send(peerId, proto.JoinGameWait{})}
	}

	other := *a.pendingPlayer
	if other == player {
		return []Command{send(peerId, proto.IllegalState{})}
	}

	a.pendingPlayer = nil
	gameId := a.uniqueGameId()
	g := game.NewPending(other)
	g.AddSecondPlayer(player)
	a.games[gameId] = g
	a.playersGames[other] = gameId
	a.playersGames[player] = gameId

	var commands []Command
	if otherPeer, ok := a.playersPeers[other]; ok {
		commands = append(commands, send(otherPeer, proto.OpponentJoined{Nickname: a.playersNicknames[player]}))
	}
	commands = append(commands, send(peerId, proto.JoinGameOk{OpponentNickname: a.playersNicknames[other]}))
	return commands
}

func (a *App) handleLayout(peerId types.PeerId, layout types.Layout) []Command {
	player, bound := a.peersPlayers[peerId]
	if !bound {
		return []Command{send(peerId, proto.IllegalState{})}
	}
	gameId, inGame := a.playersGames[player]
	if !inGame {
		return []Command{send(peerId, proto.IllegalState{})}
	}

	g := a.games[gameId]
	if g.Phase() == game.PhasePlaying {
		return []Command{send(peerId, proto.IllegalState{})}
	}

	_, err := g.SetLayout(player, layout)
	if err != nil {
		gerr := err.(*game.GameError)
		switch gerr.Kind {
		case game.InvalidLayout:
			return []Command{send(peerId, proto.LayoutFail{})}
		default: // AlreadyHasLayout
			return []Command{send(peerId, proto.IllegalState{})}
		}
	}

	commands := []Command{send(peerId, proto.LayoutOk{})}
	opponent := g.OtherPlayer(player)
	if opponentPeer, ok := a.playersPeers[opponent]; ok {
		commands = append(commands, send(opponentPeer, proto.OpponentReady{}))
	}
	return commands
}

func (a *App) handleShoot(peerId types.PeerId, pos types.Position) []Command {
	player, bound := a.peersPlayers[peerId]
	if !bound {
		return []Command{send(peerId, proto.IllegalState{})}
	}
	gameId, inGame := a.playersGames[player]
	if !inGame {
		return []Command{send(peerId, proto.IllegalState{})}
	}

	g := a.games[gameId]
	if g.Phase() != game.PhasePlaying {
		return []Command{send(peerId, proto.IllegalState{})}
	}

	result, err := g.Shoot(player, pos)
	if err != nil {
		return []Command{send(peerId, proto.IllegalState{})}
	}

	opponent := g.OtherPlayer(player)
	opponentPeer, opponentOnline := a.playersPeers[opponent]

	var commands []Command
	switch result.Kind {
	case game.Missed:
		commands = append(commands, send(peerId, proto.ShootMissed{}))
		if opponentOnline {
			commands = append(commands, send(opponentPeer, proto.OpponentMissed{Position: pos}))
		}
	case game.Hit:
		commands = append(commands, send(peerId, proto.ShootHit{}))
		if opponentOnline {
			commands = append(commands, send(opponentPeer, proto.OpponentHit{Position: pos}))
		}
	case game.Sunk:
		commands = append(commands, send(peerId, proto.ShootSunk{Kind: result.ShipKind, Placement: result.Placement}))
		if opponentOnline {
			commands = append(commands, send(opponentPeer, proto.OpponentHit{Position: pos}))
		}
	}

	if winner, won := g.Winner(); won {
		if winner == player {
			commands = append(commands, send(peerId, proto.GameOver{Who: types.You}))
			if opponentOnline {
				commands = append(commands, send(opponentPeer, proto.GameOver{Who: types.Opponent}))
			}
		}
		delete(a.playersGames, player)
		delete(a.playersGames, opponent)
		delete(a.games, gameId)
	}

	return commands
}

func (a *App) handleLeaveGame(peerId types.PeerId) []Command {
	player, bound := a.peersPlayers[peerId]
	if !bound {
		return []Command{send(peerId, proto.IllegalState{})}
	}

	if a.pendingPlayer != nil && *a.pendingPlayer == player {
		a.pendingPlayer = nil
		return []Command{send(peerId, proto.LeaveGameOk{})}
	}

	if gameId, inGame := a.playersGames[player]; inGame {
		commands := a.destroyGame(gameId, player, proto.OpponentLeft{})
		return append(commands, send(peerId, proto.LeaveGameOk{}))
	}

	// (O3) Neither pending nor in a game: IllegalState.
	return []Command{send(peerId, proto.IllegalState{})}
}

func (a *App) handleLogout(peerId types.PeerId) []Command {
	player, bound := a.peersPlayers[peerId]
	if !bound {
		return []Command{send(peerId, proto.IllegalState{})}
	}

	var commands []Command

	if a.pendingPlayer != nil && *a.pendingPlayer == player {
		a.pendingPlayer = nil
	}
	if gameId, inGame := a.playersGames[player]; inGame {
		commands = append(commands, a.destroyGame(gameId, player, proto.OpponentLeft{})...)
	}

	a.unregisterPlayer(player, peerId)

	return append(commands, send(peerId, proto.LogoutOk{}))
}

// unregisterPlayer tears down every index entry for player: nickname
// binding, last-active record, and the peer<->player binding.
func (a *App) unregisterPlayer(player types.PlayerId, peerId types.PeerId) {
	nickname := a.playersNicknames[player]
	delete(a.nicknamesPlayers, nickname.String())
	delete(a.playersNicknames, player)
	delete(a.lastActive, player)
	delete(a.playersPeers, player)
	delete(a.peersPlayers, peerId)
}

// destroyGame removes a game from every index and notifies the other
// participant, if online, with opponentMessage. The caller (player) is
// the one leaving, logging out, going offline, or being evicted.
func (a *App) destroyGame(gameId types.GameId, player types.PlayerId, opponentMessage proto.ServerMessage) []Command {
	g := a.games[gameId]
	opponent := g.OtherPlayer(player)

	delete(a.playersGames, player)
	delete(a.playersGames, opponent)
	delete(a.games, gameId)

	if opponentPeer, ok := a.playersPeers[opponent]; ok {
		return []Command{send(opponentPeer, opponentMessage)}
	}
	return nil
}

// HandleOffline processes a peer closing (locally or remotely). A closed
// peer never destroys the session outright; it only unbinds it, leaving
// the session eligible for reconnect until the session timeout.
func (a *App) HandleOffline(peerId types.PeerId) []Command {
	player, bound := a.peersPlayers[peerId]
	if !bound {
		return nil
	}

	delete(a.peersPlayers, peerId)
	delete(a.playersPeers, player)

	if a.pendingPlayer != nil && *a.pendingPlayer == player {
		a.pendingPlayer = nil
	}

	gameId, inGame := a.playersGames[player]
	if !inGame {
		return nil
	}

	g := a.games[gameId]
	if g.Phase() != game.PhasePlaying {
		return a.destroyGame(gameId, player, proto.OpponentLeft{})
	}

	opponent := g.OtherPlayer(player)
	if opponentPeer, ok := a.playersPeers[opponent]; ok {
		return []Command{send(opponentPeer, proto.OpponentOffline{})}
	}
	return nil
}

// HandleCleanup evicts every player whose session has been inactive for
// at least sessionTimeout, closing any bound peer and tearing down any
// game exactly as LogOut would.
func (a *App) HandleCleanup(now time.Time) []Command {
	var evicted []types.PlayerId
	for player, last := range a.lastActive {
		if now.Sub(last) >= a.sessionTimeout {
			evicted = append(evicted, player)
		}
	}

	var commands []Command
	for _, player := range evicted {
		if peerId, bound := a.playersPeers[player]; bound {
			commands = append(commands, ClosePeer{PeerId: peerId})
			delete(a.playersPeers, player)
			delete(a.peersPlayers, peerId)
		}

		if a.pendingPlayer != nil && *a.pendingPlayer == player {
			a.pendingPlayer = nil
		}

		if gameId, inGame := a.playersGames[player]; inGame {
			commands = append(commands, a.destroyGame(gameId, player, proto.OpponentLeft{})...)
		}

		nickname := a.playersNicknames[player]
		delete(a.nicknamesPlayers, nickname.String())
		delete(a.playersNicknames, player)
		delete(a.lastActive, player)
	}

	return commands
}

// HandleShutdown emits Disconnect to every currently-bound peer and clears
// every index. Called once, immediately before the server loop exits.
func (a *App) HandleShutdown() []Command {
	commands := make([]Command, 0, len(a.playersPeers))
	for _, peerId := range a.playersPeers {
		commands = append(commands, send(peerId, proto.Disconnect{}))
	}

	a.pendingPlayer = nil
	a.nicknamesPlayers = make(map[string]types.PlayerId)
	a.playersNicknames = make(map[types.PlayerId]types.Nickname)
	a.lastActive = make(map[types.PlayerId]time.Time)
	a.peersPlayers = make(map[types.PeerId]types.PlayerId)
	a.playersPeers = make(map[types.PlayerId]types.PeerId)
	a.playersGames = make(map[types.PlayerId]types.GameId)
	a.games = make(map[types.GameId]*game.Game)

	return commands
}
