// Russian Roulette Trivia
//
// Players join a room by short code and answer quiz questions; the game
// master controls pacing. Everyone starts with 7 points. A correct
// answer earns a point. A wrong answer forces a choice of fate: take a
// flat one-point penalty, or spin the roulette wheel and risk losing
// nothing, losing 2, losing 8, or being branded the target.
//
// Features:
// - One shared WebSocket endpoint for all rooms: /ws
// - Frames are {event, data}; unknown events are logged and dropped
// - Rooms identified by 6-char codes, joinable via an in-browser QR
//   code backed by go-qrcode
// - The room creator is the game master; authority passes automatically
//   if they disconnect
// - Wrong answers are resolved server-side: both the flat penalty and
//   the roulette spin mutate points only here, never in the client
// - Players at zero points are flagged inactive but stay in the room
// - Connections are probed on an interval; one missed pong means the
//   player is treated as gone for good
//
// The question payloads sent on start_game/next_question include the
// isCorrect flags, matching what the reference web client expects.
// A client that wants to cheat by reading them can already answer with
// a search engine; trimming them would break the deployed client.

package main

import (
	"github.com/google/uuid"
)

// Event names shared with the web client.
const (
	eventConnect        = "connect"
	eventCreateRoom     = "create_room"
	eventJoinRoom       = "join_room"
	eventPlayerJoined   = "player_joined"
	eventStartGame      = "start_game"
	eventEndGame        = "end_game"
	eventNextQuestion   = "next_question"
	eventSubmitAnswer   = "submit_answer"
	eventTakePenalty    = "take_penalty"
	eventPlayRoulette   = "play_roulette"
	eventRouletteResult = "roulette_result"
	eventPointsUpdated  = "points_updated"
	eventError          = "error"
)

// playerInfo is the client-supplied identity on create/join.
type playerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}

type createRoomRequest struct {
	Player playerInfo `json:"player"`
}

type joinRoomRequest struct {
	RoomID string     `json:"roomId"`
	Player playerInfo `json:"player"`
}

type roomRequest struct {
	RoomID string `json:"roomId"`
}

type playerRequest struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type submitAnswerRequest struct {
	RoomID   string   `json:"roomId"`
	PlayerID string   `json:"playerId"`
	Answers  []string `json:"answers"`
}

type connectPayload struct {
	RoomID string `json:"roomId"`
}

// roomStatePayload is the full roster broadcast after any change.
type roomStatePayload struct {
	Players      []Player `json:"players"`
	RoomID       string   `json:"roomId"`
	IsActive     bool     `json:"isActive"`
	GameMasterID string   `json:"gameMasterId"`
}

type questionPayload struct {
	CurrentQuestion int      `json:"currentQuestion"`
	Question        Question `json:"question"`
}

type pointsUpdatedPayload struct {
	Points  int  `json:"points"`
	Correct bool `json:"correct"`
}

type chooseFatePayload struct {
	Correct          bool `json:"correct"`
	ShouldChooseFate bool `json:"shouldChooseFate"`
}

type rouletteResultPayload struct {
	Outcome  Outcome `json:"outcome"`
	Points   int     `json:"points"`
	IsActive bool    `json:"isActive"`
	IsTarget bool    `json:"isTarget"`
}

type endGamePayload struct {
	Winners []winner `json:"winners"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// identity honors a client-supplied player ID and generates one when
// the client sends none.
func (p playerInfo) identity() Player {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	return Player{ID: id, Name: p.Name, Photo: p.Photo}
}

// handleCreateRoom always succeeds (barring code exhaustion): the
// creator becomes sole player and game master, and only they hear back.
func (g *Gateway) handleCreateRoom(c *client, req createRoomRequest) {
	creator := req.Player.identity()

	room, err := g.registry.create(creator, g.questions)
	if err != nil {
		g.sendError(c, err)
		return
	}

	g.bind(c, room.ID, creator.ID)
	g.sendTo(c, eventConnect, connectPayload{RoomID: room.ID})

	logf(g.cfg, "GAMES: Room %s created by %q", room.ID, creator.Name)
}

func (g *Gateway) handleJoinRoom(c *client, req joinRoomRequest) {
	room, ok := g.registry.get(req.RoomID)
	if !ok {
		g.sendError(c, errRoomNotFound)
		return
	}

	joiner := req.Player.identity()

	room.mu.Lock()
	if !room.IsActive {
		room.mu.Unlock()
		g.sendError(c, errGameEnded)
		return
	}
	room.addPlayer(joiner, false)
	state := room.statePayload()
	room.mu.Unlock()

	g.bind(c, room.ID, joiner.ID)
	g.sendTo(c, eventConnect, connectPayload{RoomID: room.ID})
	g.broadcast(room.ID, eventPlayerJoined, state)

	logf(g.cfg, "GAMES: Player %q joined room %s", joiner.Name, room.ID)
}

func (g *Gateway) handleStartGame(c *client, req roomRequest) {
	room, ok := g.registry.get(req.RoomID)
	if !ok {
		g.sendError(c, errRoomNotFound)
		return
	}

	_, playerID := g.session(c)

	room.mu.Lock()
	if playerID != room.GameMasterID {
		room.mu.Unlock()
		g.sendError(c, errNotGameMasterStart)
		return
	}
	first := 0
	room.CurrentIndex = &first
	payload := questionPayload{CurrentQuestion: first, Question: room.Questions[first]}
	room.mu.Unlock()

	g.broadcast(room.ID, eventStartGame, payload)

	logf(g.cfg, "GAMES: Game started in room %s", room.ID)
}

func (g *Gateway) handleSubmitAnswer(c *client, req submitAnswerRequest) {
	room, ok := g.registry.get(req.RoomID)
	if !ok {
		g.sendError(c, errGameNotActive)
		return
	}

	room.mu.Lock()
	if room.CurrentIndex == nil || *room.CurrentIndex >= len(room.Questions) {
		room.mu.Unlock()
		g.sendError(c, errGameNotActive)
		return
	}
	player, found := room.Players[req.PlayerID]
	if !found {
		room.mu.Unlock()
		g.sendError(c, errPlayerNotFound)
		return
	}

	question := room.Questions[*room.CurrentIndex]
	if question.checkAnswer(req.Answers) {
		player.Points++
		player.refreshActive()
		g.sendTo(c, eventPointsUpdated, pointsUpdatedPayload{Points: player.Points, Correct: true})
	} else {
		// No point change yet: the player must pick the flat penalty
		// or the roulette wheel in a follow-up event.
		g.sendTo(c, eventSubmitAnswer, chooseFatePayload{Correct: false, ShouldChooseFate: true})
	}
	state := room.statePayload()
	room.mu.Unlock()

	g.broadcast(room.ID, eventPlayerJoined, state)
}

// handleTakePenalty is the flat branch of the fate choice after a wrong
// answer: one point, no wheel.
func (g *Gateway) handleTakePenalty(c *client, req playerRequest) {
	room, ok := g.registry.get(req.RoomID)
	if !ok {
		g.sendError(c, errRoomNotFound)
		return
	}

	room.mu.Lock()
	player, found := room.Players[req.PlayerID]
	if !found {
		room.mu.Unlock()
		g.sendError(c, errPlayerNotFound)
		return
	}

	player.Points -= penaltyPoints
	player.refreshActive()
	g.sendTo(c, eventPointsUpdated, pointsUpdatedPayload{Points: player.Points, Correct: false})
	state := room.statePayload()
	room.mu.Unlock()

	g.broadcast(room.ID, eventPlayerJoined, state)
}

func (g *Gateway) handlePlayRoulette(c *client, req playerRequest) {
	room, ok := g.registry.get(req.RoomID)
	if !ok {
		g.sendError(c, errRoomNotFound)
		return
	}

	outcome := drawOutcome()

	room.mu.Lock()
	player, found := room.Players[req.PlayerID]
	if !found {
		room.mu.Unlock()
		g.sendError(c, errPlayerNotFound)
		return
	}

	room.applyOutcome(player, outcome)
	g.sendTo(c, eventRouletteResult, rouletteResultPayload{
		Outcome:  outcome,
		Points:   player.Points,
		IsActive: player.IsActive,
		IsTarget: player.IsTarget,
	})
	state := room.statePayload()
	room.mu.Unlock()

	g.broadcast(room.ID, eventPlayerJoined, state)

	logf(g.cfg, "GAMES: Player %s drew %s in room %s", req.PlayerID, outcome.Type, room.ID)
}

func (g *Gateway) handleNextQuestion(c *client, req roomRequest) {
	room, ok := g.registry.get(req.RoomID)
	if !ok {
		g.sendError(c, errGameNotActive)
		return
	}

	_, playerID := g.session(c)

	room.mu.Lock()
	if room.CurrentIndex == nil {
		room.mu.Unlock()
		g.sendError(c, errGameNotActive)
		return
	}
	if playerID != room.GameMasterID {
		room.mu.Unlock()
		g.sendError(c, errNotGameMasterNext)
		return
	}

	next := *room.CurrentIndex + 1
	room.CurrentIndex = &next

	if next >= len(room.Questions) {
		room.IsActive = false
		final := endGamePayload{Winners: room.winners()}
		room.mu.Unlock()

		g.broadcast(room.ID, eventEndGame, final)

		logf(g.cfg, "GAMES: Game over in room %s", room.ID)
		return
	}

	payload := questionPayload{CurrentQuestion: next, Question: room.Questions[next]}
	room.mu.Unlock()

	g.broadcast(room.ID, eventNextQuestion, payload)
}

// handleDisconnect runs on transport close or a missed liveness probe,
// never as a client-sent event. A departed player is gone for good;
// there is no reconnect-with-state.
func (g *Gateway) handleDisconnect(c *client) {
	roomID, playerID, bound := g.unbind(c)
	if !bound {
		return
	}

	room, ok := g.registry.get(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	if _, present := room.Players[playerID]; !present {
		room.mu.Unlock()
		return
	}
	delete(room.Players, playerID)
	logf(g.cfg, "GAMES: Player %s left room %s", playerID, roomID)

	if len(room.Players) == 0 {
		room.mu.Unlock()
		if g.registry.removeIfEmpty(roomID) {
			logf(g.cfg, "GAMES: Room %s removed (empty)", roomID)
		}
		return
	}

	if playerID == room.GameMasterID {
		next := room.promoteGameMaster()
		logf(g.cfg, "GAMES: New game master in room %s: %q", roomID, next.Name)
	}
	state := room.statePayload()
	room.mu.Unlock()

	g.broadcast(roomID, eventPlayerJoined, state)
}
