package main

import (
	"testing"
	"time"
)

func newTestGateway() *Gateway {
	cfg := &Config{pingInterval: 30 * time.Second, port: 8080}
	return newGateway(cfg, newRegistry(), testBank())
}

func newTestClient(g *Gateway) *client {
	c := &client{send: make(chan outFrame, 32)}
	g.register(c)
	return c
}

func recv(t *testing.T, c *client) outFrame {
	t.Helper()
	select {
	case f, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed while expecting a frame")
		}
		return f
	default:
		t.Fatal("no frame queued")
		return outFrame{}
	}
}

func drain(c *client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func expectError(t *testing.T, c *client, message string) {
	t.Helper()
	f := recv(t, c)
	if f.Event != eventError {
		t.Fatalf("got %s frame, want error", f.Event)
	}
	payload := f.Data.(errorPayload)
	if payload.Message != message {
		t.Fatalf("error message %q, want %q", payload.Message, message)
	}
}

// createTestRoom runs the create_room handler for a fresh client and
// returns it along with the room it created.
func createTestRoom(t *testing.T, g *Gateway, id, name string) (*client, *Room) {
	t.Helper()
	c := newTestClient(g)
	g.handleCreateRoom(c, createRoomRequest{Player: playerInfo{ID: id, Name: name}})

	f := recv(t, c)
	if f.Event != eventConnect {
		t.Fatalf("got %s frame, want connect", f.Event)
	}
	roomID := f.Data.(connectPayload).RoomID
	if len(roomID) != roomCodeLength {
		t.Fatalf("room code %q has length %d", roomID, len(roomID))
	}

	room, ok := g.registry.get(roomID)
	if !ok {
		t.Fatal("created room not registered")
	}
	return c, room
}

func joinTestRoom(t *testing.T, g *Gateway, roomID, id, name string) *client {
	t.Helper()
	c := newTestClient(g)
	g.handleJoinRoom(c, joinRoomRequest{RoomID: roomID, Player: playerInfo{ID: id, Name: name}})

	f := recv(t, c)
	if f.Event != eventConnect {
		t.Fatalf("got %s frame, want connect", f.Event)
	}
	return c
}

func startTestGame(t *testing.T, g *Gateway, host *client, room *Room) {
	t.Helper()
	g.handleStartGame(host, roomRequest{RoomID: room.ID})
	f := recv(t, host)
	if f.Event != eventStartGame {
		t.Fatalf("got %s frame, want start_game", f.Event)
	}
}

func correctIDs(q Question) []string {
	var ids []string
	for _, a := range q.Answers {
		if a.IsCorrect {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func TestCreateRoomGeneratesPlayerID(t *testing.T) {
	g := newTestGateway()
	c := newTestClient(g)

	g.handleCreateRoom(c, createRoomRequest{Player: playerInfo{Name: "Anon"}})

	f := recv(t, c)
	if f.Event != eventConnect {
		t.Fatalf("got %s frame, want connect", f.Event)
	}
	_, playerID := g.session(c)
	if playerID == "" {
		t.Fatal("no player ID generated for anonymous creator")
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	g := newTestGateway()
	c := newTestClient(g)

	g.handleJoinRoom(c, joinRoomRequest{RoomID: "NOSUCH", Player: playerInfo{ID: "p2", Name: "Bob"}})

	expectError(t, c, "Room not found")
}

func TestJoinEndedGame(t *testing.T) {
	g := newTestGateway()
	_, room := createTestRoom(t, g, "p1", "Alice")

	room.mu.Lock()
	room.IsActive = false
	room.mu.Unlock()

	c := newTestClient(g)
	g.handleJoinRoom(c, joinRoomRequest{RoomID: room.ID, Player: playerInfo{ID: "p2", Name: "Bob"}})

	expectError(t, c, "Game has already ended")
}

func TestJoinBroadcastsRoster(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")

	joiner := joinTestRoom(t, g, room.ID, "p2", "Bob")

	for _, c := range []*client{host, joiner} {
		f := recv(t, c)
		if f.Event != eventPlayerJoined {
			t.Fatalf("got %s frame, want player_joined", f.Event)
		}
		state := f.Data.(roomStatePayload)
		if len(state.Players) != 2 {
			t.Fatalf("roster has %d players, want 2", len(state.Players))
		}
		if state.RoomID != room.ID || !state.IsActive || state.GameMasterID != "p1" {
			t.Fatalf("unexpected room state: %+v", state)
		}
	}
}

func TestStartGameRequiresGameMaster(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")
	joiner := joinTestRoom(t, g, room.ID, "p2", "Bob")
	drain(host)
	drain(joiner)

	g.handleStartGame(joiner, roomRequest{RoomID: room.ID})
	expectError(t, joiner, "Only the game master can start the game")

	if room.CurrentIndex != nil {
		t.Fatal("non-master start still advanced the game")
	}

	g.handleStartGame(host, roomRequest{RoomID: room.ID})
	for _, c := range []*client{host, joiner} {
		f := recv(t, c)
		if f.Event != eventStartGame {
			t.Fatalf("got %s frame, want start_game", f.Event)
		}
		payload := f.Data.(questionPayload)
		if payload.CurrentQuestion != 0 {
			t.Fatalf("first question index %d, want 0", payload.CurrentQuestion)
		}
		if len(payload.Question.Answers) == 0 {
			t.Fatal("question broadcast has no answers")
		}
	}
}

func TestSubmitAnswerBeforeStart(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")

	g.handleSubmitAnswer(host, submitAnswerRequest{RoomID: room.ID, PlayerID: "p1", Answers: []string{"q1a"}})
	expectError(t, host, "Game not active")

	g.handleSubmitAnswer(host, submitAnswerRequest{RoomID: "NOSUCH", PlayerID: "p1"})
	expectError(t, host, "Game not active")
}

func TestSubmitAnswerCorrect(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")
	startTestGame(t, g, host, room)

	room.mu.Lock()
	answers := correctIDs(room.Questions[0])
	room.mu.Unlock()

	g.handleSubmitAnswer(host, submitAnswerRequest{RoomID: room.ID, PlayerID: "p1", Answers: answers})

	f := recv(t, host)
	if f.Event != eventPointsUpdated {
		t.Fatalf("got %s frame, want points_updated", f.Event)
	}
	payload := f.Data.(pointsUpdatedPayload)
	if payload.Points != initialPoints+1 || !payload.Correct {
		t.Fatalf("payload %+v, want points %d correct", payload, initialPoints+1)
	}

	f = recv(t, host)
	if f.Event != eventPlayerJoined {
		t.Fatalf("got %s frame, want trailing player_joined broadcast", f.Event)
	}
}

func TestSubmitAnswerWrong(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")
	startTestGame(t, g, host, room)

	g.handleSubmitAnswer(host, submitAnswerRequest{RoomID: room.ID, PlayerID: "p1", Answers: []string{"bogus"}})

	f := recv(t, host)
	if f.Event != eventSubmitAnswer {
		t.Fatalf("got %s frame, want submit_answer", f.Event)
	}
	payload := f.Data.(chooseFatePayload)
	if payload.Correct || !payload.ShouldChooseFate {
		t.Fatalf("payload %+v, want incorrect with fate choice", payload)
	}

	room.mu.Lock()
	points := room.Players["p1"].Points
	room.mu.Unlock()
	if points != initialPoints {
		t.Fatalf("wrong answer changed points to %d before the fate choice", points)
	}
}

func TestSubmitAnswerUnknownPlayer(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")
	startTestGame(t, g, host, room)

	g.handleSubmitAnswer(host, submitAnswerRequest{RoomID: room.ID, PlayerID: "ghost", Answers: []string{"q1a"}})
	expectError(t, host, "Player not found")
}

func TestTakePenalty(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")

	g.handleTakePenalty(host, playerRequest{RoomID: room.ID, PlayerID: "p1"})

	f := recv(t, host)
	if f.Event != eventPointsUpdated {
		t.Fatalf("got %s frame, want points_updated", f.Event)
	}
	payload := f.Data.(pointsUpdatedPayload)
	if payload.Points != initialPoints-penaltyPoints || payload.Correct {
		t.Fatalf("payload %+v, want points %d incorrect", payload, initialPoints-penaltyPoints)
	}

	room.mu.Lock()
	p := room.Players["p1"]
	if p.Points != initialPoints-penaltyPoints || p.IsActive != (p.Points > 0) {
		t.Fatalf("player state %+v after penalty", p)
	}
	room.mu.Unlock()
}

func TestPlayRouletteKeepsInvariants(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")
	joiner := joinTestRoom(t, g, room.ID, "p2", "Bob")
	drain(host)
	drain(joiner)

	// The draw is random; spin repeatedly and check what must hold
	// after every spin regardless of the outcome.
	for i := 0; i < 25; i++ {
		g.handlePlayRoulette(joiner, playerRequest{RoomID: room.ID, PlayerID: "p2"})

		f := recv(t, joiner)
		if f.Event != eventRouletteResult {
			t.Fatalf("got %s frame, want roulette_result", f.Event)
		}
		result := f.Data.(rouletteResultPayload)

		room.mu.Lock()
		p := room.Players["p2"]
		if result.Points != p.Points || result.IsActive != p.IsActive || result.IsTarget != p.IsTarget {
			room.mu.Unlock()
			t.Fatalf("reply %+v does not match room state %+v", result, p)
		}
		if p.IsActive != (p.Points > 0) {
			room.mu.Unlock()
			t.Fatalf("isActive %v inconsistent with %d points", p.IsActive, p.Points)
		}
		targets := 0
		for _, other := range room.Players {
			if other.IsTarget {
				targets++
			}
		}
		room.mu.Unlock()
		if targets > 1 {
			t.Fatalf("%d targets after a spin, want at most 1", targets)
		}

		drain(host)
		drain(joiner)
	}
}

func TestPlayRouletteUnknownRoom(t *testing.T) {
	g := newTestGateway()
	c := newTestClient(g)

	g.handlePlayRoulette(c, playerRequest{RoomID: "NOSUCH", PlayerID: "p1"})
	expectError(t, c, "Room not found")
}

func TestNextQuestionAdvancesAndEnds(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")
	startTestGame(t, g, host, room)

	g.handleNextQuestion(host, roomRequest{RoomID: room.ID})
	f := recv(t, host)
	if f.Event != eventNextQuestion {
		t.Fatalf("got %s frame, want next_question", f.Event)
	}
	if payload := f.Data.(questionPayload); payload.CurrentQuestion != 1 {
		t.Fatalf("question index %d, want 1", payload.CurrentQuestion)
	}

	// The test bank has two questions, so the next advance ends the game.
	g.handleNextQuestion(host, roomRequest{RoomID: room.ID})
	f = recv(t, host)
	if f.Event != eventEndGame {
		t.Fatalf("got %s frame, want end_game", f.Event)
	}
	final := f.Data.(endGamePayload)
	if len(final.Winners) != 1 || final.Winners[0].ID != "p1" {
		t.Fatalf("winners %+v, want just p1", final.Winners)
	}

	room.mu.Lock()
	active := room.IsActive
	room.mu.Unlock()
	if active {
		t.Fatal("room still active after the last question")
	}
}

func TestNextQuestionRequiresGameMaster(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")
	joiner := joinTestRoom(t, g, room.ID, "p2", "Bob")
	startTestGame(t, g, host, room)
	drain(host)
	drain(joiner)

	g.handleNextQuestion(joiner, roomRequest{RoomID: room.ID})
	expectError(t, joiner, "Only the game master can advance to the next question")
}

func TestNextQuestionBeforeStart(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")

	g.handleNextQuestion(host, roomRequest{RoomID: room.ID})
	expectError(t, host, "Game not active")
}

func TestDisconnectPromotesNewGameMaster(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "bravo", "Alice")
	c1 := joinTestRoom(t, g, room.ID, "charlie", "Bob")
	c2 := joinTestRoom(t, g, room.ID, "alpha", "Carol")
	drain(host)
	drain(c1)
	drain(c2)

	g.handleDisconnect(host)

	room.mu.Lock()
	defer room.mu.Unlock()

	if _, still := room.Players["bravo"]; still {
		t.Fatal("disconnected player still in the room")
	}
	if room.GameMasterID != "alpha" {
		t.Fatalf("new game master %q, want alpha", room.GameMasterID)
	}
	masters := 0
	for _, p := range room.Players {
		if p.IsGameMaster {
			masters++
		}
	}
	if masters != 1 {
		t.Fatalf("%d game masters after succession, want exactly 1", masters)
	}
}

func TestDisconnectLastPlayerRemovesRoom(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "p1", "Alice")

	g.handleDisconnect(host)

	if _, ok := g.registry.get(room.ID); ok {
		t.Fatal("room still registered after its last player left")
	}

	// A join against the reclaimed code must fail like any unknown room.
	c := newTestClient(g)
	g.handleJoinRoom(c, joinRoomRequest{RoomID: room.ID, Player: playerInfo{ID: "p2", Name: "Bob"}})
	expectError(t, c, "Room not found")
}

func TestDisconnectUnboundConnection(t *testing.T) {
	g := newTestGateway()
	c := newTestClient(g)

	// Must be a no-op, not a panic.
	g.handleDisconnect(c)
	g.handleDisconnect(c)
}

func TestWrongAnswerThenRouletteScenario(t *testing.T) {
	g := newTestGateway()
	host, room := createTestRoom(t, g, "a", "Alice")
	joiner := joinTestRoom(t, g, room.ID, "b", "Bob")
	startTestGame(t, g, host, room)
	drain(host)
	drain(joiner)

	g.handleSubmitAnswer(joiner, submitAnswerRequest{RoomID: room.ID, PlayerID: "b", Answers: []string{"bogus"}})
	f := recv(t, joiner)
	if f.Event != eventSubmitAnswer || !f.Data.(chooseFatePayload).ShouldChooseFate {
		t.Fatalf("wrong answer did not offer the fate choice: %+v", f)
	}

	// Apply the lose-2 wheel result directly so the scenario is
	// deterministic.
	room.mu.Lock()
	b := room.Players["b"]
	room.applyOutcome(b, Outcome{Type: outcomeLosePoints, Amount: 2})
	points, active := b.Points, b.IsActive
	room.mu.Unlock()

	if points != 5 || !active {
		t.Fatalf("after losing 2 from 7: points %d active %v, want 5 true", points, active)
	}
}
