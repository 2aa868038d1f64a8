package main

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
)

const (
	initialPoints = 7
	penaltyPoints = 1
)

// Player is the server-side record for one participant. Points and the
// derived flags are owned by the room handlers; only id, name and photo
// come from the client.
type Player struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Points       int    `json:"points"`
	Photo        string `json:"photo,omitempty"` // opaque base64 blob, never interpreted
	IsTarget     bool   `json:"isTarget"`
	IsActive     bool   `json:"isActive"`
	IsGameMaster bool   `json:"isGameMaster"`
}

// refreshActive rederives the eliminated flag after a point change.
func (p *Player) refreshActive() {
	p.IsActive = p.Points > 0
}

// Room is one independent game session. All access goes through mu;
// handlers hold it for their whole read-modify-broadcast span, so no
// two events ever interleave on the same room.
type Room struct {
	mu sync.Mutex

	ID           string
	Name         string
	Players      map[string]*Player
	Questions    []Question
	CurrentIndex *int // nil until the game starts
	IsActive     bool
	GameMasterID string
}

// addPlayer resets the joining player's game state; identity fields are
// the only client-supplied values kept.
func (r *Room) addPlayer(p Player, gameMaster bool) *Player {
	joined := &Player{
		ID:           p.ID,
		Name:         p.Name,
		Photo:        p.Photo,
		Points:       initialPoints,
		IsActive:     true,
		IsGameMaster: gameMaster,
	}
	r.Players[joined.ID] = joined
	return joined
}

// setTarget makes id the room's only target.
func (r *Room) setTarget(id string) {
	for _, p := range r.Players {
		p.IsTarget = p.ID == id
	}
}

// applyOutcome mutates the player per one roulette result.
func (r *Room) applyOutcome(p *Player, o Outcome) {
	switch o.Type {
	case outcomeLosePoints:
		p.Points -= o.Amount
	case outcomeBecomeTarget:
		r.setTarget(p.ID)
	}
	p.refreshActive()
}

// promoteGameMaster hands authority to the remaining player with the
// smallest ID, so succession does not depend on map iteration order.
func (r *Room) promoteGameMaster() *Player {
	var next *Player
	for _, p := range r.Players {
		if next == nil || p.ID < next.ID {
			next = p
		}
	}
	if next != nil {
		next.IsGameMaster = true
		r.GameMasterID = next.ID
	}
	return next
}

type winner struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// winners returns every player tied for the room's highest score.
func (r *Room) winners() []winner {
	best := math.MinInt
	for _, p := range r.Players {
		if p.Points > best {
			best = p.Points
		}
	}

	var tied []winner
	for _, p := range r.Players {
		if p.Points == best {
			tied = append(tied, winner{ID: p.ID, Name: p.Name, Points: p.Points})
		}
	}
	slices.SortFunc(tied, func(a, b winner) int {
		return strings.Compare(a.ID, b.ID)
	})
	return tied
}

// playerList snapshots the roster for broadcasting.
func (r *Room) playerList() []Player {
	players := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, *p)
	}
	slices.SortFunc(players, func(a, b Player) int {
		return strings.Compare(a.ID, b.ID)
	})
	return players
}

func (r *Room) statePayload() roomStatePayload {
	return roomStatePayload{
		Players:      r.playerList(),
		RoomID:       r.ID,
		IsActive:     r.IsActive,
		GameMasterID: r.GameMasterID,
	}
}

// maxCodeAttempts bounds room code regeneration on collision, instead
// of either overwriting an existing room or retrying forever.
const maxCodeAttempts = 100

// Registry owns the process-wide room table. Rooms live here for the
// life of the process or until their last player leaves; there is no
// persistence.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func newRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// create registers a new room with the creator as sole player and game
// master, under a freshly generated code.
func (reg *Registry) create(creator Player, questions []Question) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := ""
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		candidate := newRoomCode()
		if _, taken := reg.rooms[candidate]; !taken {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, fmt.Errorf("no free room code after %d attempts", maxCodeAttempts)
	}

	room := &Room{
		ID:           code,
		Name:         creator.Name + "'s Room",
		Players:      make(map[string]*Player),
		Questions:    shuffleQuestions(questions),
		IsActive:     true,
		GameMasterID: creator.ID,
	}
	room.addPlayer(creator, true)

	reg.rooms[code] = room
	return room, nil
}

func (reg *Registry) get(code string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[code]
	return room, ok
}

// removeIfEmpty deregisters a room once its player map is empty, and
// reports whether it did.
func (reg *Registry) removeIfEmpty(code string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[code]
	if !ok {
		return false
	}

	room.mu.Lock()
	empty := len(room.Players) == 0
	room.mu.Unlock()

	if empty {
		delete(reg.rooms, code)
	}
	return empty
}
