package main

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
)

// Roulette outcome kinds.
const (
	outcomeNothing      = "nothing"
	outcomeLosePoints   = "losePoints"
	outcomeBecomeTarget = "becomeTarget"
)

// Outcome is the result of one roulette draw.
type Outcome struct {
	Type   string `json:"type"`
	Amount int    `json:"amount,omitempty"` // points lost, losePoints only
}

// rouletteTable is walked in order during a draw; the probabilities
// must sum to 1.
var rouletteTable = []struct {
	outcome     Outcome
	probability float64
}{
	{Outcome{Type: outcomeNothing}, 0.4},
	{Outcome{Type: outcomeLosePoints, Amount: 2}, 0.3},
	{Outcome{Type: outcomeLosePoints, Amount: 8}, 0.2},
	{Outcome{Type: outcomeBecomeTarget}, 0.1},
}

// drawOutcome draws one outcome from the fixed distribution.
func drawOutcome() Outcome {
	return drawOutcomeFrom(randFloat())
}

// drawOutcomeFrom resolves a uniform roll in [0,1) against the table:
// the first outcome whose cumulative probability covers the roll wins.
func drawOutcomeFrom(roll float64) Outcome {
	cumulative := 0.0
	for _, entry := range rouletteTable {
		cumulative += entry.probability
		if roll <= cumulative {
			return entry.outcome
		}
	}

	// Unreachable while the table sums to 1, but a drifted sum must
	// still resolve rather than panic.
	return Outcome{Type: outcomeNothing}
}

// shuffled returns a uniformly random permutation of in, leaving the
// input untouched.
func shuffled[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	for i := len(out) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// shuffleQuestions deals a room its own question order, with the
// answers inside each question shuffled as well.
func shuffleQuestions(questions []Question) []Question {
	out := shuffled(questions)
	for i := range out {
		out[i].Answers = shuffled(out[i].Answers)
	}
	return out
}

// Ambiguous characters are excluded so codes survive being read aloud.
const (
	roomCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength = 6
)

// newRoomCode generates a short human-typeable room code. Uniqueness is
// the registry's job, not this function's.
func newRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeChars[randIntn(len(roomCodeChars))]
	}
	return string(code)
}

func randIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func randFloat() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}
