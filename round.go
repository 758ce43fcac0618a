package main

import (
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	maxAttempts  = 3
	pointsPerWin = 10
)

// GuessResult is the outcome of evaluating one guess. Ending the round on a
// win is left to the caller; evaluation itself never deactivates anything.
type GuessResult struct {
	Correct        bool
	AttemptsLeft   int
	ShouldEndRound bool
	Winner         *Participant
}

// RoundEngine owns round lifecycle: starting rounds, scoring guesses,
// ending rounds, and choosing the next game master. It mutates session
// state only through the store.
//
// The clock is injected so tests can drive deadlines with a fake clock.
type RoundEngine struct {
	store         *SessionStore
	clock         clockwork.Clock
	roundDuration time.Duration
}

func NewRoundEngine(store *SessionStore, clock clockwork.Clock, roundDuration time.Duration) *RoundEngine {
	return &RoundEngine{
		store:         store,
		clock:         clock,
		roundDuration: roundDuration,
	}
}

// StartRound activates a round with the given question/answer pair, resets
// attempt counters, and arms a one-shot deadline timer. When the deadline
// passes before the round ends, onExpire is invoked with the session id and
// the round sequence number the timer was armed for.
//
// Returns false if the session vanished before the round could be
// committed; callers treat that as a benign no-op.
func (e *RoundEngine) StartRound(sessionID, question, answer string, onExpire func(sessionID string, seq uint64)) bool {
	seq, ok := e.store.SetRoundState(sessionID, true, question, answer)
	if !ok {
		return false
	}

	timer := e.clock.AfterFunc(e.roundDuration, func() {
		onExpire(sessionID, seq)
	})
	e.store.ArmTimer(sessionID, timer)

	return true
}

// EvaluateGuess charges the player an attempt and compares the guess to the
// stored answer, ignoring case and surrounding whitespace. A correct guess
// awards points and returns the winner's post-award snapshot.
//
// The attempt is charged before comparison, so a player pays for every
// guess, win or lose. An incorrect guess never asks for the round to end,
// even when it was the player's last attempt.
func (e *RoundEngine) EvaluateGuess(sessionID, identity, guess string) (*GuessResult, error) {
	session := e.store.Session(sessionID)

	switch {
	case session == nil:
		return nil, ErrSessionNotFound
	case !session.RoundActive:
		return nil, ErrRoundNotActive
	case session.GameMaster == identity:
		return nil, ErrGameMasterGuess
	}

	player := session.participant(identity)
	if player == nil {
		return nil, ErrParticipantNotFound
	}
	if player.Attempts >= maxAttempts {
		return nil, ErrNoAttemptsLeft
	}

	attempts := e.store.RecordAttempt(identity)
	correct := strings.EqualFold(strings.TrimSpace(guess), session.Answer)

	result := &GuessResult{
		Correct:        correct,
		AttemptsLeft:   maxAttempts - attempts,
		ShouldEndRound: correct,
	}

	if correct {
		score := e.store.AddScore(identity, pointsPerWin)
		winner := *player
		winner.Score = score
		result.Winner = &winner
	}

	return result, nil
}

// EndRound disarms the deadline timer, captures the answer that was in
// force, and deactivates the round. Idempotent: for a session that has no
// active round (or no session at all) it returns ("", false) and changes
// nothing.
func (e *RoundEngine) EndRound(sessionID string) (string, bool) {
	session := e.store.Session(sessionID)
	if session == nil || !session.RoundActive {
		return "", false
	}

	answer := session.Answer
	e.store.DisarmTimer(sessionID)
	e.store.SetRoundState(sessionID, false, "", "")

	return answer, true
}

// NextGameMaster rotates game master duty to the member immediately after
// the current one in join order, wrapping around. When the current game
// master is no longer a member (it just disconnected), selection restarts
// at the first member. The choice is committed through the store.
func (e *RoundEngine) NextGameMaster(sessionID string) (string, bool) {
	session := e.store.Session(sessionID)
	if session == nil || len(session.Players) == 0 {
		return "", false
	}

	next := session.Players[0].ID
	if len(session.Players) > 1 {
		for i, p := range session.Players {
			if p.ID == session.GameMaster {
				next = session.Players[(i+1)%len(session.Players)].ID
				break
			}
		}
	}

	e.store.SetGameMaster(sessionID, next)
	return next, true
}
