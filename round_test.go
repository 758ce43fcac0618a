package main

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type expiry struct {
	sessionID string
	seq       uint64
}

func newTestGame(t *testing.T) (*SessionStore, *RoundEngine, *clockwork.FakeClock) {
	t.Helper()

	store := NewSessionStore()
	clock := clockwork.NewFakeClock()
	engine := NewRoundEngine(store, clock, 60*time.Second)

	return store, engine, clock
}

func waitExpiry(t *testing.T, ch <-chan expiry) expiry {
	t.Helper()

	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for round expiry")
		return expiry{}
	}
}

func TestStartRoundArmsTimer(t *testing.T) {
	t.Parallel()

	store, engine, _ := newTestGame(t)
	session, _ := store.CreateSession("a", "Alice")

	if !engine.StartRound(session.ID, "2+2", "4", func(string, uint64) {}) {
		t.Fatal("StartRound failed for a live session")
	}

	// The round-active flag and a live timer always come and go together.
	if !session.RoundActive || session.roundTimer == nil {
		t.Fatalf("after start: active=%v timer=%v, want both set", session.RoundActive, session.roundTimer != nil)
	}

	engine.EndRound(session.ID)

	if session.RoundActive || session.roundTimer != nil {
		t.Fatalf("after end: active=%v timer=%v, want both cleared", session.RoundActive, session.roundTimer != nil)
	}
}

func TestStartRoundMissingSession(t *testing.T) {
	t.Parallel()

	_, engine, _ := newTestGame(t)

	if engine.StartRound("nope1234", "q", "a", func(string, uint64) {}) {
		t.Fatal("StartRound succeeded for an unknown session")
	}
}

func TestRoundExpiry(t *testing.T) {
	t.Parallel()

	store, engine, clock := newTestGame(t)
	session, _ := store.CreateSession("a", "Alice")

	expiries := make(chan expiry, 1)
	engine.StartRound(session.ID, "2+2", "4", func(id string, seq uint64) {
		expiries <- expiry{sessionID: id, seq: seq}
	})

	clock.Advance(60 * time.Second)

	got := waitExpiry(t, expiries)
	if got.sessionID != session.ID || got.seq != 1 {
		t.Fatalf("expiry = %+v, want session %s seq 1", got, session.ID)
	}
}

func TestEndRoundDisarmsTimer(t *testing.T) {
	t.Parallel()

	store, engine, clock := newTestGame(t)
	session, _ := store.CreateSession("a", "Alice")

	expiries := make(chan expiry, 1)
	engine.StartRound(session.ID, "2+2", "4", func(id string, seq uint64) {
		expiries <- expiry{sessionID: id, seq: seq}
	})

	engine.EndRound(session.ID)
	clock.Advance(60 * time.Second)

	select {
	case e := <-expiries:
		t.Fatalf("disarmed timer still fired: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEndRoundIdempotent(t *testing.T) {
	t.Parallel()

	store, engine, _ := newTestGame(t)
	session, _ := store.CreateSession("a", "Alice")
	engine.StartRound(session.ID, "2+2", "4", func(string, uint64) {})

	answer, ok := engine.EndRound(session.ID)
	if !ok || answer != "4" {
		t.Fatalf("first EndRound = (%q, %v), want (\"4\", true)", answer, ok)
	}

	answer, ok = engine.EndRound(session.ID)
	if ok || answer != "" {
		t.Fatalf("second EndRound = (%q, %v), want (\"\", false)", answer, ok)
	}

	if _, ok := engine.EndRound("nope1234"); ok {
		t.Error("EndRound succeeded for an unknown session")
	}
}

func TestEvaluateGuess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		identity    string
		guess       string
		setup       func(store *SessionStore, engine *RoundEngine, sessionID string)
		wantErr     error
		wantCorrect bool
		wantLeft    int
	}{
		{
			name:     "wrong guess",
			identity: "b",
			guess:    "five",
			wantLeft: 2,
		},
		{
			name:        "correct guess ignores case and whitespace",
			identity:    "b",
			guess:       "  FOUR \t",
			wantCorrect: true,
			wantLeft:    2,
		},
		{
			name:     "game master cannot guess",
			identity: "a",
			guess:    "four",
			wantErr:  ErrGameMasterGuess,
		},
		{
			name:     "unknown participant",
			identity: "ghost",
			guess:    "four",
			wantErr:  ErrParticipantNotFound,
		},
		{
			name:     "attempts exhausted",
			identity: "b",
			guess:    "four",
			setup: func(store *SessionStore, _ *RoundEngine, _ string) {
				for i := 0; i < maxAttempts; i++ {
					store.RecordAttempt("b")
				}
			},
			wantErr: ErrNoAttemptsLeft,
		},
		{
			name:     "round not active",
			identity: "b",
			guess:    "four",
			setup: func(_ *SessionStore, engine *RoundEngine, sessionID string) {
				engine.EndRound(sessionID)
			},
			wantErr: ErrRoundNotActive,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			store, engine, _ := newTestGame(t)
			session, _ := store.CreateSession("a", "Alice")
			store.JoinSession(session.ID, "b", "Bob")
			engine.StartRound(session.ID, "what number comes after three", "four", func(string, uint64) {})

			if test.setup != nil {
				test.setup(store, engine, session.ID)
			}

			result, err := engine.EvaluateGuess(session.ID, test.identity, test.guess)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("EvaluateGuess error = %v, want %v", err, test.wantErr)
			}
			if test.wantErr != nil {
				return
			}

			if result.Correct != test.wantCorrect {
				t.Errorf("Correct = %v, want %v", result.Correct, test.wantCorrect)
			}
			if result.AttemptsLeft != test.wantLeft {
				t.Errorf("AttemptsLeft = %d, want %d", result.AttemptsLeft, test.wantLeft)
			}
			if result.ShouldEndRound != test.wantCorrect {
				t.Errorf("ShouldEndRound = %v, want %v", result.ShouldEndRound, test.wantCorrect)
			}
		})
	}
}

func TestWinChargesAttemptAndScores(t *testing.T) {
	t.Parallel()

	store, engine, _ := newTestGame(t)
	session, _ := store.CreateSession("a", "Alice")
	store.JoinSession(session.ID, "b", "Bob")
	engine.StartRound(session.ID, "2+2", "4", func(string, uint64) {})

	result, err := engine.EvaluateGuess(session.ID, "b", " 4 ")
	if err != nil {
		t.Fatalf("EvaluateGuess: %v", err)
	}

	if result.Winner == nil {
		t.Fatal("winning guess returned no winner")
	}
	if result.Winner.Score != pointsPerWin {
		t.Errorf("winner score = %d, want %d", result.Winner.Score, pointsPerWin)
	}

	// Evaluation never deactivates the round; that is the caller's job.
	if !store.Session(session.ID).RoundActive {
		t.Error("EvaluateGuess ended the round itself")
	}

	player := store.Session(session.ID).participant("b")
	if player.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (a win still costs an attempt)", player.Attempts)
	}
	if player.Score != pointsPerWin {
		t.Errorf("stored score = %d, want %d", player.Score, pointsPerWin)
	}
}

func TestExhaustedGuesserDoesNotCloseRound(t *testing.T) {
	t.Parallel()

	store, engine, _ := newTestGame(t)
	session, _ := store.CreateSession("a", "Alice")
	store.JoinSession(session.ID, "b", "Bob")
	store.JoinSession(session.ID, "c", "Carol")
	engine.StartRound(session.ID, "2+2", "4", func(string, uint64) {})

	for i := 0; i < maxAttempts; i++ {
		result, err := engine.EvaluateGuess(session.ID, "b", "wrong")
		if err != nil {
			t.Fatalf("guess %d: %v", i+1, err)
		}
		if result.ShouldEndRound {
			t.Fatalf("guess %d asked to end the round", i+1)
		}
	}

	// Bob is done, but the round stays open for Carol.
	if _, err := engine.EvaluateGuess(session.ID, "b", "4"); !errors.Is(err, ErrNoAttemptsLeft) {
		t.Fatalf("fourth guess error = %v, want %v", err, ErrNoAttemptsLeft)
	}

	player := store.Session(session.ID).participant("b")
	if player.Attempts != maxAttempts || player.Score != 0 {
		t.Errorf("rejected guess mutated state: attempts=%d score=%d", player.Attempts, player.Score)
	}

	result, err := engine.EvaluateGuess(session.ID, "c", "4")
	if err != nil || !result.Correct {
		t.Fatalf("Carol's guess = (%+v, %v), want a win", result, err)
	}
}

func TestNextGameMaster(t *testing.T) {
	t.Parallel()

	t.Run("rotates in join order with wraparound", func(t *testing.T) {
		t.Parallel()

		store, engine, _ := newTestGame(t)
		session, _ := store.CreateSession("a", "Alice")
		store.JoinSession(session.ID, "b", "Bob")
		store.JoinSession(session.ID, "c", "Carol")

		for _, want := range []string{"b", "c", "a", "b"} {
			got, ok := engine.NextGameMaster(session.ID)
			if !ok || got != want {
				t.Fatalf("NextGameMaster = (%q, %v), want %q", got, ok, want)
			}
			if store.Session(session.ID).GameMaster != want {
				t.Fatalf("rotation was not committed to the store")
			}
		}
	})

	t.Run("single member", func(t *testing.T) {
		t.Parallel()

		store, engine, _ := newTestGame(t)
		session, _ := store.CreateSession("a", "Alice")

		if got, ok := engine.NextGameMaster(session.ID); !ok || got != "a" {
			t.Fatalf("NextGameMaster = (%q, %v), want Alice herself", got, ok)
		}
	})

	t.Run("departed game master restarts at first member", func(t *testing.T) {
		t.Parallel()

		store, engine, _ := newTestGame(t)
		session, _ := store.CreateSession("a", "Alice")
		store.JoinSession(session.ID, "b", "Bob")
		store.JoinSession(session.ID, "c", "Carol")
		store.RemoveParticipant("a")

		if got, ok := engine.NextGameMaster(session.ID); !ok || got != "b" {
			t.Fatalf("NextGameMaster = (%q, %v), want %q", got, ok, "b")
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()

		_, engine, _ := newTestGame(t)

		if _, ok := engine.NextGameMaster("nope1234"); ok {
			t.Fatal("NextGameMaster succeeded for an unknown session")
		}
	})
}
