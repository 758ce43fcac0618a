package main

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Participant is one connected player within a session.
type Participant struct {
	ID       string
	Username string
	Score    int
	Attempts int
}

// Session is one isolated game group. Join order of Players is significant:
// it defines the game master rotation order.
type Session struct {
	ID          string
	Players     []*Participant
	GameMaster  string
	RoundActive bool
	Question    string
	Answer      string

	// roundSeq increments every time a round starts, so expiry events from
	// a previous round can be told apart from the current one.
	roundSeq   uint64
	roundTimer clockwork.Timer
}

func (s *Session) participant(identity string) *Participant {
	for _, p := range s.Players {
		if p.ID == identity {
			return p
		}
	}
	return nil
}

// RemovalOutcome describes what happened when a participant was removed.
type RemovalOutcome struct {
	Removed          Participant
	SessionID        string
	WasGameMaster    bool
	SessionDestroyed bool
	Remaining        int
}

// SessionStore owns the session registry and the participant-to-session
// mapping. All mutation of session state goes through its methods.
//
// Live *Session values returned by Session and SessionByParticipant are only
// safe to touch from the hub goroutine; everything else should use Exists or
// Snapshot.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byPlayer map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]string),
	}
}

// newSessionIDLocked derives a short shareable id from uuid randomness, retrying
// on the (unlikely) collision with a live session.
func (st *SessionStore) newSessionIDLocked() string {
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		if _, exists := st.sessions[id]; !exists {
			return id
		}
	}
}

func (st *SessionStore) CreateSession(identity, username string) (*Session, error) {
	if strings.TrimSpace(username) == "" {
		return nil, ErrEmptyUsername
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	session := &Session{
		ID:         st.newSessionIDLocked(),
		GameMaster: identity,
	}
	session.Players = append(session.Players, &Participant{
		ID:       identity,
		Username: username,
	})

	st.sessions[session.ID] = session
	st.byPlayer[identity] = session.ID

	return session, nil
}

func (st *SessionStore) JoinSession(sessionID, identity, username string) (*Session, error) {
	if strings.TrimSpace(username) == "" {
		return nil, ErrEmptyUsername
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.RoundActive {
		return nil, ErrRoundInProgress
	}
	for _, p := range session.Players {
		if p.Username == username {
			return nil, ErrUsernameTaken
		}
	}

	session.Players = append(session.Players, &Participant{
		ID:       identity,
		Username: username,
	})
	st.byPlayer[identity] = sessionID

	return session, nil
}

// RemoveParticipant removes the identity from whatever session it belongs
// to. Returns nil if the identity has no session. An emptied session is
// destroyed immediately, cancelling any pending round timer.
func (st *SessionStore) RemoveParticipant(identity string) *RemovalOutcome {
	st.mu.Lock()
	defer st.mu.Unlock()

	sessionID, ok := st.byPlayer[identity]
	if !ok {
		return nil
	}
	session := st.sessions[sessionID]
	if session == nil {
		delete(st.byPlayer, identity)
		return nil
	}

	index := -1
	for i, p := range session.Players {
		if p.ID == identity {
			index = i
			break
		}
	}
	if index == -1 {
		delete(st.byPlayer, identity)
		return nil
	}

	removed := *session.Players[index]
	session.Players = append(session.Players[:index], session.Players[index+1:]...)
	delete(st.byPlayer, identity)

	outcome := &RemovalOutcome{
		Removed:       removed,
		SessionID:     sessionID,
		WasGameMaster: session.GameMaster == identity,
		Remaining:     len(session.Players),
	}

	if len(session.Players) == 0 {
		if session.roundTimer != nil {
			session.roundTimer.Stop()
			session.roundTimer = nil
		}
		delete(st.sessions, sessionID)
		outcome.SessionDestroyed = true
	}

	return outcome
}

func (st *SessionStore) SetGameMaster(sessionID, identity string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if session, ok := st.sessions[sessionID]; ok {
		session.GameMaster = identity
	}
}

// SetRoundState activates or deactivates the session's round. Activation
// stores the question/answer pair, resets every player's attempt count, and
// returns the new round sequence number.
func (st *SessionStore) SetRoundState(sessionID string, active bool, question, answer string) (uint64, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[sessionID]
	if !ok {
		return 0, false
	}

	session.RoundActive = active
	session.Question = question
	session.Answer = answer

	if active {
		session.roundSeq++
		for _, p := range session.Players {
			p.Attempts = 0
		}
	}

	return session.roundSeq, true
}

// RecordAttempt charges one attempt to the player, up to maxAttempts.
// At the cap it is a no-op returning the current count.
func (st *SessionStore) RecordAttempt(identity string) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	player := st.playerLocked(identity)
	if player == nil {
		return 0
	}
	if player.Attempts < maxAttempts {
		player.Attempts++
	}
	return player.Attempts
}

func (st *SessionStore) AddScore(identity string, points int) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	player := st.playerLocked(identity)
	if player == nil {
		return 0
	}
	player.Score += points
	return player.Score
}

// ArmTimer installs the session's round timer, stopping any previous one
// first. A session never has two live timers.
func (st *SessionStore) ArmTimer(sessionID string, timer clockwork.Timer) {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[sessionID]
	if !ok {
		timer.Stop()
		return
	}
	if session.roundTimer != nil {
		session.roundTimer.Stop()
	}
	session.roundTimer = timer
}

func (st *SessionStore) DisarmTimer(sessionID string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[sessionID]
	if !ok || session.roundTimer == nil {
		return
	}
	session.roundTimer.Stop()
	session.roundTimer = nil
}

func (st *SessionStore) Session(sessionID string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return st.sessions[sessionID]
}

func (st *SessionStore) SessionByParticipant(identity string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return st.sessions[st.byPlayer[identity]]
}

func (st *SessionStore) Exists(sessionID string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()

	_, ok := st.sessions[sessionID]
	return ok
}

// Snapshot builds the sanitized state sent to clients. The answer is never
// part of it; round results disclose the answer separately.
func (st *SessionStore) Snapshot(sessionID string) *SessionState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	session, ok := st.sessions[sessionID]
	if !ok {
		return nil
	}

	state := &SessionState{
		ID:          session.ID,
		GameMaster:  session.GameMaster,
		RoundActive: session.RoundActive,
		Question:    session.Question,
		Players:     make([]PlayerState, 0, len(session.Players)),
	}
	for _, p := range session.Players {
		state.Players = append(state.Players, PlayerState{
			ID:       p.ID,
			Username: p.Username,
			Score:    p.Score,
			Attempts: p.Attempts,
		})
	}

	return state
}

func (st *SessionStore) playerLocked(identity string) *Participant {
	session := st.sessions[st.byPlayer[identity]]
	if session == nil {
		return nil
	}
	return session.participant(identity)
}
