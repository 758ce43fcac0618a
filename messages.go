package main

// Messages coming from clients
type ClientMessage struct {
	Type      string `json:"type"`                 // "create_session", "join_session", "start_game", "submit_guess"
	Username  string `json:"username,omitempty"`   // create_session / join_session
	SessionID string `json:"session_id,omitempty"` // join_session
	Question  string `json:"question,omitempty"`   // start_game
	Answer    string `json:"answer,omitempty"`     // start_game
	Guess     string `json:"guess,omitempty"`      // submit_guess
}

// PlayerState is one player's slice of the sanitized session snapshot.
type PlayerState struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Attempts int    `json:"attempts"`
}

// SessionState is the sanitized snapshot broadcast to session members.
// The answer is deliberately absent.
type SessionState struct {
	ID          string        `json:"id"`
	Players     []PlayerState `json:"players"`
	GameMaster  string        `json:"gameMaster"`
	RoundActive bool          `json:"isActive"`
	Question    string        `json:"question,omitempty"`
}

// SessionCreatedMessage confirms session creation to the creator.
type SessionCreatedMessage struct {
	Type      string        `json:"type"` // "session_created"
	SessionID string        `json:"session_id"`
	State     *SessionState `json:"state"`
}

// SessionJoinedMessage confirms a join to the joining client.
type SessionJoinedMessage struct {
	Type      string        `json:"type"` // "session_joined"
	SessionID string        `json:"session_id"`
	State     *SessionState `json:"state"`
}

// RejectedMessage carries a rejection reason to the requester only.
type RejectedMessage struct {
	Type    string `json:"type"` // "creation_rejected", "join_rejected", "gm_rejected"
	Message string `json:"message"`
}

// StateUpdateMessage broadcasts a fresh snapshot after membership or round
// state changes.
type StateUpdateMessage struct {
	Type  string        `json:"type"` // "session_update"
	State *SessionState `json:"state"`
}

// GameMasterMessage tells one client it now holds game master duty.
type GameMasterMessage struct {
	Type string `json:"type"` // "set_game_master"
	ID   string `json:"id"`
}

// WinnerState summarizes the round winner in a round-end disclosure.
type WinnerState struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// GameEndedMessage discloses the answer once the round is over, along with
// the winner if there was one.
type GameEndedMessage struct {
	Type   string       `json:"type"` // "game_ended"
	Answer string       `json:"answer"`
	Winner *WinnerState `json:"winner,omitempty"`
}

// GuessAckMessage answers a submitted guess, sent to the guesser only.
// Either Error is set, or Correct/AttemptsLeft are meaningful.
type GuessAckMessage struct {
	Type         string `json:"type"` // "guess_ack"
	Correct      bool   `json:"isCorrect"`
	AttemptsLeft int    `json:"attemptsLeft"`
	Error        string `json:"error,omitempty"`
}
