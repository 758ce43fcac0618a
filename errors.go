package main

import "errors"

// Rejection reasons surfaced to the requesting client. Each maps onto one
// outcome of a session or round operation; none of them is fatal to the
// session they were raised in.
var (
	ErrEmptyUsername       = errors.New("username must not be empty")
	ErrEmptyQuestion       = errors.New("question and answer must not be empty")
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("player not found")
	ErrUsernameTaken       = errors.New("username is already taken")
	ErrRoundInProgress     = errors.New("round is already in progress")
	ErrRoundNotActive      = errors.New("no round is active")
	ErrNotGameMaster       = errors.New("only the game master can start a round")
	ErrGameMasterGuess     = errors.New("the game master cannot guess")
	ErrNoAttemptsLeft      = errors.New("no attempts left")
)
