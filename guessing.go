// Guessbox guessing game
//
// One websocket connection per player. A player either creates a session
// (becoming its first game master) or joins an existing one by id. The game
// master submits a question/answer pair and starts a timed round; everyone
// else guesses against the shared deadline with a fixed attempt budget. The
// first correct guess wins the round and scores; otherwise the round expires
// with no winner. Either way the answer is disclosed, and after a short
// grace period game master duty rotates to the next member in join order.
//
// Every state transition runs on a single hub goroutine fed by one action
// channel. Client messages, round deadlines, and rotation delays all enter
// through that channel, so ordering between them is simply arrival order and
// no handler ever observes a half-applied transition.

package main

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

type Client struct {
	conn *websocket.Conn
	send chan any
	id   string
}

// Actions consumed by the hub loop. Client-triggered actions carry the
// originating client; timer-triggered ones carry only session coordinates.
type connectAction struct {
	client *Client
}

type disconnectAction struct {
	client *Client
	reason string
}

type createAction struct {
	client   *Client
	username string
}

type joinAction struct {
	client    *Client
	sessionID string
	username  string
}

type startAction struct {
	client   *Client
	question string
	answer   string
}

type guessAction struct {
	client *Client
	guess  string
}

type expireAction struct {
	sessionID string
	seq       uint64
}

type rotateAction struct {
	sessionID string
}

// Hub mediates between inbound player actions and the round engine plus
// session store, and pushes the resulting notifications back out. It is the
// only goroutine that drives state transitions.
type Hub struct {
	store         *SessionStore
	engine        *RoundEngine
	clock         clockwork.Clock
	rotationDelay time.Duration

	clients map[string]*Client
	actions chan any
}

func NewHub(store *SessionStore, engine *RoundEngine, clock clockwork.Clock, rotationDelay time.Duration) *Hub {
	return &Hub{
		store:         store,
		engine:        engine,
		clock:         clock,
		rotationDelay: rotationDelay,
		clients:       make(map[string]*Client),
		actions:       make(chan any, 256),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case action := <-h.actions:
			h.dispatch(action)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) dispatch(action any) {
	switch a := action.(type) {
	case connectAction:
		h.clients[a.client.id] = a.client
		log.Debug().Str("client", a.client.id).Msg("client connected")
	case disconnectAction:
		h.handleDisconnect(a)
	case createAction:
		h.handleCreate(a)
	case joinAction:
		h.handleJoin(a)
	case startAction:
		h.handleStart(a)
	case guessAction:
		h.handleGuess(a)
	case expireAction:
		h.handleExpire(a)
	case rotateAction:
		h.handleRotate(a)
	}
}

func (h *Hub) handleCreate(a createAction) {
	session, err := h.store.CreateSession(a.client.id, a.username)
	if err != nil {
		h.trySend(a.client, RejectedMessage{Type: "creation_rejected", Message: err.Error()})
		return
	}

	log.Info().Str("session", session.ID).Str("username", a.username).Msg("session created")

	h.trySend(a.client, SessionCreatedMessage{
		Type:      "session_created",
		SessionID: session.ID,
		State:     h.store.Snapshot(session.ID),
	})
	h.trySend(a.client, GameMasterMessage{Type: "set_game_master", ID: a.client.id})
}

func (h *Hub) handleJoin(a joinAction) {
	session, err := h.store.JoinSession(a.sessionID, a.client.id, a.username)
	if err != nil {
		h.trySend(a.client, RejectedMessage{Type: "join_rejected", Message: err.Error()})
		return
	}

	log.Info().Str("session", session.ID).Str("username", a.username).Msg("player joined")

	h.trySend(a.client, SessionJoinedMessage{
		Type:      "session_joined",
		SessionID: session.ID,
		State:     h.store.Snapshot(session.ID),
	})
	h.broadcastState(session.ID)
}

func (h *Hub) handleStart(a startAction) {
	session := h.store.SessionByParticipant(a.client.id)
	if session == nil {
		h.trySend(a.client, RejectedMessage{Type: "gm_rejected", Message: ErrSessionNotFound.Error()})
		return
	}
	if session.GameMaster != a.client.id {
		h.trySend(a.client, RejectedMessage{Type: "gm_rejected", Message: ErrNotGameMaster.Error()})
		return
	}

	question := strings.TrimSpace(a.question)
	answer := strings.TrimSpace(a.answer)
	if question == "" || answer == "" {
		h.trySend(a.client, RejectedMessage{Type: "gm_rejected", Message: ErrEmptyQuestion.Error()})
		return
	}

	if !h.engine.StartRound(session.ID, question, answer, h.enqueueExpiry) {
		h.trySend(a.client, RejectedMessage{Type: "gm_rejected", Message: "failed to start round"})
		return
	}

	log.Info().Str("session", session.ID).Str("question", question).Msg("round started")
	h.broadcastState(session.ID)
}

func (h *Hub) handleGuess(a guessAction) {
	session := h.store.SessionByParticipant(a.client.id)
	if session == nil {
		h.trySend(a.client, GuessAckMessage{Type: "guess_ack", Error: ErrSessionNotFound.Error()})
		return
	}

	result, err := h.engine.EvaluateGuess(session.ID, a.client.id, a.guess)
	if err != nil {
		h.trySend(a.client, GuessAckMessage{Type: "guess_ack", Error: err.Error()})
		return
	}

	log.Debug().Str("session", session.ID).Str("client", a.client.id).Bool("correct", result.Correct).Msg("guess processed")

	h.trySend(a.client, GuessAckMessage{
		Type:         "guess_ack",
		Correct:      result.Correct,
		AttemptsLeft: result.AttemptsLeft,
	})

	if result.ShouldEndRound {
		h.finishRound(session.ID, result.Winner)
	}
}

// handleExpire is the deadline timer re-entering the hub. Stale deliveries
// are expected: the round may have ended, or a newer round may have started,
// between the timer firing and this handler running.
func (h *Hub) handleExpire(a expireAction) {
	session := h.store.Session(a.sessionID)
	if session == nil || !session.RoundActive || session.roundSeq != a.seq {
		log.Debug().Str("session", a.sessionID).Msg("ignoring stale round deadline")
		return
	}

	log.Info().Str("session", a.sessionID).Msg("round timed out")
	h.finishRound(a.sessionID, nil)
}

func (h *Hub) handleRotate(a rotateAction) {
	if !h.rotateGameMaster(a.sessionID) {
		log.Debug().Str("session", a.sessionID).Msg("session gone before rotation")
	}
}

func (h *Hub) handleDisconnect(a disconnectAction) {
	if client, ok := h.clients[a.client.id]; ok {
		delete(h.clients, a.client.id)
		close(client.send)
	}

	outcome := h.store.RemoveParticipant(a.client.id)
	if outcome == nil {
		log.Debug().Str("client", a.client.id).Str("reason", a.reason).Msg("client disconnected")
		return
	}

	log.Info().Str("session", outcome.SessionID).Str("username", outcome.Removed.Username).Str("reason", a.reason).Msg("player left")

	if outcome.SessionDestroyed {
		log.Info().Str("session", outcome.SessionID).Msg("session empty, destroyed")
		return
	}

	session := h.store.Session(outcome.SessionID)
	if session == nil {
		return
	}

	switch {
	case outcome.WasGameMaster && session.RoundActive:
		// A round must not outlive its game master.
		h.finishRound(outcome.SessionID, nil)
	case outcome.WasGameMaster:
		h.rotateGameMaster(outcome.SessionID)
	default:
		h.broadcastState(outcome.SessionID)
	}
}

// finishRound runs the shared post-round sequence: deactivate, disclose the
// answer, and schedule rotation after the grace period. Safe to call when
// the round already ended; the second caller is a no-op.
func (h *Hub) finishRound(sessionID string, winner *Participant) {
	answer, ok := h.engine.EndRound(sessionID)
	if !ok {
		return
	}

	ended := GameEndedMessage{Type: "game_ended", Answer: answer}
	if winner != nil {
		ended.Winner = &WinnerState{
			ID:       winner.ID,
			Username: winner.Username,
			Score:    winner.Score,
		}
	}
	h.broadcast(sessionID, ended)

	log.Info().Str("session", sessionID).Str("answer", answer).Msg("round ended")

	h.clock.AfterFunc(h.rotationDelay, func() {
		h.actions <- rotateAction{sessionID: sessionID}
	})
}

func (h *Hub) rotateGameMaster(sessionID string) bool {
	next, ok := h.engine.NextGameMaster(sessionID)
	if !ok {
		return false
	}

	log.Info().Str("session", sessionID).Str("gameMaster", next).Msg("game master rotated")

	if client, ok := h.clients[next]; ok {
		h.trySend(client, GameMasterMessage{Type: "set_game_master", ID: next})
	}
	h.broadcastState(sessionID)

	return true
}

func (h *Hub) enqueueExpiry(sessionID string, seq uint64) {
	h.actions <- expireAction{sessionID: sessionID, seq: seq}
}

func (h *Hub) broadcastState(sessionID string) {
	state := h.store.Snapshot(sessionID)
	if state == nil {
		return
	}
	h.broadcast(sessionID, StateUpdateMessage{Type: "session_update", State: state})
}

func (h *Hub) broadcast(sessionID string, msg any) {
	session := h.store.Session(sessionID)
	if session == nil {
		return
	}

	for _, p := range session.Players {
		if client, ok := h.clients[p.ID]; ok {
			h.trySend(client, msg)
		}
	}
}

// trySend drops the client if its send buffer is full; the write pump exit
// closes the connection, and the read pump turns that into a disconnect.
func (h *Hub) trySend(client *Client, msg any) {
	select {
	case client.send <- msg:
	default:
		if _, ok := h.clients[client.id]; ok {
			delete(h.clients, client.id)
			close(client.send)
		}
	}
}

func checkOrigin(cfg *Config) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range cfg.allowedOrigins {
			if allowed == "*" || strings.EqualFold(allowed, origin) {
				return true
			}
		}
		// With no allow-list configured, fall back to same-host only.
		if len(cfg.allowedOrigins) == 0 {
			if u, err := url.Parse(origin); err == nil {
				return strings.EqualFold(u.Host, r.Host)
			}
		}
		return false
	}
}

func serveWS(cfg *Config, h *Hub) httprouter.Handle {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg),
	}

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("remote", realIP(r)).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
			id:   uuid.NewString(),
		}

		h.actions <- connectAction{client: client}

		go client.writePump()
		client.readPump(h)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			h.actions <- disconnectAction{client: c, reason: err.Error()}
			return
		}

		switch msg.Type {
		case "create_session":
			h.actions <- createAction{client: c, username: msg.Username}
		case "join_session":
			h.actions <- joinAction{client: c, sessionID: msg.SessionID, username: msg.Username}
		case "start_game":
			h.actions <- startAction{client: c, question: msg.Question, answer: msg.Answer}
		case "submit_guess":
			h.actions <- guessAction{client: c, guess: msg.Guess}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// qrHandler renders a QR code for a session's join URL, for sharing the
// session id across the table.
func qrHandler(store *SessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("sessionid")
		if sessionID == "" || !store.Exists(sessionID) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../qr/:sessionid; the shareable URL drops the "/qr"
		// segment.
		base := strings.TrimSuffix(r.URL.Path, "/qr/"+sessionID)

		const qrSize = 320
		png, err := qrcode.Encode(scheme+"://"+r.Host+base+"/"+sessionID, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerGuessingGame sets up routes so that:
//   - $path/ws            → websocket endpoint for all sessions
//   - $path/qr/:sessionid → PNG QR code for sharing that session
func registerGuessingGame(cfg *Config, path string, mux *httprouter.Router, h *Hub) {
	mux.GET(cfg.prefix+path+"/ws", serveWS(cfg, h))
	mux.GET(cfg.prefix+path+"/qr/:sessionid", qrHandler(h.store))
}
