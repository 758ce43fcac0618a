package games

// One player per session acts as game master: they provide a question and its
// answer, then start a timed round
// Everyone else races to guess the answer before the deadline, spending from
// a small per-round attempt budget
// The first correct guess wins the round and scores; an expired deadline ends
// the round with no winner
// Either way the answer is revealed to the whole session, and after a short
// pause the game master role passes to the next player in join order

// How to play
// - One player creates a session and shares its id (or the QR code) with the group
// - Others join with a display name, unique within the session
// - The game master submits a question/answer pair to open a round
// - Players get three guesses each; matching ignores case and surrounding spaces
// - Scores accumulate across rounds for as long as the session lives

// Implementation details:
// - One websocket per player; all game traffic flows over it as typed JSON messages
// - Session ids are short random strings, safe enough for casual sharing
// - A session disappears the moment its last player leaves
