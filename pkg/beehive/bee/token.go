package bee

import "sync/atomic"

// Token is a one-shot stop signal shared by a node and whoever owns it.
// Kill is idempotent and safe to call from any goroutine; observers poll.
type Token struct {
	killed atomic.Bool
}

// NewToken returns a live token.
func NewToken() *Token {
	return &Token{}
}

// Kill marks the token as cancelled.
func (t *Token) Kill() {
	t.killed.Store(true)
}

// Killed reports whether Kill has been called.
func (t *Token) Killed() bool {
	return t.killed.Load()
}

// Alive reports whether Kill has not been called.
func (t *Token) Alive() bool {
	return !t.killed.Load()
}
