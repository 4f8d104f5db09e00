package world

import (
	"fmt"
	"math/rand"
)

// Token is the opaque credential issued at join: 32 lowercase hex characters.
type Token string

// Player ties a name and a token to a dog inside one session.
type Player struct {
	ID      int
	Name    string
	Token   Token
	Session *Session
	Dog     *Dog
}

// Registry owns the token→player and session→tokens indexes; a token's
// session is reached through its Player. Both maps are always updated
// together; all access happens on the application loop goroutine, so no
// locking.
type Registry struct {
	byToken map[Token]*Player
	// bySession keeps tokens in join order per session id, so retirement
	// scans walk players deterministically.
	bySession map[int][]Token

	rng *rand.Rand
}

func NewRegistry(rng *rand.Rand) *Registry {
	return &Registry{
		byToken:   make(map[Token]*Player),
		bySession: make(map[int][]Token),
		rng:       rng,
	}
}

// NewToken draws two 64-bit randoms and renders them as 32 hex characters.
func (r *Registry) NewToken() Token {
	return Token(fmt.Sprintf("%016x%016x", r.rng.Uint64(), r.rng.Uint64()))
}

// Add registers a player for the given dog. An empty token means "mint one";
// restore paths pass the preserved token through. The player id is the
// registry size at insert.
func (r *Registry) Add(name string, s *Session, d *Dog, token Token) *Player {
	if token == "" {
		token = r.NewToken()
	}
	p := &Player{
		ID:      len(r.byToken),
		Name:    name,
		Token:   token,
		Session: s,
		Dog:     d,
	}
	r.byToken[token] = p
	r.bySession[s.ID()] = append(r.bySession[s.ID()], token)
	return p
}

// Find resolves a token, returning nil when unknown.
func (r *Registry) Find(token Token) *Player { return r.byToken[token] }

// SessionTokens returns the tokens of one session in join order.
func (r *Registry) SessionTokens(sessionID int) []Token { return r.bySession[sessionID] }

// SessionIDs returns every session id that has at least one player, ascending.
func (r *Registry) SessionIDs() []int {
	ids := make([]int, 0, len(r.bySession))
	for id := range r.bySession {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// Remove drops the player behind token from both indexes.
func (r *Registry) Remove(token Token) *Player {
	p := r.byToken[token]
	if p == nil {
		return nil
	}
	delete(r.byToken, token)
	sid := p.Session.ID()
	tokens := r.bySession[sid]
	for i, t := range tokens {
		if t == token {
			r.bySession[sid] = append(tokens[:i], tokens[i+1:]...)
			break
		}
	}
	if len(r.bySession[sid]) == 0 {
		delete(r.bySession, sid)
	}
	return p
}
