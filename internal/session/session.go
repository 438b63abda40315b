// Package session holds the authenticated identity shared by the sync
// clients. A Store is created once at the application root and passed to
// whatever needs it.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("session: invalid token")

// Identity is what the client knows about the signed-in user. The token is
// not verified locally; the backend is the authority.
type Identity struct {
	UserID    int64
	Role      string
	ExpiresAt time.Time
}

func (i Identity) Authenticated() bool { return i.UserID != 0 }

type Store struct {
	mu       sync.RWMutex
	token    string
	identity Identity
	watchers map[int]func(Identity)
	nextID   int
}

func NewStore() *Store {
	return &Store{watchers: make(map[int]func(Identity))}
}

// SignIn replaces the current token. Watchers run only when the user
// actually changes.
func (s *Store) SignIn(token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	id, err := ParseIdentity(token)
	if err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	changed := s.identity.UserID != id.UserID
	s.token = token
	s.identity = id
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	if changed {
		notify(watchers, id)
	}
	return id, nil
}

func (s *Store) SignOut() {
	s.mu.Lock()
	was := s.identity.Authenticated()
	s.token = ""
	s.identity = Identity{}
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	if was {
		notify(watchers, Identity{})
	}
}

func (s *Store) Current() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Token satisfies api.TokenSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Watch registers fn for identity changes and calls it once with the
// current identity. The returned function unregisters it.
func (s *Store) Watch(fn func(Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	current := s.identity
	s.mu.Unlock()

	fn(current)
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) snapshotWatchers() []func(Identity) {
	out := make([]func(Identity), 0, len(s.watchers))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.watchers[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(watchers []func(Identity), id Identity) {
	for _, fn := range watchers {
		fn(id)
	}
}

// ParseIdentity reads user_id (number or string), role and exp from an
// unverified JWT. sub is used when user_id is absent.
func ParseIdentity(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var id Identity
	raw, ok := claims["user_id"]
	if !ok {
		raw = claims["sub"]
	}
	userID, err := toInt64(raw)
	if err != nil || userID == 0 {
		return Identity{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	id.UserID = userID
	id.Role, _ = claims["role"].(string)
	if exp, err := toInt64(claims["exp"]); err == nil && exp > 0 {
		id.ExpiresAt = time.Unix(exp, 0)
	}
	return id, nil
}

func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
