// Package identity discovers the visitor behind a request: a signed session
// cookie when the bridge is mounted inside a Go site, or trusted headers set
// by an upstream auth layer.
package identity

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/sessions"
)

// User is the visitor resolved for one request. The zero value is anonymous.
type User struct {
	ID           string
	Email        string
	JustLoggedIn bool
}

// Authenticated reports whether the visitor is logged in.
func (u User) Authenticated() bool {
	return u.ID != ""
}

// TrackingID is the value sent as the collector user id: the email, or the
// user id when no email is known.
func (u User) TrackingID() string {
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// Resolver finds the User for a request. Resolvers may write cookies, so
// Resolve must run before the response is committed.
type Resolver interface {
	Resolve(w http.ResponseWriter, r *http.Request) (User, error)
}

// Anonymous resolves every request to the anonymous user.
type Anonymous struct{}

// Resolve implements Resolver.
func (Anonymous) Resolve(http.ResponseWriter, *http.Request) (User, error) {
	return User{}, nil
}

const (
	sessionUserID = "user_id"
	sessionEmail  = "email"
	loginFlash    = "login"
)

// SessionResolver reads the user from a gorilla cookie session.
type SessionResolver struct {
	store sessions.Store
	name  string
}

// NewSessionResolver builds a resolver signing cookies with key.
func NewSessionResolver(name, key string, secure bool) (*SessionResolver, error) {
	if name == "" || key == "" {
		return nil, fmt.Errorf("session name and key are required")
	}
	store := sessions.NewCookieStore([]byte(key))
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	return &SessionResolver{store: store, name: name}, nil
}

// Resolve implements Resolver. A pending login flash is consumed, so
// JustLoggedIn is true for exactly one request after MarkLogin.
func (s *SessionResolver) Resolve(w http.ResponseWriter, r *http.Request) (User, error) {
	session, err := s.store.Get(r, s.name)
	if err != nil {
		return User{}, fmt.Errorf("read session: %w", err)
	}
	id, _ := session.Values[sessionUserID].(string)
	if id == "" {
		return User{}, nil
	}
	email, _ := session.Values[sessionEmail].(string)
	u := User{ID: id, Email: email}
	if flashes := session.Flashes(loginFlash); len(flashes) > 0 {
		u.JustLoggedIn = true
		if err := session.Save(r, w); err != nil {
			return u, fmt.Errorf("save session: %w", err)
		}
	}
	return u, nil
}

// MarkLogin stores u in the session and queues the login flash for the next
// resolved request.
func (s *SessionResolver) MarkLogin(w http.ResponseWriter, r *http.Request, u User) error {
	session, err := s.store.Get(r, s.name)
	if err != nil && session == nil {
		return fmt.Errorf("read session: %w", err)
	}
	session.Values[sessionUserID] = u.ID
	session.Values[sessionEmail] = u.Email
	session.AddFlash(true, loginFlash)
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Logout clears the session.
func (s *SessionResolver) Logout(w http.ResponseWriter, r *http.Request) error {
	session, err := s.store.Get(r, s.name)
	if err != nil && session == nil {
		return fmt.Errorf("read session: %w", err)
	}
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// HeaderResolver trusts identity headers injected by an upstream auth layer.
type HeaderResolver struct {
	UserHeader  string
	EmailHeader string
	LoginHeader string
}

// Resolve implements Resolver.
func (h HeaderResolver) Resolve(_ http.ResponseWriter, r *http.Request) (User, error) {
	id := strings.TrimSpace(r.Header.Get(h.UserHeader))
	if id == "" {
		return User{}, nil
	}
	u := User{ID: id, Email: strings.TrimSpace(r.Header.Get(h.EmailHeader))}
	if h.LoginHeader != "" {
		u.JustLoggedIn, _ = strconv.ParseBool(r.Header.Get(h.LoginHeader))
	}
	return u, nil
}
