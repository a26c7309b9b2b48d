package apitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/storefront-mobile/apiclient/jwt"
)

// User is the account shape returned by the fake API.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type account struct {
	user     User
	password string
}

// Server is a fake storefront API. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	tokens *jwt.Manager

	mu            sync.Mutex
	accounts      map[string]*account // by email
	issued        map[string]string   // token -> user id, every token not logged out
	active        map[string]bool
	nextRefresh   []string
	hits          map[string]int
	lastAuth      map[string]string
	failRefresh   bool
	rejectAll     bool
	refreshDelay  time.Duration
	refreshCalls  atomic.Int64
	slowReleased  chan struct{}
	slowCloseOnce sync.Once
}

// NewServer starts a fake API on a loopback listener. Call Close when done.
func NewServer() *Server {
	mgr, err := jwt.NewManager(jwt.Config{
		TTL:           15 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(uuid.NewString() + uuid.NewString()),
		Issuer:        "storefront-apitest",
	})
	if err != nil {
		panic("apitest: " + err.Error())
	}

	s := &Server{
		tokens:       mgr,
		accounts:     make(map[string]*account),
		issued:       make(map[string]string),
		active:       make(map[string]bool),
		hits:         make(map[string]int),
		lastAuth:     make(map[string]string),
		slowReleased: make(chan struct{}),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// Close releases blocked /slow handlers and shuts the server down.
func (s *Server) Close() {
	s.slowCloseOnce.Do(func() { close(s.slowReleased) })
	s.Server.Close()
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.track)

	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	r.HandleFunc("/slow", s.handleSlow)
	r.HandleFunc("/validation", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string][]string{
				"email": {"is required"},
				"name":  {"is required"},
			},
		})
	})
	r.HandleFunc("/custom", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Custom error"})
	})
	r.HandleFunc("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "Server exploded")
	})
	r.HandleFunc("/invalid-json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "{not json")
	})
	r.HandleFunc("/empty", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.PathPrefix("/").HandlerFunc(s.handleProtected).
		Methods(http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete)

	return r
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.lastAuth[r.URL.Path] = r.Header.Get("Authorization")
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

/*
====================================
HANDLERS
====================================
*/

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(body.Email)]
	s.mu.Unlock()
	if !ok || acc.password != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
		return
	}

	s.respondWithToken(w, http.StatusOK, acc.user)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}

	errs := map[string][]string{}
	if body.Email == "" {
		errs["email"] = []string{"is required"}
	}
	if len(body.Password) < 8 {
		errs["password"] = []string{"must be at least 8 characters"}
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": errs})
		return
	}

	s.mu.Lock()
	key := strings.ToLower(body.Email)
	if _, exists := s.accounts[key]; exists {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Email already registered"})
		return
	}
	acc := &account{
		user:     User{ID: uuid.NewString(), Email: body.Email, Name: body.Name},
		password: body.Password,
	}
	s.accounts[key] = acc
	s.mu.Unlock()

	s.respondWithToken(w, http.StatusCreated, acc.user)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	old := bearer(r)

	s.mu.Lock()
	userID, known := s.issued[old]
	fail := s.failRefresh
	var forced string
	if len(s.nextRefresh) > 0 {
		forced = s.nextRefresh[0]
		s.nextRefresh = s.nextRefresh[1:]
	}
	s.mu.Unlock()

	if fail || !known {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token invalid"})
		return
	}

	user := s.userByID(userID)
	if forced != "" {
		s.mu.Lock()
		s.issued[forced] = userID
		s.active[forced] = true
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"token": forced, "user": user})
		return
	}
	s.respondWithToken(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok := bearer(r)
	s.mu.Lock()
	delete(s.active, tok)
	delete(s.issued, tok)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSlow(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-s.slowReleased:
	}
}

func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	tok := bearer(r)

	s.mu.Lock()
	ok := tok != "" && s.active[tok] && !s.rejectAll
	userID := s.issued[tok]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token expired"})
		return
	}

	resp := map[string]any{
		"path":   r.URL.Path,
		"method": r.Method,
		"user":   userID,
	}
	if r.Body != nil {
		if data, _ := io.ReadAll(r.Body); len(data) > 0 && json.Valid(data) {
			resp["body"] = json.RawMessage(data)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) respondWithToken(w http.ResponseWriter, status int, user User) {
	tok, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.mu.Lock()
	s.issued[tok] = user.ID
	s.active[tok] = true
	s.mu.Unlock()

	writeJSON(w, status, map[string]any{"token": tok, "user": user})
}

func (s *Server) userByID(id string) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc.user
		}
	}
	return User{ID: id}
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
