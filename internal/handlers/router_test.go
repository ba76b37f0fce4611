package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

// The handler tests run the real services over in-memory repositories, so a
// request exercises the full path below the transport.

const testBcryptCost = 4

type memStore struct {
	nextID int
	users  map[int]types.User
	tokens map[string]int
	resets map[string]types.PasswordReset
}

func newMemStore() *memStore {
	return &memStore{
		nextID: 1,
		users:  map[int]types.User{},
		tokens: map[string]int{},
		resets: map[string]types.PasswordReset{},
	}
}

func (m *memStore) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memStore) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memStore) Search(ctx context.Context, term string, page, pageSize int) ([]types.User, int, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	matched := make([]types.User, 0, len(m.users))
	for _, user := range m.users {
		if term == "" ||
			strings.Contains(strings.ToLower(user.Name), term) ||
			strings.Contains(strings.ToLower(user.Email), term) {
			matched = append(matched, user)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memStore) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := m.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, store.ErrConflict
	}
	user.ID = m.nextID
	m.nextID++
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) Update(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := m.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) Delete(ctx context.Context, id int) error {
	if _, ok := m.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) Insert(ctx context.Context, userID int, tokenHash string) error {
	m.tokens[tokenHash] = userID
	return nil
}

func (m *memStore) FindUserByHash(ctx context.Context, tokenHash string) (types.User, error) {
	userID, ok := m.tokens[tokenHash]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return m.GetByID(ctx, userID)
}

func (m *memStore) DeleteByHash(ctx context.Context, tokenHash string) error {
	delete(m.tokens, tokenHash)
	return nil
}

func (m *memStore) DeleteAllForUser(ctx context.Context, userID int) error {
	for hash, id := range m.tokens {
		if id == userID {
			delete(m.tokens, hash)
		}
	}
	return nil
}

func (m *memStore) ReplaceAllForUser(ctx context.Context, userID int, tokenHash string) error {
	_ = m.DeleteAllForUser(ctx, userID)
	m.tokens[tokenHash] = userID
	return nil
}

func (m *memStore) Upsert(ctx context.Context, email, tokenHash string) error {
	m.resets[strings.ToLower(email)] = types.PasswordReset{
		Email:     email,
		TokenHash: tokenHash,
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *memStore) GetResetByEmail(ctx context.Context, email string) (types.PasswordReset, error) {
	reset, ok := m.resets[strings.ToLower(email)]
	if !ok {
		return types.PasswordReset{}, store.ErrNotFound
	}
	return reset, nil
}

func (m *memStore) Consume(ctx context.Context, user types.User, passwordHash, rememberToken string) error {
	stored, ok := m.users[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	stored.PasswordHash = passwordHash
	stored.RememberToken = rememberToken
	m.users[user.ID] = stored
	delete(m.resets, strings.ToLower(user.Email))
	return m.DeleteAllForUser(ctx, user.ID)
}

// resetRepo adapts memStore to the PasswordResetRepository method names.
type resetRepo struct{ *memStore }

func (r resetRepo) GetByEmail(ctx context.Context, email string) (types.PasswordReset, error) {
	return r.memStore.GetResetByEmail(ctx, email)
}

type nullMailer struct{}

func (nullMailer) SendPasswordReset(ctx context.Context, user types.User, token string, expiresAt time.Time) error {
	return nil
}

type testEnv struct {
	router *chi.Mux
	store  *memStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := newMemStore()
	log := logrus.New()
	log.SetOutput(io.Discard)

	tokenService := services.NewTokenService(mem)
	authService := services.NewAuthService(mem, resetRepo{mem}, tokenService, nullMailer{}, log, testBcryptCost, time.Hour)
	userService := services.NewUserService(mem, tokenService, testBcryptCost)

	authHandler := NewAuthHandler(authService)

	router := chi.NewRouter()
	router.Route("/v1", func(r chi.Router) {
		AuthRouter(r, authService)
		r.Route("/users", func(r chi.Router) {
			UserRouter(r, userService, authHandler.RequireAuth)
		})
	})

	return &testEnv{router: router, store: mem}
}

// seedUser inserts a user directly into the store and returns it.
func (e *testEnv) seedUser(t *testing.T, name, email, password string, role types.Role) types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), testBcryptCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := e.store.Create(context.Background(), types.User{
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// login issues a token for an existing user through the API.
func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	resp := e.request(t, http.MethodPost, "/v1/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("login failed: status %d body %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &body)
	return body.Token
}

func (e *testEnv) request(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
