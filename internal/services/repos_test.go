package services

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

// In-memory repository fakes shared by the service tests.

type memUserRepo struct {
	nextID int
	users  map[int]types.User
}

func newMemUserRepo(seed ...types.User) *memUserRepo {
	r := &memUserRepo{nextID: 1, users: map[int]types.User{}}
	for _, u := range seed {
		if u.ID == 0 {
			u.ID = r.nextID
		}
		if u.ID >= r.nextID {
			r.nextID = u.ID + 1
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now()
		}
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Search(ctx context.Context, term string, page, pageSize int) ([]types.User, int, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	matched := make([]types.User, 0, len(r.users))
	for _, user := range r.users {
		if term == "" ||
			strings.Contains(strings.ToLower(user.Name), term) ||
			strings.Contains(strings.ToLower(user.Email), term) {
			matched = append(matched, user)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
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

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, store.ErrConflict
	}
	user.ID = r.nextID
	r.nextID++
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	if existing, err := r.GetByEmail(ctx, user.Email); err == nil && existing.ID != user.ID {
		return types.User{}, store.ErrConflict
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type memResetRepo struct {
	resets map[string]types.PasswordReset
	users  *memUserRepo
	tokens *memTokenRepo
}

func newMemResetRepo(users *memUserRepo, tokens *memTokenRepo) *memResetRepo {
	return &memResetRepo{resets: map[string]types.PasswordReset{}, users: users, tokens: tokens}
}

func (r *memResetRepo) Upsert(ctx context.Context, email, tokenHash string) error {
	r.resets[strings.ToLower(email)] = types.PasswordReset{
		Email:     email,
		TokenHash: tokenHash,
		CreatedAt: time.Now(),
	}
	return nil
}

func (r *memResetRepo) GetByEmail(ctx context.Context, email string) (types.PasswordReset, error) {
	reset, ok := r.resets[strings.ToLower(email)]
	if !ok {
		return types.PasswordReset{}, store.ErrNotFound
	}
	return reset, nil
}

func (r *memResetRepo) Consume(ctx context.Context, user types.User, passwordHash, rememberToken string) error {
	stored, ok := r.users.users[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	stored.PasswordHash = passwordHash
	stored.RememberToken = rememberToken
	r.users.users[user.ID] = stored
	delete(r.resets, strings.ToLower(user.Email))
	if r.tokens != nil {
		_ = r.tokens.DeleteAllForUser(ctx, user.ID)
	}
	return nil
}

// recordingMailer captures the reset jobs handed to it.
type recordingMailer struct {
	sent []struct {
		User      types.User
		Token     string
		ExpiresAt time.Time
	}
	err error
}

func (m *recordingMailer) SendPasswordReset(ctx context.Context, user types.User, token string, expiresAt time.Time) error {
	m.sent = append(m.sent, struct {
		User      types.User
		Token     string
		ExpiresAt time.Time
	}{user, token, expiresAt})
	return m.err
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// testBcryptCost keeps hashing fast in tests.
const testBcryptCost = 4
