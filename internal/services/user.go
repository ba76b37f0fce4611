package services

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

// PageSize is the fixed page size for user listings.
const PageSize = 15

// UserService implements the admin-gated user CRUD operations. Every method
// takes the acting user explicitly; authorization never reads ambient state.
type UserService struct {
	users      UserRepository
	tokens     *TokenService
	bcryptCost int
}

func NewUserService(users UserRepository, tokens *TokenService, bcryptCost int) *UserService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserService{users: users, tokens: tokens, bcryptCost: bcryptCost}
}

// UserPage is one page of a user listing plus pagination metadata.
type UserPage struct {
	Items       []types.User
	Total       int
	CurrentPage int
	LastPage    int
	PerPage     int
}

// List returns a page of users matching term against name or email. Any
// authenticated actor may list.
func (s *UserService) List(ctx context.Context, actor types.User, term string, page int) (UserPage, error) {
	if page < 1 {
		page = 1
	}
	items, total, err := s.users.Search(ctx, term, page, PageSize)
	if err != nil {
		return UserPage{}, err
	}
	lastPage := (total + PageSize - 1) / PageSize
	if lastPage < 1 {
		lastPage = 1
	}
	return UserPage{
		Items:       items,
		Total:       total,
		CurrentPage: page,
		LastPage:    lastPage,
		PerPage:     PageSize,
	}, nil
}

// Get returns a user by id. Reads carry no ownership restriction.
func (s *UserService) Get(ctx context.Context, actor types.User, id int) (types.User, error) {
	return s.users.GetByID(ctx, id)
}

type CreateUserInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
	Role                 string
}

// Create makes a new user on behalf of an admin. The authorization check
// runs before any of the input is validated. Role comes from the input and
// defaults to "user" when omitted.
func (s *UserService) Create(ctx context.Context, actor types.User, in CreateUserInput) (types.User, error) {
	if !CanSetRole(actor) {
		return types.User{}, ErrForbidden
	}

	in.Name = trimmed(in.Name)
	in.Email = trimmed(in.Email)

	errs := newValidationError()
	checkName(errs, in.Name, true)
	checkEmail(errs, in.Email, true)
	checkPassword(errs, in.Password, in.PasswordConfirmation, true)

	role := types.RoleUser
	if in.Role != "" {
		parsed, err := types.ParseRole(in.Role)
		if err != nil {
			errs.add("role", msgRoleInvalid)
		} else {
			role = parsed
		}
	}
	if errs.any() {
		return types.User{}, errs
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return types.User{}, fieldError("email", msgEmailTaken)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return types.User{}, err
	}
	remember, err := newSecret()
	if err != nil {
		return types.User{}, err
	}

	user, err := s.users.Create(ctx, types.User{
		Name:          in.Name,
		Email:         in.Email,
		Role:          role,
		PasswordHash:  string(hash),
		RememberToken: remember,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, fieldError("email", msgEmailTaken)
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateUserInput carries a partial update; nil fields are left unchanged.
type UpdateUserInput struct {
	Name                 *string
	Email                *string
	Password             *string
	PasswordConfirmation *string
	Role                 *string
}

// Update applies a partial update to the target user. Admins may update
// anyone, users only themselves. A role field is applied only when the actor
// may set roles; otherwise it is ignored even if present. Changing the
// password or email here does not revoke tokens; only logout and password
// reset do.
func (s *UserService) Update(ctx context.Context, actor types.User, targetID int, in UpdateUserInput) (types.User, error) {
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return types.User{}, err
	}
	if !CanUpdate(actor, target) {
		return types.User{}, ErrForbidden
	}

	errs := newValidationError()

	if in.Name != nil {
		name := trimmed(*in.Name)
		if name == "" {
			errs.add("name", msgNameRequired)
		} else {
			checkName(errs, name, false)
			target.Name = name
		}
	}

	if in.Email != nil {
		email := trimmed(*in.Email)
		checkEmail(errs, email, true)
		if email != "" && validEmail(email) {
			if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing.ID != target.ID {
				errs.add("email", msgEmailTaken)
			} else if err != nil && !errors.Is(err, store.ErrNotFound) {
				return types.User{}, err
			}
			target.Email = email
		}
	}

	if in.Password != nil {
		confirmation := ""
		if in.PasswordConfirmation != nil {
			confirmation = *in.PasswordConfirmation
		}
		checkPassword(errs, *in.Password, confirmation, true)
		if len(errs.Errors["password"]) == 0 {
			hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), s.bcryptCost)
			if err != nil {
				return types.User{}, err
			}
			target.PasswordHash = string(hash)
		}
	}

	if in.Role != nil && CanSetRole(actor) {
		parsed, err := types.ParseRole(*in.Role)
		if err != nil {
			errs.add("role", msgRoleInvalid)
		} else {
			target.Role = parsed
		}
	}

	if errs.any() {
		return types.User{}, errs
	}

	updated, err := s.users.Update(ctx, target)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, fieldError("email", msgEmailTaken)
		}
		return types.User{}, err
	}
	return updated, nil
}

// Delete removes the target user and revokes all of its tokens first, so a
// live session cannot outlast the record. Admin only, and never the admin's
// own account. Deleting an id that does not exist is NotFound, not a no-op.
func (s *UserService) Delete(ctx context.Context, actor types.User, targetID int) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if !CanDelete(actor, target) {
		return ErrForbidden
	}

	if err := s.tokens.RevokeAll(ctx, target); err != nil {
		return err
	}
	return s.users.Delete(ctx, target.ID)
}
