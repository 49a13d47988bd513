package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/closetline/api/internal/domain"
	"github.com/closetline/api/internal/platform/auth"
	"github.com/closetline/api/internal/repositories"
)

const (
	userIDPrefix      = "usr_"
	minPasswordLength = 8
	maxNameLength     = 80
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

var (
	// ErrUserInvalidInput indicates the supplied registration or profile data failed validation.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the account does not exist.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserConflict indicates the email is already registered.
	ErrUserConflict = errors.New("user: email already registered")
	// ErrUserUnauthenticated indicates the credentials did not match.
	ErrUserUnauthenticated = errors.New("user: invalid credentials")
	// ErrUserUnavailable indicates a backend failure.
	ErrUserUnavailable = errors.New("user: unavailable")

	errUserRepositoryRequired = errors.New("user service: user repository is required")
	errUserTokensRequired     = errors.New("user service: token issuer is required")
)

// AdminCredentials is the single back-office account checked by AdminLogin.
type AdminCredentials struct {
	Email    string
	Password string
}

// UserServiceDeps wires the account service.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Tokens      TokenIssuer
	Admin       AdminCredentials
	HashCost    int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users    repositories.UserRepository
	tokens   TokenIssuer
	admin    AdminCredentials
	hashCost int
	now      func() time.Time
	newID    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewUserService constructs a UserService.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errUserRepositoryRequired
	}
	if deps.Tokens == nil {
		return nil, errUserTokensRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return userIDPrefix + ulid.Make().String() }
	}
	cost := deps.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &userService{
		users:  deps.Users,
		tokens: deps.Tokens,
		admin: AdminCredentials{
			Email:    strings.ToLower(strings.TrimSpace(deps.Admin.Email)),
			Password: deps.Admin.Password,
		},
		hashCost: cost,
		now:      func() time.Time { return clock().UTC() },
		newID:    newID,
		logger:   logger,
	}, nil
}

func (s *userService) Register(ctx context.Context, cmd RegisterUserCommand) (AuthResult, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return AuthResult{}, fmt.Errorf("%w: name is required", ErrUserInvalidInput)
	}
	email, err := normaliseEmail(cmd.Email)
	if err != nil {
		return AuthResult{}, err
	}
	if utf8.RuneCountInString(cmd.Password) < minPasswordLength {
		return AuthResult{}, fmt.Errorf("%w: password must have at least %d characters", ErrUserInvalidInput, minPasswordLength)
	}
	if len(cmd.Password) > maxPasswordBytes {
		return AuthResult{}, fmt.Errorf("%w: password is too long", ErrUserInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.hashCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: hash password: %v", ErrUserUnavailable, err)
	}

	now := s.now()
	user := domain.User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		return AuthResult{}, s.translate(err)
	}

	token, err := s.tokens.Issue(user.ID, user.Email, auth.RoleUser)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: issue token: %v", ErrUserUnavailable, err)
	}
	s.logger(ctx, "user.registered", map[string]any{"userId": user.ID})
	return AuthResult{User: user, Token: token}, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return AuthResult{}, ErrUserUnauthenticated
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return AuthResult{}, ErrUserUnauthenticated
		}
		return AuthResult{}, s.translate(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger(ctx, "user.login.failed", map[string]any{"userId": user.ID})
		return AuthResult{}, ErrUserUnauthenticated
	}
	token, err := s.tokens.Issue(user.ID, user.Email, auth.RoleUser)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: issue token: %v", ErrUserUnavailable, err)
	}
	return AuthResult{User: user, Token: token}, nil
}

func (s *userService) AdminLogin(ctx context.Context, email, password string) (AuthResult, error) {
	if s.admin.Email == "" || s.admin.Password == "" {
		return AuthResult{}, ErrUserUnauthenticated
	}
	email = strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(s.admin.Email)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.admin.Password)) == 1
	if !emailOK || !passwordOK {
		s.logger(ctx, "user.admin_login.failed", nil)
		return AuthResult{}, ErrUserUnauthenticated
	}
	token, err := s.tokens.Issue("admin", s.admin.Email, auth.RoleAdmin)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: issue token: %v", ErrUserUnavailable, err)
	}
	return AuthResult{Token: token}, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.translate(err)
	}
	return user, nil
}

func (s *userService) UpdateShippingProfile(ctx context.Context, userID string, profile ShippingProfile) (User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return User{}, err
	}
	normalised, err := domain.NewShippingProfile(profile)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrUserInvalidInput, err)
	}
	if _, err := mail.ParseAddress(normalised.Email); err != nil {
		return User{}, fmt.Errorf("%w: shipping email is invalid", ErrUserInvalidInput)
	}

	user.Shipping = &normalised
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		return User{}, s.translate(err)
	}
	return user, nil
}

func (s *userService) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return ErrUserNotFound
	case isRepoConflict(err):
		return ErrUserConflict
	default:
		return fmt.Errorf("%w: %v", ErrUserUnavailable, err)
	}
}

func normaliseEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", fmt.Errorf("%w: email is invalid", ErrUserInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}
