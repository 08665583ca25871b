package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	goa "goa.design/goa/v3/pkg"

	"github.com/NarenCandy/wild-animal-detection/internal/auth"
	"github.com/NarenCandy/wild-animal-detection/internal/database"
	"github.com/NarenCandy/wild-animal-detection/internal/middleware"
)

// UserStore is the user persistence the account service needs
type UserStore interface {
	CreateUser(ctx context.Context, u *database.UserRecord) error
	GetUser(ctx context.Context, id string) (*database.UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*database.UserRecord, error)
	AddPlayerID(ctx context.Context, userID, playerID string) error
	ListPlayerIDs(ctx context.Context, userID string) ([]string, error)
}

// RegisterPayload is the body of a registration request
type RegisterPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// RegisterResult is returned for a created user
type RegisterResult struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// LoginPayload is the body of a token request
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResult carries an access token
type TokenResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UserView is the public form of a user
type UserView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// PlayerPayload registers a push notification device
type PlayerPayload struct {
	PlayerID string `json:"player_id"`
}

// OKResult acknowledges a request
type OKResult struct {
	OK bool `json:"ok"`
}

// AccountService implements registration, login and profile operations
type AccountService struct {
	users UserStore
	jwt   *auth.JWTManager
}

// NewAccountService creates a new account service
func NewAccountService(users UserStore, jwt *auth.JWTManager) *AccountService {
	return &AccountService{users: users, jwt: jwt}
}

// Register creates a user account
func (s *AccountService) Register(ctx context.Context, p *RegisterPayload) (*RegisterResult, error) {
	if p == nil {
		return nil, badRequest("request body is required")
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Name = strings.TrimSpace(p.Name)

	var err error
	if p.Name == "" {
		err = goa.MergeErrors(err, goa.MissingFieldError("name", "body"))
	}
	if p.Email == "" {
		err = goa.MergeErrors(err, goa.MissingFieldError("email", "body"))
	} else {
		err = goa.MergeErrors(err, goa.ValidateFormat("body.email", p.Email, goa.FormatEmail))
	}
	if p.Password == "" {
		err = goa.MergeErrors(err, goa.MissingFieldError("password", "body"))
	}
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &database.UserRecord{
		Name:         p.Name,
		Email:        p.Email,
		Phone:        strings.TrimSpace(p.Phone),
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			return nil, conflict("Email already registered")
		}
		return nil, err
	}

	log.Printf("[Accounts] User %s registered", user.ID)
	return &RegisterResult{Message: "user_created", UserID: user.ID}, nil
}

// Login exchanges credentials for a bearer token
func (s *AccountService) Login(ctx context.Context, p *LoginPayload) (*TokenResult, error) {
	if p == nil || p.Email == "" || p.Password == "" {
		return nil, unauthorized("Incorrect credentials")
	}

	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(p.Email)))
	if err != nil {
		return nil, err
	}
	if user == nil || auth.CheckPassword(user.PasswordHash, p.Password) != nil {
		return nil, unauthorized("Incorrect credentials")
	}

	token, _, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &TokenResult{AccessToken: token, TokenType: "bearer"}, nil
}

// Me returns the authenticated user
func (s *AccountService) Me(ctx context.Context) (*UserView, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return &UserView{ID: user.ID, Name: user.Name, Email: user.Email, Phone: user.Phone}, nil
}

// RegisterPlayer attaches a push device to the authenticated user.
// Registering the same device twice is a no-op.
func (s *AccountService) RegisterPlayer(ctx context.Context, p *PlayerPayload) (*OKResult, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil || strings.TrimSpace(p.PlayerID) == "" {
		return nil, goa.MissingFieldError("player_id", "body")
	}
	if err := s.users.AddPlayerID(ctx, user.ID, strings.TrimSpace(p.PlayerID)); err != nil {
		return nil, err
	}
	return &OKResult{OK: true}, nil
}

func (s *AccountService) currentUser(ctx context.Context) (*database.UserRecord, error) {
	claims, err := middleware.RequireAuth(ctx)
	if err != nil {
		return nil, unauthorized("Could not validate credentials")
	}
	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, unauthorized("User not found")
	}
	return user, nil
}
