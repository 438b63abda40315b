package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"storefront/internal/config"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/utils"
)

const defaultTokenTTL = 24 * time.Hour

type AuthService struct {
	Users    repositories.Users
	Tokens   *utils.Manager
	TokenTTL time.Duration
}

func NewAuthService(users repositories.Users, tokens *utils.Manager) *AuthService {
	return &AuthService{Users: users, Tokens: tokens, TokenTTL: defaultTokenTTL}
}

// SignIn checks the password and returns a signed access token.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (string, models.User, error) {
	user, err := s.Users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", models.User{}, models.ErrInvalidCredentials
		}
		return "", models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.User{}, models.ErrInvalidCredentials
	}
	token, err := s.Tokens.NewJWT(user.ID, user.Role, s.TokenTTL)
	if err != nil {
		return "", models.User{}, err
	}
	return token, user, nil
}

// Seed creates the configured demo users that do not exist yet.
func (s *AuthService) Seed(ctx context.Context, users []config.DemoUser) (int, error) {
	created := 0
	for _, du := range users {
		if _, err := s.Users.GetUserByEmail(ctx, du.Email); err == nil {
			continue
		} else if !errors.Is(err, models.ErrUserNotFound) {
			return created, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(du.Password), bcrypt.DefaultCost)
		if err != nil {
			return created, err
		}
		role := du.Role
		if role == "" {
			role = models.RoleCustomer
		}
		if _, err := s.Users.CreateUser(ctx, models.User{
			ID:           du.ID,
			Name:         du.Name,
			Email:        du.Email,
			Role:         role,
			PasswordHash: string(hash),
		}); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
