package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/card-service/internal/config"
	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "card-service"

// Claims represents the JWT claims. Subject holds the user id.
type Claims struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthService registers users and issues and validates bearer tokens
type AuthService struct {
	users          repository.UserStore
	log            *logrus.Logger
	secret         []byte
	tokenTTL       time.Duration
	bootstrapToken string
	now            Clock
}

// NewAuthService initializes a new auth service
func NewAuthService(users repository.UserStore, log *logrus.Logger, cfg *config.Config) *AuthService {
	return &AuthService{
		users:          users,
		log:            log,
		secret:         []byte(cfg.JWTSecret),
		tokenTTL:       cfg.TokenTTL,
		bootstrapToken: cfg.AdminBootstrapToken,
		now:            time.Now,
	}
}

// Register creates a new user with hashed password
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	return s.createUser(ctx, username, email, password, models.RoleUser)
}

// CreateAdmin creates an administrator. The call must present the configured
// bootstrap token; with no token configured admins cannot be created.
func (s *AuthService) CreateAdmin(ctx context.Context, bootstrapToken, username, email, password string) (*models.User, error) {
	if s.bootstrapToken == "" || subtle.ConstantTimeCompare([]byte(bootstrapToken), []byte(s.bootstrapToken)) != 1 {
		return nil, fmt.Errorf("%w: invalid bootstrap token", models.ErrForbidden)
	}
	return s.createUser(ctx, username, email, password, models.RoleAdmin)
}

func (s *AuthService) createUser(ctx context.Context, username, email, password string, role models.Role) (*models.User, error) {
	username = strings.TrimSpace(username)
	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.ErrUsernameExists
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hashedPassword),
		Role:         role,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.WithField("role", role).Infof("User registered: %s", user.Username)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.FindUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", fmt.Errorf("%w: invalid credentials", models.ErrUnauthenticated)
		}
		return "", err
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("%w: invalid credentials", models.ErrUnauthenticated)
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return "", err
	}

	s.log.Infof("User logged in: %s", user.Username)
	return token, nil
}

// IssueToken signs a token for user
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// Authenticate resolves the user a bearer token was issued to. The user is
// reloaded from the store so deleted users and changed roles take effect
// before the token expires.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token has expired", models.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("%w: token is invalid", models.ErrUnauthenticated)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject", models.ErrUnauthenticated)
	}

	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", models.ErrUnauthenticated)
		}
		return nil, err
	}
	return user, nil
}
