package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/4xmen/wasteless/internal/apperr"
	"github.com/4xmen/wasteless/internal/models"
	"github.com/4xmen/wasteless/internal/store"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	validate        = validator.New()
)

const errBadCredentials = "invalid email or password"

type Service struct {
	users     store.UserStore
	jwtSecret string
	tokenTTL  time.Duration
}

type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

func New(users store.UserStore, jwtSecret string) *Service {
	return NewWithTokenTTL(users, jwtSecret, 30*24*time.Hour)
}

func NewWithTokenTTL(users store.UserStore, jwtSecret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 30 * 24 * time.Hour
	}

	return &Service{
		users:     users,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Location string
	Bio      string
}

// ProfileUpdate holds the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Username       *string
	Email          *string
	Password       *string
	Location       *string
	Bio            *string
	ProfilePicture *string
}

func validateUsername(username string) error {
	if len(username) < 3 || len(username) > 32 {
		return apperr.InvalidRequest("username must be between 3 and 32 characters")
	}
	if !usernamePattern.MatchString(username) {
		return apperr.InvalidRequest("username can only contain letters, numbers, and underscores")
	}
	return nil
}

func validateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return apperr.InvalidRequest("please enter a valid email")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 {
		return apperr.InvalidRequest("password must be at least 6 characters")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Internal("failed to hash password", err)
	}
	return string(hash), nil
}

// storeError converts store failures into the error taxonomy.
func storeError(err error, notFound string) error {
	var dup *store.DuplicateError
	switch {
	case errors.As(err, &dup):
		return apperr.Conflict(dup.Field + " already exists")
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(notFound)
	default:
		return apperr.Internal("failed to access users", err)
	}
}

// Register creates an account and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)

	if err := validateUsername(username); err != nil {
		return nil, "", err
	}
	if err := validateEmail(email); err != nil {
		return nil, "", err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, "", err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Location:     strings.TrimSpace(in.Location),
		Bio:          strings.TrimSpace(in.Bio),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, "", storeError(err, "user not found")
	}

	token, err := s.GenerateToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.users.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", apperr.Unauthorized(errBadCredentials)
		}
		return nil, "", apperr.Internal("failed to query user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", apperr.Unauthorized(errBadCredentials)
	}

	token, err := s.GenerateToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "user not found")
	}
	return user, nil
}

// UpdateProfile applies upd and issues a new token for the caller.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, string, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if err := validateUsername(username); err != nil {
			return nil, "", err
		}
		user.Username = username
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if err := validateEmail(email); err != nil {
			return nil, "", err
		}
		user.Email = email
	}
	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return nil, "", err
		}
		hash, err := hashPassword(*upd.Password)
		if err != nil {
			return nil, "", err
		}
		user.PasswordHash = hash
	}
	if upd.Location != nil {
		user.Location = strings.TrimSpace(*upd.Location)
	}
	if upd.Bio != nil {
		user.Bio = strings.TrimSpace(*upd.Bio)
	}
	if upd.ProfilePicture != nil {
		user.ProfilePicture = strings.TrimSpace(*upd.ProfilePicture)
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, "", storeError(err, "user not found")
	}

	token, err := s.GenerateToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to fetch users", err)
	}
	return users, nil
}

func (s *Service) GenerateToken(userID string) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", apperr.Internal("failed to generate token", err)
	}

	return tokenString, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// Authenticate resolves a bearer token to an existing user id.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnauthorized, "invalid token", err)
	}

	exists, err := s.users.UserExists(ctx, claims.UserID)
	if err != nil {
		return "", apperr.Internal("failed to validate user", err)
	}
	if !exists {
		return "", apperr.Unauthorized("user not found")
	}
	return claims.UserID, nil
}
