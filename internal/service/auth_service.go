package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// TokenType distinguishes student vs admin tokens.
type TokenType string

const (
	TokenTypeStudent TokenType = "student"
	TokenTypeAdmin   TokenType = "admin"
)

// Claims extends JWT standard claims with the authenticated principal.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    uuid.UUID `json:"user_id"`
}

// TokenRegistry remembers the live token ID of each principal so logout
// and re-login invalidate older tokens.
type TokenRegistry interface {
	Save(ctx context.Context, principalType, principalID, jti string, ttl time.Duration) error
	IsActive(ctx context.Context, principalType, principalID, jti string) (bool, error)
	Revoke(ctx context.Context, principalType, principalID string) error
}

// AuthService handles login, JWT issuing and token revocation.
type AuthService struct {
	cfg    *config.Config
	store  repository.Store
	tokens TokenRegistry
	log    zerolog.Logger
}

// NewAuthService creates a new AuthService. tokens may be nil, in which
// case tokens stay valid until they expire.
func NewAuthService(cfg *config.Config, store repository.Store, tokens TokenRegistry, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:    cfg,
		store:  store,
		tokens: tokens,
		log:    log.With().Str("component", "auth_service").Logger(),
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// StudentLogin authenticates a student. Unknown emails are rejected with
// ErrUnauthorizedEmail.
func (s *AuthService) StudentLogin(ctx context.Context, req model.StudentLoginRequest) (*model.StudentLoginResponse, error) {
	student, err := s.store.Students().GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnauthorizedEmail
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	if err := s.CheckPassword(student.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	token, err := s.issue(ctx, TokenTypeStudent, student.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("student_id", student.ID.String()).Msg("Student logged in")
	return &model.StudentLoginResponse{Token: token, Student: *student}, nil
}

// AdminLogin authenticates an admin.
func (s *AuthService) AdminLogin(ctx context.Context, req model.AdminLoginRequest) (*model.AdminLoginResponse, error) {
	admin, err := s.store.Admins().GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnauthorizedEmail
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	if err := s.CheckPassword(admin.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	token, err := s.issue(ctx, TokenTypeAdmin, admin.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("admin_id", admin.ID.String()).Msg("Admin logged in")
	return &model.AdminLoginResponse{Token: token, Admin: *admin}, nil
}

// GenerateToken signs a token for the principal without registering it.
func (s *AuthService) GenerateToken(tokenType TokenType, userID uuid.UUID) (string, string, error) {
	jti := uuid.NewString()
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: tokenType,
		UserID:    userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return signed, jti, nil
}

func (s *AuthService) issue(ctx context.Context, tokenType TokenType, userID uuid.UUID) (string, error) {
	signed, jti, err := s.GenerateToken(tokenType, userID)
	if err != nil {
		return "", err
	}
	if s.tokens != nil {
		if err := s.tokens.Save(ctx, string(tokenType), userID.String(), jti, s.cfg.JWTExpiry); err != nil {
			return "", fmt.Errorf("store token: %w", err)
		}
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	switch claims.TokenType {
	case TokenTypeStudent, TokenTypeAdmin:
	default:
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CheckActive verifies the token has not been revoked or superseded.
func (s *AuthService) CheckActive(ctx context.Context, claims *Claims) error {
	if s.tokens == nil {
		return nil
	}
	ok, err := s.tokens.IsActive(ctx, string(claims.TokenType), claims.UserID.String(), claims.ID)
	if err != nil {
		return fmt.Errorf("check token: %w", err)
	}
	if !ok {
		return ErrInvalidToken
	}
	return nil
}

// Logout revokes the principal's live token.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	if s.tokens == nil {
		return nil
	}
	if err := s.tokens.Revoke(ctx, string(claims.TokenType), claims.UserID.String()); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// ResetStudentLogin revokes a student's live token so they must sign in
// again, e.g. after switching devices mid-exam.
func (s *AuthService) ResetStudentLogin(ctx context.Context, studentID uuid.UUID) error {
	if _, err := s.store.Students().GetByID(ctx, studentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("get student: %w", err)
	}
	if s.tokens == nil {
		return nil
	}
	if err := s.tokens.Revoke(ctx, string(TokenTypeStudent), studentID.String()); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.log.Info().Str("student_id", studentID.String()).Msg("Student login reset")
	return nil
}
