// Package authpw provides email/password authentication with email
// verification and password reset for students and staff.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"projectgate/api/internal/store"
	"projectgate/api/internal/util"
)

// User types accepted at sign-up. Admin accounts are seeded, never
// self-registered.
const (
	TypeStudent = "Student"
	TypeStaff   = "Staff"
	TypeAdmin   = "Admin"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("email, password, display name and department are required")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrInvalidVerifyToken = errors.New("invalid or expired verification token")
)

// UserStore is the slice of the data store the auth service needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	VerifyEmail(ctx context.Context, token string) (store.User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, token string) (string, error)
}

type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	UserType    string
	Department  string
}

type SignUpResponse struct {
	User              store.User
	VerificationToken string
}

// SignUp creates an unverified account. The caller is responsible for
// delivering the verification token by email.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Department = strings.TrimSpace(req.Department)
	if req.Email == "" || req.Password == "" || req.DisplayName == "" || req.Department == "" {
		return nil, ErrInvalidInput
	}
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	userType := req.UserType
	if userType == "" {
		userType = TypeStudent
	}
	if userType != TypeStudent && userType != TypeStaff {
		return nil, fmt.Errorf("%w: user type must be %s or %s", ErrInvalidInput, TypeStudent, TypeStaff)
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	verificationToken, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}
	expiresAt := time.Now().Add(24 * time.Hour)

	user, err := s.store.CreateUser(ctx, store.User{
		ID:                    util.NewID("usr"),
		DisplayName:           req.DisplayName,
		Email:                 strings.ToLower(req.Email),
		PasswordHash:          hash,
		UserType:              userType,
		Department:            req.Department,
		VerificationToken:     verificationToken,
		VerificationExpiresAt: &expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return &SignUpResponse{User: user, VerificationToken: verificationToken}, nil
}

type SignInResponse struct {
	User           store.User
	RequiresVerify bool
}

// SignIn authenticates by email and password. Unverified accounts get a
// RequiresVerify response instead of a credential error so the client can
// prompt for verification.
func (s *Service) SignIn(ctx context.Context, email, password string) (*SignInResponse, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsEmailVerified {
		return &SignInResponse{User: user, RequiresVerify: true}, nil
	}
	return &SignInResponse{User: user}, nil
}

// VerifyEmail marks the account behind a verification token as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, ErrInvalidVerifyToken
	}
	user, err := s.store.VerifyEmail(ctx, token)
	if err != nil {
		return store.User{}, ErrInvalidVerifyToken
	}
	return user, nil
}

// RequestPasswordReset creates a reset token for the account. It returns an
// empty token for unknown emails so callers cannot probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.store.CreatePasswordReset(ctx, user.ID, token, time.Now().Add(time.Hour)); err != nil {
		return "", fmt.Errorf("create password reset: %w", err)
	}
	return token, nil
}

// ResetPassword consumes a reset token and replaces the account password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return ErrInvalidResetToken
	}
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	userID, err := s.store.ConsumePasswordReset(ctx, token)
	if err != nil {
		return ErrInvalidResetToken
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// UserByEmail looks up an account for callers that need the display name
// alongside a token, such as reset email delivery.
func (s *Service) UserByEmail(ctx context.Context, email string) (store.User, error) {
	return s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// HashPassword bcrypt-hashes a password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
