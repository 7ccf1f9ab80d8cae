package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/p2pcore/internal/authgate"
)

const pinLength = 4

var (
	// ErrRecipientNotFound is returned by Resolve when no account matches.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrInvalidCredentials hides which part of a login failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidPINFormat rejects PINs that are not exactly four digits.
	ErrInvalidPINFormat = errors.New("PIN must be exactly 4 digits")
	// ErrPINAlreadySet is returned by SetPIN once a PIN exists; replacing it
	// goes through ChangePIN.
	ErrPINAlreadySet = errors.New("transaction PIN already set")
)

// Service manages user credentials, transaction PINs and recipient lookup.
type Service struct {
	repo Repository
	cost int
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

// NewServiceWithCost is NewService with a custom bcrypt cost, used by tests.
func NewServiceWithCost(repo Repository, cost int) *Service {
	return &Service{repo: repo, cost: cost}
}

// Provision stores a user without a transaction PIN. Account creation proper
// lives outside this service; Provision seeds the directory it reads from.
func (s *Service) Provision(ctx context.Context, creds Credentials, displayName string) (User, error) {
	if strings.TrimSpace(creds.Phone) == "" {
		return User{}, errors.New("phone is required")
	}
	if len(creds.Password) < 6 {
		return User{}, errors.New("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.New().String(),
		Phone:        strings.TrimSpace(creds.Phone),
		DisplayName:  displayName,
		PasswordHash: hash,
		DeviceID:     creds.DeviceID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies login credentials and device binding.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByPhone(ctx, strings.TrimSpace(creds.Phone))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	if user.DeviceID == "" {
		if creds.DeviceID == "" {
			return User{}, errors.New("device binding required")
		}
		if err := s.repo.UpdateDevice(ctx, user.ID, creds.DeviceID); err != nil {
			return User{}, err
		}
		user.DeviceID = creds.DeviceID
	} else if creds.DeviceID != "" && user.DeviceID != creds.DeviceID {
		return User{}, errors.New("device mismatch")
	}

	return user, nil
}

// SetPIN configures the first transaction PIN for userID.
func (s *Service) SetPIN(ctx context.Context, userID, pin string) error {
	if !validPIN(pin) {
		return ErrInvalidPINFormat
	}
	has, err := s.HasPIN(ctx, userID)
	if err != nil {
		return err
	}
	if has {
		return ErrPINAlreadySet
	}
	return s.storePIN(ctx, userID, pin)
}

// ChangePIN replaces an existing PIN. The current PIN must verify first, so a
// session alone cannot take over transfer authorization.
func (s *Service) ChangePIN(ctx context.Context, userID, current, next string) error {
	if !validPIN(next) {
		return ErrInvalidPINFormat
	}
	if err := s.VerifyPIN(ctx, userID, current); err != nil {
		return err
	}
	return s.storePIN(ctx, userID, next)
}

func (s *Service) storePIN(ctx context.Context, userID, pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.cost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePIN(ctx, userID, hash)
}

// HasPIN reports whether userID has configured a transaction PIN.
func (s *Service) HasPIN(ctx context.Context, userID string) (bool, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.HasPIN(), nil
}

// VerifyPIN checks pin against the stored hash. A mismatch, or a user with no
// PIN, yields authgate.ErrIncorrectPIN.
func (s *Service) VerifyPIN(ctx context.Context, userID, pin string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPIN() {
		return authgate.ErrIncorrectPIN
	}
	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(pin)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return authgate.ErrIncorrectPIN
		}
		return fmt.Errorf("compare pin: %w", err)
	}
	return nil
}

// Resolve looks a recipient up by user id or phone number.
func (s *Service) Resolve(ctx context.Context, identifier string) (AccountSummary, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return AccountSummary{}, ErrRecipientNotFound
	}

	var (
		user User
		err  error
	)
	if _, parseErr := uuid.Parse(identifier); parseErr == nil {
		user, err = s.repo.FindByID(ctx, identifier)
	} else {
		user, err = s.repo.FindByPhone(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AccountSummary{}, ErrRecipientNotFound
		}
		return AccountSummary{}, err
	}
	return AccountSummary{UserID: user.ID, Phone: user.Phone, DisplayName: user.DisplayName}, nil
}

func validPIN(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
