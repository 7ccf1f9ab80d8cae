package identity

import "time"

// User is a registered account holder.
type User struct {
	ID           string
	Phone        string
	DisplayName  string
	PasswordHash []byte
	// PINHash is empty until the user completes PIN setup.
	PINHash   []byte
	DeviceID  string
	CreatedAt time.Time
}

// HasPIN reports whether a transaction PIN has been configured.
func (u User) HasPIN() bool {
	return len(u.PINHash) > 0
}

// Credentials are the login secrets presented by a client.
type Credentials struct {
	Phone    string
	Password string
	DeviceID string
}

// AccountSummary is the public view of a transfer recipient.
type AccountSummary struct {
	UserID      string
	Phone       string
	DisplayName string
}
