package session

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRejected      = errors.New("token rejected")
)

// Session is the client-side record of the logged-in identity.
type Session struct {
	Token     string
	UserID    int64
	Username  string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// User is the profile persisted under KeyCurrentUser.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s Session) User() User {
	return User{
		ID:        s.UserID,
		Username:  s.Username,
		Email:     s.Email,
		CreatedAt: s.CreatedAt,
	}
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is the sign-in payload returned by the backend.
type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
}
