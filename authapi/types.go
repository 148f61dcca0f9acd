package authapi

import "github.com/jrsteele09/transcript-portal/users"

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginData is the payload of a successful login.
type LoginData struct {
	User  users.Record `json:"user"`
	Token string       `json:"token"`
}

// LoginResponse is the envelope returned by POST /auth/login.
type LoginResponse struct {
	Status  bool       `json:"status"`
	Message string     `json:"message,omitempty"`
	Data    *LoginData `json:"data,omitempty"`
}

// Envelope is the generic response shape used by every endpoint of the API.
type Envelope struct {
	Status  bool     `json:"status"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}
