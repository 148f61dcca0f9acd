package fakebrowser

import (
	"context"
	"sync"

	"github.com/jrsteele09/transcript-portal/authapi"
	"github.com/jrsteele09/transcript-portal/session"
	"github.com/jrsteele09/transcript-portal/users"
)

var _ session.AuthAPI = (*StubAPI)(nil)

// StubAPI is a scriptable auth API.
type StubAPI struct {
	mu          sync.Mutex
	response    *authapi.LoginResponse
	loginErr    error
	logoutErr   error
	logoutGate  chan struct{}
	logins      []authapi.Credentials
	logoutCalls []string
}

// NewStubAPI accepts any credentials and returns user and token.
func NewStubAPI(user users.Record, token string) *StubAPI {
	return &StubAPI{
		response: &authapi.LoginResponse{
			Status:  true,
			Message: "Login successful",
			Data:    &authapi.LoginData{User: user, Token: token},
		},
	}
}

// Reject makes every login fail with message.
func (s *StubAPI) Reject(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.response = &authapi.LoginResponse{Status: false, Message: message}
}

// FailLogin makes every login return a transport error.
func (s *StubAPI) FailLogin(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginErr = err
}

// FailLogout makes remote logout calls return err.
func (s *StubAPI) FailLogout(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutErr = err
}

// BlockLogout makes remote logout calls wait until the returned func is called.
func (s *StubAPI) BlockLogout() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.logoutGate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (s *StubAPI) Login(ctx context.Context, credentials authapi.Credentials) (*authapi.LoginResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins = append(s.logins, credentials)
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	resp := *s.response
	return &resp, nil
}

func (s *StubAPI) Logout(ctx context.Context, token string) error {
	s.mu.Lock()
	gate, err := s.logoutGate, s.logoutErr
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutCalls = append(s.logoutCalls, token)
	return err
}

func (s *StubAPI) LoginCalls() []authapi.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]authapi.Credentials(nil), s.logins...)
}

func (s *StubAPI) LogoutCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logoutCalls...)
}
