package session

import (
	"github.com/jrsteele09/transcript-portal/authapi"
	"github.com/jrsteele09/transcript-portal/internal/metrics"
	"github.com/jrsteele09/transcript-portal/internal/utils"
)

const (
	defaultLoginFailure = "Login failed"
	defaultLoginError   = "An error occurred. Please try again."
	defaultLoginSuccess = "Logged in"
	invalidRoleMessage  = "Invalid user role"
)

// LoginOutcome is an auth API login response reduced to what the UI shows
// and what goes into the session cookies.
type LoginOutcome struct {
	Result
	Token    string
	UserJSON string
}

// InterpretLogin maps the result of AuthAPI.Login onto a LoginOutcome. An
// unknown role is a failure, so a session is only ever written for a user
// the route guard can place.
func InterpretLogin(resp *authapi.LoginResponse, err error) LoginOutcome {
	fail := func(outcome, msg string) LoginOutcome {
		metrics.LoginsTotal.WithLabelValues(outcome).Inc()
		return LoginOutcome{Result: Result{Success: false, Message: msg}}
	}

	if err != nil {
		return fail("error", defaultLoginError)
	}
	if resp == nil || !resp.Status {
		var msg string
		if resp != nil {
			msg = resp.Message
		}
		return fail("rejected", utils.FirstNonEmpty(msg, defaultLoginFailure))
	}
	if resp.Data == nil || resp.Data.Token == "" || resp.Data.User == nil {
		return fail("error", defaultLoginFailure)
	}

	user := resp.Data.User
	role := user.Role()
	if !role.Valid() {
		return fail("invalid_role", invalidRoleMessage)
	}
	userJSON, err := user.JSON()
	if err != nil {
		return fail("error", defaultLoginError)
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return LoginOutcome{
		Result:   Result{Success: true, Message: utils.FirstNonEmpty(resp.Message, defaultLoginSuccess), User: user, Redirect: role.DashboardPath()},
		Token:    resp.Data.Token,
		UserJSON: userJSON,
	}
}
