package config

// SessionConfig names the cookies and durable store keys shared by every tab.
type SessionConfig interface {
	GetTokenCookieName() string
	GetUserCookieName() string
	GetTabCountKey() string
	GetBroadcastKey() string
	GetSignInPath() string
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetTokenCookieName() string {
	return "token"
}

func (Session) GetUserCookieName() string {
	return "user"
}

func (Session) GetTabCountKey() string {
	return "auth_tab_count"
}

func (Session) GetBroadcastKey() string {
	return "auth_force_logout_broadcast"
}

func (Session) GetSignInPath() string {
	return "/auth/sign-in"
}
