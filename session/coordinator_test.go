package session_test

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/transcript-portal/session"
	"github.com/jrsteele09/transcript-portal/session/fakebrowser"
	"github.com/jrsteele09/transcript-portal/users"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "a@b.com"
	testPassword = "pw"
	testToken    = "tok123"
	signInPath   = "/auth/sign-in"
	tokenCookie  = "token"
	userCookie   = "user"
)

type fixture struct {
	api     *fakebrowser.StubAPI
	browser *fakebrowser.Browser
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	api := fakebrowser.NewStubAPI(users.Record{"role": "student"}, testToken)
	return &fixture{api: api, browser: fakebrowser.New(api)}
}

func (f *fixture) openTab(t *testing.T) *fakebrowser.Tab {
	t.Helper()
	tab, err := f.browser.OpenTab()
	require.NoError(t, err)
	t.Cleanup(tab.Close)
	return tab
}

func (f *fixture) login(t *testing.T, tab *fakebrowser.Tab) session.Result {
	t.Helper()
	res := tab.Login(context.Background(), testEmail, testPassword)
	require.True(t, res.Success, res.Message)
	return res
}

func (f *fixture) tabCount(t *testing.T) int {
	t.Helper()
	raw := f.browser.TabCount()
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	require.NoError(t, err)
	return n
}

// cookiesPaired fails unless token and user cookies are both present or both absent.
func (f *fixture) cookiesPaired(t *testing.T) bool {
	t.Helper()
	_, hasToken := f.browser.Cookies.Get(tokenCookie)
	_, hasUser := f.browser.Cookies.Get(userCookie)
	require.Equal(t, hasToken, hasUser, "token and user cookies must be written and cleared together")
	return hasToken
}

// countBroadcasts watches the durable store from a view no tab uses.
func (f *fixture) countBroadcasts(t *testing.T) *atomic.Int32 {
	t.Helper()
	var n atomic.Int32
	ch := session.NewStorageChannel(f.browser.Store.View(), "auth_force_logout_broadcast")
	cancel := ch.OnMessage(func(session.Message) { n.Add(1) })
	t.Cleanup(cancel)
	return &n
}

func TestNew_RequiresDependencies(t *testing.T) {
	api := fakebrowser.NewStubAPI(users.Record{"role": "student"}, testToken)
	jar := session.NewMemoryJar()

	_, err := session.New(session.Deps{Store: nil, Cookies: jar, API: api})
	require.Error(t, err)

	_, err = session.New(session.Deps{Cookies: nil, API: api})
	require.Error(t, err)
}

func TestBootstrap_ReadyIsClosed(t *testing.T) {
	f := setupFixture(t)
	tab := f.openTab(t)

	select {
	case <-tab.Ready():
	default:
		t.Fatal("ready channel should be closed after bootstrap")
	}
	require.Nil(t, tab.User())
	require.False(t, tab.IsAuthenticated())
	require.False(t, tab.Registered())
}

func TestLogin_FreshLogin(t *testing.T) {
	f := setupFixture(t)
	tab := f.openTab(t)

	res := f.login(t, tab)
	require.Equal(t, "Login successful", res.Message)
	require.Equal(t, users.StudentDashboardPath, res.Redirect)

	token, ok := f.browser.Cookies.Get(tokenCookie)
	require.True(t, ok)
	require.Equal(t, testToken, token)

	userJSON, ok := f.browser.Cookies.Get(userCookie)
	require.True(t, ok)
	record, err := users.ParseRecord([]byte(userJSON))
	require.NoError(t, err)
	require.Equal(t, users.Record{"role": "student"}, record)

	require.Equal(t, 1, f.tabCount(t))
	require.True(t, tab.IsAuthenticated())
	require.Equal(t, testToken, tab.GetToken())
	require.Equal(t, users.RoleStudent, tab.GetUserRole())

	mirrored, ok := tab.Scratch.Get("user")
	require.True(t, ok)
	require.JSONEq(t, `{"role":"student"}`, mirrored)

	require.Equal(t, []string(nil), tab.Nav.Paths(), "login leaves navigation to the caller")
}

func TestLogin_Rejected(t *testing.T) {
	f := setupFixture(t)
	f.api.Reject("Invalid credentials")
	tab := f.openTab(t)

	res := tab.Login(context.Background(), testEmail, "wrong")
	require.False(t, res.Success)
	require.Equal(t, "Invalid credentials", res.Message)

	require.False(t, f.cookiesPaired(t))
	require.Equal(t, 0, f.tabCount(t))
	require.Nil(t, tab.User())
	require.False(t, tab.Registered())
}

func TestLogin_Failures(t *testing.T) {
	t.Run("rejection without message", func(t *testing.T) {
		f := setupFixture(t)
		f.api.Reject("")
		res := f.openTab(t).Login(context.Background(), testEmail, testPassword)
		require.False(t, res.Success)
		require.Equal(t, "Login failed", res.Message)
	})

	t.Run("network failure", func(t *testing.T) {
		f := setupFixture(t)
		f.api.FailLogin(errors.New("dial tcp: connection refused"))
		tab := f.openTab(t)

		res := tab.Login(context.Background(), testEmail, testPassword)
		require.False(t, res.Success)
		require.Equal(t, "An error occurred. Please try again.", res.Message)
		require.False(t, f.cookiesPaired(t))
		require.Equal(t, 0, f.tabCount(t))
	})

	t.Run("unknown role mutates nothing", func(t *testing.T) {
		api := fakebrowser.NewStubAPI(users.Record{"role": "janitor"}, testToken)
		b := fakebrowser.New(api)
		tab, err := b.OpenTab()
		require.NoError(t, err)
		defer tab.Close()

		res := tab.Login(context.Background(), testEmail, testPassword)
		require.False(t, res.Success)
		require.Equal(t, "Invalid user role", res.Message)
		_, hasToken := b.Cookies.Get(tokenCookie)
		require.False(t, hasToken)
		require.Equal(t, "", b.TabCount())
	})
}

func TestLogin_AdminRolesRedirectToAdminDashboard(t *testing.T) {
	for _, role := range users.AdminRoles {
		t.Run(string(role), func(t *testing.T) {
			api := fakebrowser.NewStubAPI(users.Record{"role": string(role), "school_id": "s-1"}, testToken)
			b := fakebrowser.New(api)
			tab, err := b.OpenTab()
			require.NoError(t, err)
			defer tab.Close()

			res := tab.Login(context.Background(), testEmail, testPassword)
			require.True(t, res.Success)
			require.Equal(t, users.AdminDashboardPath, res.Redirect)
			require.Equal(t, role, tab.GetUserRole())
		})
	}
}

func TestRegistration_IsIdempotentPerTab(t *testing.T) {
	t.Run("login twice", func(t *testing.T) {
		f := setupFixture(t)
		tab := f.openTab(t)
		f.login(t, tab)
		f.login(t, tab)
		require.Equal(t, 1, f.tabCount(t))
	})

	t.Run("bootstrap then login", func(t *testing.T) {
		f := setupFixture(t)
		f.login(t, f.openTab(t))
		require.Equal(t, 1, f.tabCount(t))

		second := f.openTab(t)
		require.True(t, second.Registered())
		require.Equal(t, 2, f.tabCount(t))

		f.login(t, second)
		second.Bootstrap()
		require.Equal(t, 2, f.tabCount(t))
	})

	t.Run("teardown twice decrements once", func(t *testing.T) {
		f := setupFixture(t)
		first := f.openTab(t)
		f.login(t, first)
		second := f.openTab(t)
		require.Equal(t, 2, f.tabCount(t))

		second.Teardown()
		second.Teardown()
		require.Equal(t, 1, f.tabCount(t))
		require.True(t, f.cookiesPaired(t))
	})
}

func TestBootstrap_RestoresSessionFromCookies(t *testing.T) {
	f := setupFixture(t)
	f.browser.Cookies.SetSessionCookie(tokenCookie, "tok-existing")
	f.browser.Cookies.SetSessionCookie(userCookie, `{"role":"admin","name":"Ada Obi"}`)

	tab := f.openTab(t)
	require.Equal(t, users.RoleAdmin, tab.GetUserRole())
	require.Equal(t, "Ada Obi", tab.User().String("name"))
	require.Equal(t, 1, f.tabCount(t))
	hasAuth, _ := tab.Scratch.Get("hasAuth")
	require.Equal(t, "1", hasAuth)
}

func TestBootstrap_CorruptUserCookie(t *testing.T) {
	f := setupFixture(t)
	f.browser.Cookies.SetSessionCookie(tokenCookie, testToken)
	f.browser.Cookies.SetSessionCookie(userCookie, `{"role":"student"`)

	var tab *fakebrowser.Tab
	require.NotPanics(t, func() { tab = f.openTab(t) })

	require.Nil(t, tab.User())
	require.False(t, f.cookiesPaired(t))
	require.Equal(t, 0, f.tabCount(t))
	require.False(t, tab.Registered())
}

func TestBootstrap_UndecodableCookieIsNoSession(t *testing.T) {
	f := setupFixture(t)
	f.browser.Cookies.SetSessionCookie(tokenCookie, testToken)
	f.browser.Cookies.SetRaw(userCookie, "%E0%A4%A")

	tab := f.openTab(t)
	require.Nil(t, tab.User())
	require.False(t, f.cookiesPaired(t))
}

func TestBootstrap_HalfSessionIsCleared(t *testing.T) {
	f := setupFixture(t)
	f.browser.Cookies.SetSessionCookie(tokenCookie, testToken)

	tab := f.openTab(t)
	require.Nil(t, tab.User())
	require.False(t, f.cookiesPaired(t))
	require.Equal(t, 0, f.tabCount(t))
}

func TestLogout_Explicit(t *testing.T) {
	f := setupFixture(t)
	broadcasts := f.countBroadcasts(t)
	tab := f.openTab(t)
	f.login(t, tab)
	before := f.browser.BroadcastValue()

	release := f.api.BlockLogout()
	t.Cleanup(release)
	tab.Logout()

	// local effects are complete while the remote call is still blocked
	require.False(t, f.cookiesPaired(t))
	require.Equal(t, 0, f.tabCount(t))
	require.NotEqual(t, before, f.browser.BroadcastValue())
	require.Equal(t, int32(1), broadcasts.Load())
	require.False(t, tab.IsAuthenticated())
	require.Nil(t, tab.User())
	require.Equal(t, signInPath, tab.Nav.Last())
	_, mirrored := tab.Scratch.Get("user")
	require.False(t, mirrored)
	require.Empty(t, f.api.LogoutCalls())

	release()
	tab.WaitBackground()
	require.Equal(t, []string{testToken}, f.api.LogoutCalls())
}

func TestLogout_RemoteFailureIsSwallowed(t *testing.T) {
	f := setupFixture(t)
	f.api.FailLogout(errors.New("502 bad gateway"))
	tab := f.openTab(t)
	f.login(t, tab)

	tab.Logout()
	tab.WaitBackground()

	require.False(t, tab.IsAuthenticated())
	require.False(t, f.cookiesPaired(t))
	require.Equal(t, 0, f.tabCount(t))
}

func TestLogout_WithoutSessionSkipsRemoteCall(t *testing.T) {
	f := setupFixture(t)
	tab := f.openTab(t)

	tab.Logout()
	tab.WaitBackground()

	require.Empty(t, f.api.LogoutCalls())
	require.Equal(t, signInPath, tab.Nav.Last())
	require.Equal(t, 0, f.tabCount(t))
}

func TestBroadcast_ConvergesAcrossTabs(t *testing.T) {
	f := setupFixture(t)
	broadcasts := f.countBroadcasts(t)

	a := f.openTab(t)
	f.login(t, a)
	b := f.openTab(t)
	require.Equal(t, users.RoleStudent, b.GetUserRole())
	require.Equal(t, 2, f.tabCount(t))

	a.Logout()

	require.Nil(t, b.User())
	require.False(t, b.IsAuthenticated())
	require.False(t, b.Registered())
	require.Equal(t, signInPath, b.Nav.Last())
	require.Equal(t, 0, f.tabCount(t))
	require.Equal(t, int32(1), broadcasts.Load(), "receiving tab must not re-broadcast")
}

func TestTeardown_LastTabClearsSession(t *testing.T) {
	const n = 4
	f := setupFixture(t)
	broadcasts := f.countBroadcasts(t)

	first, err := f.browser.OpenTab()
	require.NoError(t, err)
	f.login(t, first)
	tabs := []*fakebrowser.Tab{first}
	for i := 1; i < n; i++ {
		tab, err := f.browser.OpenTab()
		require.NoError(t, err)
		tabs = append(tabs, tab)
	}
	require.Equal(t, n, f.tabCount(t))

	for i, tab := range tabs {
		tab.Close()
		if i < n-1 {
			require.True(t, f.cookiesPaired(t), "session must survive while tabs remain")
			require.Equal(t, int32(0), broadcasts.Load())
			require.Equal(t, n-1-i, f.tabCount(t))
		}
	}

	require.False(t, f.cookiesPaired(t))
	require.Equal(t, 0, f.tabCount(t))
	require.Equal(t, int32(1), broadcasts.Load())
}

func TestTeardown_UnregisteredTabDoesNothing(t *testing.T) {
	f := setupFixture(t)
	broadcasts := f.countBroadcasts(t)
	tab := f.openTab(t)

	tab.Teardown()

	require.Equal(t, "", f.browser.TabCount())
	require.Equal(t, int32(0), broadcasts.Load())
}

func TestTeardown_CounterIsClampedAtZero(t *testing.T) {
	f := setupFixture(t)
	a := f.openTab(t)
	f.login(t, a)
	b := f.openTab(t)

	// another tab lost an update and the counter under-reports
	require.NoError(t, f.browser.Store.View().Set("auth_tab_count", "1"))

	a.Teardown()
	require.Equal(t, 0, f.tabCount(t))
	b.Teardown()
	require.Equal(t, 0, f.tabCount(t))
	require.False(t, f.cookiesPaired(t))
}

func TestStoreUnavailable_SingleTabMode(t *testing.T) {
	f := setupFixture(t)
	f.browser.Store.SetAvailable(false)
	tab := f.openTab(t)

	f.login(t, tab)
	require.True(t, tab.IsAuthenticated())
	require.True(t, tab.Registered())

	tab.Teardown()
	require.False(t, f.cookiesPaired(t), "single-tab mode clears on every teardown")
}

func TestBrowserQuit_DropsSessionCookies(t *testing.T) {
	f := setupFixture(t)
	f.login(t, f.openTab(t))
	f.openTab(t)

	f.browser.Quit()

	require.False(t, f.cookiesPaired(t))
	require.Equal(t, 0, f.tabCount(t))
	require.Empty(t, f.browser.Tabs())
}

// TestRandomSequences drives several tabs through random operations and
// checks cookie pairing and counter bounds after every step.
func TestRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		f := setupFixture(t)
		var tabs []*fakebrowser.Tab

		for step := 0; step < 40; step++ {
			if len(tabs) == 0 || rng.Intn(5) == 0 {
				tab, err := f.browser.OpenTab()
				require.NoError(t, err)
				tabs = append(tabs, tab)
				continue
			}
			i := rng.Intn(len(tabs))
			tab := tabs[i]
			switch rng.Intn(4) {
			case 0, 1:
				tab.Login(context.Background(), testEmail, testPassword)
			case 2:
				tab.Logout()
			case 3:
				tab.Close()
				tabs = append(tabs[:i], tabs[i+1:]...)
			}

			f.cookiesPaired(t)
			count := f.tabCount(t)
			require.GreaterOrEqual(t, count, 0)
			require.LessOrEqual(t, count, len(tabs)+1)
		}

		f.browser.Quit()
		require.Equal(t, 0, f.tabCount(t))
	}
}
