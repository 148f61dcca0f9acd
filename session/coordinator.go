package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/transcript-portal/authapi"
	"github.com/jrsteele09/transcript-portal/internal/config"
	"github.com/jrsteele09/transcript-portal/internal/errors"
	"github.com/jrsteele09/transcript-portal/internal/metrics"
	"github.com/jrsteele09/transcript-portal/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	scratchUserKey    = "user"
	scratchHasAuthKey = "hasAuth"
)

// Names are the cookie and durable store keys that make up the cross-tab protocol.
type Names struct {
	TokenCookie  string
	UserCookie   string
	TabCountKey  string
	BroadcastKey string
	SignInPath   string
}

func DefaultNames() Names {
	return NamesFromConfig(config.Session{})
}

func NamesFromConfig(cfg config.SessionConfig) Names {
	return Names{
		TokenCookie:  cfg.GetTokenCookieName(),
		UserCookie:   cfg.GetUserCookieName(),
		TabCountKey:  cfg.GetTabCountKey(),
		BroadcastKey: cfg.GetBroadcastKey(),
		SignInPath:   cfg.GetSignInPath(),
	}
}

// Deps holds the collaborators of a Coordinator. Cookies, Store and API are required.
type Deps struct {
	Cookies   CookieJar
	Store     DurableStore
	API       AuthAPI
	Scratch   ScratchStore // per-tab, defaults to a MemoryScratch
	Navigator Navigator    // defaults to a no-op
	Channel   Channel      // defaults to a StorageChannel on Names.BroadcastKey
}

// Result is what Login reports back to the UI.
type Result struct {
	Success  bool
	Message  string
	User     users.Record
	Redirect string // dashboard for the user's role on success
}

// Coordinator owns the authenticated session of one tab and keeps it in
// step with the other tabs of the same browser profile.
//
// The tab counter in the durable store is read-modify-written without a
// lock, so two tabs racing can lose an update. The count is therefore only
// eventually consistent; it is clamped at zero and the cookies, not the
// counter, decide whether the browser is authenticated.
type Coordinator struct {
	mu         sync.Mutex
	id         string
	names      Names
	cookies    CookieJar
	store      DurableStore
	channel    Channel
	scratch    ScratchStore
	api        AuthAPI
	nav        Navigator
	logger     zerolog.Logger
	user       users.Record
	registered bool // this tab has incremented the counter
	singleTab  bool // the durable store failed; behave as the only tab

	bootstrapOnce sync.Once
	ready         chan struct{}
	stopListening func()
	background    sync.WaitGroup
}

// CoordinatorOption defines a function type to modify the Coordinator instance.
type CoordinatorOption func(*Coordinator)

// WithNames overrides the default cookie and key names.
func WithNames(names Names) CoordinatorOption {
	return func(c *Coordinator) {
		c.names = names
	}
}

// WithTabID sets the identifier used in log lines.
func WithTabID(id string) CoordinatorOption {
	return func(c *Coordinator) {
		c.id = id
	}
}

func New(deps Deps, options ...CoordinatorOption) (*Coordinator, error) {
	if deps.Cookies == nil {
		return nil, fmt.Errorf("[session New] cookie jar is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("[session New] durable store is required")
	}
	if deps.API == nil {
		return nil, fmt.Errorf("[session New] auth API is required")
	}

	c := &Coordinator{
		id:      uuid.New().String(),
		names:   DefaultNames(),
		cookies: deps.Cookies,
		store:   deps.Store,
		channel: deps.Channel,
		scratch: deps.Scratch,
		api:     deps.API,
		nav:     deps.Navigator,
		ready:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.scratch == nil {
		c.scratch = NewMemoryScratch()
	}
	if c.nav == nil {
		c.nav = noopNavigator{}
	}
	if c.channel == nil {
		c.channel = NewStorageChannel(c.store, c.names.BroadcastKey)
	}
	c.logger = log.With().Str("component", "session").Str("tab", c.id).Logger()
	return c, nil
}

// Bootstrap restores the session from the cookie jar and starts listening
// for force-logout broadcasts. It runs once; later calls are no-ops.
func (c *Coordinator) Bootstrap() {
	c.bootstrapOnce.Do(func() {
		c.mu.Lock()
		c.restoreLocked()
		c.mu.Unlock()

		stop := c.channel.OnMessage(c.onForceLogout)
		c.mu.Lock()
		c.stopListening = stop
		c.mu.Unlock()
		close(c.ready)
	})
}

// Ready is closed once Bootstrap has finished. Protected content must not
// render before then.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

func (c *Coordinator) restoreLocked() {
	_, hasToken := c.cookies.Get(c.names.TokenCookie)
	userJSON, hasUser := c.cookies.Get(c.names.UserCookie)

	if !hasToken || !hasUser {
		if hasToken || hasUser {
			// half a session is no session
			c.deleteSessionCookies()
		}
		c.user = nil
		return
	}

	record, err := users.ParseRecord([]byte(userJSON))
	if err != nil {
		c.logger.Debug().Err(errors.Wrapf(errors.ErrMalformedSession, "%v", err)).Msg("discarding session cookies")
		c.deleteSessionCookies()
		c.user = nil
		return
	}

	c.user = record
	c.scratch.Set(scratchUserKey, userJSON)
	c.scratch.Set(scratchHasAuthKey, "1")
	c.registerLocked()
}

// Login verifies credentials with the auth API and, on success, writes the
// session cookies and registers this tab. Nothing is mutated on failure.
func (c *Coordinator) Login(ctx context.Context, email, password string) Result {
	resp, err := c.api.Login(ctx, authapi.Credentials{Email: email, Password: password})
	if err != nil {
		c.logger.Warn().Err(err).Msg("login request failed")
	}
	out := InterpretLogin(resp, err)
	if !out.Success {
		return out.Result
	}

	c.mu.Lock()
	c.cookies.SetSessionCookie(c.names.TokenCookie, out.Token)
	c.cookies.SetSessionCookie(c.names.UserCookie, out.UserJSON)
	c.scratch.Set(scratchUserKey, out.UserJSON)
	c.scratch.Set(scratchHasAuthKey, "1")
	c.user = out.User
	c.registerLocked()
	c.mu.Unlock()

	c.logger.Info().Str("role", string(out.User.Role())).Msg("logged in")
	return out.Result
}

// Logout clears the session in this tab and tells every other tab to do the
// same. Local state is cleared before Logout returns; the remote logout call
// runs in the background and its outcome is ignored.
func (c *Coordinator) Logout() {
	c.mu.Lock()
	token, _ := c.cookies.Get(c.names.TokenCookie)
	c.clearLocked()
	c.mu.Unlock()

	c.broadcast()
	metrics.LogoutsTotal.WithLabelValues("explicit").Inc()
	c.nav.Navigate(c.names.SignInPath)

	if token == "" {
		return
	}
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		if err := c.api.Logout(context.Background(), token); err != nil {
			metrics.RemoteLogoutFailures.Inc()
			c.logger.Debug().Err(err).Msg("remote logout failed")
		}
	}()
}

// Teardown unregisters the tab when its page goes away. The last registered
// tab deletes the session cookies and broadcasts a force logout. Everything
// here is synchronous. Teardown is safe to call more than once, so it can be
// hooked to both pagehide and beforeunload.
func (c *Coordinator) Teardown() {
	c.mu.Lock()
	if !c.registered {
		c.mu.Unlock()
		return
	}
	remaining := c.unregisterLocked()
	lastTab := remaining == 0
	if lastTab {
		c.deleteSessionCookies()
	}
	c.mu.Unlock()

	if lastTab {
		metrics.LogoutsTotal.WithLabelValues("last_tab").Inc()
		c.logger.Debug().Msg("last tab closed, session cleared")
		c.broadcast()
	}
}

// Close stops listening for broadcasts and waits for background remote
// logout calls to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	stop := c.stopListening
	c.stopListening = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
	c.background.Wait()
}

// WaitBackground blocks until background remote logout calls have returned.
func (c *Coordinator) WaitBackground() {
	c.background.Wait()
}

func (c *Coordinator) onForceLogout(Message) {
	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()

	metrics.LogoutsTotal.WithLabelValues("broadcast").Inc()
	c.nav.Navigate(c.names.SignInPath)
}

// User returns the authenticated user of this tab, or nil.
func (c *Coordinator) User() users.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// GetToken returns the bearer token from the session cookie, or "".
func (c *Coordinator) GetToken() string {
	token, _ := c.cookies.Get(c.names.TokenCookie)
	return token
}

// GetUserRole returns the in-memory user's role, or "".
func (c *Coordinator) GetUserRole() users.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return ""
	}
	return c.user.Role()
}

func (c *Coordinator) IsAuthenticated() bool {
	return c.GetToken() != ""
}

// Registered reports whether this tab is counted in the tab counter.
func (c *Coordinator) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// clearLocked is the local half of a logout: scratch store, cookies, user
// and this tab's registration. It never broadcasts.
func (c *Coordinator) clearLocked() {
	c.scratch.Remove(scratchUserKey)
	c.scratch.Remove(scratchHasAuthKey)
	c.deleteSessionCookies()
	c.user = nil
	if c.registered {
		c.unregisterLocked()
	}
}

func (c *Coordinator) deleteSessionCookies() {
	c.cookies.Delete(c.names.TokenCookie)
	c.cookies.Delete(c.names.UserCookie)
}

func (c *Coordinator) registerLocked() {
	if c.registered {
		return
	}
	count, err := c.readTabCount()
	if err == nil {
		err = c.store.Set(c.names.TabCountKey, strconv.Itoa(count+1))
	}
	if err != nil {
		c.enterSingleTab(err)
	}
	c.registered = true
	metrics.RegisteredTabs.Inc()
}

// unregisterLocked decrements the tab counter and returns what is left.
// In single-tab mode there is never anyone left.
func (c *Coordinator) unregisterLocked() int {
	c.registered = false
	metrics.RegisteredTabs.Dec()

	count, err := c.readTabCount()
	next := max(0, count-1)
	if err == nil {
		err = c.store.Set(c.names.TabCountKey, strconv.Itoa(next))
	}
	if err != nil {
		c.enterSingleTab(err)
	}
	if c.singleTab {
		return 0
	}
	return next
}

func (c *Coordinator) readTabCount() (int, error) {
	raw, err := c.store.Get(c.names.TabCountKey)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

func (c *Coordinator) enterSingleTab(err error) {
	if !c.singleTab {
		c.logger.Warn().Err(err).Msg("durable store unavailable, running in single-tab mode")
	}
	c.singleTab = true
}

func (c *Coordinator) broadcast() {
	if err := c.channel.Publish(Message{}); err != nil {
		c.logger.Debug().Err(err).Msg("force-logout broadcast failed")
		return
	}
	metrics.BroadcastsTotal.Inc()
}
