package session

import (
	"context"

	"github.com/jrsteele09/transcript-portal/authapi"
)

// CookieJar is the cookie store shared by every tab of a browser profile.
// Values passed in and returned are decoded; implementations URL-encode on write.
type CookieJar interface {
	// Get returns the decoded value of a cookie and whether it is present.
	Get(name string) (string, bool)

	// SetSessionCookie writes a cookie without an expiry (browser-session lifetime).
	SetSessionCookie(name, value string)

	// Delete removes a cookie immediately.
	Delete(name string)
}

// StorageEvent describes a change made to a DurableStore by another view.
type StorageEvent struct {
	Key      string
	OldValue string
	NewValue string
	Removed  bool
}

// DurableStore is a cross-tab key/value store that outlives any single tab.
// Change events are delivered to every other view of the store, never back
// to the view that made the change.
type DurableStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error

	// Watch registers fn for changes made elsewhere and returns a cancel func.
	Watch(fn func(StorageEvent)) (cancel func())
}

// ScratchStore is per-tab storage mirroring the session for convenience reads.
type ScratchStore interface {
	Set(key, value string)
	Get(key string) (string, bool)
	Remove(key string)
}

// AuthAPI is the remote authentication service.
type AuthAPI interface {
	Login(ctx context.Context, credentials authapi.Credentials) (*authapi.LoginResponse, error)
	Logout(ctx context.Context, token string) error
}

// Navigator moves the tab to another page.
type Navigator interface {
	Navigate(path string)
}

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}
