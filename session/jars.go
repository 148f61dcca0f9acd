package session

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// HTTPJar is the cookie jar of a single HTTP exchange: reads come from the
// request, writes go out as Set-Cookie headers. Writes made during the
// exchange are visible to later reads.
type HTTPJar struct {
	w      http.ResponseWriter
	r      *http.Request
	secure bool

	mu      sync.Mutex
	pending map[string]*string // nil value means deleted
}

var _ CookieJar = (*HTTPJar)(nil)

func NewHTTPJar(w http.ResponseWriter, r *http.Request, secure bool) *HTTPJar {
	return &HTTPJar{w: w, r: r, secure: secure, pending: make(map[string]*string)}
}

func (j *HTTPJar) Get(name string) (string, bool) {
	j.mu.Lock()
	v, ok := j.pending[name]
	j.mu.Unlock()
	if ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	return ReadCookie(j.r, name)
}

func (j *HTTPJar) SetSessionCookie(name, value string) {
	j.mu.Lock()
	j.pending[name] = &value
	j.mu.Unlock()
	http.SetCookie(j.w, NewSessionCookie(name, value, j.secure))
}

func (j *HTTPJar) Delete(name string) {
	j.mu.Lock()
	j.pending[name] = nil
	j.mu.Unlock()
	http.SetCookie(j.w, ExpiredCookie(name, j.secure))
}

// StoreJar keeps cookies in a DurableStore under a key prefix. Processes
// sharing a directory backed store share their cookies this way.
type StoreJar struct {
	store  DurableStore
	prefix string
}

var _ CookieJar = (*StoreJar)(nil)

func NewStoreJar(store DurableStore, prefix string) *StoreJar {
	return &StoreJar{store: store, prefix: prefix}
}

func (j *StoreJar) Get(name string) (string, bool) {
	raw, err := j.store.Get(j.prefix + name)
	if err != nil || raw == "" {
		return "", false
	}
	v, err := DecodeCookieValue(raw)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (j *StoreJar) SetSessionCookie(name, value string) {
	if err := j.store.Set(j.prefix+name, EncodeCookieValue(value)); err != nil {
		log.Warn().Err(err).Str("cookie", name).Msg("store jar write failed")
	}
}

func (j *StoreJar) Delete(name string) {
	if err := j.store.Remove(j.prefix + name); err != nil {
		log.Warn().Err(err).Str("cookie", name).Msg("store jar delete failed")
	}
}
