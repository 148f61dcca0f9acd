package session

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const upperHex = "0123456789ABCDEF"

// EncodeCookieValue percent-encodes every byte outside A-Z a-z 0-9 and
// - _ . ! ~ * ' ( ), the same set encodeURIComponent leaves alone.
func EncodeCookieValue(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if unreservedComponentByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String()
}

func unreservedComponentByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}

func DecodeCookieValue(raw string) (string, error) {
	return url.PathUnescape(raw)
}

// NewSessionCookie builds an HTTP cookie with browser-session lifetime:
// no Expires and no Max-Age, path "/", SameSite=Lax.
func NewSessionCookie(name, value string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    EncodeCookieValue(value),
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie builds the cookie that deletes name immediately. secure
// should match the value the cookie was set with.
func ExpiredCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// IsSecureRequest reports whether r arrived over HTTPS, directly or behind a
// proxy that sets X-Forwarded-Proto.
func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// ReadCookie returns the decoded value of a request cookie.
func ReadCookie(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	v, err := DecodeCookieValue(c.Value)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

// MemoryJar is an in-memory CookieJar. It stores values encoded, as a
// browser would, and is safe for use by several tabs at once.
type MemoryJar struct {
	mu      sync.RWMutex
	cookies map[string]string
}

var _ CookieJar = (*MemoryJar)(nil)

func NewMemoryJar() *MemoryJar {
	return &MemoryJar{cookies: make(map[string]string)}
}

func (j *MemoryJar) Get(name string) (string, bool) {
	j.mu.RLock()
	raw, ok := j.cookies[name]
	j.mu.RUnlock()
	if !ok || raw == "" {
		return "", false
	}
	v, err := DecodeCookieValue(raw)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (j *MemoryJar) SetSessionCookie(name, value string) {
	j.SetRaw(name, EncodeCookieValue(value))
}

// SetRaw stores an already encoded value.
func (j *MemoryJar) SetRaw(name, raw string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies[name] = raw
}

func (j *MemoryJar) Delete(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.cookies, name)
}

// Clear drops every cookie, which is what a full browser close does to
// browser-session cookies.
func (j *MemoryJar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = make(map[string]string)
}

// HTTPCookies returns the jar contents as request cookies, sorted by name.
func (j *MemoryJar) HTTPCookies() []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*http.Cookie, 0, len(j.cookies))
	for name, raw := range j.cookies {
		out = append(out, &http.Cookie{Name: name, Value: raw})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}
