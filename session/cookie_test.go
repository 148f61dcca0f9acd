package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/transcript-portal/session"
	"github.com/stretchr/testify/require"
)

func TestCookieEncoding(t *testing.T) {
	value := `{"role":"school","name":"St. Mary's; Lagos","site":"https://x.y/z?a=b+c"}`

	encoded := session.EncodeCookieValue(value)
	require.NotContains(t, encoded, ";")
	require.NotContains(t, encoded, `"`)
	require.NotContains(t, encoded, " ")
	require.NotContains(t, encoded, ",")

	decoded, err := session.DecodeCookieValue(encoded)
	require.NoError(t, err)
	require.Equal(t, value, decoded)
}

func TestEncodeCookieValue_MatchesEncodeURIComponent(t *testing.T) {
	tests := map[string]string{
		"a+b=c&d":          "a%2Bb%3Dc%26d",
		"x:y@z$":           "x%3Ay%40z%24",
		"path/to?q#f":      "path%2Fto%3Fq%23f",
		"keep-_.!~*'()":    "keep-_.!~*'()",
		`{"role":"admin"}`: "%7B%22role%22%3A%22admin%22%7D",
		"é":                "%C3%A9",
		"a b":              "a%20b",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got := session.EncodeCookieValue(in)
			require.Equal(t, want, got)

			decoded, err := session.DecodeCookieValue(got)
			require.NoError(t, err)
			require.Equal(t, in, decoded)
		})
	}
}

func TestExpiredCookie(t *testing.T) {
	c := session.ExpiredCookie("token", true)
	require.Equal(t, "/", c.Path)
	require.Negative(t, c.MaxAge)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)

	require.False(t, session.ExpiredCookie("token", false).Secure)
}

func TestIsSecureRequest(t *testing.T) {
	require.True(t, session.IsSecureRequest(httptest.NewRequest(http.MethodGet, "https://portal.local/", nil)))

	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")
	require.True(t, session.IsSecureRequest(proxied))

	require.False(t, session.IsSecureRequest(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestNewSessionCookie_HasNoExpiry(t *testing.T) {
	c := session.NewSessionCookie("token", "tok 123", false)
	require.Equal(t, "/", c.Path)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)
	require.True(t, c.Expires.IsZero())
	require.Zero(t, c.MaxAge)

	rec := httptest.NewRecorder()
	http.SetCookie(rec, c)
	header := rec.Header().Get("Set-Cookie")
	require.NotContains(t, header, "Expires")
	require.NotContains(t, header, "Max-Age")
	require.Contains(t, header, "SameSite=Lax")
}

func TestReadCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "user", Value: session.EncodeCookieValue(`{"role":"admin"}`)})
	req.AddCookie(&http.Cookie{Name: "empty", Value: ""})

	v, ok := session.ReadCookie(req, "user")
	require.True(t, ok)
	require.Equal(t, `{"role":"admin"}`, v)

	_, ok = session.ReadCookie(req, "empty")
	require.False(t, ok)
	_, ok = session.ReadCookie(req, "missing")
	require.False(t, ok)
}

func TestMemoryJar(t *testing.T) {
	jar := session.NewMemoryJar()
	jar.SetSessionCookie("token", "a b")
	jar.SetSessionCookie("user", `{"role":"student"}`)

	v, ok := jar.Get("token")
	require.True(t, ok)
	require.Equal(t, "a b", v)

	cookies := jar.HTTPCookies()
	require.Len(t, cookies, 2)
	require.Equal(t, "token", cookies[0].Name)
	require.Equal(t, "a%20b", cookies[0].Value)

	jar.Delete("token")
	_, ok = jar.Get("token")
	require.False(t, ok)

	jar.Clear()
	_, ok = jar.Get("user")
	require.False(t, ok)
}
