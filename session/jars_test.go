package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/transcript-portal/session"
	"github.com/jrsteele09/transcript-portal/session/storage"
	"github.com/stretchr/testify/require"
)

func TestHTTPJar(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "old"})
	rec := httptest.NewRecorder()

	jar := session.NewHTTPJar(rec, req, false)
	v, ok := jar.Get("token")
	require.True(t, ok)
	require.Equal(t, "old", v)

	jar.SetSessionCookie("user", `{"role":"admin"}`)
	v, ok = jar.Get("user")
	require.True(t, ok)
	require.Equal(t, `{"role":"admin"}`, v)

	jar.Delete("token")
	_, ok = jar.Get("token")
	require.False(t, ok)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	require.Equal(t, "user", cookies[0].Name)
	require.Equal(t, session.EncodeCookieValue(`{"role":"admin"}`), cookies[0].Value)
	require.Zero(t, cookies[0].MaxAge)
	require.Equal(t, "token", cookies[1].Name)
	require.Negative(t, cookies[1].MaxAge)
}

func TestHTTPJar_SecureDeleteMatchesSet(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://portal.local/", nil)
	rec := httptest.NewRecorder()

	jar := session.NewHTTPJar(rec, req, session.IsSecureRequest(req))
	jar.SetSessionCookie("token", "abc")
	jar.Delete("token")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	require.True(t, cookies[0].Secure)
	require.True(t, cookies[1].Secure)
	require.Negative(t, cookies[1].MaxAge)
}

func TestStoreJar_SharedAcrossViews(t *testing.T) {
	store := storage.NewMemoryStore()
	a := session.NewStoreJar(store.View(), "cookie_")
	b := session.NewStoreJar(store.View(), "cookie_")

	a.SetSessionCookie("user", `{"name":"Ada Lovelace"}`)
	v, ok := b.Get("user")
	require.True(t, ok)
	require.Equal(t, `{"name":"Ada Lovelace"}`, v)

	raw, _ := store.View().Get("cookie_user")
	require.NotContains(t, raw, " ", "values are stored encoded")

	b.Delete("user")
	_, ok = a.Get("user")
	require.False(t, ok)
}
