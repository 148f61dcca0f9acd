package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jrsteele09/transcript-portal/api"
	"github.com/jrsteele09/transcript-portal/internal/errors"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type fakeRecordsAPI struct {
	mu       sync.Mutex
	requests []recorded
}

func (f *fakeRecordsAPI) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeRecordsAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeRecordsAPI) handler() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /schools", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, map[string]any{
			"status": true,
			"data":   []map[string]any{{"id": 7, "name": "North High", "yearFounded": "1962"}},
			"meta":   map[string]any{"currentPage": 2, "lastPage": 3, "total": 31, "perPage": 15},
		})
	})
	mux.HandleFunc("GET /schools/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			write(w, http.StatusNotFound, map[string]any{"status": false, "message": "School not found"})
			return
		}
		write(w, http.StatusOK, map[string]any{"status": true, "data": map[string]any{"id": "7", "name": "North High"}})
	})
	mux.HandleFunc("POST /schools", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusCreated, map[string]any{"status": true, "message": "created", "data": map[string]any{"id": 8, "name": "South"}})
	})
	mux.HandleFunc("PUT /schools/{id}", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, map[string]any{"status": true, "data": map[string]any{"id": r.PathValue("id"), "name": "Renamed"}})
	})
	mux.HandleFunc("DELETE /schools/{id}", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, map[string]any{"status": true, "message": "deleted"})
	})
	mux.HandleFunc("GET /schools/{id}/students", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "broken":
			w.WriteHeader(http.StatusBadGateway)
		case "locked":
			write(w, http.StatusForbidden, map[string]any{
				"status": false, "message": "Forbidden", "errors": []string{"not your school"},
				"meta": map[string]any{"currentPage": 4, "lastPage": 9, "total": 120, "perPage": 15},
			})
		default:
			write(w, http.StatusOK, map[string]any{
				"status": true,
				"data":   []map[string]any{{"id": 1, "name": "Ada", "matric_number": "M-1", "admission_year": 2021}},
				"meta":   map[string]any{"currentPage": 1, "lastPage": 1, "total": 1, "perPage": 10},
			})
		}
	})
	mux.HandleFunc("POST /schools/{id}/students", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusCreated, map[string]any{"status": true, "data": map[string]any{"id": 2, "name": "Bo"}})
	})
	mux.HandleFunc("GET /schools/{id}/students/{sid}", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, map[string]any{"status": true, "data": map[string]any{"id": r.PathValue("sid"), "name": "Ada"}})
	})
	mux.HandleFunc("PUT /schools/{id}/students/{sid}", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, map[string]any{"status": true, "data": map[string]any{"id": r.PathValue("sid"), "name": "Ada L"}})
	})
	mux.HandleFunc("DELETE /schools/{id}/students/{sid}", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, map[string]any{"status": true})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

func newTestClient(t *testing.T, token string) (*api.Client, *fakeRecordsAPI) {
	t.Helper()
	fake := &fakeRecordsAPI{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return api.NewClient(srv.URL, func() string { return token }), fake
}

func TestClient_Schools(t *testing.T) {
	client, fake := newTestClient(t, "tok")
	ctx := context.Background()

	list, err := client.ListSchools(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	require.Equal(t, "7", list.Data[0].ID.String())
	require.Equal(t, 1962, list.Data[0].YearFounded.Int())
	require.Equal(t, 3, list.Meta.LastPage)
	require.Equal(t, "page=2&perPage=15", fake.last().Query)
	require.Equal(t, "Bearer tok", fake.last().Auth)

	got, err := client.GetSchool(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, "North High", got.Data.Name)

	created, err := client.CreateSchool(ctx, api.NewSchool{
		Name: "South", Subdomain: "south", AdminName: "Sam", AdminEmail: "sam@south.edu", YearFounded: 1990,
	})
	require.NoError(t, err)
	require.Equal(t, "8", created.Data.ID.String())
	require.Equal(t, "sam@south.edu", fake.last().Body["admin_email"])
	require.EqualValues(t, 1990, fake.last().Body["yearFounded"])

	updated, err := client.UpdateSchool(ctx, "8", map[string]any{"name": "Renamed"})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Data.Name)
	require.Equal(t, http.MethodPut, fake.last().Method)

	_, err = client.DeleteSchool(ctx, "8")
	require.NoError(t, err)
	require.Equal(t, "/schools/8", fake.last().Path)
}

func TestClient_NotFoundIsAPIError(t *testing.T) {
	client, _ := newTestClient(t, "tok")

	_, err := client.GetSchool(context.Background(), "99")
	require.Error(t, err)

	var apiErr *api.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "School not found", apiErr.Message)
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestClient_CreateValidatesBeforeSending(t *testing.T) {
	client, fake := newTestClient(t, "tok")

	_, err := client.CreateSchool(context.Background(), api.NewSchool{Name: "x", Subdomain: "x", AdminName: "a", AdminEmail: "not-an-email"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Contains(t, err.Error(), "AdminEmail")

	_, err = client.CreateStudent(context.Background(), "7", api.NewStudent{Name: "Bo", Email: "bo@x.edu"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Contains(t, err.Error(), "MatricNumber")

	require.Zero(t, fake.count())
}

func TestClient_NoTokenSendsNoAuthorization(t *testing.T) {
	client, fake := newTestClient(t, "")

	_, err := client.ListSchools(context.Background(), 1, 15)
	require.NoError(t, err)
	require.Empty(t, fake.last().Auth)
}

func TestClient_WithTokenSource(t *testing.T) {
	client, fake := newTestClient(t, "first")

	bound := client.WithTokenSource(func() string { return "second" })
	_, err := bound.ListSchools(context.Background(), 1, 15)
	require.NoError(t, err)
	require.Equal(t, "Bearer second", fake.last().Auth)

	_, err = client.ListSchools(context.Background(), 1, 15)
	require.NoError(t, err)
	require.Equal(t, "Bearer first", fake.last().Auth)

	_, err = client.WithTokenSource(nil).ListSchools(context.Background(), 1, 15)
	require.NoError(t, err)
	require.Empty(t, fake.last().Auth)
}

func TestClient_Students(t *testing.T) {
	client, fake := newTestClient(t, "tok")
	ctx := context.Background()

	list, err := client.ListStudents(ctx, "7", 1, 10, api.StudentFilter{Query: "ada lovelace"})
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	require.Equal(t, "2021", list.Data[0].AdmissionYear.String())
	require.Equal(t, "/schools/7/students", fake.last().Path)
	require.Equal(t, "filter=ada+lovelace&page=1&perPage=10", fake.last().Query)

	created, err := client.CreateStudent(ctx, "7", api.NewStudent{
		Name: "Bo", MatricNumber: "M-2", Email: "bo@x.edu", DOB: "2004-05-06", AdmissionYear: 2022, GraduationYear: 2026,
	})
	require.NoError(t, err)
	require.Equal(t, "2", created.Data.ID.String())
	require.Equal(t, "M-2", fake.last().Body["matric_number"])

	got, err := client.GetStudent(ctx, "7", "2")
	require.NoError(t, err)
	require.Equal(t, "2", got.Data.ID.String())

	updated, err := client.UpdateStudent(ctx, "7", "2", map[string]any{"name": "Ada L"})
	require.NoError(t, err)
	require.Equal(t, "Ada L", updated.Data.Name)

	_, err = client.DeleteStudent(ctx, "7", "2")
	require.NoError(t, err)
	require.Equal(t, "/schools/7/students/2", fake.last().Path)
}

func TestClient_ListStudentsFailureMeta(t *testing.T) {
	client, _ := newTestClient(t, "tok")

	t.Run("server error without body gets fallback meta", func(t *testing.T) {
		_, err := client.ListStudents(context.Background(), "broken", 3, 20, api.StudentFilter{})
		var apiErr *api.APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		require.Equal(t, &api.Meta{CurrentPage: 3, LastPage: 1, Total: 0, PerPage: 20}, apiErr.Meta)
		require.NotEmpty(t, apiErr.Errors)
	})

	t.Run("server meta is kept", func(t *testing.T) {
		_, err := client.ListStudents(context.Background(), "locked", 4, 15, api.StudentFilter{})
		var apiErr *api.APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, 9, apiErr.Meta.LastPage)
		require.Equal(t, []string{"not your school"}, apiErr.Errors)
		require.True(t, errors.Is(err, errors.ErrInvalidRole))
	})

	t.Run("transport failure gets fallback meta", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		dead := api.NewClient(srv.URL, nil)

		_, err := dead.ListStudents(context.Background(), "7", 0, 0, api.StudentFilter{})
		var apiErr *api.APIError
		require.True(t, errors.As(err, &apiErr))
		require.Zero(t, apiErr.StatusCode)
		require.Equal(t, &api.Meta{CurrentPage: 1, LastPage: 1, Total: 0, PerPage: api.DefaultPerPage}, apiErr.Meta)
	})
}
