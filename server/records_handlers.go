package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jrsteele09/transcript-portal/api"
	"github.com/jrsteele09/transcript-portal/internal/errors"
	"github.com/jrsteele09/transcript-portal/internal/utils"
	"github.com/jrsteele09/transcript-portal/session"
	"github.com/jrsteele09/transcript-portal/users"
	"github.com/rs/zerolog/log"
)

const (
	maxPerPage = 200

	fetchSchoolsFailed  = "Failed to fetch schools"
	fetchStudentsFailed = "Failed to fetch students"
)

// pager is the pagination bar under a list. Prev and Next are 0 when there
// is no such page.
type pager struct {
	Meta  *api.Meta
	Prev  int
	Next  int
	Query url.Values // carried into the page links
}

func newPager(meta *api.Meta, query url.Values) pager {
	p := pager{Meta: meta, Query: query}
	if meta == nil {
		return p
	}
	if meta.CurrentPage > 1 {
		p.Prev = meta.CurrentPage - 1
	}
	if meta.CurrentPage < meta.LastPage {
		p.Next = meta.CurrentPage + 1
	}
	return p
}

// Link returns the query string for page n.
func (p pager) Link(n int) string {
	q := url.Values{}
	for k, v := range p.Query {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(n))
	if p.Meta != nil && p.Meta.PerPage > 0 {
		q.Set("perPage", strconv.Itoa(p.Meta.PerPage))
	}
	return "?" + q.Encode()
}

type schoolsPage struct {
	pageData
	Schools []api.School
	Pager   pager
	Error   string
}

type studentRecordsPage struct {
	pageData
	Schools  []api.School // school picker, empty for users bound to one school
	SchoolID string
	Filter   string
	Students []api.Student
	Pager    pager
	Error    string
}

// recordsFor binds the session token of r to the records API client.
func (s *Server) recordsFor(r *http.Request) *api.Client {
	return s.records.WithTokenSource(func() string {
		token, _ := session.ReadCookie(r, s.names.TokenCookie)
		return token
	})
}

// sessionRecord returns the user record from the session cookie, or nil.
func (s *Server) sessionRecord(r *http.Request) users.Record {
	raw, ok := session.ReadCookie(r, s.names.UserCookie)
	if !ok {
		return nil
	}
	record, err := users.ParseRecord([]byte(raw))
	if err != nil {
		return nil
	}
	return record
}

func (s *Server) basePage(r *http.Request, title string) pageData {
	user := s.currentUser(r)
	if user == nil {
		user = &pageUser{}
	}
	return pageData{AppName: s.config.GetAppName(), Title: title, User: user}
}

func pageParams(r *http.Request) (page, perPage int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	perPage, _ = strconv.Atoi(q.Get("perPage"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = api.DefaultPerPage
	}
	return page, perPage
}

// recordsStatus is the status a page gets when its records API call failed:
// client errors pass through, everything else is a bad gateway.
func recordsStatus(err error) int {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}

// SchoolsHandler lists schools (GET /admin/schools).
func (s *Server) SchoolsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, perPage := pageParams(r)
		data := schoolsPage{pageData: s.basePage(r, "Schools")}

		resp, err := s.recordsFor(r).ListSchools(r.Context(), page, perPage)
		if err != nil {
			log.Warn().Err(err).Msg("list schools failed")
			data.Error = fetchSchoolsFailed
			s.render(w, recordsStatus(err), "schools.html", data)
			return
		}
		if !resp.Status {
			data.Error = utils.FirstNonEmpty(resp.Message, fetchSchoolsFailed)
		}
		data.Schools = resp.Data
		data.Pager = newPager(resp.Meta, nil)
		s.render(w, http.StatusOK, "schools.html", data)
	}
}

// StudentRecordsHandler lists the students of one school
// (GET /admin/student-records). School administrators always see their own
// school; platform roles pick one with ?school=, defaulting to the first.
func (s *Server) StudentRecordsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, perPage := pageParams(r)
		q := r.URL.Query()
		data := studentRecordsPage{
			pageData: s.basePage(r, "Student Records"),
			Filter:   strings.TrimSpace(q.Get("filter")),
		}
		client := s.recordsFor(r)

		data.SchoolID = s.sessionRecord(r).SchoolID()
		if data.SchoolID == "" {
			schools, err := client.ListSchools(r.Context(), 1, maxPerPage)
			if err != nil {
				log.Warn().Err(err).Msg("list schools for picker failed")
				data.Error = fetchSchoolsFailed
				s.render(w, recordsStatus(err), "student_records.html", data)
				return
			}
			data.Schools = schools.Data
			data.SchoolID = q.Get("school")
			if data.SchoolID == "" && len(schools.Data) > 0 {
				data.SchoolID = schools.Data[0].ID.String()
			}
		}
		if data.SchoolID == "" {
			s.render(w, http.StatusOK, "student_records.html", data)
			return
		}

		linkQuery := url.Values{}
		if len(data.Schools) > 0 {
			linkQuery.Set("school", data.SchoolID)
		}
		if data.Filter != "" {
			linkQuery.Set("filter", data.Filter)
		}

		resp, err := client.ListStudents(r.Context(), data.SchoolID, page, perPage, api.StudentFilter{Query: data.Filter})
		if err != nil {
			log.Warn().Err(err).Str("school", data.SchoolID).Msg("list students failed")
			data.Error = fetchStudentsFailed
			var apiErr *api.APIError
			if errors.As(err, &apiErr) {
				data.Error = apiErr.Message
				data.Pager = newPager(apiErr.Meta, linkQuery)
			}
			s.render(w, recordsStatus(err), "student_records.html", data)
			return
		}
		if !resp.Status {
			data.Error = utils.FirstNonEmpty(resp.Message, fetchStudentsFailed)
		}
		data.Students = resp.Data
		data.Pager = newPager(resp.Meta, linkQuery)
		s.render(w, http.StatusOK, "student_records.html", data)
	}
}
