package api

import (
	"context"
	"net/http"

	"github.com/jrsteele09/transcript-portal/internal/errors"
	"github.com/jrsteele09/transcript-portal/internal/utils"
)

func studentsRoute(schoolID string) string {
	return routeSchools + "/" + escape(schoolID) + "/students"
}

func studentRoute(schoolID, studentID string) string {
	return studentsRoute(schoolID) + "/" + escape(studentID)
}

// ListStudents lists a school's students. On failure the returned error is
// always an *APIError with a Meta block: the server's own if it sent one,
// otherwise a single empty page so list views can still render.
func (c *Client) ListStudents(ctx context.Context, schoolID string, page, perPage int, filter StudentFilter) (*Response[[]Student], error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	q := pageQuery(page, perPage)
	if filter.Query != "" {
		q.Set("filter", filter.Query)
	}

	var out Response[[]Student]
	err := c.do(ctx, http.MethodGet, studentsRoute(schoolID), q, nil, &out)
	if err == nil {
		return &out, nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = &APIError{Message: err.Error(), cause: err}
	}
	apiErr.Message = utils.FirstNonEmpty(apiErr.Message, "An error occurred while fetching students")
	if len(apiErr.Errors) == 0 {
		apiErr.Errors = []string{apiErr.Message}
	}
	if apiErr.Meta == nil {
		apiErr.Meta = utils.Ptr(Meta{CurrentPage: page, LastPage: 1, Total: 0, PerPage: perPage})
	}
	return nil, apiErr
}

func (c *Client) GetStudent(ctx context.Context, schoolID, studentID string) (*Response[Student], error) {
	var out Response[Student]
	if err := c.do(ctx, http.MethodGet, studentRoute(schoolID, studentID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateStudent validates the payload before sending it.
func (c *Client) CreateStudent(ctx context.Context, schoolID string, student NewStudent) (*Response[Student], error) {
	if err := c.validateInput("CreateStudent", student); err != nil {
		return nil, err
	}
	var out Response[Student]
	if err := c.do(ctx, http.MethodPost, studentsRoute(schoolID), nil, student, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateStudent sends a partial update; only the given fields change.
func (c *Client) UpdateStudent(ctx context.Context, schoolID, studentID string, fields map[string]any) (*Response[Student], error) {
	var out Response[Student]
	if err := c.do(ctx, http.MethodPut, studentRoute(schoolID, studentID), nil, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteStudent(ctx context.Context, schoolID, studentID string) (*Response[any], error) {
	var out Response[any]
	if err := c.do(ctx, http.MethodDelete, studentRoute(schoolID, studentID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
