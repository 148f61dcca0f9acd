package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/transcript-portal/internal/errors"
)

// FlexString accepts a JSON string or number. The records API is not
// consistent about ids and years.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("[api FlexString] %s is neither string nor number", b)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Int returns the value as an int, or 0 if it is not numeric.
func (f FlexString) Int() int {
	n, _ := strconv.Atoi(string(f))
	return n
}

// Meta is the pagination block of a list response.
type Meta struct {
	CurrentPage int    `json:"currentPage"`
	LastPage    int    `json:"lastPage"`
	Total       int    `json:"total"`
	PerPage     int    `json:"perPage"`
	Path        string `json:"path,omitempty"`
}

// Response is the envelope every records endpoint returns.
type Response[T any] struct {
	Status  bool     `json:"status"`
	Message string   `json:"message,omitempty"`
	Data    T        `json:"data"`
	Errors  []string `json:"errors,omitempty"`
	Meta    *Meta    `json:"meta,omitempty"`
}

// APIError is a failed call. For HTTP failures it carries the decoded error
// envelope; for transport failures StatusCode is 0.
type APIError struct {
	StatusCode int      `json:"-"`
	Status     bool     `json:"status"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors,omitempty"`
	Meta       *Meta    `json:"meta,omitempty"`
	cause      error
}

func (e *APIError) Error() string {
	var sb strings.Builder
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, "api: HTTP %d", e.StatusCode)
	} else {
		sb.WriteString("api")
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if len(e.Errors) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(e.Errors, "; "))
	}
	return sb.String()
}

// Unwrap maps the HTTP status onto the shared sentinel errors so callers can
// use errors.Is without looking at status codes.
func (e *APIError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return errors.ErrInvalidToken
	case http.StatusForbidden:
		return errors.ErrInvalidRole
	case http.StatusNotFound:
		return errors.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errors.ErrInvalidRequest
	}
	if e.StatusCode >= 500 {
		return errors.ErrInternal
	}
	return nil
}

// School as returned by the API.
type School struct {
	ID          FlexString `json:"id"`
	Name        string     `json:"name"`
	Address     string     `json:"address,omitempty"`
	Subdomain   string     `json:"subdomain,omitempty"`
	LogoURL     string     `json:"logo_url,omitempty"`
	BrandColor  string     `json:"brand_color,omitempty"`
	AdminName   string     `json:"admin_name,omitempty"`
	AdminEmail  string     `json:"admin_email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Website     string     `json:"website,omitempty"`
	YearFounded FlexString `json:"yearFounded,omitempty"`
}

// NewSchool is the create payload.
type NewSchool struct {
	Name        string `json:"name" validate:"required"`
	Address     string `json:"address,omitempty"`
	Subdomain   string `json:"subdomain" validate:"required,hostname_rfc1123"`
	LogoURL     string `json:"logo_url,omitempty" validate:"omitempty,url"`
	BrandColor  string `json:"brand_color,omitempty" validate:"omitempty,hexcolor"`
	AdminName   string `json:"admin_name" validate:"required"`
	AdminEmail  string `json:"admin_email" validate:"required,email"`
	Phone       string `json:"phone,omitempty"`
	Website     string `json:"website,omitempty" validate:"omitempty,url"`
	YearFounded int    `json:"yearFounded,omitempty" validate:"omitempty,min=1000,max=9999"`
}

// Student as returned by the API.
type Student struct {
	ID             FlexString `json:"id"`
	SchoolID       FlexString `json:"school_id,omitempty"`
	Name           string     `json:"name"`
	MatricNumber   string     `json:"matric_number"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	DOB            string     `json:"dob,omitempty"`
	Gender         string     `json:"gender,omitempty"`
	ProgramOfStudy string     `json:"program_of_study,omitempty"`
	AdmissionYear  FlexString `json:"admission_year,omitempty"`
	GraduationYear FlexString `json:"graduation_year,omitempty"`
}

// NewStudent is the create payload.
type NewStudent struct {
	Name           string `json:"name" validate:"required"`
	MatricNumber   string `json:"matric_number" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone,omitempty"`
	DOB            string `json:"dob,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Gender         string `json:"gender,omitempty"`
	ProgramOfStudy string `json:"program_of_study,omitempty"`
	AdmissionYear  int    `json:"admission_year,omitempty" validate:"omitempty,min=1900,max=9999"`
	GraduationYear int    `json:"graduation_year,omitempty" validate:"omitempty,gtefield=AdmissionYear"`
}

// StudentFilter narrows a student listing.
type StudentFilter struct {
	Query string
}
