package users

import (
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// Role is the portal role carried in the user record
type Role string

const (
	RoleSuperAdmin Role = "super-admin" // Platform operators, manage every school
	RoleAdmin      Role = "admin"       // Platform administrators
	RoleSchool     Role = "school"      // School administrators, scoped to their school
	RoleStudent    Role = "student"     // Students, read their own transcripts
)

const (
	AdminDashboardPath   = "/admin/dashboard"
	StudentDashboardPath = "/student/dashboard"
)

// AdminRoles can enter the /admin area.
var AdminRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleSchool}

// StudentRoles can enter the /student area.
var StudentRoles = []Role{RoleStudent}

func (r Role) Valid() bool {
	return r.IsAdmin() || r == RoleStudent
}

func (r Role) IsAdmin() bool {
	for _, a := range AdminRoles {
		if r == a {
			return true
		}
	}
	return false
}

// DashboardPath returns the landing page for the role, or "" for an unknown role.
func (r Role) DashboardPath() string {
	switch {
	case r.IsAdmin():
		return AdminDashboardPath
	case r == RoleStudent:
		return StudentDashboardPath
	}
	return ""
}

// Record is the user as returned by the auth API. It is kept as an opaque
// JSON object so that fields the portal does not know about survive a
// round trip through the session cookie.
type Record map[string]any

// ParseRecord decodes a JSON object into a Record.
func ParseRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("[users ParseRecord] %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("[users ParseRecord] not a JSON object")
	}
	return r, nil
}

func (r Record) Role() Role {
	role, _ := r["role"].(string)
	return Role(role)
}

func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// SchoolID returns school_id, which the auth API sends as either a string or
// a number. Platform roles have none.
func (r Record) SchoolID() string {
	switch v := r["school_id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func (r Record) JSON() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// User is an account known to the development auth API.
type User struct {
	ID           string `json:"id,omitempty"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	PasswordHash string `json:"-"` // never serialize
	Role         Role   `json:"role,omitempty"`
	SchoolID     string `json:"school_id,omitempty"` // empty for platform roles
	Blocked      bool   `json:"blocked,omitempty"`
}

// Record returns the public view of the user sent to clients.
func (u *User) Record() Record {
	r := Record{
		"id":    u.ID,
		"email": u.Email,
		"name":  u.Name,
		"role":  string(u.Role),
	}
	if u.SchoolID != "" {
		r["school_id"] = u.SchoolID
	}
	return r
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks a password against the user's hash
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}
