package devauth

import (
	"fmt"

	"github.com/jrsteele09/transcript-portal/users"
	"github.com/rs/zerolog/log"
)

// SeedUser is an account created at startup.
type SeedUser struct {
	Email    string
	Name     string
	Password string
	Role     users.Role
	SchoolID string
}

// DefaultSeedUsers is one account per role, all with the given password.
func DefaultSeedUsers(password string) []SeedUser {
	return []SeedUser{
		{Email: "superadmin@portal.local", Name: "Super Admin", Password: password, Role: users.RoleSuperAdmin},
		{Email: "admin@portal.local", Name: "Platform Admin", Password: password, Role: users.RoleAdmin},
		{Email: "school@portal.local", Name: "School Admin", Password: password, Role: users.RoleSchool, SchoolID: "1"},
		{Email: "student@portal.local", Name: "Student", Password: password, Role: users.RoleStudent, SchoolID: "1"},
	}
}

// Seed creates the given users, skipping any email that already exists.
func Seed(repo users.UserRepo, seeds []SeedUser) error {
	for _, s := range seeds {
		if !s.Role.Valid() {
			return fmt.Errorf("[devauth Seed] %s: invalid role %q", s.Email, s.Role)
		}
		if _, err := repo.GetByEmail(s.Email); err == nil {
			continue
		}
		hash, err := users.HashPassword(s.Password)
		if err != nil {
			return fmt.Errorf("[devauth Seed] hash password: %w", err)
		}
		if err := repo.Upsert(&users.User{
			Email:        s.Email,
			Name:         s.Name,
			PasswordHash: hash,
			Role:         s.Role,
			SchoolID:     s.SchoolID,
		}); err != nil {
			return fmt.Errorf("[devauth Seed] %w", err)
		}
		log.Info().Str("email", s.Email).Str("role", string(s.Role)).Msg("seeded dev user")
	}
	return nil
}
