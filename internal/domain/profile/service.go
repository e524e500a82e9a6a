package profile

import (
	"context"
	"strings"

	"github.com/healthplix/healthplix/internal/platform/apperr"
)

var ErrDuplicateProfile = apperr.Conflict("duplicate_profile", "a profile with this email already exists")

type Service struct {
	profiles ProfileRepository
}

func NewService(profiles ProfileRepository) *Service {
	return &Service{profiles: profiles}
}

// Register creates the caller's own profile. callerEmail comes from the
// verified token and must match p.Email.
func (s *Service) Register(ctx context.Context, callerEmail string, p *Profile) error {
	email, err := NormalizeEmail(p.Email)
	if err != nil {
		return err
	}
	if !strings.EqualFold(email, callerEmail) {
		return apperr.Forbidden("profile email must match the signed-in account")
	}
	p.Email = email

	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperr.Validation("name is required")
	}
	if p.Age <= 0 || p.Age > 150 {
		return apperr.Validation("age must be between 1 and 150")
	}
	p.Role = strings.ToLower(strings.TrimSpace(p.Role))
	if p.Role != RolePatient && p.Role != RoleDoctor {
		return apperr.Validation("role must be %q or %q", RolePatient, RoleDoctor)
	}
	if p.Address != nil {
		addr := strings.TrimSpace(*p.Address)
		if addr == "" {
			p.Address = nil
		} else {
			p.Address = &addr
		}
	}

	return s.profiles.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, email string) (*Profile, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.profiles.GetByEmail(ctx, email)
}

// LookupInSet resolves many emails with one repository call. Emails
// without a profile are absent from the result.
func (s *Service) LookupInSet(ctx context.Context, emails []string) (map[string]*Profile, error) {
	seen := make(map[string]struct{}, len(emails))
	unique := make([]string, 0, len(emails))
	for _, e := range emails {
		if _, dup := seen[e]; dup || e == "" {
			continue
		}
		seen[e] = struct{}{}
		unique = append(unique, e)
	}

	out := make(map[string]*Profile, len(unique))
	if len(unique) == 0 {
		return out, nil
	}
	items, err := s.profiles.ListByEmails(ctx, unique)
	if err != nil {
		return nil, err
	}
	for _, p := range items {
		out[p.Email] = p
	}
	return out, nil
}

// RoleOf satisfies auth.RoleLookup.
func (s *Service) RoleOf(ctx context.Context, email string) (string, error) {
	p, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return p.Role, nil
}
