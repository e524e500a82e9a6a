package profile

import "context"

type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	// ListByEmails returns the profiles that exist among emails, in no
	// particular order, using a single query.
	ListByEmails(ctx context.Context, emails []string) ([]*Profile, error)
}
