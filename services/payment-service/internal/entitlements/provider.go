package entitlements

import "context"

// Entitlements is the subset of subscription state payment collection cares
// about.
type Entitlements struct {
	Tier           string
	OnlinePayments bool
}

type Provider interface {
	GetEntitlements(ctx context.Context, adminID string) (Entitlements, error)
}

type staticProvider struct {
	ent Entitlements
}

// NewStaticProvider returns a provider that answers the same entitlements
// for every admin. Used as a fallback when subscription-service is absent.
func NewStaticProvider(ent Entitlements) Provider {
	return &staticProvider{ent: ent}
}

func (p *staticProvider) GetEntitlements(_ context.Context, _ string) (Entitlements, error) {
	return p.ent, nil
}
