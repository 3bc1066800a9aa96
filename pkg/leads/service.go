package leads

import "context"

// QueryService is the backend lead API the Coordinator depends on.
// Implementations return errors rather than panicking; the client package
// maps transport failures onto the sentinels in pkg/errors.
type QueryService interface {
	GetRelevantLeads(ctx context.Context, filter Filter) ([]Lead, error)
	GetLeadsByStatus(ctx context.Context, status Status) ([]Lead, error)
	UpdateLeadStatus(ctx context.Context, leadID string, status Status) error
}
