package presence

import "context"

// Publisher mirrors the gateway's presence map to an external system.
// The mirror is advisory; routing never reads it.
type Publisher interface {
	// Online records connID as userID's live connection.
	Online(ctx context.Context, userID, connID string) error
	// Refresh renews userID's entry if connID is still its recorded connection.
	Refresh(ctx context.Context, userID, connID string) error
	// Offline clears userID, whichever connection it records.
	Offline(ctx context.Context, userID, connID string) error
}

// Noop is used when no presence backend is configured.
type Noop struct{}

func (Noop) Online(context.Context, string, string) error  { return nil }
func (Noop) Refresh(context.Context, string, string) error { return nil }
func (Noop) Offline(context.Context, string, string) error { return nil }
