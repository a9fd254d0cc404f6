package account

import "context"

// LimitResponse is the fixed upsell text returned when the free-tier cap
// denies a message.
const LimitResponse = "🚫 You’ve reached your free message limit. Please [subscribe](/subscribe) to continue chatting."

// Gate enforces the free-tier message cap before resolution runs. Subscribed
// users are always admitted and never counted; denial is idempotent.
type Gate struct {
	store Store
	limit int
}

func NewGate(store Store, limit int) *Gate {
	if limit <= 0 {
		limit = 4
	}
	return &Gate{store: store, limit: limit}
}

// Admit reports whether the user may proceed to resolution. An admitted
// free-tier message costs exactly one increment; a denied one costs nothing.
func (g *Gate) Admit(ctx context.Context, userID string) (bool, error) {
	result, err := g.store.ConsumeFreeMessage(ctx, userID, g.limit)
	if err != nil {
		return false, err
	}
	return result != ConsumeDenied, nil
}
