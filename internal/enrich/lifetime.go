package enrich

import (
	"fmt"
	"strings"

	"actpipe/internal/model"
	"actpipe/internal/state"
)

const lifetimePrefix = "u/"

// lifetimeKey namespaces user ids so a blank id is still a valid store key.
func lifetimeKey(userID string) string { return lifetimePrefix + userID }

// AccumulateLifetime applies every record's price to its user's accumulator. The
// row position is the sequence number, so a replay of the same batch into the same
// store is a no-op.
func AccumulateLifetime(st state.Store, records []model.CleanedRecord) error {
	for i, r := range records {
		if _, _, err := st.Apply(lifetimeKey(r.UserID), r.Price, int64(i)+1); err != nil {
			return fmt.Errorf("accumulate lifetime value for %q: %w", r.UserID, err)
		}
	}
	return nil
}

// LifetimeValue returns the accumulated total for a user.
func LifetimeValue(st state.Store, userID string) (float64, error) {
	ls, ok := st.Get(lifetimeKey(userID))
	if !ok {
		return 0, fmt.Errorf("lifetime value for %q: not accumulated", userID)
	}
	return ls.Total, nil
}

// Lifetimes calls fn for every accumulated user in user id order.
func Lifetimes(st state.Store, fn func(userID string, ls state.LifetimeState) error) error {
	return st.Range(func(key string, ls state.LifetimeState) error {
		userID, ok := strings.CutPrefix(key, lifetimePrefix)
		if !ok {
			return nil
		}
		return fn(userID, ls)
	})
}
