package enrich

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actpipe/internal/model"
	"actpipe/internal/state"
)

func rec(userID string, price float64) model.CleanedRecord {
	return model.CleanedRecord{
		UserID:         userID,
		Email:          fmt.Sprintf("%s-%v@example.com", userID, price),
		LoginTime:      "2024-02-10T12:00:00",
		LogoutTime:     "2024-02-10T13:00:00",
		AccountCreated: "2024-01-15T08:00:00",
		Price:          price,
		PurchaseStatus: "completed",
	}
}

func fptr(f float64) *float64 { return &f }

func TestScenario_LifetimeValueBroadcast(t *testing.T) {
	out, err := Enrich([]model.CleanedRecord{rec("u1", 100), rec("u2", 50), rec("u1", 300)}, state.NewInMemoryStore())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 400.0, out[0].CustomerLifetimeValue)
	assert.Equal(t, 50.0, out[1].CustomerLifetimeValue)
	assert.Equal(t, 400.0, out[2].CustomerLifetimeValue)
}

func TestLifetimeValue_GroupSumsExact(t *testing.T) {
	prices := []float64{10.1, 20.2, 0.3, 99.99, 1234.56, 7.77, 0.01}
	var in []model.CleanedRecord
	for i, p := range prices {
		in = append(in, rec(fmt.Sprintf("u%d", i%3), p))
	}
	out, err := Enrich(in, state.NewInMemoryStore())
	require.NoError(t, err)

	sums := map[string]float64{}
	for _, r := range out {
		sums[r.UserID] += r.Price
	}
	for _, r := range out {
		assert.Equal(t, sums[r.UserID], r.CustomerLifetimeValue, "user %s", r.UserID)
		assert.GreaterOrEqual(t, r.CustomerLifetimeValue, r.Price)
	}
}

func TestEnrich_ReplayIntoSameStoreIsStable(t *testing.T) {
	st := state.NewInMemoryStore()
	in := []model.CleanedRecord{rec("u1", 100), rec("u1", 300)}
	_, err := Enrich(in, st)
	require.NoError(t, err)
	out, err := Enrich(in, st)
	require.NoError(t, err)
	assert.Equal(t, 400.0, out[0].CustomerLifetimeValue)
}

func TestEnrich_PebbleStore(t *testing.T) {
	st, err := state.NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	out, err := Enrich([]model.CleanedRecord{rec("u1", 100), rec("", 5), rec("u1", 300), rec("", 7)}, st)
	require.NoError(t, err)
	assert.Equal(t, 400.0, out[0].CustomerLifetimeValue)
	assert.Equal(t, 12.0, out[1].CustomerLifetimeValue)
}

func TestEnrich_DerivedFields(t *testing.T) {
	r := rec("u1", 10)
	r.SessionDurationMinutes = fptr(45)
	bad := rec("u2", 20)
	bad.AccountCreated = "not a date"
	later := rec("u3", 30)
	later.AccountCreated = "2024-03-01T00:00:00"

	out, err := Enrich([]model.CleanedRecord{r, bad, later}, state.NewInMemoryStore())
	require.NoError(t, err)

	require.NotNil(t, out[0].CohortDate)
	assert.Equal(t, "2024-01", *out[0].CohortDate)
	assert.Equal(t, int64(26), out[0].UserAgeDays)
	assert.Equal(t, EngagementLow, out[0].EngagementLevel)
	require.NotNil(t, out[0].LoginTime)

	assert.Nil(t, out[1].CohortDate)
	assert.Nil(t, out[1].AccountCreated)
	assert.Zero(t, out[1].UserAgeDays)
	assert.Equal(t, EngagementVeryLow, out[1].EngagementLevel)

	assert.Zero(t, out[2].UserAgeDays, "negative tenure floors at zero")
}

func TestEngagement_Boundaries(t *testing.T) {
	cases := []struct {
		in   *float64
		want string
	}{
		{nil, EngagementVeryLow},
		{fptr(0), EngagementVeryLow},
		{fptr(29.99), EngagementVeryLow},
		{fptr(30), EngagementLow},
		{fptr(59.9), EngagementLow},
		{fptr(60), EngagementMedium},
		{fptr(119.99), EngagementMedium},
		{fptr(120), EngagementHigh},
		{fptr(10000), EngagementHigh},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Engagement(c.in))
	}
}

func TestPriceTiers_Monotonic(t *testing.T) {
	prices := []float64{5, 100, 12.5, 4000, 250, 250, 999, 1, 60, 3000, 75, 75}
	label, ok := PriceTiers(prices)
	require.True(t, ok)
	for _, a := range prices {
		for _, b := range prices {
			if a > b {
				assert.GreaterOrEqual(t, TierOrdinal(label(a)), TierOrdinal(label(b)), "%v vs %v", a, b)
			}
		}
	}
	assert.Equal(t, TierBudget, label(1))
	assert.Equal(t, TierLuxury, label(4000))
}

func TestPriceTiers_Fallback(t *testing.T) {
	for _, prices := range [][]float64{
		nil,
		{10},
		{10, 20, 30},
		{10, 10, 20, 20, 30, 30},
		// four distinct values but the lower quartiles collapse
		{1, 1, 1, 1, 1, 1, 1, 1, 2, 3, 4},
	} {
		label, ok := PriceTiers(prices)
		assert.False(t, ok, "%v", prices)
		assert.Equal(t, FallbackTier, label(10))
	}
}

func TestEnrich_FewDistinctPricesFallBack(t *testing.T) {
	out, err := Enrich([]model.CleanedRecord{rec("a", 10), rec("b", 20), rec("c", 10), rec("d", 30)}, state.NewInMemoryStore())
	require.NoError(t, err)
	for _, r := range out {
		assert.Equal(t, FallbackTier, r.PriceTier)
	}
}

func TestLifetimes_ListsUsersInOrder(t *testing.T) {
	st := state.NewInMemoryStore()
	require.NoError(t, AccumulateLifetime(st, []model.CleanedRecord{rec("u2", 50), rec("u1", 100), rec("u1", 300)}))
	_, _, err := st.Apply("other/key", 1, 1)
	require.NoError(t, err)

	var users []string
	totals := map[string]float64{}
	require.NoError(t, Lifetimes(st, func(userID string, ls state.LifetimeState) error {
		users = append(users, userID)
		totals[userID] = ls.Total
		return nil
	}))
	assert.Equal(t, []string{"u1", "u2"}, users)
	assert.Equal(t, map[string]float64{"u1": 400, "u2": 50}, totals)
}
