package accounting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnderTotalQuotaExpiresWithWindow(t *testing.T) {
	a := New(Config{
		TotalQuota:       4,
		DuplexQuota:      2,
		WindowMinutes:    60,
		MaxSimplexEvents: 1,
		Debug:            true,
	})
	base := int64(1_700_000_000)

	for i := 0; i < 4; i++ {
		require.True(t, a.Simplex.Mark(base+int64(i)*60))
	}
	assert.False(t, a.UnderTotalQuota(base+3*60))

	// After 30 minutes the oldest bucket clears and quota frees up.
	assert.True(t, a.UnderTotalQuota(base+3*60+31*60))
}

func TestSupportsDuplexAndSimplex(t *testing.T) {
	a := New(Config{TotalQuota: 10, DuplexQuota: 4, MaxDuplexEvents: 8, MaxSimplexEvents: 4, WindowMinutes: 60})
	assert.True(t, a.SupportsDuplex())
	assert.True(t, a.SupportsSimplex())

	b := New(Config{TotalQuota: 4, DuplexQuota: 4, MaxDuplexEvents: 8, MaxSimplexEvents: 4, WindowMinutes: 60})
	assert.False(t, b.SupportsSimplex())
}
