package dmtp

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/property"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/transport"
)

func TestNewCoreRequiresTransport(t *testing.T) {
	_, err := NewCore()
	assert.Error(t, err)
}

func TestNewCoreWiresEverything(t *testing.T) {
	out := filepath.Join(t.TempDir(), "events.dmtp")
	core, err := NewCore(
		WithTransport(transport.NewFile(out)),
		WithIdentity("acct", "dev-1"),
		WithQueueDepth(32),
	)
	require.NoError(t, err)
	require.Len(t, core.Drivers, 1)
	assert.True(t, core.Drivers[0].Primary)

	account, err := core.Props.GetString(property.PropStateAccountID, "")
	require.NoError(t, err)
	assert.Equal(t, "acct", account)
	assert.NotNil(t, core.Loop)
	assert.NotNil(t, core.Acquisition)
}

func TestAccountingConfigReadsDefaults(t *testing.T) {
	props := property.New(property.DefaultDefs())
	cfg := AccountingConfig(props)
	assert.Equal(t, 8, cfg.TotalQuota)
	assert.Equal(t, 4, cfg.DuplexQuota)
	assert.Equal(t, 60, cfg.WindowMinutes)
	assert.Equal(t, 10, cfg.MaxDuplexEvents)
	assert.Equal(t, 2, cfg.MaxSimplexEvents)
	assert.Equal(t, int64(180), cfg.MinXmitRate)
}
