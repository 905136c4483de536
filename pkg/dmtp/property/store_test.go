package property

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.conf")

	s := New(DefaultDefs())
	require.NoError(t, s.SetString(PropCommHost, "example.net"))
	require.NoError(t, s.Save(path, false))

	// Fresh store, load the file back.
	s2 := New(DefaultDefs())
	require.NoError(t, s2.Load(path))
	host, err := s2.GetString(PropCommHost, "")
	require.NoError(t, err)
	assert.Equal(t, "example.net", host)
	assert.True(t, s2.IsNonDefault(PropCommHost))
	assert.False(t, s2.IsChanged(PropCommHost))
}

func TestSaveAllWritesUnchangedDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.conf")
	s := New(DefaultDefs())
	require.NoError(t, s.Save(path, true))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "com.port=31000")
}

func TestLoadIgnoresCommentsAndUnterminatedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.conf")
	content := "# a comment\n\ncom.host=a.example\ncom.port=9999" // no trailing newline
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := New(DefaultDefs())
	require.NoError(t, s.Load(path))
	host, _ := s.GetString(PropCommHost, "")
	assert.Equal(t, "a.example", host)
	port, _ := s.GetUint32At(PropCommPort, 0, 0)
	assert.Equal(t, uint32(31000), port, "unterminated line must be dropped")
}

func TestLoadResolvesHexKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.conf")
	require.NoError(t, os.WriteFile(path, []byte("0x1020=h.example\n"), 0o644))
	s := New(DefaultDefs())
	require.NoError(t, s.Load(path))
	host, _ := s.GetString(PropCommHost, "")
	assert.Equal(t, "h.example", host)
}

func TestDecimalShiftRoundTripsDoubles(t *testing.T) {
	s := New(DefaultDefs())
	require.NoError(t, s.SetDoubleAt(PropMotionStart, 0, 12.3))
	v, err := s.GetDoubleAt(PropMotionStart, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 12.3, v, 1e-9)

	// Stored as round(value*10): 12.34 quantizes to 12.3.
	require.NoError(t, s.SetDoubleAt(PropMotionStart, 0, 12.34))
	v, _ = s.GetDoubleAt(PropMotionStart, 0, 0)
	assert.InDelta(t, 12.3, v, 1e-9)
}

func TestReadOnlyAndWriteOnlyEnforced(t *testing.T) {
	s := New(DefaultDefs())

	err := s.SetUint32At(PropStateDevDiagnostic, 0, 1)
	require.Error(t, err)
	pe, ok := AsPropertyError(err)
	require.True(t, ok)
	assert.Equal(t, ErrReadOnly, pe.Kind)

	_, err = s.GetString(PropGeofAdmin, "")
	require.Error(t, err)
	pe, ok = AsPropertyError(err)
	require.True(t, ok)
	assert.Equal(t, ErrWriteOnly, pe.Kind)
}

func TestInvalidKey(t *testing.T) {
	s := New(DefaultDefs())
	_, err := s.GetUint32At(Key(0xEEEE), 0, 7)
	require.Error(t, err)
	assert.True(t, IsInvalidKey(err))
}

func TestCommandDispatch(t *testing.T) {
	s := New(DefaultDefs())
	var got []byte
	s.SetCommand(PropGeofAdmin, func(args []byte) wire.CommandError {
		got = append([]byte(nil), args...)
		return wire.CommandErrorOK
	})
	require.NoError(t, s.SetFromString(PropGeofAdmin, "xyz"))
	assert.Equal(t, []byte("xyz"), got)

	s.SetCommand(PropGeofAdmin, func([]byte) wire.CommandError {
		return wire.CommandErrorExecution
	})
	err := s.SetFromString(PropGeofAdmin, "xyz")
	require.Error(t, err)
	pe, ok := AsPropertyError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCommandError, pe.Kind)
	assert.Equal(t, wire.CommandErrorExecution, pe.SubCode)
}

func TestNotifyHooksFire(t *testing.T) {
	s := New(DefaultDefs())
	var calls []NotifyMode
	s.SetNotify(PropCommHost, func(key Key, mode NotifyMode) {
		calls = append(calls, mode)
	})
	require.NoError(t, s.SetString(PropCommHost, "x"))
	_, _ = s.GetString(PropCommHost, "")
	assert.Equal(t, []NotifyMode{NotifySet, NotifyGet}, calls)
}

func TestCombinedCode(t *testing.T) {
	assert.Zero(t, CombinedCode(nil))
	err := newCommandErr(PropGeofAdmin, wire.CommandErrorBadValue)
	code := CombinedCode(err)
	assert.Equal(t, uint16(ErrCommandError+1), code>>12)
	assert.Equal(t, uint16(wire.CommandErrorBadValue)&0x0FFF, code&0x0FFF)
}

func TestClearChanged(t *testing.T) {
	s := New(DefaultDefs())
	require.NoError(t, s.SetUint32At(PropCommPort, 0, 4000))
	assert.True(t, s.IsChanged(PropCommPort))
	s.ClearChanged(PropCommPort)
	assert.False(t, s.IsChanged(PropCommPort))
	assert.True(t, s.IsNonDefault(PropCommPort))
}
