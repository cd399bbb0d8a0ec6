package logs

import (
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevelAppliesToSubsystems(t *testing.T) {
	defer func() { _ = SetLevel("info") }()

	l := NewSubsystem("TEST")
	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, btclog.LevelDebug, l.Level())
	assert.Equal(t, "DBG", Level())

	// 之后创建的子系统继承当前级别
	later := NewSubsystem("TST2")
	assert.Equal(t, btclog.LevelDebug, later.Level())
	assert.Same(t, l, NewSubsystem("TEST"))
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	assert.Error(t, SetLevel("verbose"))
}
