package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisabledCollectorMethodsAreNoops(t *testing.T) {
	c := New(Config{Enabled: false})
	require.NotPanics(t, func() {
		c.RecordInsert("ok")
		c.RecordDelete("ok")
		c.RecordDedup(true)
		c.RecordReclaimEnqueue()
		c.RecordReclaimDrain("deleted")
		c.RecordStoreRetry()
		c.RecordStoreFailure()
		c.ObserveOperation("insert", time.Millisecond)
		c.SetFilesystemGauges("fs1", 1, 10)
	})
}

func TestEnabledCollectorRecordsWithoutPanicking(t *testing.T) {
	c := New(DefaultConfig())
	require.NotPanics(t, func() {
		c.RecordInsert("ok")
		c.RecordDedup(false)
		c.SetFilesystemGauges("fs1", 3, 300)
		c.ObserveOperation("delete", 2*time.Millisecond)
	})
}
