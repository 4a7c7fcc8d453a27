package verify

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingIsSafeAcrossInit(t *testing.T) {
	// Recording before registration is a silent no-op.
	recordCacheHit()
	recordVerification("valid")
	assert.Nil(t, metrics.Load())

	// Verification goroutines may already be recording while serve-mode
	// startup registers the counters.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				recordCacheHit()
				recordCacheMiss()
				recordEviction("ttl")
				recordStoreQuery()
				recordVerification("valid")
			}
		}()
	}
	InitMetrics()
	wg.Wait()

	m := metrics.Load()
	require.NotNil(t, m)

	// Post-registration increments land on the counters.
	before := testutil.ToFloat64(m.cacheHitsTotal)
	recordCacheHit()
	assert.Equal(t, before+1, testutil.ToFloat64(m.cacheHitsTotal))

	// Registration is idempotent.
	InitMetrics()
	assert.Same(t, m, metrics.Load())
}
