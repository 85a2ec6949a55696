package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	require.NotNil(t, collectorRunsTotal)
	require.NotNil(t, collectorItemsTotal)
	require.NotNil(t, collectorActiveWorkers)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveRun(t *testing.T) {
	Init()
	ObserveRun("run-src", "succeeded", 2*time.Second)
	ObserveRun("run-src", "succeeded", 0)
	require.InDelta(t, 2, testutil.ToFloat64(collectorRunsTotal.WithLabelValues("run-src", "succeeded")), 0.001)
}

func TestObserveItemsIgnoresNonPositive(t *testing.T) {
	ObserveItems("items-src", "insert", 3)
	ObserveItems("items-src", "insert", 0)
	ObserveItems("items-src", "insert", -1)
	require.InDelta(t, 3, testutil.ToFloat64(collectorItemsTotal.WithLabelValues("items-src", "insert")), 0.001)
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(collectorActiveWorkers)
	IncActiveWorkers()
	require.InDelta(t, before+1, testutil.ToFloat64(collectorActiveWorkers), 0.001)
	DecActiveWorkers()
	require.InDelta(t, before, testutil.ToFloat64(collectorActiveWorkers), 0.001)
}

func TestCountersBySource(t *testing.T) {
	ObserveLockContention("ctr-src")
	ObserveDroppedTrigger("ctr-src")
	ObservePublishFailure("ctr-src")
	ObserveAdapterTransportError("ctr-src")
	ObserveSkippedRows("ctr-src", 2)
	ObservePage("ctr-src", "ok")
	ObserveReconciled(0)

	require.InDelta(t, 1, testutil.ToFloat64(collectorLockContentionTotal.WithLabelValues("ctr-src")), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(collectorDroppedTriggersTotal.WithLabelValues("ctr-src")), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(collectorPublishFailuresTotal.WithLabelValues("ctr-src")), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(collectorAdapterTransportTotal.WithLabelValues("ctr-src")), 0.001)
	require.InDelta(t, 2, testutil.ToFloat64(collectorSkippedRowsTotal.WithLabelValues("ctr-src")), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(collectorPagesTotal.WithLabelValues("ctr-src", "ok")), 0.001)
}
