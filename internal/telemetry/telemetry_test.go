package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerObserver(t *testing.T) {
	before := testutil.ToFloat64(runsTotal)
	coalescedBefore := testutil.ToFloat64(submitsTotal.WithLabelValues("true"))

	var obs SchedulerObserver
	obs.Submitted("entry", false)
	obs.Submitted("entry", true)
	obs.Completed("entry", 15*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(runsTotal))
	assert.Equal(t, coalescedBefore+1, testutil.ToFloat64(submitsTotal.WithLabelValues("true")))
}

func TestSpansAndMetricsWithNoopProviders(t *testing.T) {
	ctx, span := StartRun(context.Background(), "file:///a/load.soar")
	require.NotNil(t, span)
	EndRun(ctx, span, 3, 1, time.Millisecond)

	ctx, span = StartRequest(context.Background(), "textDocument/hover")
	EndRequest(ctx, span, "textDocument/hover", time.Millisecond, errors.New("boom"))
	require.NoError(t, initMetrics())
}

func TestHandler(t *testing.T) {
	SchedulerObserver{}.Completed("entry", time.Millisecond)
	srv := httptest.NewServer(Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "soarls_scheduler_runs_total")
}
