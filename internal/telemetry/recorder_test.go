package telemetry

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveAggregation("funnel", time.Millisecond)
		r.AggregationFailed("funnel", "upstream")
		r.UnknownStageCode("q")
		r.NegativeLatency("Acme")
		r.RecordsScanned("funnel", 3)
		r.ObserveHTTP(http.MethodGet, "/", 200, time.Millisecond)
		r.IngestRecords("leads", "accepted", 2)
		r.StageEvent("applied")
	})
	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()
	r.UnknownStageCode("q")
	r.UnknownStageCode("q")
	r.NegativeLatency("Acme")
	r.IngestRecords("leads", "rejected", 0)
	r.IngestRecords("leads", "accepted", 5)
	r.ObserveHTTP(http.MethodGet, "/api/v1/leads/funnel", 502, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.unknownStageCodes.WithLabelValues("q")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.negativeLatency.WithLabelValues("Acme")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.ingestRecords.WithLabelValues("leads", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues(http.MethodGet, "/api/v1/leads/funnel", "5xx")))
}

func TestUnknownStageCodeLabelsAreBounded(t *testing.T) {
	r := NewRecorder()
	r.UnknownStageCode("abcdefghijklmnopqrstuvwxyz")
	r.UnknownStageCode("")
	for i := 0; i < MaxStageCodeLabels+5; i++ {
		r.UnknownStageCode(fmt.Sprintf("c%d", i))
	}

	assert.Equal(t, MaxStageCodeLabels+1, testutil.CollectAndCount(r.unknownStageCodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.unknownStageCodes.WithLabelValues("abcdefghijklmnop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.unknownStageCodes.WithLabelValues("empty")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.unknownStageCodes.WithLabelValues(OtherStageCode)))

	// A code that already owns a label keeps it after the cap is reached.
	r.UnknownStageCode("c0")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.unknownStageCodes.WithLabelValues("c0")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	r := NewRecorder()
	r.StageEvent("ignored")
	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `leadfunnel_stage_events_total{outcome="ignored"} 1`)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
