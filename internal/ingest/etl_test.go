package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AngelCh415/lead-funnel/internal/config"
	"github.com/AngelCh415/lead-funnel/internal/filter"
	"github.com/AngelCh415/lead-funnel/internal/models"
	"github.com/AngelCh415/lead-funnel/internal/store"
	"github.com/AngelCh415/lead-funnel/internal/telemetry"
)

const leadsFeed = `[
  {"applicationId":"A1","bank":"Acme","cardName":"Gold","applicationDate":"10-01-2025","stageCode":"Z","applicationQuality":"good","totalCommission":"150.25"},
  {"applicationId":"A2","bank":"Acme","cardName":"Gold","applicationDate":"2025-01-12T08:00:00Z","stageCode":"r","rejectionReason":"Score"},
  {"applicationId":"","bank":"Acme","applicationDate":"2025-01-12"},
  {"applicationId":"A3","applicationDate":"2025-01-12","applicationQuality":"stellar"},
  {"applicationId":"A1","bank":"Acme","cardName":"Gold","applicationDate":"2025-01-10","stageCode":"z","applicationQuality":"good","totalCommission":"175"}
]`

const clicksFeed = `[
  {"clickId":"k1","clickedOn":"2025-01-09"},
  {"clickId":"k2","clickedOn":"09/01/2025","clean":false},
  {"clickId":"k3","clickedOn":""}
]`

type funnelFunc func(ctx context.Context, spec filter.Spec, includeClicks bool) (*models.Funnel, error)

func (f funnelFunc) ComputeFunnel(ctx context.Context, spec filter.Spec, includeClicks bool) (*models.Funnel, error) {
	return f(ctx, spec, includeClicks)
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/leads", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(leadsFeed)) })
	mux.HandleFunc("/clicks", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(clicksFeed)) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestETLRun(t *testing.T) {
	srv := feedServer(t)
	st := store.NewMemoryStore()
	etl := NewETL(NewHTTPClient(time.Second), st, nil, zap.NewNop(), telemetry.NewRecorder(), config.Feeds{
		LeadsURL:  srv.URL + "/leads",
		ClicksURL: srv.URL + "/clicks",
	}).WithBackoff(fastBackoff)

	sum, err := etl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{LeadsAccepted: 2, LeadsRejected: 2, ClicksAccepted: 2, ClicksRejected: 1}, sum)

	recs := st.All()
	require.Len(t, recs, 2)
	byID := map[string]models.LeadRecord{}
	for _, r := range recs {
		byID[r.ApplicationID] = r
	}
	a1 := byID["A1"]
	assert.Equal(t, "2025-01-10", a1.ApplicationDate)
	assert.Equal(t, "2025-01", a1.ApplicationMonth)
	assert.Equal(t, "175", a1.TotalCommission.String(), "last row for an id wins")
	assert.Equal(t, "Score", byID["A2"].RejectionReason)
	assert.Equal(t, "2025-01-12", byID["A2"].ApplicationDate)

	n, err := st.CountCleanClicks(context.Background(), filter.New(filter.Months("2025-01", "2025-01")).Window())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestETLRunFeedDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	etl := NewETL(NewHTTPClient(time.Second), store.NewMemoryStore(), nil, nil, nil, config.Feeds{LeadsURL: srv.URL}).
		WithBackoff(fastBackoff)
	_, err := etl.Run(context.Background())
	assert.ErrorIs(t, err, models.ErrUpstreamFetch)
}

func TestETLRunNoFeeds(t *testing.T) {
	etl := NewETL(NewHTTPClient(time.Second), store.NewMemoryStore(), nil, nil, nil, config.Feeds{})
	_, err := etl.Run(context.Background())
	assert.ErrorIs(t, err, models.ErrUpstreamFetch)
}

func TestExportDaySignsPayload(t *testing.T) {
	const secret = "s3cret"
	var gotSig string
	var gotBody []byte
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer sink.Close()

	var gotSpec filter.Spec
	funnel := funnelFunc(func(_ context.Context, spec filter.Spec, includeClicks bool) (*models.Funnel, error) {
		gotSpec = spec
		assert.True(t, includeClicks)
		return &models.Funnel{Clicks: 4, Leads: 2, Stages: models.StageCounts{Approved: 2}}, nil
	})

	etl := NewETL(NewHTTPClient(time.Second), store.NewMemoryStore(), funnel, nil, nil,
		config.Feeds{SinkURL: sink.URL, SinkSecret: secret})
	n, err := etl.ExportDay(context.Background(), time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d, ok := gotSpec.DayRange()
	require.True(t, ok)
	assert.Equal(t, filter.DayRange{From: "2025-01-10", To: "2025-01-10"}, d)

	assert.Equal(t, Sign(secret, gotBody), gotSig)
	var snap daySnapshot
	require.NoError(t, json.Unmarshal(gotBody, &snap))
	assert.Equal(t, "2025-01-10", snap.Date)
	assert.Equal(t, 2, snap.Funnel.Stages.Approved)
}

func TestExportDaySkipsEmptyDay(t *testing.T) {
	funnel := funnelFunc(func(context.Context, filter.Spec, bool) (*models.Funnel, error) {
		return &models.Funnel{}, nil
	})
	etl := NewETL(NewHTTPClient(time.Second), nil, funnel, nil, nil, config.Feeds{SinkURL: "http://unused.invalid", SinkSecret: "x"})
	n, err := etl.ExportDay(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExportDayRequiresSink(t *testing.T) {
	etl := NewETL(NewHTTPClient(time.Second), nil, nil, nil, nil, config.Feeds{})
	_, err := etl.ExportDay(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrSinkNotConfigured)
}

func TestSignKnownVector(t *testing.T) {
	// RFC 4231 test case 2
	assert.Equal(t,
		"5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		Sign("Jefe", []byte("what do ya want for nothing?")))
}
