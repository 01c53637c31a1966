package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookserver/internal/allowlist"
	"github.com/mattjoyce/hookserver/internal/pipeline"
)

func TestObserveVerdict(t *testing.T) {
	m := New()

	m.ObserveVerdict(pipeline.Verdict{Event: "push", Handled: true}, 5*time.Millisecond)
	m.ObserveVerdict(pipeline.Verdict{Event: "push", Handled: true}, 5*time.Millisecond)
	m.ObserveVerdict(pipeline.Verdict{Event: "watch"}, time.Millisecond)
	m.ObserveVerdict(pipeline.Verdict{Reject: &pipeline.RejectError{
		Kind:   pipeline.KindSignatureMismatch,
		Status: http.StatusBadRequest,
	}}, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("push", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("other", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("signature_mismatch", "400")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.PipelineDuration))
}

func TestObserveVerdictBoundsEventLabel(t *testing.T) {
	m := New()

	for _, event := range []string{"watch", "star", "x-\xff\xfe", strings.Repeat("e", 4096)} {
		require.NotPanics(t, func() {
			m.ObserveVerdict(pipeline.Verdict{Event: event}, time.Millisecond)
		})
	}
	require.NotPanics(t, func() {
		m.ObserveVerdict(pipeline.Verdict{Event: "bad\xc3\x28", Handled: true}, time.Millisecond)
	})

	assert.Equal(t, 2, testutil.CollectAndCount(m.DeliveriesTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("other", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("other", "true")))
}

func TestObserveRefresh(t *testing.T) {
	m := New()
	fetched := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	list := allowlist.New([]netip.Prefix{
		netip.MustParsePrefix("192.30.252.0/22"),
		netip.MustParsePrefix("185.199.108.0/22"),
	}, fetched, allowlist.OriginUpstream)

	m.ObserveRefresh(list, nil)
	m.ObserveRefresh(nil, errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AllowlistBlocks))
	assert.Equal(t, float64(fetched.Unix()), testutil.ToFloat64(m.AllowlistFetched))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetRegisteredHandlers(3)
	m.ObserveVerdict(pipeline.Verdict{Event: "push"}, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	for _, name := range []string{
		"hookserver_registered_handlers 3",
		"hookserver_deliveries_total",
		"hookserver_pipeline_duration_seconds_bucket",
	} {
		assert.True(t, strings.Contains(text, name), "missing %q in exposition", name)
	}
}
