package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MegaGrindStone/streamchat/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := metrics.NewSessions(reg)

	s.SessionStarted("chunked")
	s.SessionStarted("chunked")
	s.DeltaReceived("chunked")
	s.DeltaReceived("chunked")
	s.DeltaReceived("chunked")
	s.SessionFinished("chunked", "superseded", 50*time.Millisecond)
	s.SessionFinished("chunked", "stop", 2*time.Second)

	expected := `
# HELP streamchat_sessions_finished_total Number of sessions closed, by the reason they ended.
# TYPE streamchat_sessions_finished_total counter
streamchat_sessions_finished_total{reason="stop",strategy="chunked"} 1
streamchat_sessions_finished_total{reason="superseded",strategy="chunked"} 1
# HELP streamchat_sessions_started_total Number of streaming sessions opened.
# TYPE streamchat_sessions_started_total counter
streamchat_sessions_started_total{strategy="chunked"} 2
# HELP streamchat_deltas_total Number of text deltas applied to the transcript.
# TYPE streamchat_deltas_total counter
streamchat_deltas_total{strategy="chunked"} 3
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"streamchat_sessions_finished_total",
		"streamchat_sessions_started_total",
		"streamchat_deltas_total",
	)
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "streamchat_session_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSessionsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewSessions(reg)

	assert.Panics(t, func() { metrics.NewSessions(reg) })
}
