package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordInbound(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordInbound("send_message", "success")
	m.RecordInbound("send_message", "success")
	m.RecordInbound("answer_video_call", "ignored")

	expected := `
		# HELP chat_inbound_events_total Socket events received, by event and outcome
		# TYPE chat_inbound_events_total counter
		chat_inbound_events_total{event="answer_video_call",outcome="ignored"} 1
		chat_inbound_events_total{event="send_message",outcome="success"} 2
	`
	require.NoError(t, testutil.CollectAndCompare(m.InboundEvents, strings.NewReader(expected)))
}

func TestMetrics_Gauges(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetConnections(3)
	m.SetOnlineUsers(2)
	m.SetLiveCalls(1)
	m.RecordDelivery("new_message")
	m.RecordDroppedClient()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OnlineUsers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("new_message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedClients))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetConnections(1)
		m.RecordInbound("typing", "success")
		m.RecordDelivery("typing_status")
		m.RecordDroppedClient()
	})
}
