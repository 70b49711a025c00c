package events_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"fulfillment/internal/adapters/out/events"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotifier struct{ mock.Mock }

func (m *MockNotifier) Publish(ctx context.Context, event ports.Event) error {
	return m.Called(ctx, event).Error(0)
}

func stageCompleted(t *testing.T) ports.Event {
	t.Helper()
	key, err := kernel.NewOrderKey("pardos", "o1")
	require.NoError(t, err)
	return ports.Event{
		Source:     ports.SourceStages,
		Type:       ports.EventStageCompleted,
		Key:        key,
		Payload:    map[string]any{"stage": "COOKING", "durationSeconds": int64(17)},
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 17, 0, time.UTC),
	}
}

func TestLogNotifier_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	n := events.NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Publish(t.Context(), stageCompleted(t)))

	out := buf.String()
	assert.Contains(t, out, `"type":"StageCompleted"`)
	assert.Contains(t, out, `"order":"o1"`)
	assert.Contains(t, out, `"durationSeconds":17`)
}

func TestMetricsNotifier_CountsPublishedEvents(t *testing.T) {
	m := metrics.New()
	m.Register(prometheus.NewRegistry())

	next := new(MockNotifier)
	next.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	n := events.NewMetricsNotifier(next, m)
	require.NoError(t, n.Publish(t.Context(), stageCompleted(t)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(ports.SourceStages, ports.EventStageCompleted)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
	next.AssertExpectations(t)
}

func TestMetricsNotifier_CountsFailures(t *testing.T) {
	m := metrics.New()
	next := new(MockNotifier)
	next.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	n := events.NewMetricsNotifier(next, m)
	assert.Error(t, n.Publish(t.Context(), stageCompleted(t)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventPublishFailures.WithLabelValues(ports.EventStageCompleted)))
}

func TestFanout_JoinsErrors(t *testing.T) {
	ok := new(MockNotifier)
	ok.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	failing := new(MockNotifier)
	failing.On("Publish", mock.Anything, mock.Anything).Return(errors.New("outbox down")).Once()

	err := events.Fanout{failing, ok}.Publish(t.Context(), stageCompleted(t))
	assert.ErrorContains(t, err, "outbox down")
	ok.AssertExpectations(t)
}
