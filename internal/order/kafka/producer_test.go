package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/models"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "servicetracker.order.status_changed", Topic("servicetracker", models.OrderEventStatusChanged))
	assert.Equal(t, []string{
		"shop.order.created",
		"shop.order.status_changed",
		"shop.order.updated",
		"shop.order.archived",
		"shop.order.deleted",
	}, Topics("shop"))
}

func TestPublishOrderEvent(t *testing.T) {
	w := new(MockWriter)
	var sent []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil).Once()

	p := &Producer{Writer: w, TopicPrefix: "servicetracker", Logger: logger.NewWithWriter(&bytes.Buffer{})}
	order := models.ServiceOrder{ID: "432", Status: models.StatusReady}

	require.NoError(t, p.PublishOrderEvent(context.Background(), models.NewOrderEvent(models.OrderEventStatusChanged, order, "done")))
	w.AssertExpectations(t)

	require.Len(t, sent, 1)
	assert.Equal(t, "servicetracker.order.status_changed", sent[0].Topic)
	assert.Equal(t, []byte("432"), sent[0].Key)

	var decoded models.OrderEvent
	require.NoError(t, json.Unmarshal(sent[0].Value, &decoded))
	assert.Equal(t, models.OrderEventStatusChanged, decoded.Type)
	assert.Equal(t, "done", decoded.Notes)
	assert.Equal(t, models.StatusReady, decoded.Status)
}

func TestPublishOrderEvent_WriterError(t *testing.T) {
	w := new(MockWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available"))

	p := &Producer{Writer: w, TopicPrefix: "servicetracker", Logger: logger.NewWithWriter(&bytes.Buffer{})}
	err := p.PublishOrderEvent(context.Background(), models.OrderEvent{Type: models.OrderEventCreated, OrderID: "101"})
	assert.ErrorContains(t, err, "servicetracker.order.created")
}
