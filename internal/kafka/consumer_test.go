package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/models"
)

type fakeReader struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		return kafka.Message{}, f.err
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func eventMessage(t *testing.T, ev models.OrderEvent) kafka.Message {
	t.Helper()
	value, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Topic: "servicetracker.order." + string(ev.Type), Key: []byte(ev.OrderID), Value: value}
}

func TestConsumer_DeliversEventsAndSkipsGarbage(t *testing.T) {
	reader := &fakeReader{
		msgs: []kafka.Message{
			eventMessage(t, models.OrderEvent{EventID: "e1", Type: models.OrderEventCreated, OrderID: "101"}),
			{Topic: "servicetracker.order.created", Value: []byte("not json")},
			eventMessage(t, models.OrderEvent{EventID: "e2", Type: models.OrderEventArchived, OrderID: "101"}),
		},
		err: errors.New("broker gone"),
	}
	var logs bytes.Buffer
	c := NewConsumerWithReader(reader, logger.NewWithWriter(&logs))

	var got []string
	err := c.Start(context.Background(), func(ev models.OrderEvent) {
		got = append(got, ev.EventID)
	})

	assert.ErrorContains(t, err, "broker gone")
	assert.Equal(t, []string{"e1", "e2"}, got)
	assert.Contains(t, logs.String(), "undecodable")

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConsumerWithReader(&fakeReader{err: context.Canceled}, logger.NewWithWriter(&bytes.Buffer{}))
	assert.NoError(t, c.Start(ctx, func(models.OrderEvent) {}))
}
