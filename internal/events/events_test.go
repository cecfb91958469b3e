package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"propvest/pkg/config"
	"propvest/pkg/logger"
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

func TestKafkaPublisher_KeysByWallet(t *testing.T) {
	w := new(MockWriter)
	p := NewKafkaPublisher(w, time.Second, logger.NewNop())

	evt := New(TypeWalletMutated, 42, map[string]string{"balance": "15000"})

	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 {
			return false
		}
		var decoded Event
		if err := json.Unmarshal(msgs[0].Value, &decoded); err != nil {
			return false
		}
		return string(msgs[0].Key) == "42" && decoded.Type == TypeWalletMutated
	})).Return(nil).Once()

	require.NoError(t, p.Publish(context.Background(), evt))
	w.AssertExpectations(t)
}

func TestKafkaPublisher_Error(t *testing.T) {
	w := new(MockWriter)
	p := NewKafkaPublisher(w, time.Second, logger.NewNop())
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := p.Publish(context.Background(), New(TypeProfitDistributed, 1, nil))
	assert.EqualError(t, err, "broker down")
}

func TestKafkaPublisher_BoundsWriteWithDeadline(t *testing.T) {
	w := new(MockWriter)
	p := NewKafkaPublisher(w, 50*time.Millisecond, logger.NewNop())

	w.On("WriteMessages", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 50*time.Millisecond
	}), mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(context.DeadlineExceeded)

	start := time.Now()
	err := p.Publish(context.Background(), New(TypeWalletMutated, 7, nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	w.AssertExpectations(t)
}

func TestNewKafkaWriter_LimitsRetries(t *testing.T) {
	w := NewKafkaWriter(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "propvest.ledger"})
	assert.Equal(t, 3, w.MaxAttempts)
	assert.Equal(t, defaultPublishTimeout, w.WriteTimeout)
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, evt Event) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestMulti_PublishesToAll(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("b failed")}

	err := Multi{a, b, Nop{}}.Publish(context.Background(), New(TypeTransactionChanged, 7, nil))

	assert.ErrorContains(t, err, "b failed")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestHub_BroadcastsToClients(t *testing.T) {
	hub := NewHub(logger.NewNop(), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, 1)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), New(TypeProfitDistributed, 9, map[string]int{"profit_id": 3})))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, TypeProfitDistributed, got.Type)
	assert.Equal(t, "9", got.Key)

	hub.Close()
	assert.Equal(t, 0, hub.Count())
}
