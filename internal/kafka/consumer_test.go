package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"table-settlement/internal/logger"
	"table-settlement/internal/models"
)

type MockConsumerGroupSession struct {
	mock.Mock
}

func (m *MockConsumerGroupSession) Claims() map[string][]int32 {
	args := m.Called()
	return args.Get(0).(map[string][]int32)
}

func (m *MockConsumerGroupSession) MemberID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConsumerGroupSession) GenerationID() int32 {
	args := m.Called()
	return int32(args.Int(0))
}

func (m *MockConsumerGroupSession) MarkOffset(topic string, partition int32, offset int64, metadata string) {
	m.Called(topic, partition, offset, metadata)
}

func (m *MockConsumerGroupSession) Commit() {
	m.Called()
}

func (m *MockConsumerGroupSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {
	m.Called(topic, partition, offset, metadata)
}

func (m *MockConsumerGroupSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	m.Called(msg, metadata)
}

func (m *MockConsumerGroupSession) Context() context.Context {
	args := m.Called()
	return args.Get(0).(context.Context)
}

type MockConsumerGroupClaim struct {
	mock.Mock
}

func (m *MockConsumerGroupClaim) Topic() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConsumerGroupClaim) Partition() int32 {
	args := m.Called()
	return int32(args.Int(0))
}

func (m *MockConsumerGroupClaim) InitialOffset() int64 {
	args := m.Called()
	return int64(args.Int(0))
}

func (m *MockConsumerGroupClaim) HighWaterMarkOffset() int64 {
	args := m.Called()
	return int64(args.Int(0))
}

func (m *MockConsumerGroupClaim) Messages() <-chan *sarama.ConsumerMessage {
	args := m.Called()
	return args.Get(0).(chan *sarama.ConsumerMessage)
}

func newClaim(msgs ...*sarama.ConsumerMessage) *MockConsumerGroupClaim {
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for _, msg := range msgs {
		ch <- msg
	}
	close(ch)
	claim := &MockConsumerGroupClaim{}
	claim.On("Messages").Return(ch)
	return claim
}

func transferMessage(t *testing.T, offset int64, n models.BankTransferNotification) *sarama.ConsumerMessage {
	data, err := json.Marshal(n)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "bank-webhooks", Offset: offset, Value: data}
}

func TestTransferHandlerMarksProcessedMessages(t *testing.T) {
	msg := transferMessage(t, 0, models.BankTransferNotification{
		ID:             42,
		TransferType:   models.TransferIn,
		TransferAmount: 110000,
		Content:        "TX1234567890 table 5",
	})

	session := &MockConsumerGroupSession{}
	session.On("Context").Return(context.Background())
	session.On("MarkMessage", msg, "").Return()

	var got *models.BankTransferNotification
	h := NewTransferConsumerHandler(func(ctx context.Context, n *models.BankTransferNotification) error {
		got = n
		return nil
	}, logger.NewDiscard())

	require.NoError(t, h.ConsumeClaim(session, newClaim(msg)))

	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, int64(110000), got.TransferAmount)
	session.AssertCalled(t, "MarkMessage", msg, "")
}

func TestTransferHandlerLeavesFailedMessagesUnmarked(t *testing.T) {
	msg := transferMessage(t, 1, models.BankTransferNotification{ID: 7, TransferType: models.TransferIn})

	session := &MockConsumerGroupSession{}
	session.On("Context").Return(context.Background())

	dbErr := errors.New("database unavailable")
	h := NewTransferConsumerHandler(func(ctx context.Context, n *models.BankTransferNotification) error {
		return dbErr
	}, logger.NewDiscard())

	err := h.ConsumeClaim(session, newClaim(msg))
	assert.ErrorIs(t, err, dbErr)
	session.AssertNotCalled(t, "MarkMessage", mock.Anything, mock.Anything)
}

func TestTransferHandlerStopsAtFirstFailure(t *testing.T) {
	first := transferMessage(t, 10, models.BankTransferNotification{ID: 1, TransferType: models.TransferIn})
	second := transferMessage(t, 11, models.BankTransferNotification{ID: 2, TransferType: models.TransferIn})

	session := &MockConsumerGroupSession{}
	session.On("Context").Return(context.Background())
	session.On("MarkMessage", mock.Anything, "").Return()

	var handled []int64
	h := NewTransferConsumerHandler(func(ctx context.Context, n *models.BankTransferNotification) error {
		handled = append(handled, n.ID)
		if n.ID == 1 {
			return errors.New("lock wait timeout")
		}
		return nil
	}, logger.NewDiscard())

	err := h.ConsumeClaim(session, newClaim(first, second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 10")

	assert.Equal(t, []int64{1}, handled)
	session.AssertNotCalled(t, "MarkMessage", first, "")
	session.AssertNotCalled(t, "MarkMessage", second, "")
}

func TestTransferHandlerSkipsMalformedMessages(t *testing.T) {
	bad := &sarama.ConsumerMessage{Topic: "bank-webhooks", Offset: 2, Value: []byte("{not json")}

	session := &MockConsumerGroupSession{}
	session.On("MarkMessage", bad, "").Return()

	called := false
	h := NewTransferConsumerHandler(func(ctx context.Context, n *models.BankTransferNotification) error {
		called = true
		return nil
	}, logger.NewDiscard())

	require.NoError(t, h.ConsumeClaim(session, newClaim(bad)))
	assert.False(t, called)
	session.AssertCalled(t, "MarkMessage", bad, "")
}
