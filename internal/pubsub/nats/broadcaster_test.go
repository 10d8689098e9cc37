package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tokentable/internal/config"
	"tokentable/internal/domain"
	"tokentable/internal/logger"
	"tokentable/internal/pubsub"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var _ pubsub.Broadcaster = (*Client)(nil)

// MockLogger implements logger.Logger for tests
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Debugf(msg string, args ...interface{}) {
	m.Called(msg, args)
}

func (m *MockLogger) Info(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Infof(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Warnf(msg string, args ...interface{}) {
	m.Called(msg, args)
}

func (m *MockLogger) Error(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Errorf(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Fatal(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Fatalf(msg string, args ...interface{}) {
	m.Called(msg, args)
}

func (m *MockLogger) Panic(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Panicf(msg string, args ...interface{}) {
	m.Called(msg, args)
}

func (m *MockLogger) WithField(key string, value interface{}) logger.Logger {
	m.Called(key, value)
	return m
}

func (m *MockLogger) WithFields(fields map[string]interface{}) logger.Logger {
	m.Called(fields)
	return m
}

// ------------------------ tests not real connection ------------------------
func TestConnect_NilConfig(t *testing.T) {
	mockLogger := new(MockLogger)

	client, err := Connect(nil, mockLogger)

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, "config is required", err.Error())
	mockLogger.AssertNotCalled(t, "Infof", mock.Anything, mock.Anything)
}

func TestConnect_EmptyURL(t *testing.T) {
	mockLogger := new(MockLogger)

	client, err := Connect(&config.NATSConfig{}, mockLogger)

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, "nats url is required", err.Error())
	mockLogger.AssertNotCalled(t, "Infof", mock.Anything, mock.Anything)
}

func TestNilConnection(t *testing.T) {
	client := &Client{nc: nil, log: new(MockLogger), prefix: "tokens"}

	assert.False(t, client.Ready())
	assert.Equal(t, nats.DISCONNECTED, client.Status())
	assert.Error(t, client.Health(context.Background()))
	assert.Error(t, client.Publish(context.Background(), pubsub.SubjectFeed, "x"))
	assert.NoError(t, client.Close())
}

// ------------------------ tests in-memory nats connection ------------------------
func runTestWithInMemoryNATS(t *testing.T, testFunc func(*testing.T, *server.Server, string)) {
	t.Helper()

	// run in-memory NATS server
	opts := natsserver.DefaultTestOptions
	opts.Port = -1 // random port
	s := natsserver.RunServer(&opts)
	defer s.Shutdown()

	testFunc(t, s, s.ClientURL())
}

func TestConnect_Success(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		mockLogger := new(MockLogger)
		mockLogger.On("Infof", "Connected to NATS successfully, url=%s", mock.Anything).Once()

		client, err := Connect(&config.NATSConfig{URL: url}, mockLogger)

		require.NoError(t, err)
		require.NotNil(t, client)
		assert.True(t, client.Ready())
		assert.Equal(t, nats.CONNECTED, client.Status())
		assert.NoError(t, client.Health(context.Background()))
		assert.Equal(t, "tokens.view", client.Subject(pubsub.SubjectView))

		mockLogger.AssertExpectations(t)

		// cleanup not use client.Close() because that avoid the unexpected call Infof
		client.nc.Close()
	})
}

func TestPublish_DeliversJSON(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client, err := Connect(&config.NATSConfig{URL: url, BroadcastPrefix: "demo"}, logger.Nop())
		require.NoError(t, err)
		defer client.Close()

		sub, err := nats.Connect(url)
		require.NoError(t, err)
		defer sub.Close()

		msgs := make(chan *nats.Msg, 1)
		_, err = sub.ChanSubscribe("demo.feed", msgs)
		require.NoError(t, err)
		require.NoError(t, sub.Flush())

		price := 1.25
		sent := domain.FeedMessage{
			Type: domain.FeedPriceUpdate,
			Data: domain.PricePatch{ID: "token-migrated-1", Price: &price},
			TS:   time.UnixMilli(1700000000000).UTC(),
		}
		require.NoError(t, client.Publish(context.Background(), pubsub.SubjectFeed, sent))

		select {
		case m := <-msgs:
			var got domain.FeedMessage
			require.NoError(t, json.Unmarshal(m.Data, &got))
			assert.Equal(t, sent.Type, got.Type)
			assert.Equal(t, sent.Data.ID, got.Data.ID)
			require.NotNil(t, got.Data.Price)
			assert.Equal(t, 1.25, *got.Data.Price)
		case <-time.After(2 * time.Second):
			t.Fatal("message not delivered")
		}
	})
}

func TestPublish_CancelledContext(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client, err := Connect(&config.NATSConfig{URL: url}, logger.Nop())
		require.NoError(t, err)
		defer client.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, client.Publish(ctx, pubsub.SubjectView, 1), context.Canceled)
	})
}

func TestPublish_UnencodablePayload(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client, err := Connect(&config.NATSConfig{URL: url}, logger.Nop())
		require.NoError(t, err)
		defer client.Close()

		assert.Error(t, client.Publish(context.Background(), pubsub.SubjectView, make(chan int)))
	})
}

func TestClose_Idempotent(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		mockLogger := new(MockLogger)
		mockLogger.On("Infof", "Connected to NATS successfully, url=%s", mock.Anything).Once()
		mockLogger.On("Infof", "NATS connection closed gracefully", mock.Anything).Once()

		client, err := Connect(&config.NATSConfig{URL: url}, mockLogger)
		require.NoError(t, err)

		assert.NoError(t, client.Close())
		assert.NoError(t, client.Close())
		assert.NoError(t, client.Close())

		assert.False(t, client.Ready())
		assert.Equal(t, nats.CLOSED, client.Status())
		assert.Error(t, client.Health(context.Background()))

		mockLogger.AssertNumberOfCalls(t, "Infof", 2) // connect + close
	})
}
