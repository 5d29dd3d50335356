package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilehub/internal/platform/kafka/producer"
	"profilehub/internal/profile/models"
)

type fakeProducer struct {
	failures int
	err      error
	calls    int
	last     *producer.Message
}

func (f *fakeProducer) Produce(_ context.Context, msg *producer.Message) error {
	f.calls++
	f.last = msg
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func TestNew(t *testing.T) {
	_, err := New(&fakeProducer{}, "")
	assert.Error(t, err)

	_, err = New(nil, "profile-events")
	assert.Error(t, err)
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	brokerDown := errors.New("broker unavailable")

	t.Run("sets key and headers", func(t *testing.T) {
		fake := &fakeProducer{}
		pub, err := New(fake, "profile-events")
		require.NoError(t, err)

		require.NoError(t, pub.Publish(ctx, []byte(`{"userId":"u1"}`), models.EventProfileCreate, "u1"))

		require.NotNil(t, fake.last)
		assert.Equal(t, "profile-events", fake.last.Topic)
		assert.Equal(t, []byte("u1"), fake.last.Key)
		assert.Equal(t, "PROFILE_CREATE", fake.last.Headers[HeaderEventType])
		assert.Equal(t, "u1", fake.last.Headers[HeaderUserID])
	})

	t.Run("retries transient failures", func(t *testing.T) {
		fake := &fakeProducer{failures: 2, err: brokerDown}
		pub, err := New(fake, "profile-events", WithRetries(2, time.Millisecond))
		require.NoError(t, err)

		require.NoError(t, pub.Publish(ctx, []byte("{}"), models.EventProfileUpdate, "u1"))
		assert.Equal(t, 3, fake.calls)
	})

	t.Run("gives up after bounded retries", func(t *testing.T) {
		fake := &fakeProducer{failures: 10, err: brokerDown}
		pub, err := New(fake, "profile-events", WithRetries(1, time.Millisecond))
		require.NoError(t, err)

		err = pub.Publish(ctx, []byte("{}"), models.EventProfileAddSubscription, "u1")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPublishFailed)
		assert.ErrorIs(t, err, brokerDown)
		assert.Equal(t, 2, fake.calls)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		fake := &fakeProducer{failures: 10, err: brokerDown}
		pub, err := New(fake, "profile-events", WithRetries(5, time.Hour))
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err = pub.Publish(cctx, []byte("{}"), models.EventProfileCreate, "u1")
		assert.ErrorIs(t, err, ErrPublishFailed)
		assert.LessOrEqual(t, fake.calls, 1)
	})
}
