package bus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()

	b := New()
	id1, ch1 := b.Subscribe(TopicDetections)
	id2, ch2 := b.Subscribe(TopicDetections)
	defer b.Unsubscribe(TopicDetections, id1)
	defer b.Unsubscribe(TopicDetections, id2)

	require.NoError(t, b.Publish(TopicDetections, "fire"))

	assert.Equal(t, "fire", <-ch1)
	assert.Equal(t, "fire", <-ch2)
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	t.Parallel()

	b := New()
	id, ch := b.Subscribe(TopicMissions)
	defer b.Unsubscribe(TopicMissions, id)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(TopicMissions, i))
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, i, <-ch)
	}
}

func TestPublishIgnoresOtherTopics(t *testing.T) {
	t.Parallel()

	b := New()
	id, ch := b.Subscribe(TopicAlerts)
	defer b.Unsubscribe(TopicAlerts, id)

	require.NoError(t, b.Publish(TopicDetections, "fire"))

	select {
	case event := <-ch:
		t.Fatalf("unexpected event on alerts topic: %v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestValidatorRejectsPublish(t *testing.T) {
	t.Parallel()

	b := New()
	id, ch := b.Subscribe(TopicDetections)
	defer b.Unsubscribe(TopicDetections, id)

	wantErr := errors.New("missing coordinates")
	b.SetValidator(TopicDetections, func(event any) error {
		if event == "bad" {
			return wantErr
		}
		return nil
	})

	err := b.Publish(TopicDetections, "bad")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, TopicDetections, verr.Topic)
	assert.ErrorIs(t, err, wantErr)

	// Nothing was delivered for the rejected event.
	select {
	case event := <-ch:
		t.Fatalf("rejected event was delivered: %v", event)
	default:
	}

	require.NoError(t, b.Publish(TopicDetections, "good"))
	assert.Equal(t, "good", <-ch)

	// Removing the validator lifts the rejection.
	b.SetValidator(TopicDetections, nil)
	require.NoError(t, b.Publish(TopicDetections, "bad"))
	assert.Equal(t, "bad", <-ch)
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var dropped []string

	b := New(WithBuffer(1), WithDropHandler(func(topic, subscriberID string, event any) {
		mu.Lock()
		defer mu.Unlock()
		dropped = append(dropped, event.(string))
	}))

	id, ch := b.Subscribe(TopicDetections)
	defer b.Unsubscribe(TopicDetections, id)

	require.NoError(t, b.Publish(TopicDetections, "first"))
	require.NoError(t, b.Publish(TopicDetections, "second"))
	require.NoError(t, b.Publish(TopicDetections, "third"))

	// Buffer of one: the first event is queued, the rest dropped.
	assert.Equal(t, "first", <-ch)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"second", "third"}, dropped)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := New()
	id, ch := b.Subscribe(TopicMissions)
	assert.Equal(t, 1, b.SubscriberCount(TopicMissions))

	b.Unsubscribe(TopicMissions, id)
	assert.Equal(t, 0, b.SubscriberCount(TopicMissions))

	_, open := <-ch
	assert.False(t, open)

	// Publishing to a topic with no subscribers is a no-op.
	assert.NoError(t, b.Publish(TopicMissions, "orphan"))
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = b.Publish(TopicDetections, i)
		}
		close(done)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				id, _ := b.Subscribe(TopicDetections)
				b.Unsubscribe(TopicDetections, id)
			}
		}
	}()
	wg.Wait()

	b.Close()
	assert.Equal(t, 0, b.SubscriberCount(TopicDetections))
}
