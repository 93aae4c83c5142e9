package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishAndSubscribe(t *testing.T) {
	client := setupRedis(t)
	pub := NewPublisher(client)
	sub := NewSubscriber(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *ProgressMessage, 1)
	go func() {
		_ = sub.Subscribe(ctx, func(msg *ProgressMessage) {
			received <- msg
		})
	}()

	// 等订阅建立
	time.Sleep(50 * time.Millisecond)

	err := pub.PublishProgress(ctx, &ProgressMessage{
		JobID:    "job-1",
		Status:   "running",
		Stage:    "clone",
		Progress: 10,
	})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "job_progress", msg.Type)
		assert.Equal(t, "job-1", msg.JobID)
		assert.Equal(t, 10, msg.Progress)
		// 阶段消息自动填充
		assert.Equal(t, "正在克隆仓库", msg.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for progress message")
	}
}

func TestPublishProgressNilClient(t *testing.T) {
	pub := NewPublisher(nil)
	err := pub.PublishProgress(context.Background(), &ProgressMessage{JobID: "job-1"})
	assert.NoError(t, err)

	var nilPub *Publisher
	assert.NoError(t, nilPub.PublishProgress(context.Background(), &ProgressMessage{}))
}

func TestPublishProgressKeepsExplicitMessage(t *testing.T) {
	client := setupRedis(t)
	pub := NewPublisher(client)

	msg := &ProgressMessage{JobID: "job-1", Stage: "clone", Message: "custom"}
	require.NoError(t, pub.PublishProgress(context.Background(), msg))
	assert.Equal(t, "custom", msg.Message)
}
