package cli

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/jobs"
)

type stubClient struct {
	tasks  []*asynq.Task
	closed bool
}

func (s *stubClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Queue: jobs.QueueDefault, Type: task.Type()}, nil
}

func (s *stubClient) Close() error {
	s.closed = true
	return nil
}

type stubInspector struct {
	info      *asynq.QueueInfo
	err       error
	scheduled []*asynq.TaskInfo
	closed    bool
}

func (s *stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func (s *stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, nil
}

func (s *stubInspector) Close() error {
	s.closed = true
	return nil
}

func TestTriggerEnqueuesKnownJobs(t *testing.T) {
	client := &stubClient{}
	c := NewJobsCLIWith(client, &stubInspector{}, 24*time.Hour)

	info, err := c.Trigger(context.Background(), jobs.TaskIdempotencyCleanup)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskIdempotencyCleanup, info.Type)

	var payload jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	assert.Equal(t, 24, payload.RetentionHours)

	_, err = c.Trigger(context.Background(), jobs.TaskLowStockScan)
	require.NoError(t, err)
	require.Len(t, client.tasks, 2)

	_, err = c.Trigger(context.Background(), "inventory:unknown")
	require.Error(t, err)
}

func TestInspectQueue(t *testing.T) {
	inspector := &stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}}
	c := NewJobsCLIWith(&stubClient{}, inspector, 0)

	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}, stats)

	inspector.err = asynq.ErrQueueNotFound
	stats, err = c.InspectQueue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)

	inspector.err = errors.New("dial tcp")
	_, err = c.InspectQueue(context.Background())
	require.Error(t, err)
}

func TestCloseReleasesBoth(t *testing.T) {
	client := &stubClient{}
	inspector := &stubInspector{}
	require.NoError(t, NewJobsCLIWith(client, inspector, 0).Close())
	assert.True(t, client.closed)
	assert.True(t, inspector.closed)
}
