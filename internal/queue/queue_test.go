package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu        sync.Mutex
	published map[string][][]byte
	err       error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.published == nil {
		f.published = map[string][][]byte{}
	}
	f.published[subject] = append(f.published[subject], data)
	return nil
}

func (f *fakeConn) QueueSubscribe(string, string, nats.MsgHandler) (*nats.Subscription, error) {
	return nil, errors.New("not connected")
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewTaskAndDecode(t *testing.T) {
	docID := uuid.New()
	task, err := NewTask(TaskTypeParse, ParsePayload{DocumentID: docID, Filename: "a.pdf", Page: 3, Content: "hi"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, TaskTypeParse, task.Type)

	var p ParsePayload
	require.NoError(t, task.Decode(&p))
	assert.Equal(t, docID, p.DocumentID)
	assert.Equal(t, 3, p.Page)

	bad := Task{Type: TaskTypeAnalyze, Payload: json.RawMessage(`{"document_id": 1}`)}
	assert.Error(t, bad.Decode(&AnalyzePayload{}))
}

func TestEnqueueWithRetry(t *testing.T) {
	task := Task{Type: TaskTypeParse}

	t.Run("succeeds after transient failure", func(t *testing.T) {
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(errors.New("busy")).Once()
		q.On("Enqueue", mock.Anything, task).Return(nil).Once()

		require.NoError(t, EnqueueWithRetry(context.Background(), q, task, 3, time.Millisecond))
		assert.Equal(t, []Task{task, task}, q.EnqueuedTasks())
	})

	t.Run("returns last error", func(t *testing.T) {
		boom := errors.New("down")
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(boom)

		err := EnqueueWithRetry(context.Background(), q, task, 2, time.Millisecond)
		assert.ErrorIs(t, err, boom)
		q.AssertNumberOfCalls(t, "Enqueue", 2)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(errors.New("down"))

		err := EnqueueWithRetry(ctx, q, task, 5, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
		q.AssertNumberOfCalls(t, "Enqueue", 1)
	})
}

func TestNATSEnqueue(t *testing.T) {
	conn := &fakeConn{}
	q := NewNATS(discard(), conn)

	assert.Error(t, q.Enqueue(context.Background(), Task{}))

	require.NoError(t, q.Enqueue(context.Background(), Task{Type: TaskTypeAnalyze, Payload: json.RawMessage(`{}`)}))
	msgs := conn.published["docscope.tasks.analyze"]
	require.Len(t, msgs, 1)

	var got Task
	require.NoError(t, json.Unmarshal(msgs[0], &got))
	assert.NotEqual(t, uuid.Nil, got.ID)
}

func TestNATSWorkerSubscribeError(t *testing.T) {
	q := NewNATS(discard(), &fakeConn{})
	assert.Error(t, q.Worker(context.Background(), TaskTypeParse, nil))
}

func TestHandleMessageRetries(t *testing.T) {
	conn := &fakeConn{}
	q := &natsQueue{log: discard(), nc: conn}

	task := Task{ID: uuid.New(), Type: TaskTypeParse, Payload: json.RawMessage(`{}`), MaxAttempts: 2}
	body, err := json.Marshal(task)
	require.NoError(t, err)

	failing := func(context.Context, Task) error { return errors.New("llm unavailable") }

	q.handleMessage(context.Background(), body, failing)
	msgs := conn.published["docscope.tasks.parse"]
	require.Len(t, msgs, 1)

	var retried Task
	require.NoError(t, json.Unmarshal(msgs[0], &retried))
	assert.Equal(t, 1, retried.Attempts)
	assert.Equal(t, task.ID, retried.ID)
	assert.True(t, retried.NotBefore.After(time.Now()))

	// The second failure reaches MaxAttempts and is not re-enqueued.
	retried.NotBefore = time.Time{}
	body, err = json.Marshal(retried)
	require.NoError(t, err)
	q.handleMessage(context.Background(), body, failing)
	assert.Len(t, conn.published["docscope.tasks.parse"], 1)
}

func TestHandleMessageSuccessAndGarbage(t *testing.T) {
	conn := &fakeConn{}
	q := &natsQueue{log: discard(), nc: conn}

	called := false
	q.handleMessage(context.Background(), []byte("not json"), func(context.Context, Task) error {
		called = true
		return nil
	})
	assert.False(t, called)

	body, err := json.Marshal(Task{Type: TaskTypeParse})
	require.NoError(t, err)
	q.handleMessage(context.Background(), body, func(context.Context, Task) error {
		called = true
		return nil
	})
	assert.True(t, called)
	assert.Empty(t, conn.published)
}
