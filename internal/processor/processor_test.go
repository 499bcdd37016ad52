package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"updatestream-cdc/internal/updatestream"
)

type fakeStream struct {
	startPos updatestream.Position
	events   []*updatestream.ChangeEvent
	err      error
}

func (f *fakeStream) StreamStart(ctx context.Context, pos updatestream.Position) (*updatestream.ChangeEvent, error) {
	f.startPos = pos
	return f.StreamNext()
}

func (f *fakeStream) StreamNext() (*updatestream.ChangeEvent, error) {
	if len(f.events) > 0 {
		event := f.events[0]
		f.events = f.events[1:]
		return event, nil
	}
	return nil, f.err
}

type fakePublisher struct {
	published []*updatestream.ChangeEvent
	err       error
}

func (f *fakePublisher) Publish(event *updatestream.ChangeEvent) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event)
	return nil
}

type fakeCheckpointer struct {
	saved []string
}

func (f *fakeCheckpointer) Save(groupID string) error {
	f.saved = append(f.saved, groupID)
	return nil
}

func event(groupID, table string) *updatestream.ChangeEvent {
	return &updatestream.ChangeEvent{
		Category:  updatestream.CategoryDML,
		TableName: table,
		Timestamp: 1700000000,
		GroupId:   groupID,
	}
}

func TestRunPublishesAndCheckpoints(t *testing.T) {
	stream := &fakeStream{events: []*updatestream.ChangeEvent{
		event("g-1", "users"),
		event("g-2", "orders"),
	}}
	pub := &fakePublisher{}
	cp := &fakeCheckpointer{}
	proc := New(stream, pub, nil, cp, testLogger())

	err := proc.Run(context.Background(), updatestream.Position{GroupId: "g-0"})
	require.NoError(t, err)

	assert.Equal(t, "g-0", stream.startPos.GroupId)
	require.Len(t, pub.published, 2)
	assert.Equal(t, []string{"g-1", "g-2"}, cp.saved)
}

func TestRunReturnsStreamError(t *testing.T) {
	boom := errors.New("connection dropped")
	stream := &fakeStream{
		events: []*updatestream.ChangeEvent{event("g-1", "users")},
		err:    boom,
	}
	pub := &fakePublisher{}
	proc := New(stream, pub, nil, nil, testLogger())

	err := proc.Run(context.Background(), updatestream.Position{GroupId: "g-0"})
	require.ErrorIs(t, err, boom)
	assert.Len(t, pub.published, 1)
}

func TestRunSkipsRejectedEvents(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Rules:   []RuleConfig{{Table: "audit_log", Drop: true}},
	}
	tr, err := NewTransformer(cfg, testLogger())
	require.NoError(t, err)

	stream := &fakeStream{events: []*updatestream.ChangeEvent{
		event("g-1", "audit_log"),
		event("g-2", "users"),
	}}
	pub := &fakePublisher{}
	cp := &fakeCheckpointer{}
	proc := New(stream, pub, tr, cp, testLogger())

	require.NoError(t, proc.Run(context.Background(), updatestream.Position{}))

	require.Len(t, pub.published, 1)
	assert.Equal(t, "users", pub.published[0].TableName)
	assert.Equal(t, []string{"g-2"}, cp.saved)
}

func TestRunContinuesPastPublishErrors(t *testing.T) {
	stream := &fakeStream{events: []*updatestream.ChangeEvent{
		event("g-1", "users"),
		event("g-2", "orders"),
	}}
	pub := &fakePublisher{err: errors.New("nats down")}
	cp := &fakeCheckpointer{}
	proc := New(stream, pub, nil, cp, testLogger())

	require.NoError(t, proc.Run(context.Background(), updatestream.Position{}))

	// Nothing published, so nothing checkpointed either.
	assert.Empty(t, pub.published)
	assert.Empty(t, cp.saved)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := &fakeStream{err: context.Canceled}
	proc := New(stream, &fakePublisher{}, nil, nil, testLogger())

	err := proc.Run(ctx, updatestream.Position{})
	require.NoError(t, err)
}
