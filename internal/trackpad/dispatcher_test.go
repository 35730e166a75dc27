package trackpad

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/padpointer/internal/event"
)

// recordingAction はActに渡された状態のコピーを記録する
type recordingAction struct {
	frames []*State
	err    error
}

func (r *recordingAction) Act(s *State) error {
	r.frames = append(r.frames, s.Clone())
	return r.err
}

// scriptedSource は用意したバッチを順に返し、尽きたらerrを返す
type scriptedSource struct {
	batches [][]event.RawEvent
	err     error
}

func (s *scriptedSource) FetchEvents(ctx context.Context) ([]event.RawEvent, error) {
	if len(s.batches) == 0 {
		return nil, s.err
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func newTestDispatcher(action FrameAction) *Dispatcher {
	return NewDispatcher(NewState(testLimits, true), action, slog.New(slog.DiscardHandler))
}

func TestDispatcher_ActsOnlyOnSync(t *testing.T) {
	action := &recordingAction{}
	d := newTestDispatcher(action)

	for _, ev := range []event.RawEvent{
		event.Axis(event.AbsMtSlot, 0),
		event.Axis(event.AbsMtPositionX, 50),
		event.Axis(event.AbsMtPositionY, 50),
		event.Axis(event.AbsPressure, 80),
		event.Button(event.BtnTouch, 1),
		{Kind: event.KindOther, Code: 3},
	} {
		require.NoError(t, d.Notify(ev))
	}
	assert.Empty(t, action.frames)

	require.NoError(t, d.Notify(event.Sync()))
	require.Len(t, action.frames, 1)
	assert.Equal(t, TouchRecord{X: 50, Y: 50, P: 80}, action.frames[0].Touches[0])
	assert.True(t, action.frames[0].Touching)

	status := d.Status()
	assert.Equal(t, uint64(1), status.Frames)
	assert.Equal(t, 1, status.ActiveTouches)
}

func TestDispatcher_DiscardsEventsAfterDrop(t *testing.T) {
	action := &recordingAction{}
	d := newTestDispatcher(action)

	for _, ev := range []event.RawEvent{
		event.Axis(event.AbsMtSlot, 0),
		event.Axis(event.AbsMtPositionX, 10),
		event.Axis(event.AbsPressure, 40),
		event.Sync(),
		event.Dropped(),
		// 読み落とし後の不完全なフレームは反映しない
		event.Axis(event.AbsMtPositionX, 90),
		event.Button(event.BtnLeft, 1),
		event.Sync(),
		event.Axis(event.AbsMtPositionX, 60),
		event.Sync(),
	} {
		require.NoError(t, d.Notify(ev))
	}

	require.Len(t, action.frames, 2)
	assert.Equal(t, int32(10), action.frames[0].Touches[0].X)
	assert.Equal(t, int32(60), action.frames[1].Touches[0].X)
	assert.False(t, action.frames[1].Left)

	status := d.Status()
	assert.Equal(t, uint64(2), status.Frames)
	assert.Equal(t, uint64(1), status.Dropped)
}

func TestDispatcher_DefaultsToNopAction(t *testing.T) {
	d := NewDispatcher(NewState(testLimits, false), nil, slog.New(slog.DiscardHandler))
	assert.NoError(t, d.Notify(event.Sync()))
}

func TestDispatcher_EndToEndWithMapper(t *testing.T) {
	sink := &recordingSink{}
	m := NewMapper(fixedSurface{width: 1920, height: 1080}, sink, slog.New(slog.DiscardHandler))
	d := NewDispatcher(NewState(testLimits, true), m, slog.New(slog.DiscardHandler))

	src := &scriptedSource{
		batches: [][]event.RawEvent{
			{
				event.Axis(event.AbsMtSlot, 0),
				event.Axis(event.AbsMtTrackingId, 1),
				event.Axis(event.AbsMtPositionX, 10),
				event.Axis(event.AbsMtPositionY, 10),
				event.Axis(event.AbsPressure, 30),
				event.Axis(event.AbsMtSlot, 1),
				event.Axis(event.AbsMtTrackingId, 2),
				event.Axis(event.AbsMtPositionX, 90),
				event.Axis(event.AbsMtPositionY, 90),
				event.Axis(event.AbsPressure, 90),
				event.Sync(),
			},
			{
				event.Axis(event.AbsMtTrackingId, -1),
				event.Axis(event.AbsMtSlot, 0),
				event.Axis(event.AbsMtTrackingId, -1),
				event.Button(event.BtnRight, 1),
				event.Sync(),
			},
		},
		err: errors.New("device gone"),
	}

	err := d.Run(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device gone")

	assert.Equal(t, []string{
		"move 1728,972", "press left", "release right", "release middle",
		"release left", "press right", "release middle",
	}, sink.calls)
	assert.Equal(t, uint64(2), d.Status().Frames)
}

func TestDispatcher_RunContinuesPastFrameErrors(t *testing.T) {
	action := &recordingAction{err: errors.New("sink unavailable")}
	d := newTestDispatcher(action)
	src := &scriptedSource{
		batches: [][]event.RawEvent{{event.Sync()}, {event.Sync(), event.Sync()}},
		err:     errors.New("eof"),
	}

	err := d.Run(context.Background(), src)

	require.Error(t, err)
	assert.Len(t, action.frames, 3)
	status := d.Status()
	assert.Equal(t, uint64(3), status.FrameErrors)
	assert.Equal(t, "sink unavailable", status.LastError)
}

func TestDispatcher_RunStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestDispatcher(nil).Run(ctx, &scriptedSource{batches: [][]event.RawEvent{{event.Sync()}}})

	assert.ErrorIs(t, err, context.Canceled)
}
