package features

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/padpointer/internal/event"
	"github.com/char5742/padpointer/internal/trackpad"
	"github.com/char5742/padpointer/internal/types"
)

// openPipeTrackpad はパイプの読み取り側をデバイスとして開く
func openPipeTrackpad(t *testing.T) (*evdevTrackpad, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	tp := newEvdevTrackpad(r)
	t.Cleanup(func() {
		_ = tp.Close()
		_ = w.Close()
	})
	return tp, w
}

func touchFrame() []types.Event {
	return []types.Event{
		{Type: event.Abs, Code: uint16(event.AbsMtPositionX), Value: 10},
		{Type: event.Abs, Code: uint16(event.AbsMtPositionY), Value: 20},
		{Type: event.Abs, Code: uint16(event.AbsPressure), Value: 30},
		{Type: event.Syn, Code: event.SynReport, Value: 0},
	}
}

func fetchUntil(t *testing.T, tp *evdevTrackpad, n int) ([]event.RawEvent, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got []event.RawEvent
	for len(got) < n {
		batch, err := tp.FetchEvents(ctx)
		got = append(got, batch...)
		if err != nil {
			return got, err
		}
	}
	return got, nil
}

func TestEvdevTrackpad_FetchEventsInOrder(t *testing.T) {
	tp, w := openPipeTrackpad(t)
	require.NoError(t, writeEvents(w, touchFrame()))

	got, err := fetchUntil(t, tp, 4)

	require.NoError(t, err)
	assert.Equal(t, []event.RawEvent{
		event.Axis(event.AbsMtPositionX, 10),
		event.Axis(event.AbsMtPositionY, 20),
		event.Axis(event.AbsPressure, 30),
		event.Sync(),
	}, got)
}

func TestEvdevTrackpad_FetchEventsReportsClosedDevice(t *testing.T) {
	tp, w := openPipeTrackpad(t)
	require.NoError(t, writeEvents(w, touchFrame()[2:]))
	require.NoError(t, w.Close())

	got, err := fetchUntil(t, tp, 100)

	assert.ErrorIs(t, err, ErrDeviceClosed)
	assert.Equal(t, []event.RawEvent{event.Axis(event.AbsPressure, 30), event.Sync()}, got)
}

func TestEvdevTrackpad_CloseStopsReader(t *testing.T) {
	tp, w := openPipeTrackpad(t)
	require.NoError(t, writeEvents(w, touchFrame()))

	// 1件だけ受け取り、残りは読み取りゴルーチンが送信待ちのまま閉じる
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	select {
	case env := <-tp.events:
		require.NotNil(t, env)
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	require.NoError(t, tp.Close())

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-tp.events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, tp.Close())
}

func TestEvdevTrackpad_AbsCalibration(t *testing.T) {
	tp := &evdevTrackpad{axes: map[event.AxisCode]types.AbsInfo{
		event.AbsX:        {Minimum: 1266, Maximum: 5676, Resolution: 40},
		event.AbsY:        {Minimum: 1096, Maximum: 4758, Resolution: 68},
		event.AbsPressure: {Minimum: 0, Maximum: 255},
	}}

	assert.Equal(t, map[event.AxisCode]bool{event.AbsX: true, event.AbsY: true, event.AbsPressure: true}, tp.SupportedAxes())

	info, err := tp.AbsCalibration(event.AbsY)
	require.NoError(t, err)
	assert.Equal(t, int32(4758), info.Maximum)

	_, err = tp.AbsCalibration(event.AbsMtSlot)
	assert.ErrorIs(t, err, trackpad.ErrMissingAxis)

	limits, err := trackpad.LimitsFromDevice(tp)
	require.NoError(t, err)
	assert.Equal(t, trackpad.CalibrationLimits{MinX: 1266, MaxX: 5676, MinY: 1096, MaxY: 4758, MinP: 0, MaxP: 255}, limits)
}

func TestEvdevTrackpad_PipeHasNoCapabilities(t *testing.T) {
	tp, _ := openPipeTrackpad(t)

	assert.Empty(t, tp.SupportedButtons())
	assert.Empty(t, tp.SupportedAxes())
}
