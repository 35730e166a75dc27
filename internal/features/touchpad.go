package features

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/kenshaw/evdev"

	"github.com/char5742/padpointer/internal/event"
	"github.com/char5742/padpointer/internal/trackpad"
	"github.com/char5742/padpointer/internal/types"
)

// ErrDeviceClosed はデバイスからの読み取りが終了したことを表す
var ErrDeviceClosed = errors.New("input device closed")

// TrackpadDevice は物理トラックパッドを表すインターフェース
type TrackpadDevice interface {
	Name() string
	PhysicalPath() string
	SupportedButtons() map[event.ButtonCode]bool
	SupportedAxes() map[event.AxisCode]bool
	AbsCalibration(axis event.AxisCode) (types.AbsInfo, error)
	// 少なくとも1件のイベントが届くまでブロックし、届いている分をまとめて返す
	FetchEvents(ctx context.Context) ([]event.RawEvent, error)
	// トラックパッド操作を専有する
	Grab() error
	// トラックパッド操作の専有を解除する
	Release() error
	Close() error
}

type evdevTrackpad struct {
	file    *os.File
	dev     *evdev.Evdev
	events  <-chan *evdev.EventEnvelope
	cancel  context.CancelFunc
	grabbed bool

	buttons map[event.ButtonCode]bool
	axes    map[event.AxisCode]types.AbsInfo

	closeOnce sync.Once
}

// OpenTrackpad は指定されたパスのトラックパッドを開く
func OpenTrackpad(path string) (TrackpadDevice, error) {
	f, err := os.OpenFile(path, syscall.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open device file: %w", err)
	}
	return newEvdevTrackpad(f), nil
}

// newEvdevTrackpad は対応ボタンと軸の較正情報を読み取り、イベントの読み取りを開始する
func newEvdevTrackpad(f *os.File) *evdevTrackpad {
	dev := evdev.Open(f)
	t := &evdevTrackpad{
		file:    f,
		dev:     dev,
		buttons: make(map[event.ButtonCode]bool),
		axes:    make(map[event.AxisCode]types.AbsInfo),
	}
	for code := range dev.KeyTypes() {
		t.buttons[event.ButtonCode(code)] = true
	}
	for code, axis := range dev.AbsoluteTypes() {
		t.axes[event.AxisCode(code)] = types.AbsInfo{
			Value:      axis.Val,
			Minimum:    axis.Min,
			Maximum:    axis.Max,
			Fuzz:       axis.Fuzz,
			Flat:       axis.Flat,
			Resolution: axis.Res,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.events = dev.Poll(ctx)
	return t
}

func (t *evdevTrackpad) Name() string {
	return t.dev.Name()
}

func (t *evdevTrackpad) PhysicalPath() string {
	return t.dev.Path()
}

func (t *evdevTrackpad) SupportedButtons() map[event.ButtonCode]bool {
	return t.buttons
}

func (t *evdevTrackpad) SupportedAxes() map[event.AxisCode]bool {
	out := make(map[event.AxisCode]bool, len(t.axes))
	for code := range t.axes {
		out[code] = true
	}
	return out
}

// AbsCalibration はオープン時に読み取った軸の較正情報を返す
func (t *evdevTrackpad) AbsCalibration(axis event.AxisCode) (types.AbsInfo, error) {
	info, ok := t.axes[axis]
	if !ok {
		return types.AbsInfo{}, fmt.Errorf("axis 0x%02x: %w", uint16(axis), trackpad.ErrMissingAxis)
	}
	return info, nil
}

func (t *evdevTrackpad) FetchEvents(ctx context.Context) ([]event.RawEvent, error) {
	var out []event.RawEvent
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case env, ok := <-t.events:
		if !ok || env == nil {
			return nil, ErrDeviceClosed
		}
		out = append(out, toRawEvent(env))
	}

	for {
		select {
		case env, ok := <-t.events:
			if !ok || env == nil {
				// 読み取った分は返し、次の呼び出しで終了を通知する
				return out, nil
			}
			out = append(out, toRawEvent(env))
		default:
			return out, nil
		}
	}
}

func toRawEvent(env *evdev.EventEnvelope) event.RawEvent {
	return event.FromInput(uint16(env.Event.Type), env.Event.Code, env.Event.Value)
}

func (t *evdevTrackpad) Grab() error {
	if t.grabbed {
		return nil
	}
	if err := t.dev.Lock(); err != nil {
		return fmt.Errorf("failed to grab device: %w", err)
	}
	t.grabbed = true
	return nil
}

func (t *evdevTrackpad) Release() error {
	if !t.grabbed {
		return nil
	}
	if err := t.dev.Unlock(); err != nil {
		return fmt.Errorf("failed to release device: %w", err)
	}
	t.grabbed = false
	return nil
}

func (t *evdevTrackpad) Close() error {
	var err error
	t.closeOnce.Do(func() {
		_ = t.Release()
		t.cancel()
		// 送信待ちの読み取りゴルーチンがチャネルを閉じて終了するまで読み捨てる
		go func() {
			for range t.events {
			}
		}()
		// evdev.Closeは読み取り中のfdを書き換えるので使わない
		err = t.file.Close()
	})
	return err
}
