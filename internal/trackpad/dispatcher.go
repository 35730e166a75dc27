package trackpad

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/char5742/padpointer/internal/event"
)

// FrameAction はフレーム境界ごとに呼ばれる処理
type FrameAction interface {
	Act(s *State) error
}

// NopAction は何もしないFrameAction
type NopAction struct{}

func (NopAction) Act(*State) error { return nil }

// EventSource はイベントをまとめて読み出す入力元
// 少なくとも1件読めるまでブロックし、エラーは入力の終了を意味する
type EventSource interface {
	FetchEvents(ctx context.Context) ([]event.RawEvent, error)
}

// Status はフレーム処理の状況
type Status struct {
	Frames        uint64 `json:"frames"`
	FrameErrors   uint64 `json:"frame_errors"`
	Dropped       uint64 `json:"dropped"`
	ActiveTouches int    `json:"active_touches"`
	Touching      bool   `json:"touching"`
	LastError     string `json:"last_error,omitempty"`
}

// Dispatcher は生イベントを状態に反映し、同期イベントでFrameActionを呼ぶ
type Dispatcher struct {
	state  *State
	action FrameAction
	logger *slog.Logger

	// SYN_DROPPED後、次のSYN_REPORTまでのイベントを捨てる
	dropping bool

	mu     sync.RWMutex
	status Status
}

// NewDispatcher は新しいDispatcherを作成する
func NewDispatcher(state *State, action FrameAction, logger *slog.Logger) *Dispatcher {
	if action == nil {
		action = NopAction{}
	}
	return &Dispatcher{state: state, action: action, logger: logger}
}

// Notify は1件のイベントを処理する
// 戻り値のエラーはそのフレームだけの失敗で、処理は継続できる
func (d *Dispatcher) Notify(ev event.RawEvent) error {
	if d.dropping {
		if ev.Kind == event.KindSync {
			d.dropping = false
		}
		return nil
	}

	switch ev.Kind {
	case event.KindDropped:
		d.dropping = true
		d.mu.Lock()
		d.status.Dropped++
		d.mu.Unlock()
		d.logger.Warn("入力イベントの読み落としがありました。次のフレームまで破棄します")
	case event.KindSync:
		err := d.action.Act(d.state)
		d.publish(err)
		return err
	case event.KindButton:
		d.state.ApplyButton(event.ButtonCode(ev.Code), ev.Value)
	case event.KindAxis:
		d.state.ApplyAxis(event.AxisCode(ev.Code), ev.Value)
	}
	return nil
}

// Run は入力元が終了するかctxがキャンセルされるまでイベントを処理する
func (d *Dispatcher) Run(ctx context.Context, src EventSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		events, err := src.FetchEvents(ctx)
		if err != nil {
			return fmt.Errorf("イベントの読み取りを終了しました: %w", err)
		}
		for _, ev := range events {
			if err := d.Notify(ev); err != nil {
				d.logger.Warn("フレームの適用に失敗しました", "error", err)
			}
		}
	}
}

// Status は直近のフレーム処理の状況を返す
func (d *Dispatcher) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

func (d *Dispatcher) publish(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Frames++
	d.status.ActiveTouches = len(d.state.Touches)
	d.status.Touching = d.state.Touching
	if err != nil {
		d.status.FrameErrors++
		d.status.LastError = err.Error()
	}
}
