package trackpad

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/char5742/padpointer/internal/event"
	"github.com/char5742/padpointer/internal/log"
)

// Surface は出力先の画面解像度を提供する
type Surface interface {
	Resolution() (width, height int, err error)
}

// PointerSink は絶対座標ポインターへの出力先
type PointerSink interface {
	MoveTo(x, y int) error
	Press(button event.ButtonCode) error
	Release(button event.ButtonCode) error
}

// PointerCommand は1フレーム分のポインター操作
// Moveがfalseのとき移動は行わず、AbsX/AbsYは直前の位置のまま
type PointerCommand struct {
	AbsX   int  `json:"abs_x"`
	AbsY   int  `json:"abs_y"`
	Move   bool `json:"move"`
	Left   bool `json:"left"`
	Right  bool `json:"right"`
	Middle bool `json:"middle"`
}

// Position は出力空間での座標
type Position struct {
	X, Y int
}

// SelectTouch は範囲内のタッチのうち圧力が最大のものを選ぶ
// 同じ圧力ではスロット番号の小さいものを優先する
func SelectTouch(s *State) (slot int32, touch TouchRecord, ok bool) {
	for _, id := range s.Slots() {
		t := s.Touches[id]
		if !s.Limits.Contains(t) {
			continue
		}
		if !ok || t.P > touch.P {
			slot, touch, ok = id, t, true
		}
	}
	return slot, touch, ok
}

// Map は状態と解像度からポインター操作を計算する
// prevは選択できるタッチが無いときに保持する直前の位置
func Map(s *State, width, height int, prev Position) PointerCommand {
	cmd := PointerCommand{
		AbsX:   prev.X,
		AbsY:   prev.Y,
		Left:   s.Left,
		Right:  s.Right,
		Middle: s.Middle,
	}

	_, touch, ok := SelectTouch(s)
	if !ok {
		return cmd
	}

	rx := normalize(touch.X, s.Limits.MinX, s.Limits.MaxX)
	ry := normalize(touch.Y, s.Limits.MinY, s.Limits.MaxY)
	cmd.AbsX = int(math.Round(rx * float64(width)))
	cmd.AbsY = int(math.Round(ry * float64(height)))
	cmd.Move = true
	if touch.P >= s.Limits.ClickThreshold() {
		cmd.Left = true
	}
	return cmd
}

// Mapper はフレームごとにポインター操作を計算して出力先へ送る
type Mapper struct {
	surface Surface
	sink    PointerSink
	logger  *slog.Logger

	mu      sync.RWMutex
	last    PointerCommand
	hasLast bool
}

// NewMapper は新しいMapperを作成する
func NewMapper(surface Surface, sink PointerSink, logger *slog.Logger) *Mapper {
	return &Mapper{surface: surface, sink: sink, logger: logger}
}

// Act は現在の状態をポインター操作に変換して適用する
func (m *Mapper) Act(s *State) error {
	width, height, err := m.surface.Resolution()
	if err != nil {
		return fmt.Errorf("画面解像度の取得に失敗しました: %w", err)
	}

	m.mu.RLock()
	prev := Position{X: m.last.AbsX, Y: m.last.AbsY}
	m.mu.RUnlock()

	cmd := Map(s, width, height, prev)

	m.mu.Lock()
	m.last = cmd
	m.hasLast = true
	m.mu.Unlock()

	m.logger.Log(context.Background(), log.LevelTrace, "pointer command",
		"x", cmd.AbsX, "y", cmd.AbsY, "move", cmd.Move,
		"left", cmd.Left, "right", cmd.Right, "middle", cmd.Middle)

	return m.apply(cmd)
}

// apply は移動と3つのボタンを出力先へ反映する
// 1つが失敗しても残りのボタンは送る
func (m *Mapper) apply(cmd PointerCommand) error {
	var errs []error
	if cmd.Move {
		if err := m.sink.MoveTo(cmd.AbsX, cmd.AbsY); err != nil {
			errs = append(errs, fmt.Errorf("ポインターの移動に失敗しました: %w", err))
		}
	}
	for _, b := range []struct {
		code    event.ButtonCode
		pressed bool
	}{
		{event.BtnLeft, cmd.Left},
		{event.BtnRight, cmd.Right},
		{event.BtnMiddle, cmd.Middle},
	} {
		var err error
		if b.pressed {
			err = m.sink.Press(b.code)
		} else {
			err = m.sink.Release(b.code)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%sボタンの送信に失敗しました: %w", b.code, err))
		}
	}
	return errors.Join(errs...)
}

// LastCommand は最後に計算したポインター操作を返す
func (m *Mapper) LastCommand() (PointerCommand, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.hasLast
}
