package trackpad

import (
	"maps"
	"slices"

	"github.com/char5742/padpointer/internal/event"
)

// TouchRecord は1本の指の最新の座標と圧力
type TouchRecord struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	P int32 `json:"p"`
}

// State はトラックパッドの現在の状態
// 処理ゴルーチンだけが変更する
type State struct {
	Left     bool
	Right    bool
	Middle   bool
	Touching bool

	// CurrentSlot はスロット対応デバイスでは-1から始まり、
	// 非対応デバイスでは0に固定される
	CurrentSlot int32
	Touches     map[int32]TouchRecord
	Limits      CalibrationLimits

	// lifted は現在のスロットの接触が終了済みであることを表す
	// 新しいスロット選択か追跡IDが来るまで軸の更新で記録を作り直さない
	lifted bool
}

// NewState は初期状態を作成する
func NewState(limits CalibrationLimits, slotCapable bool) *State {
	slot := int32(0)
	if slotCapable {
		slot = -1
	}
	return &State{
		CurrentSlot: slot,
		Touches:     make(map[int32]TouchRecord),
		Limits:      limits,
	}
}

// ApplyButton はボタンとタッチのフラグを更新する
func (s *State) ApplyButton(code event.ButtonCode, value int32) {
	pressed := value != 0
	switch code {
	case event.BtnTouch:
		s.Touching = pressed
	case event.BtnLeft:
		s.Left = pressed
	case event.BtnRight:
		s.Right = pressed
	case event.BtnMiddle:
		s.Middle = pressed
	}
}

// ApplyAxis はスロットプロトコルの軸イベントを反映する
func (s *State) ApplyAxis(code event.AxisCode, value int32) {
	switch code {
	case event.AbsMtSlot:
		if value < 0 {
			// 負のスロット選択は現在のスロットの記録を消す
			s.removeCurrent()
			return
		}
		s.CurrentSlot = value
		s.lifted = false
	case event.AbsMtTrackingId:
		if value < 0 {
			s.removeCurrent()
			return
		}
		s.lifted = false
	case event.AbsX, event.AbsMtPositionX:
		s.update(func(t *TouchRecord) { t.X = value })
	case event.AbsY, event.AbsMtPositionY:
		s.update(func(t *TouchRecord) { t.Y = value })
	case event.AbsPressure:
		s.update(func(t *TouchRecord) { t.P = value })
	}
}

func (s *State) removeCurrent() {
	if s.CurrentSlot < 0 {
		return
	}
	delete(s.Touches, s.CurrentSlot)
	s.lifted = true
}

func (s *State) update(set func(t *TouchRecord)) {
	if s.CurrentSlot < 0 || s.lifted {
		return
	}
	t := s.Touches[s.CurrentSlot]
	set(&t)
	s.Touches[s.CurrentSlot] = t
}

// Slots はスロット番号を昇順で返す
func (s *State) Slots() []int32 {
	return slices.Sorted(maps.Keys(s.Touches))
}

// Clone は状態のコピーを返す
func (s *State) Clone() *State {
	c := *s
	c.Touches = maps.Clone(s.Touches)
	if c.Touches == nil {
		c.Touches = make(map[int32]TouchRecord)
	}
	return &c
}
