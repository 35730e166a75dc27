package trackpad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/padpointer/internal/event"
)

var testLimits = CalibrationLimits{MinX: 0, MaxX: 100, MinY: 0, MaxY: 100, MinP: 0, MaxP: 100}

func applyAll(s *State, events ...event.RawEvent) {
	for _, ev := range events {
		switch ev.Kind {
		case event.KindAxis:
			s.ApplyAxis(event.AxisCode(ev.Code), ev.Value)
		case event.KindButton:
			s.ApplyButton(event.ButtonCode(ev.Code), ev.Value)
		}
	}
}

func TestNewState_InitialSlot(t *testing.T) {
	assert.Equal(t, int32(-1), NewState(testLimits, true).CurrentSlot)
	assert.Equal(t, int32(0), NewState(testLimits, false).CurrentSlot)
}

func TestApplyAxis_DroppedBeforeSlotSelect(t *testing.T) {
	s := NewState(testLimits, true)
	applyAll(s, event.Axis(event.AbsMtPositionX, 10), event.Axis(event.AbsPressure, 5))
	assert.Empty(t, s.Touches)
}

func TestApplyAxis_SingleTouchDevicePinnedToSlotZero(t *testing.T) {
	s := NewState(testLimits, false)
	applyAll(s,
		event.Axis(event.AbsX, 40),
		event.Axis(event.AbsY, 60),
		event.Axis(event.AbsPressure, 70),
	)
	assert.Equal(t, map[int32]TouchRecord{0: {X: 40, Y: 60, P: 70}}, s.Touches)
}

func TestApplyAxis_SlotIsolation(t *testing.T) {
	s := NewState(testLimits, true)
	applyAll(s,
		event.Axis(event.AbsMtSlot, 0),
		event.Axis(event.AbsMtTrackingId, 10),
		event.Axis(event.AbsMtPositionX, 10),
		event.Axis(event.AbsMtSlot, 1),
		event.Axis(event.AbsMtTrackingId, 11),
		event.Axis(event.AbsMtPositionX, 90),
		event.Axis(event.AbsMtPositionY, 80),
		event.Axis(event.AbsMtSlot, 0),
		event.Axis(event.AbsMtPositionY, 20),
		event.Axis(event.AbsPressure, 30),
		event.Axis(event.AbsMtSlot, 1),
		event.Axis(event.AbsPressure, 60),
	)

	assert.Equal(t, TouchRecord{X: 10, Y: 20, P: 30}, s.Touches[0])
	assert.Equal(t, TouchRecord{X: 90, Y: 80, P: 60}, s.Touches[1])
	assert.Equal(t, []int32{0, 1}, s.Slots())
}

func TestApplyAxis_LiftRemovesRecord(t *testing.T) {
	s := NewState(testLimits, true)
	applyAll(s,
		event.Axis(event.AbsMtSlot, 0),
		event.Axis(event.AbsMtPositionX, 10),
		event.Axis(event.AbsMtTrackingId, -1),
	)
	require.NotContains(t, s.Touches, int32(0))

	// 同じスロットへの更新で記録は作り直されない
	applyAll(s, event.Axis(event.AbsMtPositionX, 20), event.Axis(event.AbsPressure, 5))
	assert.Empty(t, s.Touches)

	// 新しい接触で再び記録される
	applyAll(s, event.Axis(event.AbsMtTrackingId, 12), event.Axis(event.AbsMtPositionX, 30))
	assert.Equal(t, TouchRecord{X: 30}, s.Touches[0])
}

func TestApplyAxis_SlotSelectAfterLiftRecreates(t *testing.T) {
	s := NewState(testLimits, true)
	applyAll(s,
		event.Axis(event.AbsMtSlot, 1),
		event.Axis(event.AbsMtPositionX, 10),
		event.Axis(event.AbsMtTrackingId, -1),
		event.Axis(event.AbsMtSlot, 1),
		event.Axis(event.AbsMtPositionY, 40),
	)
	assert.Equal(t, TouchRecord{Y: 40}, s.Touches[1])
}

func TestApplyAxis_LiftWithoutSlotIsIgnored(t *testing.T) {
	s := NewState(testLimits, true)
	s.ApplyAxis(event.AbsMtTrackingId, -1)
	assert.Equal(t, int32(-1), s.CurrentSlot)
	assert.Empty(t, s.Touches)
}

// 負のスロット選択は「未割り当て」ではなく現在のスロットの削除として扱う。
// プロトコルの慣例とは異なる挙動で、変更する場合はこのテストを意図的に書き換えること。
func TestApplyAxis_NegativeSlotSelectRemovesCurrentSlot(t *testing.T) {
	s := NewState(testLimits, true)
	applyAll(s,
		event.Axis(event.AbsMtSlot, 0),
		event.Axis(event.AbsMtPositionX, 50),
		event.Axis(event.AbsMtSlot, 1),
		event.Axis(event.AbsMtPositionX, 60),
		event.Axis(event.AbsMtSlot, 0),
	)
	require.Len(t, s.Touches, 2)

	s.ApplyAxis(event.AbsMtSlot, -1)

	assert.NotContains(t, s.Touches, int32(0))
	assert.Contains(t, s.Touches, int32(1))
	assert.Equal(t, int32(0), s.CurrentSlot)
}

func TestApplyAxis_UnknownCodeIgnored(t *testing.T) {
	s := NewState(testLimits, true)
	applyAll(s, event.Axis(event.AbsMtSlot, 0), event.Axis(0x30, 99))
	assert.Empty(t, s.Touches)
}

func TestApplyButton(t *testing.T) {
	s := NewState(testLimits, true)
	applyAll(s,
		event.Button(event.BtnLeft, 1),
		event.Button(event.BtnRight, 2),
		event.Button(event.BtnMiddle, 1),
		event.Button(event.BtnTouch, 1),
		event.Button(0x1e, 1),
	)
	assert.True(t, s.Left)
	assert.True(t, s.Right)
	assert.True(t, s.Middle)
	assert.True(t, s.Touching)

	applyAll(s, event.Button(event.BtnRight, 0), event.Button(event.BtnTouch, 0))
	assert.False(t, s.Right)
	assert.False(t, s.Touching)
}

func TestClone(t *testing.T) {
	s := NewState(testLimits, true)
	applyAll(s, event.Axis(event.AbsMtSlot, 0), event.Axis(event.AbsMtPositionX, 1))

	c := s.Clone()
	applyAll(s, event.Axis(event.AbsMtPositionX, 2))

	assert.Equal(t, int32(1), c.Touches[0].X)
	assert.Equal(t, int32(2), s.Touches[0].X)
}
