package trackpad

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/padpointer/internal/event"
	"github.com/char5742/padpointer/internal/types"
)

type fakeAxes struct {
	infos map[event.AxisCode]types.AbsInfo
	err   error
}

func (f fakeAxes) SupportedAxes() map[event.AxisCode]bool {
	out := make(map[event.AxisCode]bool)
	for code := range f.infos {
		out[code] = true
	}
	return out
}

func (f fakeAxes) AbsCalibration(axis event.AxisCode) (types.AbsInfo, error) {
	return f.infos[axis], f.err
}

func TestLimitsFromDevice(t *testing.T) {
	dev := fakeAxes{infos: map[event.AxisCode]types.AbsInfo{
		event.AbsX:        {Minimum: 1270, Maximum: 5670},
		event.AbsY:        {Minimum: 1200, Maximum: 4750},
		event.AbsPressure: {Minimum: 0, Maximum: 255},
	}}

	limits, err := LimitsFromDevice(dev)

	require.NoError(t, err)
	assert.Equal(t, CalibrationLimits{MinX: 1270, MaxX: 5670, MinY: 1200, MaxY: 4750, MinP: 0, MaxP: 255}, limits)
}

func TestLimitsFromDevice_MissingPressure(t *testing.T) {
	dev := fakeAxes{infos: map[event.AxisCode]types.AbsInfo{
		event.AbsX: {Maximum: 100},
		event.AbsY: {Maximum: 100},
	}}

	_, err := LimitsFromDevice(dev)

	assert.ErrorIs(t, err, ErrMissingAxis)
	assert.Contains(t, err.Error(), "ABS_PRESSURE")
}

func TestLimitsFromDevice_QueryFailure(t *testing.T) {
	boom := errors.New("ioctl failed")
	dev := fakeAxes{
		infos: map[event.AxisCode]types.AbsInfo{event.AbsX: {}, event.AbsY: {}, event.AbsPressure: {}},
		err:   boom,
	}

	_, err := LimitsFromDevice(dev)

	assert.ErrorIs(t, err, boom)
}

func TestClickThreshold(t *testing.T) {
	assert.Equal(t, int32(25), testLimits.ClickThreshold())
	assert.Equal(t, int32(64), CalibrationLimits{MinP: 0, MaxP: 255}.ClickThreshold())
	// 最小値によるオフセットは加えない
	assert.Equal(t, int32(25), CalibrationLimits{MinP: 100, MaxP: 200}.ClickThreshold())
}

func TestContainsIsInclusive(t *testing.T) {
	assert.True(t, testLimits.Contains(TouchRecord{X: 0, Y: 100, P: 100}))
	assert.False(t, testLimits.Contains(TouchRecord{X: 101, Y: 0, P: 0}))
	assert.False(t, testLimits.Contains(TouchRecord{X: 0, Y: -1, P: 0}))
}
