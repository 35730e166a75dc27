// Package trackpad はスロット方式のマルチタッチイベント列を解読し、
// フレームごとに1つのポインター操作へ変換する。
package trackpad

import (
	"errors"
	"fmt"
	"math"

	"github.com/char5742/padpointer/internal/event"
	"github.com/char5742/padpointer/internal/types"
)

// ErrMissingAxis は較正に必要な軸がデバイスに無いことを表す
var ErrMissingAxis = errors.New("calibration axis not supported")

// CalibrationLimits は起動時にデバイスから読み取るx/y/圧力の範囲
type CalibrationLimits struct {
	MinX int32 `json:"min_x"`
	MaxX int32 `json:"max_x"`
	MinY int32 `json:"min_y"`
	MaxY int32 `json:"max_y"`
	MinP int32 `json:"min_p"`
	MaxP int32 `json:"max_p"`
}

// AxisSource は軸の較正情報を提供するデバイス
type AxisSource interface {
	SupportedAxes() map[event.AxisCode]bool
	AbsCalibration(axis event.AxisCode) (types.AbsInfo, error)
}

// LimitsFromDevice はX, Y, 圧力の較正情報を読み取る
func LimitsFromDevice(dev AxisSource) (CalibrationLimits, error) {
	supported := dev.SupportedAxes()
	read := func(axis event.AxisCode, name string) (types.AbsInfo, error) {
		if !supported[axis] {
			return types.AbsInfo{}, fmt.Errorf("%s: %w", name, ErrMissingAxis)
		}
		info, err := dev.AbsCalibration(axis)
		if err != nil {
			return types.AbsInfo{}, fmt.Errorf("%s の較正情報の取得に失敗しました: %w", name, err)
		}
		return info, nil
	}

	x, err := read(event.AbsX, "ABS_X")
	if err != nil {
		return CalibrationLimits{}, err
	}
	y, err := read(event.AbsY, "ABS_Y")
	if err != nil {
		return CalibrationLimits{}, err
	}
	p, err := read(event.AbsPressure, "ABS_PRESSURE")
	if err != nil {
		return CalibrationLimits{}, err
	}

	return CalibrationLimits{
		MinX: x.Minimum, MaxX: x.Maximum,
		MinY: y.Minimum, MaxY: y.Maximum,
		MinP: p.Minimum, MaxP: p.Maximum,
	}, nil
}

// Contains はタッチが3軸すべての範囲内（両端含む）にあるかを返す
func (l CalibrationLimits) Contains(t TouchRecord) bool {
	return t.X >= l.MinX && t.X <= l.MaxX &&
		t.Y >= l.MinY && t.Y <= l.MaxY &&
		t.P >= l.MinP && t.P <= l.MaxP
}

// ClickThreshold はタッチによる左クリックとみなす圧力
// 圧力範囲の幅の25%で、最小値によるオフセットは加えない
func (l CalibrationLimits) ClickThreshold() int32 {
	return int32(math.Round(0.25 * float64(l.MaxP-l.MinP)))
}

// normalize は値を[0, 1]に正規化する。幅が0の範囲では0を返す
func normalize(v, lo, hi int32) float64 {
	span := float64(hi) - float64(lo)
	if span == 0 {
		return 0
	}
	r := (float64(v) - float64(lo)) / span
	return math.Max(0, math.Min(1, r))
}
