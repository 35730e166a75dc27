package features

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/lunixbochs/struc"

	"github.com/char5742/padpointer/internal/consts"
	"github.com/char5742/padpointer/internal/event"
	"github.com/char5742/padpointer/internal/types"
	"github.com/char5742/padpointer/internal/utils"
)

// Pointer は絶対座標で操作する仮想マウスを表すインターフェース
type Pointer interface {
	MoveTo(x, y int) error
	Press(button event.ButtonCode) error
	Release(button event.ButtonCode) error
	io.Closer
}

type virtualPointer struct {
	deviceFile io.WriteCloser
	destroy    func() error
}

// CreatePointer は幅width・高さheightの座標範囲を持つ仮想マウスを作成する
func CreatePointer(path string, name []byte, width, height int) (Pointer, error) {
	fd, err := createPointer(path, name, int32(width), int32(height))
	if err != nil {
		return nil, err
	}

	return &virtualPointer{
		deviceFile: fd,
		destroy:    func() error { return releaseDevice(fd) },
	}, nil
}

func (vp *virtualPointer) Close() error {
	if vp.destroy != nil {
		_ = vp.destroy()
	}
	return vp.deviceFile.Close()
}

func createPointer(path string, name []byte, width, height int32) (*os.File, error) {
	deviceFile, err := createDeviceFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not create absolute pointer device: %w", err)
	}

	// キー入力イベント(EV_KEY)を登録する
	if err = registerDevice(deviceFile, event.Key); err != nil {
		return nil, fmt.Errorf("キー入力イベント(EV_KEY)の登録に失敗しました: %w", err)
	}

	for _, btn := range []event.ButtonCode{event.BtnLeft, event.BtnRight, event.BtnMiddle} {
		if err = utils.IOCtl(deviceFile, consts.SetKeyBit, uintptr(btn)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("ボタンの登録に失敗しました %v: %w", btn, err)
		}
	}

	// 絶対座標入力イベント(EV_ABS)を登録する
	if err = registerDevice(deviceFile, event.Abs); err != nil {
		return nil, fmt.Errorf("絶対座標入力イベント(EV_ABS)の登録に失敗しました: %w", err)
	}

	if err := utils.IOCtl(deviceFile, consts.SetPropBit, consts.PropPointer); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("ポインターデバイスプロパティの設定に失敗しました: %w", err)
	}

	for _, axis := range []event.AxisCode{event.AbsX, event.AbsY} {
		if err = utils.IOCtl(deviceFile, consts.SetAbsBit, uintptr(axis)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("座標軸の登録に失敗しました %v: %w", axis, err)
		}
	}

	userDev := pointerUserDev(name, width, height)
	if err := createUinputDevice(deviceFile, userDev); err != nil {
		return nil, fmt.Errorf("仮想マウスの作成に失敗しました: %w", err)
	}

	return deviceFile, nil
}

// pointerUserDev はX/Y軸の範囲を設定したuinput_user_devを作る
func pointerUserDev(name []byte, width, height int32) types.UserDev {
	var absMax [consts.AbsSize]int32
	absMax[event.AbsX] = width
	absMax[event.AbsY] = height

	return types.UserDev{
		Name: toUinputName(name),
		ID: types.InputID{
			Bustype: consts.BusVirtual,
			Vendor:  0x4711,
			Product: 0x0818,
			Version: 1,
		},
		Absmax: absMax,
	}
}

// MoveTo はポインターを絶対座標へ移動する
func (vp *virtualPointer) MoveTo(x, y int) error {
	return writeEvents(vp.deviceFile, []types.Event{
		{Type: event.Abs, Code: uint16(event.AbsX), Value: int32(x)},
		{Type: event.Abs, Code: uint16(event.AbsY), Value: int32(y)},
		{Type: event.Syn, Code: event.SynReport, Value: 0},
	})
}

// Press はボタンを押下状態にする
func (vp *virtualPointer) Press(button event.ButtonCode) error {
	return vp.setButton(button, 1)
}

// Release はボタンを離す
func (vp *virtualPointer) Release(button event.ButtonCode) error {
	return vp.setButton(button, 0)
}

func (vp *virtualPointer) setButton(button event.ButtonCode, value int32) error {
	return writeEvents(vp.deviceFile, []types.Event{
		{Type: event.Key, Code: uint16(button), Value: value},
		{Type: event.Syn, Code: event.SynReport, Value: 0},
	})
}

// デバイスファイルを作成する
func createDeviceFile(path string) (*os.File, error) {
	deviceFile, err := os.OpenFile(path, syscall.O_WRONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("デバイスファイルを開くのに失敗しました: %w", err)
	}
	return deviceFile, nil
}

// デバイスを解放する
func releaseDevice(deviceFile *os.File) error {
	return utils.IOCtl(deviceFile, consts.DevDestroy, uintptr(0))
}

// デバイスにイベント種別を登録する。失敗した場合はファイルを閉じる
func registerDevice(deviceFile *os.File, evType uintptr) error {
	if err := utils.IOCtl(deviceFile, consts.SetEvBit, evType); err != nil {
		_ = deviceFile.Close()
		return err
	}
	return nil
}

// uinput_user_devを書き込んでデバイスを作成する
func createUinputDevice(deviceFile *os.File, dev types.UserDev) error {
	buf, err := packUserDev(dev)
	if err != nil {
		_ = deviceFile.Close()
		return err
	}
	if _, err := deviceFile.Write(buf); err != nil {
		_ = deviceFile.Close()
		return fmt.Errorf("デバイス構造体をデバイスファイルに書き込むのに失敗しました: %w", err)
	}

	if err := utils.IOCtl(deviceFile, consts.DevCreate, uintptr(0)); err != nil {
		_ = deviceFile.Close()
		return fmt.Errorf("デバイスの作成に失敗しました: %w", err)
	}
	return nil
}

func packUserDev(dev types.UserDev) ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.PackWithOptions(&buf, &dev, &struc.Options{Order: binary.LittleEndian}); err != nil {
		return nil, fmt.Errorf("ユーザーデバイスバッファの書き込みに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// イベントをまとめて書き込む
func writeEvents(w io.Writer, events []types.Event) error {
	var buf bytes.Buffer
	for _, ev := range events {
		if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
			return fmt.Errorf("イベントをバッファに書き込むのに失敗しました: %w", err)
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("イベントの書き込みに失敗しました: %w", err)
	}
	return nil
}

// 名前をuinput用の固定長配列に変換する
func toUinputName(name []byte) [consts.MaxNameSize]byte {
	var fixedSizeName [consts.MaxNameSize]byte
	copy(fixedSizeName[:], name)
	return fixedSizeName
}
