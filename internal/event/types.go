package event

// イベントタイプの定数（input-event-codes.hより）
const (
	Syn = 0x00 // 同期イベント
	Key = 0x01 // キーイベント
	Rel = 0x02 // 相対座標イベント
	Abs = 0x03 // 絶対座標イベント

	SynReport   = 0 // イベント報告の同期
	SynMtReport = 2 // タイプAマルチタッチの区切り
	SynDropped  = 3 // カーネル側バッファの溢れ
)

// ButtonCode はEV_KEYのうち扱うボタンのコード
type ButtonCode uint16

const (
	BtnLeft   ButtonCode = 0x110 // マウス左ボタン
	BtnRight  ButtonCode = 0x111 // マウス右ボタン
	BtnMiddle ButtonCode = 0x112 // マウス中ボタン
	BtnTouch  ButtonCode = 0x14a // タッチイベント
)

// AxisCode はEV_ABSの軸コード
type AxisCode uint16

const (
	AbsX            AxisCode = 0x00 // X軸の絶対座標
	AbsY            AxisCode = 0x01 // Y軸の絶対座標
	AbsPressure     AxisCode = 0x18 // 圧力
	AbsMtSlot       AxisCode = 0x2f // マルチタッチスロット
	AbsMtPositionX  AxisCode = 0x35 // マルチタッチのX座標
	AbsMtPositionY  AxisCode = 0x36 // マルチタッチのY座標
	AbsMtTrackingId AxisCode = 0x39 // タッチ追跡用ID
)

func (b ButtonCode) String() string {
	switch b {
	case BtnLeft:
		return "left"
	case BtnRight:
		return "right"
	case BtnMiddle:
		return "middle"
	case BtnTouch:
		return "touch"
	}
	return "unknown"
}

// Kind はRawEventの種別
type Kind int

const (
	KindOther Kind = iota
	KindSync
	KindButton
	KindAxis
	// KindDropped はカーネル側で読み落としが起きたことを表す
	KindDropped
)

// RawEvent はデバイスから読み取った1件のイベントを分類したもの
// Codeの解釈はKindによって決まる
type RawEvent struct {
	Kind  Kind
	Code  uint16
	Value int32
}

// Sync はフレーム境界のイベントを返す
func Sync() RawEvent {
	return RawEvent{Kind: KindSync}
}

// Dropped はSYN_DROPPEDを返す
func Dropped() RawEvent {
	return RawEvent{Kind: KindDropped, Code: SynDropped}
}

// Button はボタンイベントを返す
func Button(code ButtonCode, value int32) RawEvent {
	return RawEvent{Kind: KindButton, Code: uint16(code), Value: value}
}

// Axis は軸イベントを返す
func Axis(code AxisCode, value int32) RawEvent {
	return RawEvent{Kind: KindAxis, Code: uint16(code), Value: value}
}

// FromInput はカーネルのinput_eventの(type, code, value)を分類する
// SYN_REPORTとSYN_DROPPED以外の同期イベントはKindOtherになる
func FromInput(typ, code uint16, value int32) RawEvent {
	switch typ {
	case Syn:
		switch code {
		case SynReport:
			return Sync()
		case SynDropped:
			return Dropped()
		}
	case Key:
		return RawEvent{Kind: KindButton, Code: code, Value: value}
	case Abs:
		return RawEvent{Kind: KindAxis, Code: code, Value: value}
	}
	return RawEvent{Kind: KindOther, Code: code, Value: value}
}
