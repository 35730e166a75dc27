package features

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/char5742/padpointer/internal/event"
)

// MoveMessage はリモートポインターへ送る移動メッセージ
type MoveMessage struct {
	T string `json:"t"`
	X int    `json:"x"`
	Y int    `json:"y"`
}

// ButtonMessage はリモートポインターへ送るボタンメッセージ
type ButtonMessage struct {
	T      string `json:"t"`
	Button string `json:"button"`
	Down   bool   `json:"down"`
}

const writeWait = 5 * time.Second

// remotePointer はwebsocket経由でポインター操作を送る
// pong などの制御フレームを処理するため読み取りループを常に動かす
type remotePointer struct {
	conn *websocket.Conn
	mu   sync.Mutex

	done      chan struct{}
	errC      chan error
	closeOnce sync.Once
}

// DialPointer はwsURLに接続してリモートポインターを作成する
func DialPointer(ctx context.Context, wsURL string, pingEvery, pongWait time.Duration) (Pointer, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}

	d := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		NetDialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
	}

	conn, _, err := d.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("リモートポインターへの接続に失敗しました: %w", err)
	}

	p := &remotePointer{
		conn: conn,
		done: make(chan struct{}),
		errC: make(chan error, 1),
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go p.readLoop()
	go p.pingLoop(pingEvery)
	return p, nil
}

func (p *remotePointer) MoveTo(x, y int) error {
	return p.send(MoveMessage{T: "move", X: x, Y: y})
}

func (p *remotePointer) Press(button event.ButtonCode) error {
	return p.send(ButtonMessage{T: "button", Button: button.String(), Down: true})
}

func (p *remotePointer) Release(button event.ButtonCode) error {
	return p.send(ButtonMessage{T: "button", Button: button.String()})
}

func (p *remotePointer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		p.mu.Unlock()
		err = p.conn.Close()
	})
	return err
}

func (p *remotePointer) send(msg any) error {
	select {
	case err := <-p.errC:
		// 一度失敗した接続は以降も失敗させる
		p.fail(err)
		return err
	default:
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, b)
}

func (p *remotePointer) fail(err error) {
	select {
	case p.errC <- err:
	default:
	}
}

func (p *remotePointer) readLoop() {
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			select {
			case <-p.done:
			default:
				p.fail(err)
			}
			return
		}
	}
}

func (p *remotePointer) pingLoop(pingEvery time.Duration) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-t.C:
			p.mu.Lock()
			err := p.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait))
			p.mu.Unlock()
			if err != nil {
				p.fail(err)
				return
			}
		}
	}
}
