package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/char5742/padpointer/internal/config"
	"github.com/char5742/padpointer/internal/event"
	"github.com/char5742/padpointer/internal/features"
	"github.com/char5742/padpointer/internal/trackpad"
)

var (
	ErrServiceRunning = errors.New("service already running")
	ErrServiceStopped = errors.New("service not running")
)

// DeviceInfo は使用中のトラックパッドの情報
type DeviceInfo struct {
	Name            string                     `json:"name"`
	Path            string                     `json:"path"`
	Phys            string                     `json:"phys"`
	SlotCapable     bool                       `json:"slot_capable"`
	TouchCapable    bool                       `json:"touch_capable"`
	PressureCapable bool                       `json:"pressure_capable"`
	Limits          trackpad.CalibrationLimits `json:"limits"`
}

// ServiceStatus はサービスの状態
type ServiceStatus struct {
	Running     bool                     `json:"running"`
	Device      *DeviceInfo              `json:"device,omitempty"`
	Frames      trackpad.Status          `json:"frames"`
	LastCommand *trackpad.PointerCommand `json:"last_command,omitempty"`
	LastError   string                   `json:"last_error,omitempty"`
}

// DeviceOpener はパスからトラックパッドを開く関数
type DeviceOpener func(path string) (features.TrackpadDevice, error)

// SinkFactory は設定と出力先の解像度からポインター出力先を作る関数
type SinkFactory func(ctx context.Context, cfg config.SinkConfig, surface trackpad.Surface) (features.Pointer, error)

// Option はPointerServiceの依存を差し替える
type Option func(*PointerService)

// WithDeviceOpener はトラックパッドを開く関数を差し替える
func WithDeviceOpener(open DeviceOpener) Option {
	return func(s *PointerService) { s.openDevice = open }
}

// WithSinkFactory はポインター出力先の生成を差し替える
func WithSinkFactory(f SinkFactory) Option {
	return func(s *PointerService) { s.newSink = f }
}

// WithSurface は出力先の解像度の取得元を差し替える
func WithSurface(surface trackpad.Surface) Option {
	return func(s *PointerService) { s.surface = surface }
}

// PointerService はトラックパッドから仮想ポインターへの変換サービスを管理する
type PointerService struct {
	cfg    *config.Config
	logger *slog.Logger

	openDevice DeviceOpener
	newSink    SinkFactory
	surface    trackpad.Surface

	statusMutex sync.RWMutex
	running     bool
	starting    bool
	cancel      context.CancelFunc
	done        chan struct{}
	info        *DeviceInfo
	mapper      *trackpad.Mapper
	dispatcher  *trackpad.Dispatcher
	lastErr     error
}

// NewPointerService は新しいPointerServiceを作成する
func NewPointerService(cfg *config.Config, logger *slog.Logger, opts ...Option) *PointerService {
	s := &PointerService{
		cfg:        cfg,
		logger:     logger,
		openDevice: features.OpenTrackpad,
		newSink:    defaultSink,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.surface == nil {
		s.surface = newSurface(cfg.Screen)
	}
	return s
}

func newSurface(cfg config.ScreenConfig) trackpad.Surface {
	if cfg.Source == config.ScreenFramebuffer {
		return features.NewFramebufferSurface(cfg.Framebuffer)
	}
	return features.FixedSurface{Width: cfg.Width, Height: cfg.Height}
}

func defaultSink(ctx context.Context, cfg config.SinkConfig, surface trackpad.Surface) (features.Pointer, error) {
	switch cfg.Kind {
	case config.SinkWebsocket:
		return features.DialPointer(ctx, cfg.WsURL, cfg.PingInterval, cfg.PongTimeout)
	default:
		// 仮想マウスの座標範囲は起動時の解像度で固定する
		w, h, err := surface.Resolution()
		if err != nil {
			return nil, fmt.Errorf("画面解像度の取得に失敗しました: %w", err)
		}
		return features.CreatePointer(cfg.UinputPath, []byte(cfg.Name), w, h)
	}
}

// Start はサービスを開始する
// ctxはデバイスの検出と接続にだけ使い、開始後の処理はStopまで続く
func (s *PointerService) Start(ctx context.Context) error {
	// デバイスの待機中も状態を参照できるようにロックは確定時だけ取る
	s.statusMutex.Lock()
	if s.running || s.starting {
		s.statusMutex.Unlock()
		return ErrServiceRunning
	}
	s.starting = true
	s.statusMutex.Unlock()
	defer func() {
		s.statusMutex.Lock()
		s.starting = false
		s.statusMutex.Unlock()
	}()

	path, err := s.resolveDevicePath(ctx)
	if err != nil {
		return err
	}

	dev, err := s.openDevice(path)
	if err != nil {
		return fmt.Errorf("トラックパッドのオープンに失敗しました[path=%s]: %w", path, err)
	}

	if s.cfg.Device.Grab {
		if err := dev.Grab(); err != nil {
			_ = dev.Close()
			return fmt.Errorf("トラックパッドの占有に失敗しました: %w", err)
		}
	}

	limits, err := trackpad.LimitsFromDevice(dev)
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("トラックパッドの較正情報を取得できません: %w", err)
	}

	axes := dev.SupportedAxes()
	info := &DeviceInfo{
		Name:            dev.Name(),
		Path:            path,
		Phys:            dev.PhysicalPath(),
		SlotCapable:     axes[event.AbsMtSlot],
		TouchCapable:    dev.SupportedButtons()[event.BtnTouch],
		PressureCapable: axes[event.AbsPressure],
		Limits:          limits,
	}
	s.logger.Info("トラックパッドを使用します",
		"name", info.Name, "path", info.Path, "phys", info.Phys,
		"slots", info.SlotCapable, "touch", info.TouchCapable, "pressure", info.PressureCapable)
	s.logger.Debug("較正情報",
		"x", []int32{limits.MinX, limits.MaxX},
		"y", []int32{limits.MinY, limits.MaxY},
		"p", []int32{limits.MinP, limits.MaxP})

	sink, err := s.newSink(ctx, s.cfg.Sink, s.surface)
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("ポインター出力先の作成に失敗しました: %w", err)
	}
	s.logger.Info("ポインター出力先を作成しました", "kind", s.cfg.Sink.Kind)

	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	s.mapper = trackpad.NewMapper(s.surface, sink, s.logger)
	s.dispatcher = trackpad.NewDispatcher(trackpad.NewState(limits, info.SlotCapable), s.mapper, s.logger)
	s.info = info
	s.lastErr = nil

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(runCtx, dev, sink, s.dispatcher, s.done)

	return nil
}

func (s *PointerService) resolveDevicePath(ctx context.Context) (string, error) {
	if s.cfg.Device.Path != "" {
		return s.cfg.Device.Path, nil
	}

	dev, err := features.FindDevice()
	if errors.Is(err, features.ErrNoDevice) && s.cfg.Device.WaitTimeout > 0 {
		dev, err = features.WaitForDevice(ctx, s.cfg.Device.WaitTimeout, s.logger)
	}
	if err != nil {
		return "", err
	}
	s.logger.Debug("トラックパッドを検出しました", "name", dev.Name, "path", dev.Path)
	return dev.Path, nil
}

// run はイベント処理のメインループ
func (s *PointerService) run(ctx context.Context, dev features.TrackpadDevice, sink features.Pointer, d *trackpad.Dispatcher, done chan struct{}) {
	s.logger.Info("ポインター変換を開始しました")

	err := d.Run(ctx, dev)

	// 処理中のフレームは完了しているので、出力先とデバイスを閉じる
	if cerr := sink.Close(); cerr != nil {
		s.logger.Warn("ポインター出力先のクローズに失敗しました", "error", cerr)
	}
	if cerr := dev.Close(); cerr != nil {
		s.logger.Warn("トラックパッドのクローズに失敗しました", "error", cerr)
	}

	s.statusMutex.Lock()
	s.running = false
	if ctx.Err() == nil {
		s.lastErr = err
	}
	s.statusMutex.Unlock()

	if ctx.Err() != nil {
		s.logger.Info("ポインター変換を停止しました")
	} else {
		s.logger.Error("入力の読み取りが終了しました", "error", err)
	}
	close(done)
}

// Stop はサービスを停止し、処理ループの終了を待つ
func (s *PointerService) Stop() error {
	s.statusMutex.Lock()
	if !s.running {
		s.statusMutex.Unlock()
		return ErrServiceStopped
	}
	s.cancel()
	done := s.done
	s.statusMutex.Unlock()

	<-done
	return nil
}

// Done は処理ループが終了すると閉じられるチャネルを返す
func (s *PointerService) Done() <-chan struct{} {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.done
}

// IsRunning はサービスが実行中かどうかを返す
func (s *PointerService) IsRunning() bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.running
}

// Err は入力の終了によって停止した場合の原因を返す
func (s *PointerService) Err() error {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.lastErr
}

// Status はサービスの状態を返す
func (s *PointerService) Status() ServiceStatus {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()

	status := ServiceStatus{Running: s.running, Device: s.info}
	if s.dispatcher != nil {
		status.Frames = s.dispatcher.Status()
	}
	if s.mapper != nil {
		if cmd, ok := s.mapper.LastCommand(); ok {
			status.LastCommand = &cmd
		}
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}
