package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/char5742/padpointer/internal/api"
	"github.com/char5742/padpointer/internal/config"
	"github.com/char5742/padpointer/internal/event"
	"github.com/char5742/padpointer/internal/features"
	"github.com/char5742/padpointer/internal/log"
)

// Globals は全コマンド共通のフラグ
type Globals struct {
	Config   string `help:"設定ファイルのパス (指定しない場合はデフォルトパスを使用)" placeholder:"PATH"`
	LogLevel string `help:"ログレベル (trace, debug, info, warn, error)" placeholder:"LEVEL"`
	LogFile  string `help:"ログの出力先ファイル" placeholder:"PATH"`
}

// CLI はコマンドライン全体の定義
type CLI struct {
	Globals

	Run       RunCmd        `cmd:"" default:"withargs" help:"ポインター変換を開始する"`
	Devices   DevicesCmd    `cmd:"" help:"トラックパッドの候補を一覧表示する"`
	ConfigCmd ConfigCommand `cmd:"" name:"config" help:"設定ファイルの操作"`
}

// configPath は使用する設定ファイルのパスを返す
func (g *Globals) configPath() (string, error) {
	if g.Config != "" {
		return g.Config, nil
	}
	return config.DefaultConfigPath()
}

// loadConfig は設定ファイルを読み込む
// 読み込みに失敗した場合もデフォルト設定とエラーを返す
func (g *Globals) loadConfig() (*config.Config, string, error) {
	path, err := g.configPath()
	if err != nil {
		return config.DefaultConfig(), "", err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.DefaultConfig(), path, err
	}
	return cfg, path, nil
}

func (g *Globals) applyLogging(cfg *config.Config) {
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if g.LogFile != "" {
		cfg.Logging.File = g.LogFile
	}
}

// RunCmd はポインター変換を実行する
type RunCmd struct {
	Device string        `help:"入力デバイスのパス (例: /dev/input/event5)" placeholder:"PATH"`
	NoGrab bool          `help:"入力デバイスを占有しない"`
	Wait   time.Duration `help:"トラックパッドが見つかるまで待つ時間"`
	Sink   string        `help:"ポインター出力先 (uinput, websocket)" placeholder:"KIND"`
	API    bool          `name:"api" help:"状態確認用APIサーバーを起動する"`
	Port   int           `help:"APIサーバーのポート番号"`
}

// apply はフラグで指定された値を設定に上書きする
func (r *RunCmd) apply(cfg *config.Config) {
	if r.Device != "" {
		cfg.Device.Path = r.Device
	}
	if r.NoGrab {
		cfg.Device.Grab = false
	}
	if r.Wait > 0 {
		cfg.Device.WaitTimeout = r.Wait
	}
	if r.Sink != "" {
		cfg.Sink.Kind = r.Sink
	}
	if r.API {
		cfg.API.Enabled = true
	}
	if r.Port > 0 {
		cfg.API.Port = r.Port
	}
}

func (r *RunCmd) Run(g *Globals) error {
	cfg, cfgPath, loadErr := g.loadConfig()
	r.apply(cfg)
	g.applyLogging(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closers, err := log.SetupLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("ロガーの設定に失敗しました: %w", err)
	}
	defer closeAll(closers)

	if loadErr != nil {
		logger.Warn("設定ファイルの読み込みに失敗しました。デフォルト設定を使用します", "path", cfgPath, "error", loadErr)
	} else {
		logger.Info("設定ファイルを読み込みました", "path", cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := api.NewPointerService(cfg, logger)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("ポインター変換サービスの起動に失敗しました: %w", err)
	}

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(cfg, cfgPath, svc, cfg.API.Port, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("APIサーバーの起動に失敗しました", "error", err)
				stop()
			}
		}()
		// APIからサービスを再起動できるのでシグナルまで待つ
		<-ctx.Done()
	} else {
		select {
		case <-ctx.Done():
		case <-svc.Done():
		}
	}

	logger.Info("シャットダウンします")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("APIサーバーの停止に失敗しました", "error", err)
		}
	}
	if err := svc.Stop(); err != nil && !errors.Is(err, api.ErrServiceStopped) {
		logger.Warn("サービスの停止に失敗しました", "error", err)
	}
	return svc.Err()
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

// DevicesCmd はトラックパッドの候補を表示する
type DevicesCmd struct {
	Details bool `help:"各デバイスを開いて名前と対応軸を表示する"`

	out  io.Writer
	open func(path string) (features.TrackpadDevice, error)
	scan func() ([]features.Device, error)
}

func (d *DevicesCmd) Run() error {
	out, open, scan := d.out, d.open, d.scan
	if out == nil {
		out = os.Stdout
	}
	if open == nil {
		open = features.OpenTrackpad
	}
	if scan == nil {
		scan = features.ScanDevices
	}

	devices, err := scan()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(out, "トラックパッドが見つかりません")
		return nil
	}

	for _, dev := range devices {
		fmt.Fprintf(out, "%s\t%s\n", dev.Path, dev.Name)
		if !d.Details {
			continue
		}
		tp, err := open(dev.Path)
		if err != nil {
			fmt.Fprintf(out, "\tオープンできません: %v\n", err)
			continue
		}
		axes := tp.SupportedAxes()
		fmt.Fprintf(out, "\tname=%q phys=%q slots=%t pressure=%t touch=%t\n",
			tp.Name(), tp.PhysicalPath(), axes[event.AbsMtSlot], axes[event.AbsPressure],
			tp.SupportedButtons()[event.BtnTouch])
		_ = tp.Close()
	}
	return nil
}

// ConfigCommand は設定ファイル関連のサブコマンド
type ConfigCommand struct {
	Init ConfigInit `cmd:"" help:"デフォルト設定ファイルを作成する"`
}

// ConfigInit はデフォルト設定を書き出す
// 拡張子が.yaml/.ymlならYAML、それ以外はTOMLで保存する
type ConfigInit struct {
	Path  string `arg:"" optional:"" help:"出力先のパス (省略時は--configかデフォルトパス)"`
	Force bool   `help:"既存のファイルを上書きする"`

	out io.Writer
}

func (c *ConfigInit) Run(g *Globals) error {
	dest := c.Path
	if dest == "" {
		path, err := g.configPath()
		if err != nil {
			return err
		}
		dest = path
	}

	if !c.Force {
		if _, err := os.Stat(dest); err == nil {
			return fmt.Errorf("ファイルが既に存在します: %s (--forceで上書き)", dest)
		}
	}

	if err := config.SaveConfig(dest, config.DefaultConfig()); err != nil {
		return fmt.Errorf("設定の保存に失敗しました: %w", err)
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "設定ファイルを作成しました: %s\n", dest)
	return nil
}
