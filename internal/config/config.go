package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// 設定ディレクトリ名
const appName = "padpointer"

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Device  DeviceConfig  `toml:"device" yaml:"device" json:"device"`
	Screen  ScreenConfig  `toml:"screen" yaml:"screen" json:"screen"`
	Sink    SinkConfig    `toml:"sink" yaml:"sink" json:"sink"`
	Logging LoggingConfig `toml:"logging" yaml:"logging" json:"logging"`
	API     APIConfig     `toml:"api" yaml:"api" json:"api"`
}

// DeviceConfig は入力トラックパッドの設定
type DeviceConfig struct {
	// 空の場合は/dev/input/by-pathから自動検出する
	Path        string        `toml:"path" yaml:"path" json:"path"`
	Grab        bool          `toml:"grab" yaml:"grab" json:"grab"`
	WaitTimeout time.Duration `toml:"wait_timeout" yaml:"wait_timeout" json:"wait_timeout"`
}

// ScreenConfig は出力先の解像度の設定
type ScreenConfig struct {
	Source      string `toml:"source" yaml:"source" json:"source"` // fixed | framebuffer
	Width       int    `toml:"width" yaml:"width" json:"width"`
	Height      int    `toml:"height" yaml:"height" json:"height"`
	Framebuffer string `toml:"framebuffer" yaml:"framebuffer" json:"framebuffer"`
}

// SinkConfig はポインター出力先の設定
type SinkConfig struct {
	Kind         string        `toml:"kind" yaml:"kind" json:"kind"` // uinput | websocket
	UinputPath   string        `toml:"uinput_path" yaml:"uinput_path" json:"uinput_path"`
	Name         string        `toml:"name" yaml:"name" json:"name"`
	WsURL        string        `toml:"ws_url" yaml:"ws_url" json:"ws_url"`
	PingInterval time.Duration `toml:"ping_interval" yaml:"ping_interval" json:"ping_interval"`
	PongTimeout  time.Duration `toml:"pong_timeout" yaml:"pong_timeout" json:"pong_timeout"`
}

// LoggingConfig はログ出力の設定
type LoggingConfig struct {
	Level string `toml:"level" yaml:"level" json:"level"`
	File  string `toml:"file" yaml:"file" json:"file"`
}

// APIConfig は状態確認用APIサーバーの設定
type APIConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled" json:"enabled"`
	Port    int  `toml:"port" yaml:"port" json:"port"`
}

const (
	ScreenFixed       = "fixed"
	ScreenFramebuffer = "framebuffer"

	SinkUinput    = "uinput"
	SinkWebsocket = "websocket"
)

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Path: "",
			Grab: true,
		},
		Screen: ScreenConfig{
			Source:      ScreenFixed,
			Width:       1920,
			Height:      1080,
			Framebuffer: "/sys/class/graphics/fb0/virtual_size",
		},
		Sink: SinkConfig{
			Kind:         SinkUinput,
			UinputPath:   "/dev/uinput",
			Name:         appName,
			WsURL:        "ws://127.0.0.1:8000/ws/pointer",
			PingInterval: 2 * time.Second,
			PongTimeout:  8 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		API: APIConfig{
			Enabled: false,
			Port:    8080,
		},
	}
}

// GetDefaultConfigDir は設定ファイルを置くディレクトリを返す
func GetDefaultConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("ホームディレクトリの取得に失敗しました: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// DefaultConfigPath はデフォルトの設定ファイルのパスを返す
func DefaultConfigPath() (string, error) {
	dir, err := GetDefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadConfig は設定ファイルから設定を読み込む
// 拡張子が.yaml/.ymlならYAML、それ以外はTOMLとして扱う
func LoadConfig(configPath string) (*Config, error) {
	// デフォルト設定を用意
	config := DefaultConfig()

	// ファイルが存在しない場合はデフォルト設定を保存して返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return config, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}

	if isYAML(configPath) {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return config, fmt.Errorf("YAMLの解析に失敗しました: %w", err)
		}
	} else {
		md, err := toml.Decode(string(data), config)
		if err != nil {
			return config, fmt.Errorf("TOMLの解析に失敗しました: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return config, fmt.Errorf("不明な設定項目があります: %v", undecoded)
		}
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// SaveConfig は設定をファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	// 設定ディレクトリの作成
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if isYAML(configPath) {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(config); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	} else {
		if err := toml.NewEncoder(&buf).Encode(config); err != nil {
			return err
		}
	}

	return os.WriteFile(configPath, buf.Bytes(), 0644)
}

// Validate は設定値の整合性を確認する
func (c *Config) Validate() error {
	switch c.Screen.Source {
	case ScreenFixed:
		if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
			return fmt.Errorf("screen.width と screen.height は正の値が必要です (%dx%d)", c.Screen.Width, c.Screen.Height)
		}
	case ScreenFramebuffer:
		if c.Screen.Framebuffer == "" {
			return errors.New("screen.framebuffer が空です")
		}
	default:
		return fmt.Errorf("screen.source が不正です: %q", c.Screen.Source)
	}

	switch c.Sink.Kind {
	case SinkUinput:
		if c.Sink.UinputPath == "" {
			return errors.New("sink.uinput_path が空です")
		}
	case SinkWebsocket:
		if c.Sink.WsURL == "" {
			return errors.New("sink.ws_url が空です")
		}
		if c.Sink.PingInterval <= 0 || c.Sink.PongTimeout <= 0 {
			return errors.New("sink.ping_interval と sink.pong_timeout は正の値が必要です")
		}
	default:
		return fmt.Errorf("sink.kind が不正です: %q", c.Sink.Kind)
	}

	if c.Device.WaitTimeout < 0 {
		return errors.New("device.wait_timeout は0以上が必要です")
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port が範囲外です: %d", c.API.Port)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
