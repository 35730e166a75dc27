package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	inputDir  = "/dev/input"
	byPathDir = "/dev/input/by-path"

	// トラックパッドはby-pathで"event-mouse"として公開される
	trackpadMarker = "event-mouse"
)

// ErrNoDevice はトラックパッドが見つからないことを表す
var ErrNoDevice = errors.New("no trackpad device found")

// Device は検出した入力デバイス
type Device struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ScanDevices は/dev/input/by-pathからトラックパッドの候補を列挙する
func ScanDevices() ([]Device, error) {
	return scanDevices(byPathDir)
}

func scanDevices(dir string) ([]Device, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var devices []Device
	for _, entry := range entries {
		if !strings.Contains(entry.Name(), trackpadMarker) {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())
		realPath, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}

		// 相対リンクはby-pathディレクトリから解決する
		absPath := realPath
		if !filepath.IsAbs(realPath) {
			absPath = filepath.Clean(filepath.Join(dir, realPath))
		}
		devices = append(devices, Device{Name: entry.Name(), Path: absPath})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// FindDevice は最初に見つかったトラックパッドを返す
func FindDevice() (Device, error) {
	devices, err := ScanDevices()
	if err != nil && !os.IsNotExist(err) {
		return Device{}, fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
	}
	if len(devices) == 0 {
		return Device{}, ErrNoDevice
	}
	return devices[0], nil
}

// WaitForDevice はトラックパッドが接続されるまでtimeoutの間待つ
func WaitForDevice(ctx context.Context, timeout time.Duration, logger *slog.Logger) (Device, error) {
	return waitForDevice(ctx, timeout, []string{inputDir, byPathDir}, byPathDir, logger)
}

func waitForDevice(ctx context.Context, timeout time.Duration, watchDirs []string, scanDir string, logger *slog.Logger) (Device, error) {
	scan := func() (Device, bool) {
		devices, err := scanDevices(scanDir)
		if err != nil || len(devices) == 0 {
			return Device{}, false
		}
		return devices[0], true
	}

	if dev, ok := scan(); ok {
		return dev, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return Device{}, fmt.Errorf("ファイル監視の作成に失敗しました: %w", err)
	}
	defer watcher.Close()

	for _, dir := range watchDirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			logger.Warn("ディレクトリの監視に失敗しました", "dir", dir, "error", err)
			continue
		}
		logger.Debug("ディレクトリ監視を開始", "dir", dir)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// by-pathディレクトリ自体が後から作られる場合に備えて定期的にも確認する
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	logger.Info("トラックパッドの接続を待機しています", "timeout", timeout)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Device{}, ErrNoDevice
			}
			return Device{}, ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return Device{}, ErrNoDevice
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(scanDir) {
				_ = watcher.Add(scanDir)
			}
			if dev, ok := scan(); ok {
				return dev, nil
			}
		case <-ticker.C:
			if dev, ok := scan(); ok {
				return dev, nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return Device{}, ErrNoDevice
			}
			logger.Warn("ファイルシステム監視エラー", "error", err)
		}
	}
}
