package features

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultFramebufferPath はフレームバッファの仮想解像度を公開するsysfsのパス
const DefaultFramebufferPath = "/sys/class/graphics/fb0/virtual_size"

// FixedSurface は設定された固定の解像度を返す
type FixedSurface struct {
	Width  int
	Height int
}

func (f FixedSurface) Resolution() (int, int, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution %dx%d", f.Width, f.Height)
	}
	return f.Width, f.Height, nil
}

// FramebufferSurface はフレームバッファから解像度を読み取る
// 一度読めた値はキャッシュする
type FramebufferSurface struct {
	path string

	mu            sync.Mutex
	width, height int
	ok            bool
}

// NewFramebufferSurface は新しいFramebufferSurfaceを作成する
func NewFramebufferSurface(path string) *FramebufferSurface {
	if path == "" {
		path = DefaultFramebufferPath
	}
	return &FramebufferSurface{path: path}
}

func (f *FramebufferSurface) Resolution() (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ok {
		return f.width, f.height, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, 0, fmt.Errorf("フレームバッファの解像度を読み取れません: %w", err)
	}
	w, h, err := parseVirtualSize(string(data))
	if err != nil {
		return 0, 0, err
	}
	f.width, f.height, f.ok = w, h, true
	return w, h, nil
}

// parseVirtualSize は"1920,1080"形式の文字列を解析する
func parseVirtualSize(s string) (int, int, error) {
	ws, hs, found := strings.Cut(strings.TrimSpace(s), ",")
	if !found {
		return 0, 0, fmt.Errorf("unexpected virtual_size %q", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(ws))
	if err != nil {
		return 0, 0, fmt.Errorf("unexpected virtual_size %q: %w", s, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(hs))
	if err != nil {
		return 0, 0, fmt.Errorf("unexpected virtual_size %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("unexpected virtual_size %q", s)
	}
	return w, h, nil
}
