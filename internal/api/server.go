package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/char5742/padpointer/internal/config"
	"github.com/char5742/padpointer/internal/features"
)

// Service はAPIから操作するサービス
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	Status() ServiceStatus
}

// Server は状態確認用のAPIサーバーを表す構造体
type Server struct {
	server     *http.Server
	cfg        *config.Config
	configPath string
	service    Service
	logger     *slog.Logger
	mutex      sync.RWMutex
	port       int

	// デバイス一覧の取得元
	scanDevices func() ([]features.Device, error)
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(cfg *config.Config, configPath string, service Service, port int, logger *slog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		configPath:  configPath,
		service:     service,
		logger:      logger,
		port:        port,
		scanDevices: features.ScanDevices,
	}
}

// Handler はAPIのルーティングを設定したハンドラーを返す
func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()
	s.setupRoutes(router)
	return router
}

// Start はAPIサーバーを開始する。Stopが呼ばれるまで戻らない
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("APIサーバーの待ち受けに失敗しました: %w", err)
	}
	return s.Serve(ln)
}

// Serve は指定したリスナーでAPIサーバーを開始する
func (s *Server) Serve(ln net.Listener) error {
	s.mutex.Lock()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mutex.Unlock()

	s.logger.Info("APIサーバーを開始します", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop はAPIサーバーを停止する
func (s *Server) Stop(ctx context.Context) error {
	s.mutex.RLock()
	srv := s.server
	s.mutex.RUnlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("APIサーバーを停止します")
	return srv.Shutdown(ctx)
}

// GetConfig は現在の設定を返す
func (s *Server) GetConfig() *config.Config {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.cfg
}

// writeJSON はJSONレスポンスを書き込む
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Warn("JSONエンコードエラー", "error", err)
		}
	}
}

// writeError はエラーレスポンスを書き込む
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
