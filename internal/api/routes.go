package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/char5742/padpointer/internal/config"
	"github.com/char5742/padpointer/internal/features"
)

// ルートの設定
func (s *Server) setupRoutes(router *http.ServeMux) {
	// 設定関連のエンドポイント
	router.HandleFunc("GET /api/config", s.handleGetConfig)
	router.HandleFunc("POST /api/config/save", s.handleSaveConfig)

	// デバイス関連のエンドポイント
	router.HandleFunc("GET /api/devices", s.handleGetDevices)

	// サービス関連のエンドポイント
	router.HandleFunc("GET /api/status", s.handleStatus)
	router.HandleFunc("POST /api/service/start", s.handleStartService)
	router.HandleFunc("POST /api/service/stop", s.handleStopService)

	// ヘルスチェック用エンドポイント
	router.HandleFunc("GET /api/health", s.handleHealthCheck)
}

// 設定取得ハンドラ
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.GetConfig())
}

// 設定保存ハンドラ
// 本文を省略した場合は起動時の設定ファイルへ保存する
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var saveRequest struct {
		Path string `json:"path"`
	}

	if err := json.NewDecoder(r.Body).Decode(&saveRequest); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	configPath := saveRequest.Path
	if configPath == "" {
		configPath = s.configPath
	}
	if configPath == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "デフォルト設定ディレクトリの取得に失敗しました")
			return
		}
		configPath = path
	}

	if err := config.SaveConfig(configPath, s.GetConfig()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "設定の保存に失敗しました: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"path":   configPath,
	})
}

// デバイス一覧取得ハンドラ
func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.scanDevices()
	if err != nil && !os.IsNotExist(err) {
		s.writeError(w, http.StatusInternalServerError, "デバイス一覧の取得に失敗しました: "+err.Error())
		return
	}
	if devices == nil {
		devices = []features.Device{}
	}

	s.writeJSON(w, http.StatusOK, devices)
}

// サービス状態取得ハンドラ
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Status())
}

// サービス起動ハンドラ
func (s *Server) handleStartService(w http.ResponseWriter, r *http.Request) {
	err := s.service.Start(r.Context())
	switch {
	case errors.Is(err, ErrServiceRunning):
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "サービスの起動に失敗しました: "+err.Error())
	default:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	}
}

// サービス停止ハンドラ
func (s *Server) handleStopService(w http.ResponseWriter, r *http.Request) {
	err := s.service.Stop()
	switch {
	case errors.Is(err, ErrServiceStopped):
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "not_running"})
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "サービスの停止に失敗しました: "+err.Error())
	default:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	}
}

// ヘルスチェックハンドラ
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
