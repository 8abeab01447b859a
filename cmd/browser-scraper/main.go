package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/LJTian/NewsWatch/internal/collector"
	"github.com/LJTian/NewsWatch/internal/logger"
)

// 需要执行脚本才能拿到正文的文章页，用 headless Chrome 渲染后提取
type extractRequest struct {
	URL string `json:"url"`
}

type extractResponse struct {
	OK    bool            `json:"ok"`
	Body  *collector.Body `json:"body,omitempty"`
	Error string          `json:"error,omitempty"`
}

func main() {
	lg, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	timeout := 20 * time.Second
	if v := os.Getenv("BROWSER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			timeout = d
		}
	}

	// 整个进程复用一个 headless 实例
	reader, err := collector.NewBrowserBodyReader(timeout, os.Getenv("BODY_SELECTOR"))
	if err != nil {
		lg.Error("start browser failed", logger.Err(err))
		os.Exit(1)
	}
	defer reader.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/extract", extractHandler(reader, lg))

	addr := ":" + getEnv("PORT", "4000")
	lg.Info("browser-scraper listening", logger.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		lg.Error("http server error", logger.Err(err))
	}
}

func extractHandler(reader collector.BodyReader, lg logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, extractResponse{Error: "invalid json"})
			return
		}
		if req.URL == "" {
			writeJSON(w, http.StatusBadRequest, extractResponse{Error: "url is required"})
			return
		}

		body, err := reader.Read(r.Context(), req.URL)
		if err != nil {
			lg.Warn("extract failed", logger.String("url", req.URL), logger.Err(err))
			writeJSON(w, http.StatusOK, extractResponse{Error: err.Error()})
			return
		}
		if len(body.Lines) == 0 {
			writeJSON(w, http.StatusOK, extractResponse{Error: "empty content"})
			return
		}
		writeJSON(w, http.StatusOK, extractResponse{OK: true, Body: &body})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
