package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"omegamusic/config"
	"omegamusic/logger"
	"omegamusic/payment"
	"omegamusic/storage"
	"omegamusic/store"
	"omegamusic/unlock"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})

	// 按配置选择存储后端，同一部署只会使用其中一种
	var backend store.Backend
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		redisBackend, err := store.NewRedisBackend(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to Redis store", logger.ErrorField(err))
		}
		backend = redisBackend
		logger.Info("Using Redis store backend",
			logger.String("host", cfg.RedisHost),
			logger.String("port", cfg.RedisPort))
	default:
		fileBackend, err := store.NewFileBackend(cfg.StoreFile)
		if err != nil {
			logger.Fatal("Failed to open file store", logger.ErrorField(err))
		}
		backend = fileBackend
		logger.Info("Using file store backend", logger.String("path", cfg.StoreFile))
	}
	defer backend.Close()

	ledger := store.NewLedger(backend, cfg.StoreBackend == config.StoreBackendRedis)

	// 文件模式下监听存储文件，其他进程写入时让缓存失效
	if fileBackend, ok := backend.(*store.FileBackend); ok {
		if err := fileBackend.Watch(ledger.Invalidate); err != nil {
			logger.Warn("store file watch unavailable", logger.ErrorField(err))
		}
	}

	var verifier *payment.Verifier
	var protocol *unlock.Protocol
	if cfg.TreasuryWallet != "" {
		v, err := payment.NewVerifier(cfg)
		if err != nil {
			logger.Fatal("Failed to initialize payment verifier", logger.ErrorField(err))
		}
		verifier = v
		protocol = unlock.NewProtocol(verifier, ledger)
		logger.Info("Payment verification enabled",
			logger.String("treasuryTokenAccount", verifier.TreasuryTokenAccount()),
			logger.Uint64("minPaymentRaw", cfg.MinPaymentRaw))
	} else {
		logger.Warn("TREASURY_WALLET not set, payment verification disabled")
	}

	// MinIO 可选；未配置时音频保存到本地目录
	var audioStore *storage.AudioStore
	if cfg.MinioEndpoint != "" {
		s, err := storage.NewAudioStore(cfg)
		if err != nil {
			logger.Fatal("Failed to initialize MinIO audio store", logger.ErrorField(err))
		}
		audioStore = s
		logger.Info("Audio blob store enabled", logger.String("bucket", cfg.MinioBucket))
	} else {
		logger.Info("Audio blob store not configured, using local audio directory",
			logger.String("dir", cfg.AudioDir))
	}

	apiHandler := NewAPIHandler(ledger, verifier, protocol, audioStore, cfg)

	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Track endpoints
	router.HandleFunc("/api/register-track", apiHandler.RegisterTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/track/validate", apiHandler.ValidateTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/track/{id}", apiHandler.GetTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/track/{id}", apiHandler.UpdateLyricsHandler).Methods(http.MethodPatch)
	router.HandleFunc("/api/track/{id}/listen", apiHandler.ListenHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/track/{id}/preview", apiHandler.PreviewHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/track/{id}/download", apiHandler.DownloadHandler).Methods(http.MethodGet)

	// Artist endpoints
	router.HandleFunc("/api/artists", apiHandler.GetArtistsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/artists", apiHandler.CreateArtistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/artists/{id}", apiHandler.UpdateArtistHandler).Methods(http.MethodPatch)
	router.HandleFunc("/api/artists/{id}", apiHandler.DeleteArtistHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/artist/by-slug", apiHandler.ArtistBySlugHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/artist/profile", apiHandler.ArtistProfileHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/artist/{id}/like", apiHandler.LikeArtistHandler).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/api/artist/{id}/tracks", apiHandler.ArtistTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/assign-track", apiHandler.AssignTrackHandler).Methods(http.MethodPost)

	// Payment and trending
	router.HandleFunc("/api/verify-payment", apiHandler.VerifyPaymentHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/trending", apiHandler.TrendingHandler).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // audio downloads may stream for a while
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}
