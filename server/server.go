package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minifm/config"
	"minifm/core/auth"
	"minifm/core/blob"
	"minifm/core/ingest"
	"minifm/db"
	"minifm/logger"
	"minifm/model"
	"minifm/repository"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	})

	musicRepo, err := repository.NewMusicRepository(cfg.MusicDataFile)
	if err != nil {
		logger.Fatal("初始化音乐目录失败", logger.ErrorField(err))
	}
	defer musicRepo.Close()

	userRepo, err := repository.NewUserRepository(cfg.UserDataFile)
	if err != nil {
		logger.Fatal("初始化用户存储失败", logger.ErrorField(err))
	}
	defer userRepo.Close()

	// 会话存储：优先Redis，连接失败时退化为进程内存储（重启后令牌失效）
	var tokens auth.TokenStore
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("连接Redis失败，使用内存会话存储", logger.ErrorField(err))
		tokens = auth.NewMemoryTokenStore()
	} else {
		defer db.CloseRedis()
		tokens = auth.NewRedisTokenStore(db.RedisClient)
		logger.Info("已连接Redis会话存储")
	}

	seedAdminUser(userRepo, cfg)

	blobs := blob.NewStore(cfg.FilesDir)
	pipeline := ingest.NewPipeline(blobs, musicRepo)

	musicHandler := NewMusicHandler(musicRepo, blobs, pipeline, cfg)
	authHandler := NewAuthHandler(userRepo, tokens, cfg)
	userHandler := NewUserHandler(userRepo, tokens, cfg)

	router := mux.NewRouter()
	router.Use(LoggingMiddleware)

	// CORS中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 认证相关
	router.HandleFunc("/auth/login", authHandler.LoginHandler).Methods(http.MethodPost)

	// 音乐目录
	router.HandleFunc("/music/list", authHandler.AuthMiddleware(musicHandler.ListHandler)).Methods(http.MethodGet)
	router.HandleFunc("/music/upload", authHandler.AuthMiddleware(musicHandler.UploadHandler)).Methods(http.MethodPost)
	router.HandleFunc("/music/{id}", authHandler.AuthMiddleware(musicHandler.DeleteHandler)).Methods(http.MethodDelete)

	// 流媒体端点不做鉴权，id本身即不可猜测的引用
	router.HandleFunc("/music/stream/{id}", musicHandler.StreamHandler).Methods(http.MethodGet)
	router.HandleFunc("/music/cover/{id}", musicHandler.CoverHandler).Methods(http.MethodGet)

	// 用户管理
	router.HandleFunc("/users/create", authHandler.AuthMiddleware(userHandler.CreateHandler)).Methods(http.MethodPost)
	router.HandleFunc("/users/delete", authHandler.AuthMiddleware(userHandler.DeleteHandler)).Methods(http.MethodPost)
	router.HandleFunc("/users/kick", authHandler.AuthMiddleware(userHandler.KickHandler)).Methods(http.MethodPost)
	router.HandleFunc("/users/list", authHandler.AuthMiddleware(userHandler.ListHandler)).Methods(http.MethodGet)

	server := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// 流媒体响应可能远超固定的写超时，这里不设置
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("服务器启动", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("服务器强制关闭", logger.ErrorField(err))
	}

	logger.Info("服务器已停止")
}

// seedAdminUser creates the admin account on first start. Without it the
// user store begins empty and nobody could log in.
func seedAdminUser(users *repository.UserRepository, cfg *config.Config) {
	if cfg.AdminPassword == "" {
		logger.Warn("未配置ADMIN_PASSWORD，跳过管理员初始化")
		return
	}
	if _, exists := users.FindByUsername(cfg.AdminUsername); exists {
		return
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		logger.Fatal("管理员密码加密失败", logger.ErrorField(err))
	}
	admin := model.User{
		ID:           uuid.NewString(),
		Username:     cfg.AdminUsername,
		PasswordHash: hash,
		Roles:        []string{model.RoleAdmin, model.RoleUser},
	}
	if err := users.Save(admin); err != nil {
		logger.Fatal("初始化管理员失败", logger.ErrorField(err))
	}
	logger.Info("已初始化管理员账户", logger.String("username", cfg.AdminUsername))
}
