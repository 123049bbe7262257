package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zjjyyyk/photo-site/config"
	"github.com/zjjyyyk/photo-site/pkg/catalog"
	"github.com/zjjyyyk/photo-site/pkg/ingest"
)

// RegisterRoutes 注册所有API路由
func RegisterRoutes(store *catalog.Store, ingestor *ingest.Ingestor, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// --- 中间件 (Middleware) ---
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// 配置CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	handlers := NewAPIHandlers(store, ingestor, cfg, logger)

	// --- API路由 ---
	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", handlers.HandleListCategories)
		r.Post("/categories", handlers.HandleCreateCategory)
		r.Get("/categories/{categoryID}", handlers.HandleGetCategory)
		r.Post("/categories/{categoryID}/photos", handlers.HandleUploadPhotos)
		r.Delete("/categories/{categoryID}", handlers.HandleDeleteCategory)
	})

	// 原图和缩略图作为静态文件提供（缩略图目录位于资源目录之下）
	fileServer := http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.Storage.ImagesDir)))
	r.Get("/images/*", fileServer.ServeHTTP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
