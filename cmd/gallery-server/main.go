package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/zjjyyyk/photo-site/config"
	"github.com/zjjyyyk/photo-site/internal/api"
	"github.com/zjjyyyk/photo-site/pkg/catalog"
	"github.com/zjjyyyk/photo-site/pkg/exifmeta"
	"github.com/zjjyyyk/photo-site/pkg/ingest"
	"github.com/zjjyyyk/photo-site/pkg/logger"
	"github.com/zjjyyyk/photo-site/pkg/thumbnailer"
)

func main() {
	// --- 1. 初始化 ---
	if err := config.LoadConfig("."); err != nil {
		log.Fatalf("FATAL: 无法加载配置: %v", err)
	}
	if err := logger.InitLogger(); err != nil {
		log.Fatalf("FATAL: 无法初始化日志: %v", err)
	}
	slog.Info("应用启动")
	defer slog.Info("应用关闭")

	// --- 2. 准备存储目录与目录文件 ---
	for _, dir := range []string{config.C.Storage.ImagesDir, config.C.Storage.ThumbnailDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("FATAL: 无法创建存储目录", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	store := catalog.NewStore(config.C.Storage.DataFile, config.C.Storage.ImagesDir, config.C.Storage.ThumbnailDir, slog.Default())
	if _, err := store.Load(); err != nil {
		slog.Error("FATAL: 无法初始化目录文件", "error", err)
		os.Exit(1)
	}
	slog.Info("目录文件就绪", "dataFile", config.C.Storage.DataFile)

	// --- 3. 创建核心服务实例 ---
	thumbs, err := thumbnailer.New(
		config.C.Storage.ThumbnailDir,
		config.C.Thumbnail.Width,
		config.C.Thumbnail.Height,
		config.C.Thumbnail.Quality,
		slog.Default(),
	)
	if err != nil {
		slog.Error("FATAL: 无法创建缩略图生成器", "error", err)
		os.Exit(1)
	}

	// EXIF 提取是可选能力，初始化失败只降级不退出
	var exif exifmeta.Extractor
	if config.C.Exiftool.Enabled {
		exif, err = exifmeta.New()
		if err != nil {
			slog.Warn("exiftool 不可用，服务端 EXIF 提取已关闭", "error", err)
			exif = nil
		} else {
			defer exif.Close()
			slog.Info("服务端 EXIF 提取已启用")
		}
	}

	ingestor := ingest.New(store, thumbs, exif, config.C.Storage.ImagesDir, slog.Default())
	slog.Info("入库流水线创建成功")

	// --- 4. 设置并启动HTTP服务器 ---
	router := api.RegisterRoutes(store, ingestor, config.C, slog.Default())

	server := &http.Server{
		Addr:         config.C.Server.Port,
		Handler:      router,
		ReadTimeout:  config.C.Server.Timeout,
		WriteTimeout: config.C.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("HTTP服务器正在启动...", "地址", config.C.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("无法启动HTTP服务器", "error", err)
		os.Exit(1)
	}
}
