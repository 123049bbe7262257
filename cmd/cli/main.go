package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/zjjyyyk/photo-site/config"
	"github.com/zjjyyyk/photo-site/pkg/catalog"
	"github.com/zjjyyyk/photo-site/pkg/migrate"
	"github.com/zjjyyyk/photo-site/pkg/thumbnailer"
)

func main() {
	// --- 1. 定义命令行参数 ---
	action := flag.String("action", "rename-preview", "要执行的操作: rename-preview, rename, thumbnails")
	flag.Parse()

	// --- 2. 初始化应用核心组件 ---
	// 维护操作假设独占访问：运行前请先停掉服务进程
	if err := config.LoadConfig("."); err != nil {
		log.Fatalf("FATAL: 无法加载配置: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	store := catalog.NewStore(config.C.Storage.DataFile, config.C.Storage.ImagesDir, config.C.Storage.ThumbnailDir, slog.Default())
	migrator := migrate.New(store, config.C.Storage.ImagesDir, config.C.Storage.ThumbnailDir, slog.Default())

	// --- 3. 根据 action 参数执行相应的功能 ---
	switch *action {
	case "rename-preview":
		fmt.Println("=== 预览模式：将要重命名的文件 ===")
		renames, err := migrator.Plan()
		if err != nil {
			slog.Error("计算重命名计划失败", "error", err)
			os.Exit(1)
		}
		for _, r := range renames {
			fmt.Printf("  [%s] %s -> %s\n", r.CategoryID, r.OldName, r.NewName)
		}
		fmt.Printf("\n将要重命名 %d 个文件\n", len(renames))
		fmt.Println("运行 -action rename 来执行重命名")

	case "rename":
		slog.Info("开始批量重命名存量图片...")
		renames, renamed, err := migrator.Apply()
		if err != nil {
			slog.Error("批量重命名失败", "error", err)
			os.Exit(1)
		}
		slog.Info("批量重命名完成", "planned", len(renames), "renamed", renamed)

	case "thumbnails":
		slog.Info("开始为存量图片补生成缩略图...")
		thumbs, err := thumbnailer.New(
			config.C.Storage.ThumbnailDir,
			config.C.Thumbnail.Width,
			config.C.Thumbnail.Height,
			config.C.Thumbnail.Quality,
			slog.Default(),
		)
		if err != nil {
			slog.Error("无法创建缩略图生成器", "error", err)
			os.Exit(1)
		}
		updated, err := migrator.BackfillThumbnails(thumbs)
		if err != nil {
			slog.Error("补生成缩略图失败", "error", err)
			os.Exit(1)
		}
		slog.Info("缩略图补生成完成", "updated", updated)

	default:
		fmt.Printf("错误: 未知的 action '%s'\n", *action)
		flag.Usage()
		os.Exit(1)
	}
}
