package thumbnailer

import (
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"

	// 匿名导入 image 解码器
	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// URLPrefix 是缩略图对外服务的路径前缀。
const URLPrefix = "/images/thumbnail/"

// Generator 按目标文件名为源图片生成缩略图，返回对外可访问的 URL。
// 生成失败时调用方应回退到原图 URL，绝不因此中断上传。
type Generator interface {
	Generate(sourcePath, fileName string) (string, error)
}

type fileGenerator struct {
	thumbDir string
	width    int
	height   int
	quality  int
	logger   *slog.Logger
}

// New 创建文件缩略图生成器并确保输出目录存在。
// 产物是固定尺寸的居中裁切 JPEG（无论源图格式），
// 文件名与原图保持一致，便于原图和缩略图成对管理。
func New(thumbDir string, width, height, quality int, logger *slog.Logger) (Generator, error) {
	if err := os.MkdirAll(thumbDir, 0755); err != nil {
		return nil, fmt.Errorf("创建缩略图目录失败: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &fileGenerator{
		thumbDir: thumbDir,
		width:    width,
		height:   height,
		quality:  quality,
		logger:   logger,
	}, nil
}

func (g *fileGenerator) Generate(sourcePath, fileName string) (string, error) {
	target := filepath.Join(g.thumbDir, fileName)

	// 目标已存在时跳过，保证重复执行安全
	if _, err := os.Stat(target); err == nil {
		g.logger.Debug("缩略图已存在，跳过", "file", fileName)
		return URLPrefix + fileName, nil
	}

	src, err := imaging.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("解码源图片失败: %w", err)
	}

	thumb := imaging.Fill(src, g.width, g.height, imaging.Center, imaging.Lanczos)

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("创建缩略图文件失败: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: g.quality}); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("编码缩略图失败: %w", err)
	}

	g.logger.Debug("缩略图生成成功", "file", fileName)
	return URLPrefix + fileName, nil
}
