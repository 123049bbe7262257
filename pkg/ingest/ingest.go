// Package ingest 实现照片入库流水线：上传暂存文件经过元数据关联、
// 安全重命名、缩略图生成后合并成目录记录，整批一次性提交。
package ingest

import (
	"bytes"
	"context"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	// 匿名导入 image 解码器
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/zjjyyyk/photo-site/internal/models"
	"github.com/zjjyyyk/photo-site/pkg/catalog"
	"github.com/zjjyyyk/photo-site/pkg/exifmeta"
	"github.com/zjjyyyk/photo-site/pkg/hasher"
	"github.com/zjjyyyk/photo-site/pkg/naming"
	"github.com/zjjyyyk/photo-site/pkg/thumbnailer"
)

// 客户端未提供尺寸且图片无法解码时的兜底值
const (
	defaultWidth  = 800
	defaultHeight = 600
)

// StagedFile 描述一个已落盘到暂存名的上传文件。
type StagedFile struct {
	// Path 是暂存文件的当前位置（位于资源目录内）。
	Path string
	// OriginalName 是客户端提交的原始文件名，用作元数据关联键。
	OriginalName string
	Size         int64
}

// Result 是一个批次的入库结果。
type Result struct {
	Photos     []models.Photo
	TotalCount int
}

// Ingestor 顺序执行批次内每个文件的入库步骤。
// 顺序处理让命名冲突消解观察到一致的占用集合，确定性比吞吐量更重要。
type Ingestor struct {
	store     *catalog.Store
	thumbs    thumbnailer.Generator
	exif      exifmeta.Extractor // 可以为 nil，表示不做服务端提取
	imagesDir string
	logger    *slog.Logger
}

func New(store *catalog.Store, thumbs thumbnailer.Generator, exif exifmeta.Extractor, imagesDir string, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:     store,
		thumbs:    thumbs,
		exif:      exif,
		imagesDir: imagesDir,
		logger:    logger,
	}
}

// IngestBatch 把一批暂存文件入库到指定分类。
//
// 分类存在性在处理任何文件之前检查；单个文件的缩略图失败或重命名失败
// 只会降级（回退原图 URL / 保留暂存名），不会让整个批次失败。
// 目录只在所有文件处理完后提交一次；提交失败作为错误返回。
func (ing *Ingestor) IngestBatch(ctx context.Context, categoryID string, files []StagedFile, meta map[string]models.PhotoMeta) (*Result, error) {
	existing, err := ing.store.FindCategory(categoryID)
	if err != nil {
		return nil, err
	}

	// 占用集合以资源目录的现状为起点，跨请求的同名冲突也能被消解
	claimed := naming.ClaimedFromDir(ing.imagesDir)

	// 已入库照片的感知哈希，用于提示疑似重复上传
	knownHashes := make(map[string]string, existing.TotalCount)
	for _, p := range existing.Photos {
		if p.PerceptualHash != "" {
			knownHashes[p.PerceptualHash] = p.Title
		}
	}

	batchStart := time.Now()
	batchMs := batchStart.UnixMilli()

	photos := make([]models.Photo, 0, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		photos = append(photos, ing.ingestOne(file, i, batchStart, batchMs, meta, claimed, knownHashes))
	}

	total, err := ing.store.AppendPhotos(categoryID, photos)
	if err != nil {
		return nil, err
	}
	ing.logger.Info("批次入库完成", "category", categoryID, "count", len(photos), "totalCount", total)
	return &Result{Photos: photos, TotalCount: total}, nil
}

// ingestOne 执行单个文件的入库步骤。所有可恢复的失败都就地降级。
func (ing *Ingestor) ingestOne(file StagedFile, ordinal int, batchStart time.Time, batchMs int64, meta map[string]models.PhotoMeta, claimed map[string]struct{}, knownHashes map[string]string) models.Photo {
	m, displayName := lookupMeta(meta, file.OriginalName)

	ext := strings.ToLower(filepath.Ext(displayName))
	title := m.Title
	if title == "" {
		title = strings.TrimSuffix(displayName, filepath.Ext(displayName))
	}

	// 计算批次内唯一的安全文件名，并尝试把暂存文件挪过去。
	// 挪动失败时保留暂存名继续流水线，上传的文件永远不应丢失。
	base := naming.Sanitize(title, batchMs, "")
	finalName := naming.EnsureUnique(base, claimed, ext)
	claimed[finalName] = struct{}{}

	target := filepath.Join(ing.imagesDir, finalName)
	if err := os.Rename(file.Path, target); err != nil {
		ing.logger.Warn("重命名上传文件失败，保留暂存名", "file", file.OriginalName, "error", err)
		finalName = filepath.Base(file.Path)
		target = file.Path
	}

	photo := models.Photo{
		ID:           batchMs + int64(ordinal),
		URL:          "/images/" + finalName,
		ThumbnailURL: "/images/" + finalName,
		Title:        title,
		Description:  m.Description,
		Tags:         m.Tags,
		Exif:         m.Exif,
		Width:        m.Width,
		Height:       m.Height,
		UploadedAt:   batchStart,
		FileSize:     file.Size,
		OriginalName: file.OriginalName,
	}
	if photo.Tags == nil {
		photo.Tags = []string{}
	}

	ing.inspectImage(&photo, target, knownHashes)

	if photo.Width == 0 {
		photo.Width = defaultWidth
	}
	if photo.Height == 0 {
		photo.Height = defaultHeight
	}

	// 缩略图是尽力而为，失败时记录日志并回退到原图
	if thumbURL, err := ing.thumbs.Generate(target, finalName); err != nil {
		ing.logger.Warn("生成缩略图失败，回退到原图", "file", finalName, "error", err)
	} else {
		photo.ThumbnailURL = thumbURL
	}

	if photo.Exif == nil && ing.exif != nil {
		info, err := ing.exif.Extract(target)
		if err != nil {
			ing.logger.Debug("服务端 EXIF 提取失败", "file", finalName, "error", err)
		} else {
			photo.Exif = info
		}
	}

	return photo
}

// inspectImage 读取落盘后的文件，补全尺寸并计算内容哈希。
// 文件读不出来或解码失败都不致命，照片记录照常入库。
func (ing *Ingestor) inspectImage(photo *models.Photo, path string, knownHashes map[string]string) {
	data, err := os.ReadFile(path)
	if err != nil {
		ing.logger.Warn("读取入库文件失败", "path", path, "error", err)
		return
	}
	if photo.FileSize == 0 {
		photo.FileSize = int64(len(data))
	}
	photo.FileHash = hasher.SHA256FromBytes(data)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		ing.logger.Warn("图片解码失败，使用客户端提供的尺寸", "path", path, "error", err)
		return
	}
	bounds := img.Bounds()
	photo.Width = bounds.Dx()
	photo.Height = bounds.Dy()

	photo.PerceptualHash = hasher.PerceptualHash(img)
	if prev, ok := knownHashes[photo.PerceptualHash]; ok {
		ing.logger.Warn("检测到疑似重复上传", "title", photo.Title, "duplicateOf", prev)
	} else {
		knownHashes[photo.PerceptualHash] = photo.Title
	}
}

// lookupMeta 按原始文件名查找客户端元数据。
// 精确匹配失败时尝试修复 Latin-1 误读的文件名再查一次；
// 都找不到时返回零值元数据，绝不因编码问题报错。
// 第二个返回值是用于展示和命名的文件名（修复成功时用修复结果）。
func lookupMeta(meta map[string]models.PhotoMeta, originalName string) (models.PhotoMeta, string) {
	if m, ok := meta[originalName]; ok {
		return m, originalName
	}
	if fixed, ok := naming.FixEncoding(originalName); ok {
		if m, found := meta[fixed]; found {
			return m, fixed
		}
		return models.PhotoMeta{}, fixed
	}
	return models.PhotoMeta{}, originalName
}
