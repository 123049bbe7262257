// Package migrate 提供离线维护操作：把命名方案回溯应用到已有图库
// （原图和缩略图同步改名），以及为存量图片补生成缩略图。
// 两个操作都假设独占访问资源目录与目录文件（服务进程未运行）。
package migrate

import (
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjjyyyk/photo-site/internal/models"
	"github.com/zjjyyyk/photo-site/pkg/catalog"
	"github.com/zjjyyyk/photo-site/pkg/naming"
	"github.com/zjjyyyk/photo-site/pkg/thumbnailer"
)

// Rename 描述一次（计划中的或已执行的）文件改名。
type Rename struct {
	CategoryID string `json:"categoryId"`
	OldName    string `json:"oldName"`
	NewName    string `json:"newName"`
}

type Migrator struct {
	store     *catalog.Store
	imagesDir string
	thumbDir  string
	logger    *slog.Logger
}

func New(store *catalog.Store, imagesDir, thumbDir string, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		store:     store,
		imagesDir: imagesDir,
		thumbDir:  thumbDir,
		logger:    logger,
	}
}

// Plan 计算将要执行的全部改名，不触碰文件系统和目录文件。
// 与 Apply 共用同一段遍历逻辑，因此预览就是真实执行的精确预测。
func (m *Migrator) Plan() ([]Rename, error) {
	c, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	renames, _ := m.walk(c, false)
	return renames, nil
}

// Apply 执行批量改名：原图和缩略图（如果存在）同步挪动，
// 目录中的 URL 跟着更新。至少发生一次改名才会落盘目录文件。
// 返回计划的改名列表和实际成功执行的数量。
func (m *Migrator) Apply() ([]Rename, int, error) {
	var renames []Rename
	var renamed int
	err := m.store.Update(func(c *models.Catalog) (bool, error) {
		renames, renamed = m.walk(c, true)
		return renamed > 0, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return renames, renamed, nil
}

// walk 遍历目录中的全部照片，为每张未迁移的照片计算新文件名。
// apply 为 true 时同时执行改名并更新目录记录。
func (m *Migrator) walk(c *models.Catalog, apply bool) ([]Rename, int) {
	nowMs := time.Now().UnixMilli()
	claimed := make(map[string]struct{})
	var renames []Rename
	renamed := 0

	for ci := range c.Categories {
		cat := &c.Categories[ci]
		for pi := range cat.Photos {
			photo := &cat.Photos[pi]
			current := path.Base(photo.URL)
			currentPath := filepath.Join(m.imagesDir, current)

			if _, err := os.Stat(currentPath); err != nil {
				m.logger.Warn("原图不存在，跳过", "path", currentPath)
				continue
			}

			if naming.IsMigrated(current) {
				claimed[current] = struct{}{}
				continue
			}

			ext := filepath.Ext(current)
			ts := nowMs
			if !photo.UploadedAt.IsZero() {
				ts = photo.UploadedAt.UnixMilli()
			}
			base := naming.Sanitize(photo.Title, ts, "")
			newName := naming.EnsureUnique(base, claimed, ext)
			claimed[newName] = struct{}{}

			renames = append(renames, Rename{CategoryID: cat.ID, OldName: current, NewName: newName})
			if !apply {
				continue
			}

			if err := os.Rename(currentPath, filepath.Join(m.imagesDir, newName)); err != nil {
				m.logger.Error("重命名原图失败", "old", current, "new", newName, "error", err)
				continue
			}

			// 缩略图同步改名；不存在不算错误
			oldThumb := filepath.Join(m.thumbDir, current)
			if _, err := os.Stat(oldThumb); err == nil {
				if err := os.Rename(oldThumb, filepath.Join(m.thumbDir, newName)); err != nil {
					m.logger.Error("重命名缩略图失败", "old", current, "new", newName, "error", err)
				}
			}

			duplicated := photo.ThumbnailURL == photo.URL
			photo.URL = "/images/" + newName
			if duplicated {
				// 缩略图本来就回退到了原图，保持两者一致
				photo.ThumbnailURL = photo.URL
			} else if photo.ThumbnailURL != "" {
				photo.ThumbnailURL = thumbnailer.URLPrefix + newName
			}
			renamed++
			m.logger.Info("已重命名", "category", cat.ID, "old", current, "new", newName)
		}
	}

	return renames, renamed
}

// BackfillThumbnails 为资源目录中的所有图片补生成缩略图，
// 并把目录里的 thumbnailUrl 对齐到实际产物。只在有变更时落盘。
// 返回目录中被更新的照片数量。
func (m *Migrator) BackfillThumbnails(gen thumbnailer.Generator) (int, error) {
	updated := 0
	err := m.store.Update(func(c *models.Catalog) (bool, error) {
		entries, err := os.ReadDir(m.imagesDir)
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			if e.IsDir() || !isImageExtension(e.Name()) {
				continue
			}
			if _, err := gen.Generate(filepath.Join(m.imagesDir, e.Name()), e.Name()); err != nil {
				m.logger.Warn("生成缩略图失败", "file", e.Name(), "error", err)
			}
		}

		dirty := false
		for ci := range c.Categories {
			cat := &c.Categories[ci]
			for pi := range cat.Photos {
				photo := &cat.Photos[pi]
				fileName := path.Base(photo.URL)
				imagePath := filepath.Join(m.imagesDir, fileName)
				if _, err := os.Stat(imagePath); err != nil {
					m.logger.Warn("原图不存在，跳过", "path", imagePath)
					continue
				}
				thumbURL, err := gen.Generate(imagePath, fileName)
				if err != nil {
					m.logger.Warn("生成缩略图失败", "file", fileName, "error", err)
					continue
				}
				if photo.ThumbnailURL != thumbURL {
					photo.ThumbnailURL = thumbURL
					dirty = true
					updated++
				}
			}
		}
		return dirty, nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func isImageExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	default:
		return false
	}
}
