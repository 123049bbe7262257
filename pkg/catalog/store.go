// Package catalog 实现图库目录的存储层。整个目录是一份 JSON 文档，
// 读入内存、修改、再整体原子重写，文件本身就是对外的数据接口。
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/zjjyyyk/photo-site/internal/models"
)

var (
	ErrCategoryExists   = errors.New("分类已存在")
	ErrCategoryNotFound = errors.New("分类不存在")
)

// Store 是目录文件的唯一写入者。内部互斥锁把"单写者"假设
// 变成强制约束：所有 load-mutate-save 都在锁内完成。
type Store struct {
	dataFile  string
	imagesDir string
	thumbDir  string

	mu     sync.Mutex
	logger *slog.Logger
}

// NewStore 创建目录存储。imagesDir / thumbDir 用于在删除分类时
// 将目录里记录的 URL 映射回磁盘上的资源文件。
func NewStore(dataFile, imagesDir, thumbDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dataFile:  dataFile,
		imagesDir: imagesDir,
		thumbDir:  thumbDir,
		logger:    logger,
	}
}

// Load 读取持久化的目录文档；文件不存在时初始化一份空目录并落盘。
func (s *Store) Load() (*models.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Update 在锁内执行一次完整的 load-mutate-save。
// fn 返回 (是否有变更, 错误)；只有报告了变更且没有错误时才会落盘。
func (s *Store) Update(fn func(c *models.Catalog) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.loadLocked()
	if err != nil {
		return err
	}
	dirty, err := fn(c)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	return s.saveLocked(c)
}

// Categories 返回所有分类的快照。
func (s *Store) Categories() ([]models.Category, error) {
	c, err := s.Load()
	if err != nil {
		return nil, err
	}
	return c.Categories, nil
}

// FindCategory 按 ID 查找分类，返回其副本；不存在时返回 ErrCategoryNotFound。
func (s *Store) FindCategory(id string) (*models.Category, error) {
	c, err := s.Load()
	if err != nil {
		return nil, err
	}
	cat := c.FindCategory(id)
	if cat == nil {
		return nil, ErrCategoryNotFound
	}
	snapshot := *cat
	return &snapshot, nil
}

// AddCategory 追加一个新分类；ID 已被占用时返回 ErrCategoryExists。
func (s *Store) AddCategory(category models.Category) error {
	return s.Update(func(c *models.Catalog) (bool, error) {
		if c.FindCategory(category.ID) != nil {
			return false, ErrCategoryExists
		}
		if category.Photos == nil {
			category.Photos = []models.Photo{}
		}
		category.TotalCount = len(category.Photos)
		c.Categories = append(c.Categories, category)
		return true, nil
	})
}

// AppendPhotos 把一批照片记录追加到指定分类并更新 TotalCount，
// 整批只触发一次落盘。返回分类的新照片总数。
func (s *Store) AppendPhotos(categoryID string, photos []models.Photo) (int, error) {
	var total int
	err := s.Update(func(c *models.Catalog) (bool, error) {
		cat := c.FindCategory(categoryID)
		if cat == nil {
			return false, ErrCategoryNotFound
		}
		cat.Photos = append(cat.Photos, photos...)
		cat.TotalCount = len(cat.Photos)
		total = cat.TotalCount
		return true, nil
	})
	return total, err
}

// DeleteCategory 删除分类及其全部资源文件（原图、缩略图、封面）。
// 返回值指示分类是否存在；资源文件缺失只记日志，不算失败。
func (s *Store) DeleteCategory(id string) (bool, error) {
	removed := false
	err := s.Update(func(c *models.Catalog) (bool, error) {
		idx := -1
		for i := range c.Categories {
			if c.Categories[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false, nil
		}

		cat := &c.Categories[idx]
		for _, photo := range cat.Photos {
			s.removeAsset(filepath.Join(s.imagesDir, path.Base(photo.URL)))
			if photo.ThumbnailURL != "" && photo.ThumbnailURL != photo.URL {
				s.removeAsset(filepath.Join(s.thumbDir, path.Base(photo.ThumbnailURL)))
			}
		}
		if cat.CoverImage != "" {
			s.removeAsset(filepath.Join(s.imagesDir, path.Base(cat.CoverImage)))
		}

		c.Categories = append(c.Categories[:idx], c.Categories[idx+1:]...)
		removed = true
		return true, nil
	})
	return removed, err
}

// removeAsset 删除一个资源文件，文件不存在时仅记录警告。
func (s *Store) removeAsset(p string) {
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("资源文件不存在，跳过删除", "path", p)
		} else {
			s.logger.Error("删除资源文件失败", "path", p, "error", err)
		}
	}
}

func (s *Store) loadLocked() (*models.Catalog, error) {
	data, err := os.ReadFile(s.dataFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("读取目录文件失败: %w", err)
		}
		// 首次访问：建立空目录文档作为持久化根
		c := &models.Catalog{Categories: []models.Category{}}
		if err := s.saveLocked(c); err != nil {
			return nil, err
		}
		return c, nil
	}

	var c models.Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("解析目录文件失败: %w", err)
	}
	if c.Categories == nil {
		c.Categories = []models.Category{}
	}
	for i := range c.Categories {
		if c.Categories[i].Photos == nil {
			c.Categories[i].Photos = []models.Photo{}
		}
	}
	return &c, nil
}

// saveLocked 先写临时文件再原子替换，失败时不会留下截断的目录文件。
func (s *Store) saveLocked(c *models.Catalog) error {
	if c.Categories == nil {
		c.Categories = []models.Category{}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化目录失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.dataFile), 0755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}

	tmp := s.dataFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入目录临时文件失败: %w", err)
	}
	if err := os.Rename(tmp, s.dataFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("替换目录文件失败: %w", err)
	}
	return nil
}
