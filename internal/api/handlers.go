package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zjjyyyk/photo-site/config"
	"github.com/zjjyyyk/photo-site/internal/models"
	"github.com/zjjyyyk/photo-site/pkg/catalog"
	"github.com/zjjyyyk/photo-site/pkg/ingest"
	"github.com/zjjyyyk/photo-site/pkg/naming"
)

// APIHandlers 持有所有依赖
type APIHandlers struct {
	store    *catalog.Store
	ingestor *ingest.Ingestor
	cfg      *config.Config
	logger   *slog.Logger
}

// NewAPIHandlers 创建一个新的API处理器实例
func NewAPIHandlers(store *catalog.Store, ingestor *ingest.Ingestor, cfg *config.Config, logger *slog.Logger) *APIHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandlers{
		store:    store,
		ingestor: ingestor,
		cfg:      cfg,
		logger:   logger,
	}
}

// --- 辅助函数 ---

// respondJSON 辅助函数，用于统一返回JSON响应
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError 辅助函数，用于统一返回错误信息
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// allowedType 检查文件扩展名是否在允许的图片类型里
func (h *APIHandlers) allowedType(fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if ext == allowed {
			return true
		}
	}
	return false
}

// stageUpload 把一个上传文件写到资源目录下的暂存名
func (h *APIHandlers) stageUpload(hdr *multipart.FileHeader) (string, error) {
	src, err := hdr.Open()
	if err != nil {
		return "", fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer src.Close()

	stagedPath := filepath.Join(h.cfg.Storage.ImagesDir, naming.StagedName(hdr.Filename))
	dst, err := os.Create(stagedPath)
	if err != nil {
		return "", fmt.Errorf("创建暂存文件失败: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(stagedPath)
		return "", fmt.Errorf("写入暂存文件失败: %w", err)
	}
	return stagedPath, nil
}

// --- 分类处理器 ---

func (h *APIHandlers) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.Categories()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "获取分类失败: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *APIHandlers) HandleGetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.store.FindCategory(chi.URLParam(r, "categoryID"))
	if err != nil {
		if errors.Is(err, catalog.ErrCategoryNotFound) {
			respondError(w, http.StatusNotFound, "分类不存在")
		} else {
			respondError(w, http.StatusInternalServerError, "获取分类失败: "+err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, category)
}

func (h *APIHandlers) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.cfg.Upload.MaxFileSizeBytes()); err != nil {
		respondError(w, http.StatusBadRequest, "无法解析表单: "+err.Error())
		return
	}

	name := r.FormValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "缺少 'name' 字段")
		return
	}
	nameEn := r.FormValue("nameEn")
	sortWeight, _ := strconv.Atoi(r.FormValue("sortWeight"))

	id := r.FormValue("id")
	if id == "" {
		id = naming.DeriveCategoryID(name, nameEn)
	}
	if id == "" {
		respondError(w, http.StatusBadRequest, "无法从名称推导分类ID")
		return
	}

	// 封面图可选；与照片一样落在资源目录，但保留暂存名不参与重命名
	coverImage := ""
	if file, hdr, err := r.FormFile("coverImage"); err == nil {
		file.Close()
		if !h.allowedType(hdr.Filename) {
			respondError(w, http.StatusBadRequest, "只允许上传图片文件！")
			return
		}
		if hdr.Size > h.cfg.Upload.MaxFileSizeBytes() {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("文件太大，限制为 %dMB", h.cfg.Upload.MaxFileSizeMB))
			return
		}
		stagedPath, err := h.stageUpload(hdr)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "保存封面图片失败")
			return
		}
		coverImage = "/images/" + filepath.Base(stagedPath)
	}

	if nameEn == "" {
		nameEn = name
	}
	category := models.Category{
		ID:          id,
		Name:        name,
		NameEn:      nameEn,
		Description: r.FormValue("description"),
		CoverImage:  coverImage,
		Photos:      []models.Photo{},
		SortWeight:  sortWeight,
		CreatedAt:   time.Now(),
	}

	if err := h.store.AddCategory(category); err != nil {
		if errors.Is(err, catalog.ErrCategoryExists) {
			respondError(w, http.StatusBadRequest, "分类已存在")
		} else {
			respondError(w, http.StatusInternalServerError, "保存分类失败: "+err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, category)
}

func (h *APIHandlers) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.DeleteCategory(chi.URLParam(r, "categoryID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "删除分类失败: "+err.Error())
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, "分类不存在")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "分类删除成功"})
}

// --- 照片上传处理器 ---

func (h *APIHandlers) HandleUploadPhotos(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "categoryID")

	// 在暂存任何文件之前先确认分类存在，校验失败不做任何部分工作
	if _, err := h.store.FindCategory(categoryID); err != nil {
		if errors.Is(err, catalog.ErrCategoryNotFound) {
			respondError(w, http.StatusNotFound, "分类不存在")
		} else {
			respondError(w, http.StatusInternalServerError, "获取分类失败: "+err.Error())
		}
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "无法解析表单: "+err.Error())
		return
	}

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "没有上传文件")
		return
	}
	if len(files) > h.cfg.Upload.MaxFiles {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("一次最多上传 %d 个文件", h.cfg.Upload.MaxFiles))
		return
	}
	for _, hdr := range files {
		if !h.allowedType(hdr.Filename) {
			respondError(w, http.StatusBadRequest, "只允许上传图片文件！")
			return
		}
		if hdr.Size > h.cfg.Upload.MaxFileSizeBytes() {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("文件太大，限制为 %dMB", h.cfg.Upload.MaxFileSizeMB))
			return
		}
	}

	staged := make([]ingest.StagedFile, 0, len(files))
	for _, hdr := range files {
		stagedPath, err := h.stageUpload(hdr)
		if err != nil {
			// 暂存中途失败：清掉本请求已写入的文件，不留半批
			for _, f := range staged {
				os.Remove(f.Path)
			}
			respondError(w, http.StatusInternalServerError, "保存上传文件失败")
			return
		}
		staged = append(staged, ingest.StagedFile{
			Path:         stagedPath,
			OriginalName: hdr.Filename,
			Size:         hdr.Size,
		})
	}

	meta := map[string]models.PhotoMeta{}
	if photoData := r.FormValue("photoData"); photoData != "" {
		if err := json.Unmarshal([]byte(photoData), &meta); err != nil {
			h.logger.Warn("照片元数据解析失败，使用默认值", "error", err)
			meta = map[string]models.PhotoMeta{}
		}
	}

	result, err := h.ingestor.IngestBatch(r.Context(), categoryID, staged, meta)
	if err != nil {
		if errors.Is(err, catalog.ErrCategoryNotFound) {
			respondError(w, http.StatusNotFound, "分类不存在")
		} else {
			respondError(w, http.StatusInternalServerError, "保存照片数据失败: "+err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "照片上传成功",
		"photos":     result.Photos,
		"totalCount": result.TotalCount,
	})
}
