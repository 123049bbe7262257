// Package exifmeta 封装 EXIF 提取这个外部协作方。
// 提取是尽力而为：任何字段缺失都是正常情况，调用方把 nil 当作"没有 EXIF"。
package exifmeta

import (
	"fmt"

	exiftool "github.com/barasher/go-exiftool"

	"github.com/zjjyyyk/photo-site/internal/models"
)

// Extractor 从图片文件中提取拍摄参数。没有可用信息时返回 (nil, nil)。
type Extractor interface {
	Extract(filePath string) (*models.ExifInfo, error)
	Close()
}

type exiftoolExtractor struct {
	et *exiftool.Exiftool
}

// New 创建基于 exiftool 命令的提取器。
// 系统中没有安装 exiftool 时返回错误，调用方应降级为不提取。
func New() (Extractor, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("初始化 exiftool 失败: %w", err)
	}
	return &exiftoolExtractor{et: et}, nil
}

func (e *exiftoolExtractor) Close() {
	e.et.Close()
}

func (e *exiftoolExtractor) Extract(filePath string) (*models.ExifInfo, error) {
	metas := e.et.ExtractMetadata(filePath)
	if len(metas) == 0 {
		return nil, nil
	}
	meta := metas[0]
	if meta.Err != nil {
		return nil, meta.Err
	}

	str := func(key string) string {
		v, err := meta.GetString(key)
		if err != nil {
			return ""
		}
		return v
	}

	info := &models.ExifInfo{
		Camera:       str("Model"),
		Lens:         str("LensModel"),
		Aperture:     str("Aperture"),
		ShutterSpeed: str("ShutterSpeed"),
		FocalLength:  str("FocalLength"),
		DateTaken:    str("DateTimeOriginal"),
		GPSLocation:  str("GPSPosition"),
	}
	if iso, err := meta.GetInt("ISO"); err == nil {
		info.ISO = int(iso)
	}

	if *info == (models.ExifInfo{}) {
		return nil, nil
	}
	return info, nil
}
