package config

import (
	"time"

	"github.com/spf13/viper"
)

type StorageConfig struct {
	// ImagesDir 是原图资源目录，所有上传的图片最终都落在这里。
	ImagesDir string `mapstructure:"imagesDir"`
	// ThumbnailDir 是缩略图目录，通常是 ImagesDir 下的 thumbnail 子目录。
	ThumbnailDir string `mapstructure:"thumbnailDir"`
	// DataFile 是图库目录数据的唯一持久化文件（JSON）。
	DataFile string `mapstructure:"dataFile"`
}

type UploadConfig struct {
	MaxFileSizeMB int      `mapstructure:"maxFileSizeMB"`
	MaxFiles      int      `mapstructure:"maxFiles"`
	AllowedTypes  []string `mapstructure:"allowedTypes"`
}

type ThumbnailConfig struct {
	Width   int `mapstructure:"width"`
	Height  int `mapstructure:"height"`
	Quality int `mapstructure:"quality"`
}

type Config struct {
	Server struct {
		Port    string        `mapstructure:"port"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"server"`

	Storage   StorageConfig   `mapstructure:"storage"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail"`

	Logger struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logger"`

	Exiftool struct {
		// Enabled 为 true 时尝试调用系统中的 exiftool 提取 EXIF；
		// 找不到该命令时服务端提取会被自动关闭，不影响上传。
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"exiftool"`
}

var C *Config

// LoadConfig 从指定目录读取 config.yaml 并填充全局配置 C。
func LoadConfig(path string) (err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("server.port", ":3001")
	v.SetDefault("server.timeout", "60s")
	v.SetDefault("storage.imagesDir", "public/images")
	v.SetDefault("storage.thumbnailDir", "public/images/thumbnail")
	v.SetDefault("storage.dataFile", "src/data/userCategories.json")
	v.SetDefault("upload.maxFileSizeMB", 10)
	v.SetDefault("upload.maxFiles", 20)
	v.SetDefault("upload.allowedTypes", []string{".jpg", ".jpeg", ".png", ".gif", ".webp"})
	v.SetDefault("thumbnail.width", 400)
	v.SetDefault("thumbnail.height", 300)
	v.SetDefault("thumbnail.quality", 80)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("exiftool.enabled", false)

	if err = v.ReadInConfig(); err != nil {
		return
	}

	err = v.Unmarshal(&C)
	return
}

// MaxFileSizeBytes 返回单个文件的字节数上限。
func (u UploadConfig) MaxFileSizeBytes() int64 {
	return int64(u.MaxFileSizeMB) << 20
}
