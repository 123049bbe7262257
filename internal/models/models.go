package models

import "time"

// ExifInfo 是照片的拍摄参数。所有字段都是可选的：
// 客户端没有提供、服务端也提取不到时，整个结构体为 nil 且不会出现在 JSON 中。
type ExifInfo struct {
	Camera       string `json:"camera,omitempty"`
	Lens         string `json:"lens,omitempty"`
	ISO          int    `json:"iso,omitempty"`
	Aperture     string `json:"aperture,omitempty"`
	ShutterSpeed string `json:"shutterSpeed,omitempty"`
	FocalLength  string `json:"focalLength,omitempty"`
	DateTaken    string `json:"dateTaken,omitempty"`
	GPSLocation  string `json:"gpsLocation,omitempty"`
}

// Photo 代表一张已入库的照片，对应目录文件中 photos 数组的一个元素。
type Photo struct {
	// ID 由入库批次的毫秒时间戳加上文件在批次内的序号构成，
	// 同一批次内即使时间戳相同也能保证唯一。
	ID int64 `json:"id"`

	// URL 指向原图资源（/images/<文件名>）。
	URL string `json:"url"`

	// ThumbnailURL 指向缩略图；缩略图生成失败或被跳过时与 URL 相同。
	ThumbnailURL string `json:"thumbnailUrl"`

	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`

	Exif *ExifInfo `json:"exif,omitempty"`

	Width  int `json:"width"`
	Height int `json:"height"`

	UploadedAt time.Time `json:"uploadedAt"`
	FileSize   int64     `json:"fileSize"`

	// OriginalName 是客户端上传时的原始文件名，用于关联元数据。
	OriginalName string `json:"originalName"`

	// FileHash 是原图内容的 SHA-256，PerceptualHash 是感知哈希，
	// 两者在入库时计算，用于排查重复上传。
	FileHash       string `json:"fileHash,omitempty"`
	PerceptualHash string `json:"perceptualHash,omitempty"`
}

// Category 代表一个照片分类。
type Category struct {
	// ID 是 slug 形式的唯一标识，创建后不可变更。
	ID string `json:"id"`

	Name        string `json:"name"`
	NameEn      string `json:"nameEn"`
	Description string `json:"description"`

	// CoverImage 是封面图路径，可以为空。
	CoverImage string `json:"coverImage"`

	Photos []Photo `json:"photos"`

	// TotalCount 始终等于 len(Photos)，每次变更后由存储层维护。
	TotalCount int `json:"totalCount"`

	SortWeight int       `json:"sortWeight"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Catalog 是整个图库的目录文档，作为唯一事实来源整体读写。
type Catalog struct {
	Categories []Category `json:"categories"`
}

// PhotoMeta 是客户端随上传请求附带的单张照片元数据，
// 以原始文件名为键组成 map 提交。
type PhotoMeta struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Exif        *ExifInfo `json:"exif"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
}

// FindCategory 在目录中按 ID 查找分类，返回指向目录内元素的指针。
func (c *Catalog) FindCategory(id string) *Category {
	for i := range c.Categories {
		if c.Categories[i].ID == id {
			return &c.Categories[i]
		}
	}
	return nil
}
