package ingest

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/zjjyyyk/photo-site/internal/models"
	"github.com/zjjyyyk/photo-site/pkg/catalog"
	"github.com/zjjyyyk/photo-site/pkg/logger"
	"github.com/zjjyyyk/photo-site/pkg/naming"
	"github.com/zjjyyyk/photo-site/pkg/thumbnailer"
)

var msTimestamp = regexp.MustCompile(`\d{13}`)

// fakeThumbs 是可注入失败的缩略图生成器
type fakeThumbs struct {
	calls    int
	failCall int // 第 N 次调用返回错误，0 表示从不失败
}

func (f *fakeThumbs) Generate(sourcePath, fileName string) (string, error) {
	f.calls++
	if f.failCall != 0 && f.calls == f.failCall {
		return "", errors.New("codec boom")
	}
	return thumbnailer.URLPrefix + fileName, nil
}

func newTestIngestor(t *testing.T, thumbs thumbnailer.Generator) (*Ingestor, *catalog.Store, string) {
	t.Helper()
	dir := t.TempDir()
	imagesDir := filepath.Join(dir, "images")
	thumbDir := filepath.Join(imagesDir, "thumbnail")
	if err := os.MkdirAll(thumbDir, 0755); err != nil {
		t.Fatal(err)
	}
	store := catalog.NewStore(filepath.Join(dir, "data.json"), imagesDir, thumbDir, logger.Discard())
	if err := store.AddCategory(models.Category{ID: "landscape", Name: "风景摄影", NameEn: "landscape"}); err != nil {
		t.Fatal(err)
	}
	ing := New(store, thumbs, nil, imagesDir, logger.Discard())
	return ing, store, imagesDir
}

// stageJPEG 在资源目录里放一个暂存状态的小 JPEG
func stageJPEG(t *testing.T, imagesDir, originalName string) StagedFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 90, A: 255})
		}
	}
	p := filepath.Join(imagesDir, naming.StagedName(originalName))
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 85}); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(p)
	return StagedFile{Path: p, OriginalName: originalName, Size: info.Size()}
}

func TestIngestBatchDuplicateTitlesGetSuffixes(t *testing.T) {
	ing, store, imagesDir := newTestIngestor(t, &fakeThumbs{})

	files := []StagedFile{
		stageJPEG(t, imagesDir, "DSC001.jpg"),
		stageJPEG(t, imagesDir, "DSC002.jpg"),
	}
	meta := map[string]models.PhotoMeta{
		"DSC001.jpg": {Title: "海边"},
		"DSC002.jpg": {Title: "海边"},
	}

	result, err := ing.IngestBatch(context.Background(), "landscape", files, meta)
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if len(result.Photos) != 2 || result.TotalCount != 2 {
		t.Fatalf("photos=%d total=%d, want 2/2", len(result.Photos), result.TotalCount)
	}

	first, second := result.Photos[0], result.Photos[1]
	for _, p := range result.Photos {
		if !strings.Contains(p.URL, "海边") {
			t.Errorf("URL %q 应包含净化后的标题", p.URL)
		}
		if !msTimestamp.MatchString(p.URL) {
			t.Errorf("URL %q 应包含毫秒时间戳", p.URL)
		}
	}
	if first.URL == second.URL {
		t.Error("两个文件的 URL 不应相同")
	}
	if !strings.HasSuffix(second.URL, "_1.jpg") {
		t.Errorf("第二个重名文件应带 _1 后缀: %q", second.URL)
	}
	if second.ID != first.ID+1 {
		t.Errorf("批内 ID 应按序号递增: %d, %d", first.ID, second.ID)
	}

	// 物理文件确实挪到了新名字
	for _, p := range result.Photos {
		if _, err := os.Stat(filepath.Join(imagesDir, filepath.Base(p.URL))); err != nil {
			t.Errorf("原图文件缺失: %v", err)
		}
	}

	// 目录已提交且不变式成立
	cat, err := store.FindCategory("landscape")
	if err != nil {
		t.Fatal(err)
	}
	if cat.TotalCount != len(cat.Photos) || cat.TotalCount != 2 {
		t.Errorf("totalCount=%d photos=%d", cat.TotalCount, len(cat.Photos))
	}
}

func TestIngestBatchThumbnailFailureDoesNotLoseUpload(t *testing.T) {
	// 第 2 个文件的缩略图失败
	ing, store, imagesDir := newTestIngestor(t, &fakeThumbs{failCall: 2})

	files := []StagedFile{
		stageJPEG(t, imagesDir, "a.jpg"),
		stageJPEG(t, imagesDir, "b.jpg"),
		stageJPEG(t, imagesDir, "c.jpg"),
	}
	result, err := ing.IngestBatch(context.Background(), "landscape", files, nil)
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if len(result.Photos) != 3 {
		t.Fatalf("缩略图失败不应丢记录: got %d", len(result.Photos))
	}

	if result.Photos[1].ThumbnailURL != result.Photos[1].URL {
		t.Errorf("失败文件的 thumbnailUrl 应回退到原图: %q vs %q",
			result.Photos[1].ThumbnailURL, result.Photos[1].URL)
	}
	for _, i := range []int{0, 2} {
		if !strings.HasPrefix(result.Photos[i].ThumbnailURL, thumbnailer.URLPrefix) {
			t.Errorf("成功文件应有真正的缩略图 URL: %q", result.Photos[i].ThumbnailURL)
		}
	}

	cat, err := store.FindCategory("landscape")
	if err != nil {
		t.Fatal(err)
	}
	if cat.TotalCount != 3 {
		t.Errorf("目录应包含全部 3 条记录, got %d", cat.TotalCount)
	}
}

func TestIngestBatchRenameFailureKeepsStagedName(t *testing.T) {
	dir := t.TempDir()
	stagingDir := filepath.Join(dir, "staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		t.Fatal(err)
	}
	// 资源目录不存在，重命名到目标路径必然失败
	imagesDir := filepath.Join(dir, "missing")

	store := catalog.NewStore(filepath.Join(dir, "data.json"), imagesDir, filepath.Join(imagesDir, "thumbnail"), logger.Discard())
	if err := store.AddCategory(models.Category{ID: "landscape", Name: "风景摄影", NameEn: "landscape"}); err != nil {
		t.Fatal(err)
	}
	ing := New(store, &fakeThumbs{}, nil, imagesDir, logger.Discard())

	file := stageJPEG(t, stagingDir, "a.jpg")
	meta := map[string]models.PhotoMeta{"a.jpg": {Title: "海边"}}

	result, err := ing.IngestBatch(context.Background(), "landscape", []StagedFile{file}, meta)
	if err != nil {
		t.Fatalf("重命名失败不应让批次失败: %v", err)
	}
	if len(result.Photos) != 1 {
		t.Fatalf("重命名失败不应丢记录: got %d", len(result.Photos))
	}

	p := result.Photos[0]
	stagedName := filepath.Base(file.Path)
	if p.URL != "/images/"+stagedName {
		t.Errorf("URL 应回退到暂存名: got %q, want %q", p.URL, "/images/"+stagedName)
	}
	if p.Title != "海边" {
		t.Errorf("元数据仍应关联: title=%q", p.Title)
	}
	if _, err := os.Stat(file.Path); err != nil {
		t.Errorf("暂存文件不应丢失: %v", err)
	}

	// 记录照常提交入目录
	cat, err := store.FindCategory("landscape")
	if err != nil {
		t.Fatal(err)
	}
	if cat.TotalCount != 1 || cat.Photos[0].URL != "/images/"+stagedName {
		t.Errorf("目录应包含回退记录: %+v", cat.Photos)
	}
}

func TestIngestBatchCategoryNotFound(t *testing.T) {
	ing, _, imagesDir := newTestIngestor(t, &fakeThumbs{})
	files := []StagedFile{stageJPEG(t, imagesDir, "a.jpg")}

	_, err := ing.IngestBatch(context.Background(), "nope", files, nil)
	if !errors.Is(err, catalog.ErrCategoryNotFound) {
		t.Errorf("want ErrCategoryNotFound, got %v", err)
	}
}

func TestIngestBatchMetadataEncodingFallback(t *testing.T) {
	ing, _, imagesDir := newTestIngestor(t, &fakeThumbs{})

	utf8Name := "海边.jpg"
	// 客户端按正确编码提交元数据，但文件名字段被按 Latin-1 误读
	var mojibake strings.Builder
	for _, b := range []byte(utf8Name) {
		mojibake.WriteRune(rune(b))
	}

	files := []StagedFile{stageJPEG(t, imagesDir, mojibake.String())}
	meta := map[string]models.PhotoMeta{
		utf8Name: {Title: "修复后的标题", Description: "desc"},
	}

	result, err := ing.IngestBatch(context.Background(), "landscape", files, meta)
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if result.Photos[0].Title != "修复后的标题" {
		t.Errorf("乱码文件名应通过编码修复找到元数据, got title=%q", result.Photos[0].Title)
	}
}

func TestIngestBatchFillsImageDimensions(t *testing.T) {
	ing, _, imagesDir := newTestIngestor(t, &fakeThumbs{})
	files := []StagedFile{stageJPEG(t, imagesDir, "dim.jpg")}

	result, err := ing.IngestBatch(context.Background(), "landscape", files, nil)
	if err != nil {
		t.Fatal(err)
	}
	p := result.Photos[0]
	if p.Width != 32 || p.Height != 24 {
		t.Errorf("应使用实际解码尺寸: %dx%d", p.Width, p.Height)
	}
	if p.FileHash == "" || p.PerceptualHash == "" {
		t.Error("入库时应计算内容哈希")
	}
	if len(p.Tags) != 0 || p.Tags == nil {
		t.Errorf("无元数据时 tags 应为空数组: %#v", p.Tags)
	}
}
