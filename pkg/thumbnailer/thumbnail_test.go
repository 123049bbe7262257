package thumbnailer

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/zjjyyyk/photo-site/pkg/logger"
)

// writeJPEG 在 dir 下生成一张纯色测试图片
func writeJPEG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGenerateProducesFixedSizeThumbnail(t *testing.T) {
	dir := t.TempDir()
	thumbDir := filepath.Join(dir, "thumbnail")
	src := writeJPEG(t, dir, "photo_1700000000000.jpg", 800, 800)

	gen, err := New(thumbDir, 400, 300, 80, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	url, err := gen.Generate(src, "photo_1700000000000.jpg")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if url != URLPrefix+"photo_1700000000000.jpg" {
		t.Errorf("url = %q", url)
	}

	f, err := os.Open(filepath.Join(thumbDir, "photo_1700000000000.jpg"))
	if err != nil {
		t.Fatalf("缩略图文件未生成: %v", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("解码缩略图失败: %v", err)
	}
	if cfg.Width != 400 || cfg.Height != 300 {
		t.Errorf("缩略图尺寸 = %dx%d, want 400x300", cfg.Width, cfg.Height)
	}
}

func TestGenerateSkipsExistingTarget(t *testing.T) {
	dir := t.TempDir()
	thumbDir := filepath.Join(dir, "thumbnail")
	src := writeJPEG(t, dir, "photo_1700000000000.jpg", 600, 600)

	gen, err := New(thumbDir, 400, 300, 80, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	// 预置一个人为内容的目标文件，跳过逻辑应原样保留它
	marker := []byte("pre-existing thumbnail")
	target := filepath.Join(thumbDir, "photo_1700000000000.jpg")
	if err := os.WriteFile(target, marker, 0644); err != nil {
		t.Fatal(err)
	}

	url, err := gen.Generate(src, "photo_1700000000000.jpg")
	if err != nil {
		t.Fatalf("第二次调用不应报错: %v", err)
	}
	if url != URLPrefix+"photo_1700000000000.jpg" {
		t.Errorf("url = %q", url)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(marker) {
		t.Error("已存在的目标文件被改写了")
	}
}

func TestGenerateFailsOnUndecodableSource(t *testing.T) {
	dir := t.TempDir()
	thumbDir := filepath.Join(dir, "thumbnail")
	src := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(src, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	gen, err := New(thumbDir, 400, 300, 80, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gen.Generate(src, "broken.jpg"); err == nil {
		t.Error("损坏的源图片应返回错误，由调用方回退到原图")
	}
}
