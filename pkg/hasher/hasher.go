package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/ajdnik/imghash"
)

// SHA256FromBytes 计算字节切片的 SHA-256 哈希。
func SHA256FromBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256File 计算并返回一个文件的 SHA-256 哈希值。
func SHA256File(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PerceptualHash 从已解码的图片计算感知哈希，用于发现内容近似的重复上传。
func PerceptualHash(img image.Image) string {
	phasher := imghash.NewPHash()
	return fmt.Sprintf("%d", phasher.Calculate(img))
}
