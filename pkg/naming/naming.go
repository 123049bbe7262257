// Package naming 集中了图库的文件命名规则：安全文件名生成、
// 批次内冲突消解、分类 slug 推导，以及历史数据的命名格式识别。
// 除 StagedName 外都是纯函数，便于脱离文件系统测试。
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/encoding/charmap"
)

// 标题部分的最大长度（按 rune 计），避免整条路径过长。
const maxTitleRunes = 50

var (
	multiUnderscore = regexp.MustCompile(`_{2,}`)
	multiHyphen     = regexp.MustCompile(`-{2,}`)
	// 已迁移文件名中的 13 位毫秒时间戳
	msTimestamp = regexp.MustCompile(`\d{13}`)
)

// illegalRune 报告 r 是否是常见文件系统不允许（或我们主动剔除）的字符。
func illegalRune(r rune) bool {
	if r < 0x20 {
		return true
	}
	switch r {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*', '(', ')', '（', '）':
		return true
	}
	return false
}

// Sanitize 把人类可读的标题转换成安全的文件名：
// 剔除非法字符，空白折叠为下划线，标题截断到固定长度，
// 再拼上时间戳和扩展名。输出保证非空——标题全部被剔除时
// 退化为 "_<时间戳><扩展名>"。
func Sanitize(title string, timestamp int64, extension string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case illegalRune(r):
		case unicode.IsSpace(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	safe := multiUnderscore.ReplaceAllString(b.String(), "_")
	safe = strings.Trim(safe, "_")
	if runes := []rune(safe); len(runes) > maxTitleRunes {
		safe = strings.TrimRight(string(runes[:maxTitleRunes]), "_")
	}

	return fmt.Sprintf("%s_%d%s", safe, timestamp, extension)
}

// EnsureUnique 在 claimed 集合中为 baseName 找一个未被占用的完整文件名。
// 冲突时依次尝试 _1、_2…… 后缀，返回第一个空闲的候选。
// 调用方接受返回值后必须立刻把它写入 claimed，
// 否则同一批次内的后续解析看不到这次占用。
func EnsureUnique(baseName string, claimed map[string]struct{}, extension string) string {
	name := baseName
	for counter := 1; ; counter++ {
		if _, taken := claimed[name+extension]; !taken {
			return name + extension
		}
		name = fmt.Sprintf("%s_%d", baseName, counter)
	}
}

// IsMigrated 判断文件名是否已经符合本命名方案。
// 沿用历史数据的启发式约定：含下划线且带 13 位毫秒时间戳。
func IsMigrated(fileName string) bool {
	return strings.Contains(fileName, "_") && msTimestamp.MatchString(fileName)
}

// StagedName 为刚接收的上传文件生成一个临时落盘名。
// 毫秒时间戳加随机 UUID，构造上不会冲突；不含下划线，
// 因此不会被 IsMigrated 误判为已迁移。
func StagedName(originalName string) string {
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.New().String(), filepath.Ext(originalName))
}

// FixEncoding 尝试修复被按 Latin-1 误读的 UTF-8 文件名
// （multipart 表单里非 ASCII 文件名的常见乱码形态）。
// 修复成功返回 (修复结果, true)；本来就正常或无法修复返回 ("", false)。
func FixEncoding(name string) (string, bool) {
	raw, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(name))
	if err != nil {
		// 含 Latin-1 范围外的字符，不可能是误读产物
		return "", false
	}
	if !utf8.Valid(raw) {
		return "", false
	}
	fixed := string(raw)
	if fixed == name {
		return "", false
	}
	return fixed, true
}

// DeriveCategoryID 从分类名推导 slug 形式的唯一标识。
// 优先使用英文名；中文等非 ASCII 名称先做拉丁转写再小写化，
// 非字母数字折叠为连字符。
func DeriveCategoryID(name, nameEn string) string {
	src := nameEn
	if src == "" {
		src = name
	}

	ascii := strings.ToLower(unidecode.Unidecode(src))
	ascii = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, ascii)
	ascii = multiHyphen.ReplaceAllString(ascii, "-")
	return strings.Trim(ascii, "-")
}

// ClaimedFromDir 把目录中现有的文件名收集为占用集合，
// 作为跨请求冲突消解的起点。目录不存在时返回空集合。
func ClaimedFromDir(dir string) map[string]struct{} {
	claimed := make(map[string]struct{})
	entries, err := os.ReadDir(dir)
	if err != nil {
		return claimed
	}
	for _, e := range entries {
		if !e.IsDir() {
			claimed[e.Name()] = struct{}{}
		}
	}
	return claimed
}
