package generation

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const maxFilenamePrompt = 20

// DeriveFilename 生成下载文件名：清理后的提示词_模型_日期[_序号].png
//
// 第一张图不带序号，从第二张开始追加 _2、_3 …
func DeriveFilename(prompt string, index int, model string) string {
	return deriveFilenameAt(prompt, index, model, time.Now())
}

func deriveFilenameAt(prompt string, index int, model string, now time.Time) string {
	if model == "" {
		model = DefaultModel
	}

	var b strings.Builder
	inSpace := false
	for _, r := range prompt {
		switch {
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteRune('_')
			}
			inSpace = true
			continue
		case isCJK(r), isASCIIAlnum(r):
			b.WriteRune(r)
			inSpace = false
		}
	}

	clean := []rune(b.String())
	if len(clean) > maxFilenamePrompt {
		clean = clean[:maxFilenamePrompt]
	}

	suffix := ""
	if index > 0 {
		suffix = fmt.Sprintf("_%d", index+1)
	}
	return fmt.Sprintf("%s_%s_%s%s.png", string(clean), model, now.UTC().Format("2006-01-02"), suffix)
}

func isCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FA5
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
