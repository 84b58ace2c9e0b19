// Package utils 通用小工具，不依赖 internal
package utils

// Truncate 截断字符串到 max 个 rune，超出时追加省略号
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
