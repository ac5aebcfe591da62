// Package textfmt 提供回复文本中使用的数字格式化。
package textfmt

import (
	"strings"

	"github.com/dustin/go-humanize"
)

// Commas 以千分位和固定小数位格式化数字，例如 Commas(1234.5, 2) == "1,234.50"。
func Commas(v float64, decimals int) string {
	if decimals <= 0 {
		return humanize.FormatFloat("#,###.", v)
	}
	return humanize.FormatFloat("#,###."+strings.Repeat("#", decimals), v)
}

// Integer 以千分位格式化整数。
func Integer(v int64) string {
	return humanize.Comma(v)
}

// Truncate 截取前 n 个字符并追加省略号。
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
