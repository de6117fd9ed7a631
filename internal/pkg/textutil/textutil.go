package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxCommentBytes 单条评论最大字节数
const MaxCommentBytes = 140

// NormalizeSpace 折叠所有空白为单个空格
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, " ", " ")), " ")
}

// TruncateBytes 按字节截断且不破坏 UTF-8 字符
func TruncateBytes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}

// TruncateRunes 按字符数截断
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}

// Tokenize 小写化后按字母/数字切分，丢弃单字符 token；emoji 与标点不产生 token
func Tokenize(s string) []string {
	s = strings.ToLower(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\'')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'_")
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TokenSet 返回 token 集合
func TokenSet(s string) map[string]struct{} {
	return SetOf(Tokenize(s))
}

// SetOf 把切片转成集合
func SetOf(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Jaccard token 集合的 Jaccard 相似度
func Jaccard(a, b string) float64 {
	return JaccardSets(TokenSet(a), TokenSet(b))
}

// JaccardSets 两个集合的 Jaccard 相似度
func JaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// OpeningSignature 取前 n 个 token 作为开头签名
func OpeningSignature(s string, n int) string {
	tokens := Tokenize(s)
	if len(tokens) == 0 {
		return ""
	}
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return strings.Join(tokens, " ")
}

// Stem 极简词干：去掉常见复数/进行时后缀，用于宽松匹配
func Stem(t string) string {
	switch {
	case len(t) > 5 && strings.HasSuffix(t, "ing"):
		return t[:len(t)-3]
	case len(t) > 4 && (strings.HasSuffix(t, "sses") || strings.HasSuffix(t, "shes") ||
		strings.HasSuffix(t, "ches") || strings.HasSuffix(t, "xes")):
		return t[:len(t)-2]
	case len(t) > 3 && strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss"):
		return t[:len(t)-1]
	}
	return t
}

// StemSet 返回词干集合
func StemSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[Stem(t)] = struct{}{}
	}
	return set
}

// OverlapCount 统计 tokens 中（按词干）命中 ref 的数量
func OverlapCount(tokens []string, ref map[string]struct{}) int {
	if len(ref) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(tokens))
	n := 0
	for _, t := range tokens {
		s := Stem(t)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := ref[s]; ok {
			n++
		}
	}
	return n
}

// Without 去掉 stop 中的 token
func Without(tokens []string, stop map[string]struct{}) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := stop[t]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Dedupe 保序去重（忽略大小写与首尾空白），丢弃空串
func Dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		key := strings.ToLower(it)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Cap 截断切片长度
func Cap[T any](items []T, max int) []T {
	if max >= 0 && len(items) > max {
		return items[:max]
	}
	return items
}

// ContainsAny 判断 s（已小写）是否包含任一关键词
func ContainsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
