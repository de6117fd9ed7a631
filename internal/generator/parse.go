package generator

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

var (
	fencePattern      = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	listMarkerPattern = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)]|\(\d+\))\s*`)
	scaffoldPattern   = regexp.MustCompile(`(?i)^(?:here (?:are|is)|sure[,!]|certainly|okay[,!]|ok[,!]|comments?:|suggestions?:|candidates?:|json:?$|output:?$)`)
	punctuationOnly   = regexp.MustCompile(`^[\s\[\]{}(),:;"'` + "`" + `.]*$`)
	// keyPrefix 形如 "text": 或 comment: 的残留字段名
	keyPrefix = regexp.MustCompile(`(?i)^"?(?:text|comment|suggestion)"?\s*:\s*`)
)

// listKeys 包装对象中可能的列表字段
var listKeys = []string{"comments", "suggestions", "candidates"}

// ParseCandidates 宽松解析模型输出：严格 JSON、夹在文本中的 JSON，最后按行拆分
func ParseCandidates(raw string) []string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return []string{}
	}
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	items, ok := parseJSON(text)
	if !ok {
		items, ok = parseEmbeddedJSON(text)
	}
	if !ok {
		items = parseLines(text)
	}
	return cleanCandidates(items)
}

func parseJSON(text string) ([]string, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	return fromJSONValue(v)
}

func fromJSONValue(v any) ([]string, bool) {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case map[string]any:
				if s := stringField(it, "text", "comment", "suggestion"); s != "" {
					out = append(out, s)
				}
			}
		}
		return out, true
	case map[string]any:
		for _, k := range listKeys {
			if list, ok := t[k]; ok {
				return fromJSONValue(list)
			}
		}
		if s := stringField(t, "text", "comment"); s != "" {
			return []string{s}, true
		}
	}
	return nil, false
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			return s
		}
	}
	return ""
}

// parseEmbeddedJSON 在前后有说明文字时截取最外层的对象或数组
func parseEmbeddedJSON(text string) ([]string, bool) {
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(text, pair[0])
		end := strings.LastIndex(text, pair[1])
		if start < 0 || end <= start {
			continue
		}
		if items, ok := parseJSON(text[start : end+1]); ok {
			return items, true
		}
	}
	return nil, false
}

func parseLines(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = listMarkerPattern.ReplaceAllString(line, "")
		line = keyPrefix.ReplaceAllString(line, "")
		line = strings.TrimSuffix(line, ",")
		out = append(out, line)
	}
	return out
}

// quotePairs 模型常用来包裹整条评论的引号
var quotePairs = [][2]string{{`"`, `"`}, {"'", "'"}, {"`", "`"}, {"“", "”"}, {"‘", "’"}}

// unquote 只去掉成对包裹的引号，句中或单侧的撇号保留
func unquote(s string) string {
	for {
		stripped := false
		for _, q := range quotePairs {
			if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
				s = strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}

func cleanCandidates(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		s := strings.TrimSpace(item)
		s = unquote(s)
		s = textutil.NormalizeSpace(s)
		if isScaffolding(s) {
			continue
		}
		out = append(out, textutil.TruncateBytes(s, textutil.MaxCommentBytes))
	}
	return textutil.Dedupe(out)
}

// isScaffolding 格式残留或引导语，不是评论
func isScaffolding(s string) bool {
	if s == "" || punctuationOnly.MatchString(s) {
		return true
	}
	if scaffoldPattern.MatchString(s) && (strings.HasSuffix(s, ":") || len(textutil.Tokenize(s)) <= 4) {
		return true
	}
	return false
}
