package policy

import (
	"strings"

	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

const (
	DefaultMaxAccepted = 8
	minMaxAccepted     = 1
	maxMaxAccepted     = 20
)

// History 账号近期评论，用于去重
type History struct {
	Comments []string
	Openers  []string
}

// Rejection 被拒候选及全部命中原因
type Rejection struct {
	Text    string   `json:"text"`
	Reasons []string `json:"reasons"`
	Details []string `json:"details,omitempty"`
}

// Result 一批候选的评估结果
type Result struct {
	Accepted     []string       `json:"accepted"`
	Rejected     []Rejection    `json:"rejected"`
	ReasonCounts map[string]int `json:"reason_counts"`
}

// RejectRatio 被拒占比
func (r *Result) RejectRatio() float64 {
	total := len(r.Accepted) + len(r.Rejected)
	if total == 0 {
		return 0
	}
	return float64(len(r.Rejected)) / float64(total)
}

// Engine 安全与多样性过滤
type Engine struct {
	blocked     []string
	maxAccepted int
}

// NewEngine blockedTerms 与默认屏蔽词合并；maxAccepted 限制在 [1,20]
func NewEngine(blockedTerms []string, maxAccepted int) *Engine {
	terms := make([]string, 0, len(DefaultBlockedTerms)+len(blockedTerms))
	for _, t := range append(append([]string{}, DefaultBlockedTerms...), blockedTerms...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	if maxAccepted == 0 {
		maxAccepted = DefaultMaxAccepted
	}
	if maxAccepted < minMaxAccepted {
		maxAccepted = minMaxAccepted
	}
	if maxAccepted > maxMaxAccepted {
		maxAccepted = maxMaxAccepted
	}
	return &Engine{blocked: textutil.Dedupe(terms), maxAccepted: maxAccepted}
}

// MaxAccepted 单次最多保留的候选数
func (e *Engine) MaxAccepted() int {
	return e.maxAccepted
}

// ContextStems 把上下文关键词转成去掉术语后的词干集合
func ContextStems(keywords []string) map[string]struct{} {
	var tokens []string
	for _, k := range keywords {
		tokens = append(tokens, textutil.Without(textutil.Tokenize(k), contextStoplist)...)
	}
	return textutil.StemSet(tokens)
}

// MeaningfulTokens 去掉低信息词后的 token
func MeaningfulTokens(text string) []string {
	return textutil.Without(textutil.Tokenize(text), lowInfoStoplist)
}

// Evaluate 逐条检查候选，记录全部命中原因；通过的按顺序保留，最多 maxAccepted 条
func (e *Engine) Evaluate(candidates []string, history History, contextKeywords []string) *Result {
	res := &Result{
		Accepted:     []string{},
		Rejected:     []Rejection{},
		ReasonCounts: map[string]int{},
	}

	historySets := make([]map[string]struct{}, 0, len(history.Comments))
	openers := make(map[string]struct{}, len(history.Comments)+len(history.Openers))
	for _, h := range history.Comments {
		historySets = append(historySets, textutil.TokenSet(h))
		if sig := textutil.OpeningSignature(h, OpeningTokens); sig != "" {
			openers[sig] = struct{}{}
		}
	}
	for _, o := range history.Openers {
		if sig := textutil.OpeningSignature(o, OpeningTokens); sig != "" {
			openers[sig] = struct{}{}
		}
	}
	ctx := ContextStems(contextKeywords)
	acceptedSets := make([]map[string]struct{}, 0, e.maxAccepted)

	for _, raw := range candidates {
		text := textutil.TruncateBytes(textutil.NormalizeSpace(raw), textutil.MaxCommentBytes)
		if text == "" {
			e.reject(res, raw, []string{ReasonEmpty}, nil)
			continue
		}
		tokens := textutil.Tokenize(text)
		set := textutil.SetOf(tokens)
		sig := textutil.OpeningSignature(text, OpeningTokens)
		lower := strings.ToLower(text)

		var reasons, details []string
		if term, ok := e.blockedTerm(lower); ok {
			reasons = append(reasons, ReasonBlockedTerm)
			details = append(details, "term:"+term)
		}
		if hits := matchAny(sensitiveClaimRules, text); len(hits) > 0 {
			reasons = append(reasons, ReasonSensitiveClaim)
			details = append(details, prefixed("claim:", hits)...)
		}
		for _, hs := range historySets {
			if textutil.JaccardSets(set, hs) >= HistorySimilarityThreshold {
				reasons = append(reasons, ReasonHistorySimilarity)
				break
			}
		}
		for _, as := range acceptedSets {
			if textutil.JaccardSets(set, as) >= BatchSimilarityThreshold {
				reasons = append(reasons, ReasonBatchSimilarity)
				break
			}
		}
		if _, dup := openers[sig]; dup && sig != "" {
			reasons = append(reasons, ReasonRepeatedOpening)
		}
		if hits := matchAny(genericPhraseRules, text); len(hits) > 0 {
			reasons = append(reasons, ReasonGenericPhrase)
			details = append(details, prefixed("phrase:", hits)...)
		}
		if len(ctx) > 0 && textutil.OverlapCount(tokens, ctx) == 0 {
			reasons = append(reasons, ReasonWeakGrounding)
		}
		if len(MeaningfulTokens(text)) < minMeaningful {
			reasons = append(reasons, ReasonLowInformation)
		}

		if len(reasons) == 0 && len(res.Accepted) >= e.maxAccepted {
			reasons = append(reasons, ReasonAcceptedLimit)
		}
		if len(reasons) > 0 {
			e.reject(res, text, reasons, details)
			continue
		}

		res.Accepted = append(res.Accepted, text)
		acceptedSets = append(acceptedSets, set)
		if sig != "" {
			openers[sig] = struct{}{}
		}
	}
	return res
}

func (e *Engine) reject(res *Result, text string, reasons, details []string) {
	res.Rejected = append(res.Rejected, Rejection{Text: text, Reasons: reasons, Details: details})
	for _, r := range reasons {
		res.ReasonCounts[r]++
	}
}

func (e *Engine) blockedTerm(lower string) (string, bool) {
	for _, t := range e.blocked {
		if strings.Contains(lower, t) {
			return t, true
		}
	}
	return "", false
}

func prefixed(prefix string, items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, prefix+it)
	}
	return out
}
