package generator

import (
	"strings"

	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
	"github.com/qs3c/engage_go_server/internal/policy"
)

// fallbackTemplates 按内容模式的兜底模板；{anchor} {topic} {phrase} 缺值时整条跳过
var fallbackTemplates = map[string][]string{
	ModeTextHeavy: {
		"\"{phrase}\" is such a good line to land on",
		"That {phrase} note made me stop scrolling",
		"Saving this {topic} reminder for later",
		"Which part of \"{phrase}\" hit home for you?",
	},
	ModeSports: {
		"That {anchor} moment had real energy",
		"Big {topic} day, the {anchor} says it all",
		"Who was the standout at the {anchor} today?",
		"Nothing beats {topic} with a crowd like that",
	},
	ModeFood: {
		"That {anchor} looks worth the trip alone",
		"Now craving {anchor} for dinner",
		"Where did you find that {anchor}?",
		"Proper {topic} spread right there",
	},
	ModeGroup: {
		"You all look like you had a blast at the {anchor}",
		"Crew goals with that {topic} lineup",
		"Whose idea was the {anchor} stop?",
		"Everyone looks so relaxed by the {anchor}",
	},
	ModePortrait: {
		"The {anchor} in the background frames you so well",
		"You look right at home with that {anchor}",
		"Where was this {topic} shot taken?",
		"That {anchor} setting suits you",
	},
	ModeRepostMeme: {
		"The {phrase} part is too accurate",
		"Sending this {topic} one to the group chat",
		"Who else felt the {phrase} bit?",
	},
	ModeGeneral: {
		"The {anchor} really pulls this together",
		"Such a good {topic} moment with that {anchor}",
		"How did the {anchor} end up in the shot?",
		"Loving the {topic} details here",
	},
}

// emergencyCandidates 模板全部被拒时的固定兜底
var emergencyCandidates = []string{
	"Thanks for sharing this moment with us",
	"What's the story behind this one?",
	"Hope the rest of the day went just as well",
}

type templateVars struct {
	anchor string
	topic  string
	phrase string
}

func newTemplateVars(f *model.VerifiedFacts, anchors, topics, cues []string) templateVars {
	v := templateVars{}
	for _, a := range anchors {
		if !IsGenericLabel(a) {
			v.anchor = a
			break
		}
	}
	for _, t := range append(append([]string{}, topics...), cues...) {
		t = strings.TrimSpace(strings.TrimPrefix(t, "#"))
		if t != "" {
			v.topic = strings.ToLower(t)
			break
		}
	}
	if v.anchor == "" && len(anchors) > 0 {
		v.anchor = anchors[0]
	}
	if f != nil && f.OCRText != "" {
		tokens := policy.MeaningfulTokens(f.OCRText)
		v.phrase = strings.Join(textutil.Cap(tokens, 4), " ")
	}
	return v
}

// fill 替换占位符；有占位符没有取值时返回空串
func (v templateVars) fill(tpl string) string {
	repl := []struct{ key, val string }{{"{anchor}", v.anchor}, {"{topic}", v.topic}, {"{phrase}", v.phrase}}
	out := tpl
	for _, r := range repl {
		if !strings.Contains(out, r.key) {
			continue
		}
		if r.val == "" {
			return ""
		}
		out = strings.ReplaceAll(out, r.key, r.val)
	}
	return out
}

// TemplateCandidates 生成模式模板候选，不经过策略过滤
func TemplateCandidates(mode string, vars templateVars) []string {
	templates := fallbackTemplates[mode]
	if mode != ModeGeneral {
		templates = append(append([]string{}, templates...), fallbackTemplates[ModeGeneral]...)
	}
	out := make([]string, 0, len(templates))
	for _, tpl := range templates {
		if s := vars.fill(tpl); s != "" {
			out = append(out, textutil.TruncateBytes(s, textutil.MaxCommentBytes))
		}
	}
	return textutil.Dedupe(out)
}

// fallbackCandidates 模板候选仍需通过策略引擎；全被拒时给出固定兜底
func fallbackCandidates(engine *policy.Engine, mode string, vars templateVars, history policy.History, keywords []string) (accepted []string, rejected []policy.Rejection, emergency bool) {
	res := engine.Evaluate(TemplateCandidates(mode, vars), history, keywords)
	if len(res.Accepted) > 0 {
		return res.Accepted, res.Rejected, false
	}
	return textutil.Cap(append([]string{}, emergencyCandidates...), engine.MaxAccepted()), res.Rejected, true
}
