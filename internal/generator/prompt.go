package generator

import (
	"fmt"
	"strings"
)

const systemPrompt = `You write short Instagram comments on behalf of a real person.
Only mention things that appear in the provided context. Never guess a person's age, ethnicity, religion, health, sexuality or politics.
Each comment must be under 140 characters, sound like a friend, and start differently from the others.
Avoid generic praise ("great post", "love this"), hashtags, and phrases like "this image shows".`

const strictSuffix = `
Your previous answer was unusable or too repetitive. Follow the format exactly.
Every comment must name at least one visual anchor or topic from the context.
Return only the JSON object, no commentary.`

// BuildPrompt 生成用户提示词；strict 为重试时的更严格版本
func BuildPrompt(doc *ContextDocument, count int, strict bool) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(doc.JSON())
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Write %d distinct comments for this post.\n", count)
	if len(doc.VisualAnchors) > 0 {
		fmt.Fprintf(&b, "Ground them in: %s.\n", strings.Join(doc.VisualAnchors, ", "))
	}
	if doc.History != nil && len(doc.History.AvoidOpenings) > 0 {
		fmt.Fprintf(&b, "Do not start with: %s.\n", strings.Join(doc.History.AvoidOpenings, " | "))
	}
	b.WriteString("Mix tones: observational, curious, supportive, playful. Include at most one question.\n")
	b.WriteString(`Respond as JSON: {"comments": ["...", "..."]}`)
	if strict {
		b.WriteString(strictSuffix)
	}
	return b.String()
}

// tokenBudget 提示词越长输出预算越小，保证总长度不超过上下文限制
func tokenBudget(prompt string, contextLimit, minTokens, maxTokens int) int {
	promptTokens := len([]rune(prompt))/4 + 64
	budget := contextLimit - promptTokens
	if budget > maxTokens {
		budget = maxTokens
	}
	if budget < minTokens {
		budget = minTokens
	}
	return budget
}
