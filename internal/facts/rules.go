package facts

import (
	"regexp"
	"strings"
)

// Rule 一条正则规则，命中时记录 Code
type Rule struct {
	Code    string
	Pattern *regexp.Regexp
}

// RuleSet 有序规则表
type RuleSet []Rule

// Match 返回全部命中的 Code（按表顺序，不重复）
func (rs RuleSet) Match(text string) []string {
	if text == "" {
		return nil
	}
	var hits []string
	seen := make(map[string]struct{})
	for _, r := range rs {
		if _, ok := seen[r.Code]; ok {
			continue
		}
		if r.Pattern.MatchString(text) {
			seen[r.Code] = struct{}{}
			hits = append(hits, r.Code)
		}
	}
	return hits
}

var (
	usernamePattern = regexp.MustCompile(`(?:^|[^\w@.])@([A-Za-z0-9_](?:[A-Za-z0-9_.]{0,28}[A-Za-z0-9_])?)`)
	hashtagPattern  = regexp.MustCompile(`(?:^|[^\w#])#([\p{L}\p{N}_]{2,50})`)
	urlPattern      = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']+`)

	// 平台主页链接：instagram.com/<user>、tiktok.com/@<user> 等
	profileLinkPattern = regexp.MustCompile(`(?i)\b(?:instagram\.com|instagr\.am|tiktok\.com/@|twitter\.com|x\.com|threads\.net/@?)/?([A-Za-z0-9_.]{2,30})`)
)

// 路径段不是用户名
var reservedProfilePaths = map[string]struct{}{
	"p": {}, "reel": {}, "reels": {}, "stories": {}, "explore": {}, "tv": {}, "accounts": {}, "share": {}, "status": {}, "video": {},
}

var reshareRules = RuleSet{
	{Code: "repost", Pattern: regexp.MustCompile(`(?i)(?:^|\W)#?re-?post(?:ed|ing)?\b`)},
	{Code: "regram", Pattern: regexp.MustCompile(`(?i)(?:^|\W)#?regram\b`)},
	{Code: "via_mention", Pattern: regexp.MustCompile(`(?i)\bvia\s*:?\s*@\w`)},
	{Code: "credit", Pattern: regexp.MustCompile(`(?i)\bcredits?\s*(?::|-|to\b|goes to\b)`)},
	{Code: "shared_from", Pattern: regexp.MustCompile(`(?i)\b(?:shared|reposted|taken)\s+from\s+@?\w`)},
	{Code: "photo_credit", Pattern: regexp.MustCompile(`(?i)(?:📸|🎥|photo\s+by|video\s+by|shot\s+by)\s*:?\s*@\w`)},
}

var memeRules = RuleSet{
	{Code: "meme_hashtag", Pattern: regexp.MustCompile(`(?i)#(?:memes?|dankmemes|funnymemes|memesdaily|relatable)\b`)},
	{Code: "meme_pov", Pattern: regexp.MustCompile(`(?i)(?:^|\n)\s*pov\s*:`)},
	{Code: "meme_nobody", Pattern: regexp.MustCompile(`(?i)(?:^|\n)\s*nobody\s*:`)},
	{Code: "meme_me_colon", Pattern: regexp.MustCompile(`(?i)(?:^|\n)\s*(?:me|my brain|my wallet)\s*:`)},
	{Code: "meme_when_you", Pattern: regexp.MustCompile(`(?i)(?:^|\n)\s*(?:when you|when ur|that moment when|me when)\b`)},
	{Code: "meme_tag_friend", Pattern: regexp.MustCompile(`(?i)\btag\s+(?:a|your)\s+(?:friend|bestie|bff)\b`)},
	{Code: "meme_be_like", Pattern: regexp.MustCompile(`(?i)\b\w+\s+be\s+like\b`)},
}

var externalSourceRules = RuleSet{
	{Code: "source_label", Pattern: regexp.MustCompile(`(?i)\bsource\s*:`)},
	{Code: "copyright", Pattern: regexp.MustCompile(`(?i)(?:©|\(c\)\s*\d{4}|all rights reserved|no copyright infringement)`)},
	{Code: "dm_for_credit", Pattern: regexp.MustCompile(`(?i)\bdm\s+(?:for|me for)\s+(?:credit|removal)`)},
	{Code: "originally_posted", Pattern: regexp.MustCompile(`(?i)\boriginally\s+(?:posted|shared)\s+by\b`)},
	{Code: "platform_watermark", Pattern: regexp.MustCompile(`(?i)(?:^|\n)\s*(?:tiktok|capcut)\b`)},
}

// ExtractUsernames 提取 @用户名（小写）
func ExtractUsernames(text string) []string {
	var out []string
	for _, m := range usernamePattern.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.ToLower(m[1]))
	}
	return out
}

// ExtractHashtags 提取话题标签，不含 #
func ExtractHashtags(text string) []string {
	var out []string
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.ToLower(m[1]))
	}
	return out
}

// ExtractURLs 提取链接，去掉末尾标点
func ExtractURLs(text string) []string {
	var out []string
	for _, m := range urlPattern.FindAllString(text, -1) {
		out = append(out, strings.TrimRight(m, ".,;:!?)]}"))
	}
	return out
}

// ProfileUsername 链接指向某个主页时返回其用户名
func ProfileUsername(link string) (string, bool) {
	m := profileLinkPattern.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	name := strings.ToLower(strings.Trim(m[1], "."))
	if _, reserved := reservedProfilePaths[name]; reserved || name == "" {
		return "", false
	}
	return name, true
}

// NormalizeUsername 去掉 @ 并小写
func NormalizeUsername(u string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u), "@"))
}
