package generator

import (
	"sort"
	"strings"

	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

const maxCues = 4

// 情境线索
const (
	CueCelebration = "celebration"
	CueTravel      = "travel"
	CueSports      = "sports"
	CueFood        = "food"
	CueFitness     = "fitness"
	CueMusic       = "music"
	CuePets        = "pets"
	CueFashion     = "fashion"
	CueNature      = "nature"
)

// cueOrder 同分时的先后
var cueOrder = []string{CueCelebration, CueTravel, CueSports, CueFood, CueFitness, CueMusic, CuePets, CueFashion, CueNature}

// cueKeywords 关键词按词干匹配
var cueKeywords = map[string]map[string]struct{}{
	CueCelebration: textutil.StemSet([]string{"birthday", "party", "cake", "balloon", "wedding", "anniversary", "graduation", "congrats", "celebrate", "celebration", "champagne", "confetti", "engagement"}),
	CueTravel:      textutil.StemSet([]string{"travel", "trip", "airport", "beach", "mountain", "hotel", "passport", "suitcase", "vacation", "island", "hike", "hiking", "roadtrip", "wanderlust", "pier"}),
	CueSports:      textutil.StemSet([]string{"stadium", "match", "game", "football", "soccer", "cricket", "basketball", "tennis", "goal", "marathon", "race", "surfboard", "surfing", "skateboard", "jersey", "ball"}),
	CueFood:        textutil.StemSet([]string{"food", "pizza", "coffee", "restaurant", "dinner", "brunch", "dessert", "recipe", "burger", "sushi", "plate", "dumpling", "pasta", "bakery", "foodie", "cooking", "bowl"}),
	CueFitness:     textutil.StemSet([]string{"gym", "workout", "yoga", "dumbbell", "fitness", "training", "squat", "run", "running", "pilates"}),
	CueMusic:       textutil.StemSet([]string{"concert", "guitar", "stage", "band", "festival", "dj", "microphone", "piano", "singing", "album"}),
	CuePets:        textutil.StemSet([]string{"dog", "cat", "puppy", "kitten", "pet", "doggo", "pup"}),
	CueFashion:     textutil.StemSet([]string{"outfit", "dress", "shoes", "style", "ootd", "fashion", "sneakers", "handbag", "jacket"}),
	CueNature:      textutil.StemSet([]string{"sunset", "sunrise", "forest", "lake", "ocean", "flower", "garden", "waterfall", "sky", "goldenhour"}),
}

// SituationalCues 在事实与话题中做关键词匹配，按命中数降序
func SituationalCues(f *model.VerifiedFacts, topics []string) []string {
	tokens := factTokens(f, topics)
	hits := make(map[string]int, len(cueKeywords))
	for _, cue := range cueOrder {
		if n := textutil.OverlapCount(tokens, cueKeywords[cue]); n > 0 {
			hits[cue] = n
		}
	}
	cues := make([]string, 0, len(hits))
	for _, cue := range cueOrder {
		if hits[cue] > 0 {
			cues = append(cues, cue)
		}
	}
	sort.SliceStable(cues, func(i, j int) bool { return hits[cues[i]] > hits[cues[j]] })
	return textutil.Cap(cues, maxCues)
}

func factTokens(f *model.VerifiedFacts, topics []string) []string {
	var parts []string
	parts = append(parts, topics...)
	if f != nil {
		parts = append(parts, f.Caption, f.OCRText, f.Transcript)
		parts = append(parts, f.ObjectLabels()...)
		parts = append(parts, f.Scenes...)
		parts = append(parts, f.Hashtags...)
	}
	return textutil.Tokenize(strings.Join(parts, " "))
}

// 内容模式
const (
	ModeTextHeavy  = "text_heavy"
	ModeSports     = "sports"
	ModeFood       = "food"
	ModeGroup      = "group"
	ModePortrait   = "portrait"
	ModeRepostMeme = "repost_meme"
	ModeGeneral    = "general"
)

// ContentMode 为模板兜底选择内容类型
func ContentMode(f *model.VerifiedFacts, ownershipLabel string, cues []string) string {
	if f == nil {
		return ModeGeneral
	}
	hasCue := func(c string) bool {
		for _, x := range cues {
			if x == c {
				return true
			}
		}
		return false
	}
	ocrTokens := len(textutil.Tokenize(f.OCRText))

	switch {
	case isRepostLike(f, ownershipLabel):
		return ModeRepostMeme
	case ocrTokens >= 12 || (ocrTokens >= 8 && len(f.Objects) < 2):
		return ModeTextHeavy
	case hasCue(CueSports):
		return ModeSports
	case hasCue(CueFood):
		return ModeFood
	case f.Faces.Total >= 3 || f.Faces.Secondary+f.Faces.Unknown >= 2:
		return ModeGroup
	case f.Faces.Primary >= 1 && f.Faces.Total <= 2:
		return ModePortrait
	}
	return ModeGeneral
}

func isRepostLike(f *model.VerifiedFacts, ownershipLabel string) bool {
	if ownershipLabel == model.OwnershipReshare || ownershipLabel == model.OwnershipMemeReshare {
		return true
	}
	for _, h := range f.Hashtags {
		switch h {
		case "repost", "regram", "meme", "memes", "relatable":
			return true
		}
	}
	return false
}
