package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qs3c/engage_go_server/internal/model"
)

func surfContext() *Context {
	return NewContext(&model.VerifiedFacts{
		Objects: []model.ObjectDetection{
			{Label: "surfboard", Confidence: 0.92},
			{Label: "person", Confidence: 0.9},
			{Label: "wave", Confidence: 0.8},
		},
		Scenes: []string{"beach", "ocean"},
		Faces:  model.FaceSummary{Total: 1, Primary: 1},
	}, []string{"surfing", "beach"}, "warm", []string{"Morning glass at the point break"})
}

func TestNewScorer_Threshold(t *testing.T) {
	assert.Equal(t, DefaultAutoPostThreshold, NewScorer(0).Threshold())
	assert.Equal(t, 0.5, NewScorer(0.1).Threshold())
	assert.Equal(t, 3.0, NewScorer(7).Threshold())
	assert.Equal(t, 1.7, NewScorer(1.7).Threshold())
}

func TestScore_GroundedBeatsGeneric(t *testing.T) {
	s := NewScorer(0)
	ctx := surfContext()

	grounded := s.Score("That surfboard on the wave looks dialed in for surfing", ctx)
	generic := s.Score("So amazing!!", ctx)

	assert.Greater(t, grounded.Score, generic.Score)
	assert.Equal(t, LevelLow, generic.ConfidenceLevel)
	assert.Equal(t, -0.35, generic.Factors["generic_comment"].Value)
	assert.Equal(t, LevelHigh, generic.Factors["generic_comment"].Label)
	assert.Equal(t, 0.0, grounded.Factors["low_confidence_anchor"].Value)
	assert.Greater(t, grounded.Factors["visual_context"].Value, 0.5)
}

func TestScore_BoundsAndEligibility(t *testing.T) {
	candidates := []string{
		"",
		"wow",
		"That surfboard on the wave looks dialed in for surfing",
		"Beach surfing surfboard wave ocean surfing beach surfboard wave ocean",
		"As an AI, this image shows a testament to vibrant colors showcasing absolutely stunning energy",
		"You guys crushed that set",
	}
	for _, threshold := range []float64{0.5, 1.2, 2.0, 3.0} {
		s := NewScorer(threshold)
		for _, c := range candidates {
			sc := s.Score(c, surfContext())
			assert.GreaterOrEqual(t, sc.Score, 0.0, c)
			assert.LessOrEqual(t, sc.Score, MaxScore, c)
			assert.Equal(t, sc.Score >= s.Threshold(), sc.AutoPostEligible, c)
		}
	}
}

func TestScore_Deterministic(t *testing.T) {
	s := NewScorer(0)
	ctx := surfContext()

	tests := []string{
		"So amazing!!",
		"That surfboard on the wave looks dialed in for surfing",
		"Great post, love this content",
		"Those cars look fast",
	}
	for _, candidate := range tests {
		t.Run(candidate, func(t *testing.T) {
			want := s.Score(candidate, ctx)
			for i := 0; i < 50; i++ {
				got := s.Score(candidate, ctx)
				assert.Equal(t, want.Score, got.Score)
				assert.Equal(t, want.Factors, got.Factors)
			}
		})
	}
}

func TestScore_NilContext(t *testing.T) {
	sc := NewScorer(0).Score("Looks like a great day out there", nil)
	assert.GreaterOrEqual(t, sc.Score, 0.0)
	assert.Contains(t, sc.Factors, "novelty")
}

func TestScore_TextMode(t *testing.T) {
	s := NewScorer(0)
	ctx := NewContext(&model.VerifiedFacts{
		OCRText: "GRAND OPENING this saturday at noon free coffee for everyone",
	}, nil, "unknown", nil)
	assert.True(t, ctx.TextHeavy)

	mentions := s.Score("Free coffee at the grand opening, see you Saturday", ctx)
	ignores := s.Score("Love the colors on that storefront", ctx)

	assert.Equal(t, 0.0, mentions.Factors["text_mode"].Value)
	assert.Equal(t, -0.24, ignores.Factors["text_mode"].Value)
	assert.Greater(t, mentions.Score, ignores.Score)
}

func TestRank(t *testing.T) {
	s := NewScorer(0)
	ranked := s.Rank([]string{"So amazing!!", "That surfboard on the wave looks dialed in for surfing"}, surfContext())
	assert.Equal(t, "That surfboard on the wave looks dialed in for surfing", ranked[0].Text)
	assert.GreaterOrEqual(t, ranked[0].Score, ranked[1].Score)
}

func TestConfidenceLevel(t *testing.T) {
	assert.Equal(t, LevelHigh, confidenceLevel(2.3))
	assert.Equal(t, LevelMedium, confidenceLevel(1.4))
	assert.Equal(t, LevelLow, confidenceLevel(1.399))
}

func TestPenalties(t *testing.T) {
	t.Run("low confidence anchors", func(t *testing.T) {
		matched := []model.ObjectDetection{{Label: "kite", Confidence: 0.4}, {Label: "sail", Confidence: 0.45}}
		assert.InDelta(t, -0.24, lowConfidencePenalty(matched, true), 1e-9)
		many := append(matched, matched...)
		many = append(many, matched...)
		assert.InDelta(t, -0.3, lowConfidencePenalty(many, true), 1e-9)
		assert.Equal(t, 0.0, lowConfidencePenalty([]model.ObjectDetection{{Label: "kite", Confidence: 0.9}}, true))
		assert.Equal(t, 0.0, lowConfidencePenalty(nil, false))
	})

	t.Run("robotic phrasing floor", func(t *testing.T) {
		assert.InDelta(t, -0.4, roboticPenalty("this image shows a testament to showcasing vibrant colors"), 1e-9)
		assert.Equal(t, 0.0, roboticPenalty("that wave was huge"))
	})

	t.Run("plurality mismatch", func(t *testing.T) {
		group := &Context{GroupContext: true}
		solo := &Context{SoloContext: true}
		assert.InDelta(t, -0.22, pluralityPenalty("you look so happy here", group), 1e-9)
		assert.Equal(t, 0.0, pluralityPenalty("you all look so happy here", group))
		assert.InDelta(t, -0.22, pluralityPenalty("you guys crushed it", solo), 1e-9)
		assert.Equal(t, 0.0, pluralityPenalty("you look so happy here", solo))
	})
}
