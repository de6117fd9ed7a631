package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/model"
)

func TestClassifyOwnership_DecisionTable(t *testing.T) {
	tests := []struct {
		name       string
		raw        RawCapabilityOutput
		caption    string
		label      string
		decision   string
		reasons    []string
		confidence float64
	}{
		{
			name:       "no evidence",
			label:      model.OwnershipInsufficient,
			decision:   model.DecisionSkip,
			reasons:    []string{"low_signal_score"},
			confidence: 0.63,
		},
		{
			name: "meme overlay without own username",
			raw: RawCapabilityOutput{
				OCRBlocks: []capability.TextBlock{
					{Text: "POV: you finally booked the trip", Confidence: 0.9},
					{Text: "me: packing 3 days early", Confidence: 0.9},
					{Text: "my wallet: crying", Confidence: 0.9},
				},
				Objects: []capability.Label{{Label: "suitcase", Confidence: 0.8}},
			},
			caption:    "tag a friend who does this",
			label:      model.OwnershipMemeReshare,
			decision:   model.DecisionSkip,
			reasons:    []string{"meme_markers", "own_username_absent"},
			confidence: 0.90,
		},
		{
			name:       "repost language",
			raw:        RawCapabilityOutput{Objects: []capability.Label{{Label: "beach", Confidence: 0.9}}},
			caption:    "#repost via @wanderlust.co amazing sunset",
			label:      model.OwnershipReshare,
			decision:   model.DecisionSkip,
			reasons:    []string{"reshare_language"},
			confidence: 0.88,
		},
		{
			name: "third party profile link",
			raw: RawCapabilityOutput{
				Objects: []capability.Label{{Label: "mountain", Confidence: 0.9}},
				Scenes:  []string{"outdoor"},
			},
			caption:    "stunning https://instagram.com/natgeo",
			label:      model.OwnershipReshare,
			decision:   model.DecisionSkip,
			reasons:    []string{"third_party_profile_link"},
			confidence: 0.88,
		},
		{
			name: "external source reference",
			raw: RawCapabilityOutput{
				Objects: []capability.Label{{Label: "whale", Confidence: 0.9}},
				Scenes:  []string{"ocean"},
			},
			caption:    "Unreal footage. Source: natgeo",
			label:      model.OwnershipThirdParty,
			decision:   model.DecisionSkip,
			reasons:    []string{"external_source_reference", "own_username_absent"},
			confidence: 0.84,
		},
		{
			name: "tagged stranger without the owner",
			raw: RawCapabilityOutput{
				Objects: []capability.Label{{Label: "guitar", Confidence: 0.8}},
				Faces:   []capability.Face{{Confidence: 0.9, Role: model.FaceRoleSecondary}},
			},
			caption:    "with @sam_k",
			label:      model.OwnershipThirdParty,
			decision:   model.DecisionSkip,
			reasons:    []string{"external_usernames", "own_username_absent", "non_primary_faces_only"},
			confidence: 0.89,
		},
		{
			name: "crowd of strangers with little else",
			raw: RawCapabilityOutput{
				Objects: []capability.Label{{Label: "person", Confidence: 0.9}},
				Faces: []capability.Face{
					{Confidence: 0.9, Role: model.FaceRoleSecondary},
					{Confidence: 0.9, Role: model.FaceRoleSecondary},
					{Confidence: 0.9, Role: model.FaceRoleSecondary},
				},
			},
			label:      model.OwnershipUnrelated,
			decision:   model.DecisionSkip,
			reasons:    []string{"non_primary_faces_dominant", "low_signal_score"},
			confidence: 0.72,
		},
		{
			name: "verified owner",
			raw: RawCapabilityOutput{
				Objects: []capability.Label{{Label: "bicycle", Confidence: 0.9}},
				Faces:   []capability.Face{{Confidence: 0.95, Role: model.FaceRolePrimary}},
			},
			caption:    "Sunday ride @maya.travels",
			label:      model.OwnershipOwned,
			decision:   model.DecisionAllow,
			reasons:    []string{"identity_verified", "primary_face_present", "own_username_mentioned"},
			confidence: 0.71,
		},
		{
			name: "plain own post",
			raw: RawCapabilityOutput{
				Objects: []capability.Label{{Label: "pier", Confidence: 0.9}},
				Scenes:  []string{"coast"},
			},
			caption:    "Golden hour at the pier #sunset",
			label:      model.OwnershipOwned,
			decision:   model.DecisionAllow,
			reasons:    []string{},
			confidence: 0.62,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := BuildVerifiedFacts(tt.raw, SourceMetadata{AccountUsername: "maya.travels", Caption: tt.caption})
			c := ClassifyOwnership(f, AccountIdentity{Username: "maya.travels"}, 0)

			assert.Equal(t, tt.label, c.Label)
			assert.Equal(t, tt.decision, c.Decision)
			assert.Equal(t, tt.reasons, c.ReasonCodes)
			assert.InDelta(t, tt.confidence, c.Confidence, 1e-9)
			assert.NotEmpty(t, c.Summary)
		})
	}
}

func TestClassifyOwnership_Deterministic(t *testing.T) {
	raw := RawCapabilityOutput{
		Objects: []capability.Label{{Label: "guitar", Confidence: 0.8}},
		Faces:   []capability.Face{{Confidence: 0.9, Role: model.FaceRoleSecondary}},
	}
	f := BuildVerifiedFacts(raw, SourceMetadata{AccountUsername: "maya.travels", Caption: "with @sam_k"})
	first := ClassifyOwnership(f, AccountIdentity{Username: "maya.travels"}, 3)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ClassifyOwnership(f, AccountIdentity{Username: "maya.travels"}, 3))
	}
}

func TestClassifyOwnership_ConfidenceBounds(t *testing.T) {
	for _, rule := range ownershipRules {
		conf := ownershipConfidence(rule.label, make([]string, 20), &model.VerifiedFacts{SignalScore: 9})
		assert.LessOrEqual(t, conf, 0.98)
		conf = ownershipConfidence(rule.label, nil, &model.VerifiedFacts{Identity: model.IdentityVerification{Likelihood: model.LikelihoodLow}})
		assert.GreaterOrEqual(t, conf, 0.5)
	}
}

func TestDetectSignals(t *testing.T) {
	f := &model.VerifiedFacts{
		Caption:           "credit: @wanderlust.co 📸 @wanderlust.co",
		OCRText:           "TikTok\n@wanderlust.co",
		DetectedUsernames: []string{"wanderlust.co", "maya.travels"},
		URLs:              []string{"https://www.tiktok.com/@wanderlust.co", "https://instagram.com/maya.travels"},
	}
	s := DetectSignals(f, AccountIdentity{Username: "Maya.Travels"})

	assert.Equal(t, []string{"credit", "photo_credit"}, s.ReshareHits)
	assert.Equal(t, []string{"platform_watermark"}, s.ExternalSourceRefs)
	assert.Equal(t, []string{"wanderlust.co"}, s.ExternalUsernames)
	assert.True(t, s.OwnUsernamePresent)
	require.Len(t, s.ThirdPartyLinks, 1)
	assert.Contains(t, s.ThirdPartyLinks[0], "tiktok.com")
	assert.Empty(t, s.MemeMarkers)
}
