package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/model"
)

func TestBuildGenerationPolicy(t *testing.T) {
	tests := []struct {
		name         string
		facts        model.VerifiedFacts
		class        model.OwnershipClassification
		allow        bool
		autoPost     bool
		manualReview bool
		reasonCode   string
	}{
		{
			name:         "insufficient evidence goes to manual review",
			facts:        model.VerifiedFacts{SignalScore: 1},
			class:        model.OwnershipClassification{Label: model.OwnershipInsufficient, Decision: model.DecisionSkip, Confidence: 0.63},
			allow:        true,
			manualReview: true,
			reasonCode:   ReasonManualReviewLowEvidence,
		},
		{
			name:         "owned but low identity confidence",
			facts:        model.VerifiedFacts{SignalScore: 5, Identity: model.IdentityVerification{Likelihood: model.LikelihoodLow}},
			class:        model.OwnershipClassification{Label: model.OwnershipOwned, Decision: model.DecisionAllow, Confidence: 0.55},
			allow:        true,
			manualReview: true,
			reasonCode:   ReasonManualReviewLowIdentity,
		},
		{
			name:         "owned with low identity just below the review threshold",
			facts:        model.VerifiedFacts{SignalScore: 4, Identity: model.IdentityVerification{Likelihood: model.LikelihoodLow}},
			class:        model.OwnershipClassification{Label: model.OwnershipOwned, Decision: model.DecisionAllow, Confidence: 0.579},
			allow:        true,
			manualReview: true,
			reasonCode:   ReasonManualReviewLowIdentity,
		},
		{
			name:       "owned with medium identity and low confidence",
			facts:      model.VerifiedFacts{SignalScore: 4, Identity: model.IdentityVerification{Likelihood: model.LikelihoodMedium}},
			class:      model.OwnershipClassification{Label: model.OwnershipOwned, Decision: model.DecisionAllow, Confidence: 0.5},
			allow:      true,
			autoPost:   true,
			reasonCode: ReasonAllowed,
		},
		{
			name:       "owned with low identity but enough confidence",
			facts:      model.VerifiedFacts{SignalScore: 5, Identity: model.IdentityVerification{Likelihood: model.LikelihoodLow}},
			class:      model.OwnershipClassification{Label: model.OwnershipOwned, Decision: model.DecisionAllow, Confidence: 0.6},
			allow:      true,
			autoPost:   true,
			reasonCode: ReasonAllowed,
		},
		{
			name:       "owned",
			facts:      model.VerifiedFacts{SignalScore: 6, Identity: model.IdentityVerification{Likelihood: model.LikelihoodHigh}},
			class:      model.OwnershipClassification{Label: model.OwnershipOwned, Decision: model.DecisionAllow, Confidence: 0.71},
			allow:      true,
			autoPost:   true,
			reasonCode: ReasonAllowed,
		},
		{
			name:       "reshare blocks",
			facts:      model.VerifiedFacts{SignalScore: 4},
			class:      model.OwnershipClassification{Label: model.OwnershipReshare, Decision: model.DecisionSkip, Confidence: 0.88},
			reasonCode: model.OwnershipReshare,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildGenerationPolicy(&tt.facts, &tt.class, 3)
			assert.Equal(t, tt.allow, p.AllowComment)
			assert.Equal(t, tt.autoPost, p.AllowAutoPost)
			assert.Equal(t, tt.manualReview, p.ManualReviewRequired)
			assert.Equal(t, tt.reasonCode, p.ReasonCode)
			assert.NotEmpty(t, p.Reason)
			assert.Equal(t, tt.class.Label, p.OwnershipLabel)
			assert.Equal(t, tt.facts.SignalScore, p.SignalScore)
			assert.Equal(t, 3, p.MinSignalScore)
		})
	}
}

func TestBuilder_EmptyFactsNeedManualReview(t *testing.T) {
	f, c, p := NewBuilder(0).Build(RawCapabilityOutput{}, SourceMetadata{AccountUsername: "maya.travels"})

	assert.Equal(t, 0, f.SignalScore)
	assert.Equal(t, model.OwnershipInsufficient, c.Label)
	assert.Equal(t, model.DecisionSkip, c.Decision)
	assert.True(t, p.AllowComment)
	assert.False(t, p.AllowAutoPost)
	assert.True(t, p.ManualReviewRequired)
}

func TestBuilder_OwnedPostAllowsAutoPost(t *testing.T) {
	raw := RawCapabilityOutput{
		Objects: []capability.Label{{Label: "bicycle", Confidence: 0.9}},
		Faces:   []capability.Face{{Confidence: 0.95, Role: model.FaceRolePrimary}},
	}
	_, c, p := NewBuilder(3).Build(raw, SourceMetadata{AccountUsername: "maya.travels", Caption: "Sunday ride @maya.travels"})

	assert.Equal(t, model.OwnershipOwned, c.Label)
	assert.True(t, p.AllowComment)
	assert.True(t, p.AllowAutoPost)
	assert.False(t, p.ManualReviewRequired)
}

func TestBuilder_UnlabeledSelfieIsOwned(t *testing.T) {
	raw := RawCapabilityOutput{
		Objects: []capability.Label{{Label: "surfboard", Confidence: 0.9}},
		Scenes:  []string{"beach"},
		Faces:   []capability.Face{{Confidence: 0.95, BBox: []float64{40, 30, 260, 310}}},
	}
	f, c, p := NewBuilder(3).Build(raw, SourceMetadata{AccountUsername: "surfer_jane"})

	assert.Equal(t, 4, f.SignalScore)
	assert.Equal(t, model.FaceSummary{Total: 1, Primary: 1, People: []model.FacePerson{{Role: model.FaceRolePrimary, Confidence: 0.95}}}, f.Faces)
	assert.Equal(t, model.LikelihoodHigh, f.Identity.Likelihood)
	assert.Equal(t, model.OwnershipOwned, c.Label)
	assert.Equal(t, []string{"identity_verified", "primary_face_present"}, c.ReasonCodes)
	assert.True(t, p.AllowComment)
	assert.True(t, p.AllowAutoPost)
}

func TestBuilder_BackgroundStrangersDoNotBlockOwner(t *testing.T) {
	raw := RawCapabilityOutput{
		Objects: []capability.Label{{Label: "bicycle", Confidence: 0.9}},
		Faces: []capability.Face{
			{Confidence: 0.92, BBox: []float64{100, 80, 300, 320}},
			{Confidence: 0.70, BBox: []float64{500, 40, 530, 75}},
			{Confidence: 0.65, BBox: []float64{560, 50, 585, 80}},
		},
	}
	f, c, _ := NewBuilder(3).Build(raw, SourceMetadata{AccountUsername: "maya.travels"})

	assert.Equal(t, 1, f.Faces.Primary)
	assert.Equal(t, 2, f.Faces.Unknown)
	assert.False(t, f.Faces.NonPrimaryDominant())
	assert.Equal(t, model.OwnershipOwned, c.Label)
}
