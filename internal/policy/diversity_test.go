package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

func TestTone(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Which trail was this?", ToneCurious},
		{"Congrats on the finish line 🎉", ToneCelebratory},
		{"So proud of this comeback 💪", ToneSupportive},
		{"Not me zooming in on that cake 😂", TonePlayful},
		{"The light on that ridge is soft", ToneObservational},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Tone(tt.text))
		})
	}
}

func TestDiversify_RoundRobin(t *testing.T) {
	e := NewEngine(nil, 8)
	out := e.Diversify([]string{
		"The light on that ridge is soft",
		"The light on that ridge is so soft",
		"Which trail was this?",
		"Congrats on the summit 🎉",
		"Ridge views like that are rare",
	}, []string{"hiking"})

	require.Len(t, out, 4)
	// 观察 → 提问 → 庆祝 → 观察
	assert.Equal(t, "The light on that ridge is soft", out[0])
	assert.Equal(t, "Which trail was this?", out[1])
	assert.Equal(t, "Congrats on the summit 🎉", out[2])
	assert.Equal(t, "Ridge views like that are rare", out[3])
}

func TestDiversify_UniqueOpenings(t *testing.T) {
	e := NewEngine(nil, 8)
	out := e.Diversify([]string{
		"Love this vibe so much",
		"Love this vibe at dusk",
		"Such a calm harbor morning",
		"Such a calm harbor at night",
	}, nil)

	seen := map[string]bool{}
	for _, c := range out {
		sig := textutil.OpeningSignature(c, OpeningTokens)
		assert.False(t, seen[sig], "duplicate opening %q", sig)
		seen[sig] = true
	}
}

func TestDiversify_AppendsQuestion(t *testing.T) {
	e := NewEngine(nil, 8)
	out := e.Diversify([]string{"Those dumplings look perfectly pleated"}, []string{"#Dumplings"})

	require.Len(t, out, 2)
	assert.Equal(t, "What was the best part of the dumplings?", out[1])

	out = e.Diversify([]string{"Those dumplings look perfectly pleated"}, nil)
	require.Len(t, out, 2)
	assert.True(t, strings.HasSuffix(out[1], "?"))
}

func TestDiversify_QuestionRespectsLimit(t *testing.T) {
	e := NewEngine(nil, 2)
	out := e.Diversify([]string{"Harbor lights glowing tonight", "Boats tucked in for the evening"}, []string{"sailing"})

	require.Len(t, out, 2)
	assert.Equal(t, "Harbor lights glowing tonight", out[0])
	assert.Contains(t, out[1], "?")
}
