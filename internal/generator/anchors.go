package generator

import (
	"sort"

	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
)

const (
	maxAnchors = 8

	// 存在高于该置信度的具体标签时压掉泛化标签
	specificAnchorConfidence = 0.55
)

// genericLabels 太泛、不能单独支撑评论的标签
var genericLabels = textutil.SetOf([]string{
	"person", "people", "man", "woman", "boy", "girl", "human", "face", "head", "hand",
	"room", "indoor", "outdoor", "building", "wall", "floor", "ceiling", "sky", "ground",
	"clothing", "text", "font", "furniture", "object", "product", "image", "photo", "screenshot",
})

// IsGenericLabel 是否为泛化标签
func IsGenericLabel(label string) bool {
	_, ok := genericLabels[label]
	return ok
}

// VisualAnchors 按置信度挑出具体标签；有足够可信的具体标签时不再使用 person/room 之类
func VisualAnchors(objects []model.ObjectDetection) []string {
	ranked := make([]model.ObjectDetection, len(objects))
	copy(ranked, objects)
	sort.SliceStable(ranked, func(i, j int) bool {
		gi, gj := IsGenericLabel(ranked[i].Label), IsGenericLabel(ranked[j].Label)
		if gi != gj {
			return !gi
		}
		return ranked[i].Confidence > ranked[j].Confidence
	})

	strong := false
	for _, o := range ranked {
		if !IsGenericLabel(o.Label) && o.Confidence >= specificAnchorConfidence {
			strong = true
			break
		}
	}

	out := make([]string, 0, maxAnchors)
	for _, o := range ranked {
		if strong && IsGenericLabel(o.Label) {
			continue
		}
		out = append(out, o.Label)
	}
	return textutil.Cap(textutil.Dedupe(out), maxAnchors)
}
