package facts

import (
	"encoding/json"
	"fmt"

	"github.com/qs3c/engage_go_server/internal/model"
)

// Merge 追加另一步骤的输出；转写文本按空行拼接
func (r *RawCapabilityOutput) Merge(other RawCapabilityOutput) {
	r.OCRBlocks = append(r.OCRBlocks, other.OCRBlocks...)
	r.Objects = append(r.Objects, other.Objects...)
	r.Scenes = append(r.Scenes, other.Scenes...)
	r.Faces = append(r.Faces, other.Faces...)
	r.Mentions = append(r.Mentions, other.Mentions...)
	r.Hashtags = append(r.Hashtags, other.Hashtags...)
	switch {
	case other.Transcript == "":
	case r.Transcript == "":
		r.Transcript = other.Transcript
	default:
		r.Transcript += "\n" + other.Transcript
	}
}

// CollectRaw 按固定步骤顺序合并成功步骤的结果，返回参与合并的步骤
func CollectRaw(run *model.PipelineRun) (RawCapabilityOutput, []string, error) {
	var raw RawCapabilityOutput
	used := []string{}
	if run == nil {
		return raw, used, nil
	}
	for _, step := range model.AllSteps {
		st := run.Step(step)
		if st == nil || st.Status != model.StepStatusSucceeded || len(st.Result) == 0 {
			continue
		}
		var part RawCapabilityOutput
		if err := json.Unmarshal(st.Result, &part); err != nil {
			return raw, used, fmt.Errorf("decode %s step result: %w", step, err)
		}
		raw.Merge(part)
		used = append(used, step)
	}
	return raw, used, nil
}
