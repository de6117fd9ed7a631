package worker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/qs3c/engage_go_server/internal/capability"
	"github.com/qs3c/engage_go_server/internal/facts"
	"github.com/qs3c/engage_go_server/internal/model"
)

// Capabilities 各步骤依赖的识别能力
type Capabilities struct {
	Images      capability.ImageAnalyzer
	Videos      capability.VideoAnalyzer
	Transcriber capability.Transcriber
}

// stepFunc 执行一个步骤，输出合并进事实的原始结果
type stepFunc func(ctx context.Context, item *model.AnalysisItem) (facts.RawCapabilityOutput, error)

func (p *Processor) stepFuncs() map[string]stepFunc {
	return map[string]stepFunc{
		model.StepVisual:   p.runVisual,
		model.StepFace:     p.runFace,
		model.StepOCR:      p.runOCR,
		model.StepVideo:    p.runVideo,
		model.StepMetadata: p.runMetadata,
	}
}

// analyzeImage 没有图片时返回空结果
func (p *Processor) analyzeImage(ctx context.Context, item *model.AnalysisItem, feature capability.Feature) (*capability.ImageAnalysis, error) {
	if p.caps.Images == nil {
		return nil, errors.New("image analyzer not configured")
	}
	data, err := p.media.Fetch(ctx, item.ImageRef())
	if errors.Is(err, ErrNoMedia) {
		return &capability.ImageAnalysis{}, nil
	}
	if err != nil {
		return nil, err
	}
	return p.caps.Images.DetectFacesAndText(ctx, data, feature)
}

func (p *Processor) runVisual(ctx context.Context, item *model.AnalysisItem) (facts.RawCapabilityOutput, error) {
	res, err := p.analyzeImage(ctx, item, capability.FeatureLabels)
	if err != nil {
		return facts.RawCapabilityOutput{}, err
	}
	return facts.RawCapabilityOutput{Objects: res.Objects, Scenes: res.Scenes}, nil
}

func (p *Processor) runFace(ctx context.Context, item *model.AnalysisItem) (facts.RawCapabilityOutput, error) {
	res, err := p.analyzeImage(ctx, item, capability.FeatureFaces)
	if err != nil {
		return facts.RawCapabilityOutput{}, err
	}
	return facts.RawCapabilityOutput{Faces: res.Faces}, nil
}

func (p *Processor) runOCR(ctx context.Context, item *model.AnalysisItem) (facts.RawCapabilityOutput, error) {
	res, err := p.analyzeImage(ctx, item, capability.FeatureText)
	if err != nil {
		return facts.RawCapabilityOutput{}, err
	}
	return facts.RawCapabilityOutput{OCRBlocks: res.OCRBlocks, Mentions: res.Mentions, Hashtags: res.Hashtags}, nil
}

// runVideo 视频识别与语音转写并发执行；转写失败不影响视频结果
func (p *Processor) runVideo(ctx context.Context, item *model.AnalysisItem) (facts.RawCapabilityOutput, error) {
	if p.caps.Videos == nil {
		return facts.RawCapabilityOutput{}, errors.New("video analyzer not configured")
	}
	data, err := p.media.Fetch(ctx, item.VideoRef())
	if err != nil {
		return facts.RawCapabilityOutput{}, err
	}

	var (
		video      *capability.VideoAnalysis
		transcript string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		video, err = p.caps.Videos.AnalyzeVideo(gctx, data, p.sampleRate)
		return err
	})
	if p.caps.Transcriber != nil {
		g.Go(func() error {
			text, err := p.caps.Transcriber.Transcribe(gctx, data)
			if err != nil {
				if gctx.Err() == nil {
					p.log.Warn("transcription failed", "item_id", item.ID, "error", err)
				}
				return nil
			}
			transcript = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return facts.RawCapabilityOutput{}, err
	}

	out := facts.RawCapabilityOutput{
		Objects:    video.Objects,
		OCRBlocks:  video.OCRBlocks,
		Faces:      video.Faces,
		Mentions:   video.Mentions,
		Hashtags:   video.Hashtags,
		Transcript: video.Transcript,
	}
	for _, s := range video.Scenes {
		out.Scenes = append(out.Scenes, s.Label)
	}
	if transcript != "" {
		out.Transcript = transcript
	}
	return out, nil
}

// runMetadata 只使用条目自带的文字信息
func (p *Processor) runMetadata(_ context.Context, item *model.AnalysisItem) (facts.RawCapabilityOutput, error) {
	out := facts.RawCapabilityOutput{
		Hashtags: facts.ExtractHashtags(item.Caption),
		Mentions: facts.ExtractUsernames(item.Caption),
	}
	if name, ok := facts.ProfileUsername(item.Permalink); ok {
		out.Mentions = append(out.Mentions, name)
	}
	return out, nil
}

func unknownStep(step string) error {
	return fmt.Errorf("unknown step %q", step)
}
