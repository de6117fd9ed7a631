package capability

import (
	"context"
	"errors"
	"sync"
)

// FakeGenerator 按模型名返回预设结果，供测试与离线开发使用
type FakeGenerator struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string][]error
	calls     []GenerateRequest
	// Fallback 在没有预设时返回
	Fallback string
}

// NewFakeGenerator 创建测试用文本模型
func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{
		responses: make(map[string][]string),
		errs:      make(map[string][]error),
	}
}

// Script 为某个模型追加依次返回的文本
func (f *FakeGenerator) Script(model string, texts ...string) *FakeGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[model] = append(f.responses[model], texts...)
	return f
}

// Fail 为某个模型追加依次返回的错误，错误优先于文本
func (f *FakeGenerator) Fail(model string, errs ...error) *FakeGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[model] = append(f.errs[model], errs...)
	return f
}

func (f *FakeGenerator) Calls() []GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]GenerateRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeGenerator) GenerateText(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	if q := f.errs[req.Model]; len(q) > 0 {
		f.errs[req.Model] = q[1:]
		if q[0] != nil {
			return nil, q[0]
		}
	}
	text := f.Fallback
	if q := f.responses[req.Model]; len(q) > 0 {
		text = q[0]
		// 最后一条保留，后续调用重复返回
		if len(q) > 1 {
			f.responses[req.Model] = q[1:]
		}
	} else if text == "" {
		return nil, errors.New("fake generator: no scripted response for " + req.Model)
	}
	return &GenerateResponse{
		Text:  text,
		Model: req.Model,
		Usage: TokenUsage{PromptTokens: len(req.Prompt) / 4, CompletionTokens: len(text) / 4, TotalTokens: (len(req.Prompt) + len(text)) / 4},
	}, nil
}

// FakeImageAnalyzer 固定返回 Result
type FakeImageAnalyzer struct {
	Result *ImageAnalysis
	Err    error
	Calls  int
}

func (f *FakeImageAnalyzer) DetectFacesAndText(ctx context.Context, image []byte, features ...Feature) (*ImageAnalysis, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Result == nil {
		return &ImageAnalysis{Provider: "fake"}, nil
	}
	return f.Result, nil
}

type FakeVideoAnalyzer struct {
	Result *VideoAnalysis
	Err    error
	Calls  int
}

func (f *FakeVideoAnalyzer) AnalyzeVideo(ctx context.Context, video []byte, sampleRateSeconds int) (*VideoAnalysis, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Result == nil {
		return &VideoAnalysis{Provider: "fake"}, nil
	}
	return f.Result, nil
}

type FakeTranscriber struct {
	Transcript string
	Err        error
}

func (f *FakeTranscriber) Transcribe(ctx context.Context, media []byte) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return f.Transcript, nil
}
