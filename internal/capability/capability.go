package capability

import "context"

// Feature 图片分析的功能开关（与本地 AI 服务的 features 参数一致）
type Feature string

const (
	FeatureLabels     Feature = "labels"
	FeatureText       Feature = "text"
	FeatureFaces      Feature = "faces"
	FeatureSafeSearch Feature = "safe_search"
)

// Label 物体或场景标签
type Label struct {
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	BBox          []float64 `json:"bbox,omitempty"`
	Count         int       `json:"count,omitempty"`
	MaxConfidence float64   `json:"max_confidence,omitempty"`
}

// TextBlock OCR 文本块
type TextBlock struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

// Face 人脸检测结果；Role 由上游身份比对给出，缺省 unknown
type Face struct {
	Confidence float64   `json:"confidence"`
	Role       string    `json:"role,omitempty"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// Scene 视频镜头/场景
type Scene struct {
	Label        string  `json:"label"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds,omitempty"`
}

type ImageAnalysis struct {
	Provider  string      `json:"provider"`
	Objects   []Label     `json:"objects,omitempty"`
	Scenes    []string    `json:"scenes,omitempty"`
	OCRBlocks []TextBlock `json:"ocr_blocks,omitempty"`
	Faces     []Face      `json:"faces,omitempty"`
	Mentions  []string    `json:"mentions,omitempty"`
	Hashtags  []string    `json:"hashtags,omitempty"`
}

type VideoAnalysis struct {
	Provider   string      `json:"provider"`
	Scenes     []Scene     `json:"scenes,omitempty"`
	Objects    []Label     `json:"objects,omitempty"`
	OCRBlocks  []TextBlock `json:"ocr_blocks,omitempty"`
	Faces      []Face      `json:"faces,omitempty"`
	Mentions   []string    `json:"mentions,omitempty"`
	Hashtags   []string    `json:"hashtags,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
}

// ImageAnalyzer 图片识别能力
type ImageAnalyzer interface {
	DetectFacesAndText(ctx context.Context, image []byte, features ...Feature) (*ImageAnalysis, error)
}

// VideoAnalyzer 视频识别能力
type VideoAnalyzer interface {
	AnalyzeVideo(ctx context.Context, video []byte, sampleRateSeconds int) (*VideoAnalysis, error)
}

// Transcriber 语音转写能力
type Transcriber interface {
	Transcribe(ctx context.Context, media []byte) (string, error)
}

// 响应格式
const (
	FormatText = "text"
	FormatJSON = "json"
)

type GenerateRequest struct {
	Model          string
	System         string
	Prompt         string
	Temperature    float64
	MaxTokens      int
	ResponseFormat string
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type GenerateResponse struct {
	Text  string     `json:"text"`
	Model string     `json:"model"`
	Usage TokenUsage `json:"usage"`
}

// TextGenerator 文本生成能力
type TextGenerator interface {
	GenerateText(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// HealthStatus 各能力是否可用
type HealthStatus struct {
	Status   string          `json:"status"`
	Services map[string]bool `json:"services,omitempty"`
}

type HealthChecker interface {
	Health(ctx context.Context) (*HealthStatus, error)
}
