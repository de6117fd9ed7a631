package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qs3c/engage_go_server/internal/pkg/logger"
)

const (
	maxVideoLabels = 20
	maxVideoTexts  = 50
)

// LocalAIClient 本地 AI 微服务（YOLO/OCR/人脸/Whisper）的 HTTP 客户端
type LocalAIClient struct {
	baseURL      string
	whisperModel string
	httpClient   *http.Client
	log          *logger.Logger
}

// NewLocalAIClient 创建本地 LocalAI 客户端
func NewLocalAIClient(baseURL string, timeout time.Duration, whisperModel string, log *logger.Logger) *LocalAIClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if whisperModel == "" {
		whisperModel = "base"
	}
	return &LocalAIClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		whisperModel: whisperModel,
		httpClient:   &http.Client{Timeout: timeout},
		log:          log.With("service", "local_ai"),
	}
}

type localLabel struct {
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	BBox          []float64 `json:"bbox"`
	Count         int       `json:"count"`
	MaxConfidence float64   `json:"max_confidence"`
}

type localText struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

type localFace struct {
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
	// 视频结果按时间聚合后的形态
	Detections []struct {
		Confidence float64 `json:"confidence"`
	} `json:"detections"`
}

type localScene struct {
	Timestamp float64 `json:"timestamp"`
	Type      string  `json:"type"`
}

type localResults struct {
	Labels []localLabel `json:"labels"`
	Text   []localText  `json:"text"`
	Faces  []localFace  `json:"faces"`
	Scenes []localScene `json:"scenes"`
}

type localAnalyzeResponse struct {
	Success bool         `json:"success"`
	Results localResults `json:"results"`
}

type localTranscribeResponse struct {
	Success    bool   `json:"success"`
	Transcript string `json:"transcript"`
}

func (c *LocalAIClient) DetectFacesAndText(ctx context.Context, image []byte, features ...Feature) (*ImageAnalysis, error) {
	if len(features) == 0 {
		features = []Feature{FeatureLabels, FeatureText, FeatureFaces}
	}
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, string(f))
	}
	q := url.Values{}
	q.Set("features", strings.Join(names, ","))

	var resp localAnalyzeResponse
	if err := c.postFile(ctx, "/analyze/image", q, "image.jpg", image, &resp); err != nil {
		return nil, Wrap("local_ai.analyze_image", err)
	}

	out := &ImageAnalysis{Provider: "local_ai"}
	for _, l := range resp.Results.Labels {
		out.Objects = append(out.Objects, Label{Label: l.Label, Confidence: l.Confidence, BBox: l.BBox})
	}
	for _, t := range resp.Results.Text {
		out.OCRBlocks = append(out.OCRBlocks, TextBlock{Text: t.Text, Confidence: t.Confidence, Source: t.Source})
	}
	for _, f := range resp.Results.Faces {
		out.Faces = append(out.Faces, Face{Confidence: f.Confidence, BBox: f.BBox})
	}
	return out, nil
}

func (c *LocalAIClient) AnalyzeVideo(ctx context.Context, video []byte, sampleRateSeconds int) (*VideoAnalysis, error) {
	if sampleRateSeconds <= 0 {
		sampleRateSeconds = 2
	}
	q := url.Values{}
	q.Set("features", "labels,faces,scenes,text")
	q.Set("sample_rate", strconv.Itoa(sampleRateSeconds))

	var resp localAnalyzeResponse
	if err := c.postFile(ctx, "/analyze/video", q, "video.mp4", video, &resp); err != nil {
		return nil, Wrap("local_ai.analyze_video", err)
	}
	return videoFromLocal(resp.Results), nil
}

func videoFromLocal(r localResults) *VideoAnalysis {
	out := &VideoAnalysis{Provider: "local_ai"}
	for i, l := range r.Labels {
		if i >= maxVideoLabels {
			break
		}
		conf := l.MaxConfidence
		if conf == 0 {
			conf = l.Confidence
		}
		out.Objects = append(out.Objects, Label{Label: l.Label, Confidence: conf, Count: l.Count, MaxConfidence: conf})
	}
	for _, f := range r.Faces {
		conf := f.Confidence
		for _, d := range f.Detections {
			if d.Confidence > conf {
				conf = d.Confidence
			}
		}
		out.Faces = append(out.Faces, Face{Confidence: conf, BBox: f.BBox})
	}
	for _, s := range r.Scenes {
		label := s.Type
		if label == "" {
			label = "scene_change"
		}
		out.Scenes = append(out.Scenes, Scene{Label: label, StartSeconds: s.Timestamp})
	}
	out.OCRBlocks = dedupeVideoText(r.Text)
	return out
}

// dedupeVideoText 同一段文字会出现在多帧里：忽略大小写去重，丢弃过短片段
func dedupeVideoText(items []localText) []TextBlock {
	seen := make(map[string]struct{}, len(items))
	out := make([]TextBlock, 0, len(items))
	for _, t := range items {
		text := strings.TrimSpace(t.Text)
		if len(text) <= 2 {
			continue
		}
		key := strings.ToLower(text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, TextBlock{Text: text, Confidence: t.Confidence, Source: t.Source})
		if len(out) >= maxVideoTexts {
			break
		}
	}
	return out
}

func (c *LocalAIClient) Transcribe(ctx context.Context, media []byte) (string, error) {
	q := url.Values{}
	q.Set("model", c.whisperModel)

	var resp localTranscribeResponse
	if err := c.postFile(ctx, "/transcribe/audio", q, "audio.mp4", media, &resp); err != nil {
		return "", Wrap("local_ai.transcribe", err)
	}
	return strings.TrimSpace(resp.Transcript), nil
}

func (c *LocalAIClient) Health(ctx context.Context) (*HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	var out HealthStatus
	if err := c.do(req, &out); err != nil {
		return nil, Wrap("local_ai.health", err)
	}
	return &out, nil
}

func (c *LocalAIClient) postFile(ctx context.Context, path string, query url.Values, filename string, data []byte, out interface{}) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	start := time.Now()
	err = c.do(req, out)
	c.log.Debug("local ai call", "path", path, "bytes", len(data), "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
	return err
}

func (c *LocalAIClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
