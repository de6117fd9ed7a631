package capability

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"
	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/qs3c/engage_go_server/internal/pkg/logger"
)

// ClientOptionsFromEnv 支持 JSON 内容或文件路径两种凭证
func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	opts := []option.ClientOption{}
	if creds == "" {
		return opts
	}
	if strings.HasPrefix(creds, "{") {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return opts
}

// GCPVision Cloud Vision 图片识别
type GCPVision struct {
	client *vision.ImageAnnotatorClient
	log    *logger.Logger
}

// NewGCPVision 创建 Cloud Vision 客户端
func NewGCPVision(ctx context.Context, log *logger.Logger) (*GCPVision, error) {
	c, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &GCPVision{client: c, log: log.With("service", "gcp.Vision")}, nil
}

func (g *GCPVision) Close() error {
	return g.client.Close()
}

func (g *GCPVision) DetectFacesAndText(ctx context.Context, image []byte, features ...Feature) (*ImageAnalysis, error) {
	if len(features) == 0 {
		features = []Feature{FeatureLabels, FeatureText, FeatureFaces}
	}
	var req []*visionpb.Feature
	for _, f := range features {
		switch f {
		case FeatureLabels:
			req = append(req,
				&visionpb.Feature{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: 30},
				&visionpb.Feature{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: 20})
		case FeatureText:
			req = append(req, &visionpb.Feature{Type: visionpb.Feature_TEXT_DETECTION})
		case FeatureFaces:
			req = append(req, &visionpb.Feature{Type: visionpb.Feature_FACE_DETECTION, MaxResults: 20})
		case FeatureSafeSearch:
			req = append(req, &visionpb.Feature{Type: visionpb.Feature_SAFE_SEARCH_DETECTION})
		}
	}

	resp, err := g.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: image},
			Features: req,
		}},
	})
	if err != nil {
		return nil, Wrap("gcp_vision.annotate", err)
	}

	out := &ImageAnalysis{Provider: "gcp_vision"}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return out, nil
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r.Error.Message)
	}

	for _, o := range r.LocalizedObjectAnnotations {
		out.Objects = append(out.Objects, Label{Label: strings.ToLower(o.Name), Confidence: float64(o.Score)})
	}
	for _, l := range r.LabelAnnotations {
		out.Scenes = append(out.Scenes, strings.ToLower(l.Description))
	}
	// 第一条是整图全文，其余是逐词结果；按行拆分保留多行叠字信息
	if len(r.TextAnnotations) > 0 {
		for _, line := range strings.Split(r.TextAnnotations[0].Description, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			conf := float64(r.TextAnnotations[0].Confidence)
			if conf == 0 {
				conf = 0.9
			}
			out.OCRBlocks = append(out.OCRBlocks, TextBlock{Text: line, Confidence: conf, Source: "gcp_vision"})
		}
	}
	for _, f := range r.FaceAnnotations {
		out.Faces = append(out.Faces, Face{Confidence: float64(f.DetectionConfidence), BBox: polyBox(f.GetBoundingPoly())})
	}
	return out, nil
}

// polyBox 多边形顶点转为 [x1, y1, x2, y2]
func polyBox(poly *visionpb.BoundingPoly) []float64 {
	vs := poly.GetVertices()
	if len(vs) == 0 {
		return nil
	}
	x1, y1 := float64(vs[0].GetX()), float64(vs[0].GetY())
	x2, y2 := x1, y1
	for _, v := range vs[1:] {
		x, y := float64(v.GetX()), float64(v.GetY())
		x1, y1 = min(x1, x), min(y1, y)
		x2, y2 = max(x2, x), max(y2, y)
	}
	return []float64{x1, y1, x2, y2}
}

// GCPVideo Video Intelligence 视频识别（内联内容）
type GCPVideo struct {
	client *videointelligence.Client
	log    *logger.Logger
}

// NewGCPVideo 创建 Video Intelligence 客户端
func NewGCPVideo(ctx context.Context, log *logger.Logger) (*GCPVideo, error) {
	c, err := videointelligence.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}
	return &GCPVideo{client: c, log: log.With("service", "gcp.Video")}, nil
}

func (g *GCPVideo) Close() error {
	return g.client.Close()
}

func (g *GCPVideo) AnalyzeVideo(ctx context.Context, video []byte, sampleRateSeconds int) (*VideoAnalysis, error) {
	req := &vipb.AnnotateVideoRequest{
		InputContent: video,
		Features: []vipb.Feature{
			vipb.Feature_LABEL_DETECTION,
			vipb.Feature_SHOT_CHANGE_DETECTION,
			vipb.Feature_TEXT_DETECTION,
			vipb.Feature_SPEECH_TRANSCRIPTION,
		},
		VideoContext: &vipb.VideoContext{
			SpeechTranscriptionConfig: &vipb.SpeechTranscriptionConfig{
				LanguageCode:               "en-US",
				EnableAutomaticPunctuation: true,
			},
			TextDetectionConfig: &vipb.TextDetectionConfig{},
		},
	}

	op, err := g.client.AnnotateVideo(ctx, req)
	if err != nil {
		return nil, Wrap("gcp_video.annotate", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, Wrap("gcp_video.wait", err)
	}

	out := &VideoAnalysis{Provider: "gcp_videointelligence"}
	if resp == nil || len(resp.AnnotationResults) == 0 || resp.AnnotationResults[0] == nil {
		return out, nil
	}
	ar := resp.AnnotationResults[0]

	labels := make([]Label, 0, len(ar.SegmentLabelAnnotations))
	for _, la := range ar.SegmentLabelAnnotations {
		if la == nil || la.Entity == nil {
			continue
		}
		best := 0.0
		for _, seg := range la.Segments {
			if float64(seg.GetConfidence()) > best {
				best = float64(seg.GetConfidence())
			}
		}
		labels = append(labels, Label{
			Label:         strings.ToLower(la.Entity.Description),
			Confidence:    best,
			Count:         len(la.Segments),
			MaxConfidence: best,
		})
	}
	sort.SliceStable(labels, func(i, j int) bool {
		if labels[i].Count != labels[j].Count {
			return labels[i].Count > labels[j].Count
		}
		return labels[i].MaxConfidence > labels[j].MaxConfidence
	})
	if len(labels) > maxVideoLabels {
		labels = labels[:maxVideoLabels]
	}
	out.Objects = labels

	for _, shot := range ar.ShotAnnotations {
		if shot == nil {
			continue
		}
		out.Scenes = append(out.Scenes, Scene{
			Label:        "shot",
			StartSeconds: durToSec(shot.StartTimeOffset),
			EndSeconds:   durToSec(shot.EndTimeOffset),
		})
	}

	texts := make([]localText, 0, len(ar.TextAnnotations))
	for _, ta := range ar.TextAnnotations {
		if ta == nil {
			continue
		}
		conf := 0.0
		for _, seg := range ta.Segments {
			if float64(seg.GetConfidence()) > conf {
				conf = float64(seg.GetConfidence())
			}
		}
		texts = append(texts, localText{Text: ta.Text, Confidence: conf, Source: "gcp_videointelligence"})
	}
	out.OCRBlocks = dedupeVideoText(texts)

	var b strings.Builder
	for _, st := range ar.SpeechTranscriptions {
		if st == nil || len(st.Alternatives) == 0 || st.Alternatives[0] == nil {
			continue
		}
		t := strings.TrimSpace(st.Alternatives[0].Transcript)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(t)
	}
	out.Transcript = b.String()
	return out, nil
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}
