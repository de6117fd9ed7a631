package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qs3c/engage_go_server/internal/capability"
)

const defaultMaxMediaBytes = 200 << 20

var ErrNoMedia = errors.New("item has no media for this step")

// MediaError 素材获取失败，UserMessage 写入步骤错误
type MediaError struct {
	UserMessage string
	RawError    error
}

func (e *MediaError) Error() string {
	return e.UserMessage
}

func (e *MediaError) Unwrap() error {
	return e.RawError
}

// ObjectStore 对象存储中的素材
type ObjectStore interface {
	Download(objectKey string) ([]byte, error)
}

// MediaFetcher 按存储键或 URL 读取素材
type MediaFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// MediaStore http(s) 引用直接下载，其余视为对象存储键
type MediaStore struct {
	objects  ObjectStore
	http     *http.Client
	maxBytes int64
}

// NewMediaStore 创建媒体读取器
func NewMediaStore(objects ObjectStore, timeout time.Duration) *MediaStore {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MediaStore{
		objects:  objects,
		http:     &http.Client{Timeout: timeout},
		maxBytes: defaultMaxMediaBytes,
	}
}

func (m *MediaStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, ErrNoMedia
	}
	if isRemoteRef(ref) {
		return m.fetchURL(ctx, ref)
	}
	if m.objects == nil {
		return nil, &MediaError{UserMessage: "素材存储未配置", RawError: fmt.Errorf("no object store for key %s", ref)}
	}
	data, err := m.objects.Download(ref)
	if err != nil {
		return nil, classifyMediaError(err)
	}
	return data, nil
}

func (m *MediaStore) fetchURL(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, &MediaError{UserMessage: "素材地址无效", RawError: err}
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, classifyMediaError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, classifyMediaError(&capability.HTTPError{StatusCode: resp.StatusCode, Body: string(body)})
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBytes+1))
	if err != nil {
		return nil, classifyMediaError(err)
	}
	if int64(len(data)) > m.maxBytes {
		return nil, &MediaError{UserMessage: "素材过大", RawError: fmt.Errorf("media exceeds %d bytes", m.maxBytes)}
	}
	return data, nil
}

func isRemoteRef(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// classifyMediaError 暂时性错误保留可重试标记，其余给出中文提示
func classifyMediaError(err error) error {
	if capability.IsTransient(err) {
		return capability.Wrap("fetch media", err)
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "not found") || strings.Contains(lower, "status=404"):
		return &MediaError{UserMessage: "素材不存在或已删除", RawError: err}
	case strings.Contains(lower, "status=403") || strings.Contains(lower, "access denied"):
		return &MediaError{UserMessage: "素材访问被拒绝", RawError: err}
	default:
		return &MediaError{UserMessage: "读取素材失败", RawError: err}
	}
}
