package oss

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/engage_go_server/config"
)

var ErrObjectNotFound = errors.New("oss object not found")

// Client 素材存储（帖子图片和视频）
type Client struct {
	bucket   *oss.Bucket
	maxBytes int64
}

// NewClient 创建 OSS 客户端
func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		bucket:   bucket,
		maxBytes: 200 << 20,
	}, nil
}

// Download 读取素材内容，超过上限时报错
func (c *Client) Download(objectKey string) ([]byte, error) {
	body, err := c.bucket.GetObject(objectKey)
	if err != nil {
		var svcErr oss.ServiceError
		if errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectKey)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("object %s exceeds %d bytes", objectKey, c.maxBytes)
	}
	return data, nil
}
