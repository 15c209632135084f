package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	einoparser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/api/option"
)

// OCR 图片文字识别
type OCR interface {
	Recognize(ctx context.Context, img []byte) (string, error)
}

// errOCRNotConfigured 未配置 OCR 时图片无法提取
var errOCRNotConfigured = errors.New("ocr not configured")

// imageParser 通过 OCR 提取图片文字
type imageParser struct {
	ocr OCR
}

func (p *imageParser) Parse(ctx context.Context, reader io.Reader, opts ...einoparser.Option) ([]*schema.Document, error) {
	if p.ocr == nil {
		return nil, errOCRNotConfigured
	}
	img, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	if len(img) == 0 {
		return []*schema.Document{}, nil
	}

	text, err := p.ocr.Recognize(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("ocr failed: %w", err)
	}
	return []*schema.Document{
		{Content: text, MetaData: make(map[string]any)},
	}, nil
}

// VisionOCR 基于 Google Cloud Vision 的 OCR
type VisionOCR struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionOCR 创建 Vision 客户端，credentialsFile 为空时使用默认凭据
func NewVisionOCR(ctx context.Context, credentialsFile string) (*VisionOCR, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionOCR{client: client}, nil
}

// Recognize 识别图片中的文字
func (v *VisionOCR) Recognize(ctx context.Context, img []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: img},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}
	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	if r0.FullTextAnnotation == nil {
		return "", nil
	}
	return strings.TrimSpace(r0.FullTextAnnotation.Text), nil
}

// Close 关闭客户端
func (v *VisionOCR) Close() error {
	if v == nil || v.client == nil {
		return nil
	}
	return v.client.Close()
}
