package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hrygo/notecrew/ai/core/llm"
)

// ImageLoader loads a local image and returns it as a base64 data URL.
// Remote http(s) URLs are passed through unchanged.
// ImageLoader 将本地图片转为 base64 data URL，供多模态模型读取。
type ImageLoader struct{}

// NewImageLoader creates a new ImageLoader.
func NewImageLoader() *ImageLoader {
	return &ImageLoader{}
}

// Name returns the name of the tool.
func (t *ImageLoader) Name() string {
	return llm.ImageToolName
}

// Description returns a description of what the tool does.
func (t *ImageLoader) Description() string {
	return `Load an image so that you can see it. Accepts a local file path or an http(s) URL
and converts local files into a base64 data URL that multimodal models can process.

INPUT FORMAT:
{"image_url": "<local path or URL>"}`
}

// Parameters returns the JSON schema for the tool's input.
func (t *ImageLoader) Parameters() *llm.JSONSchema {
	return llm.StringParam("image_url", "Local file path or http(s) URL of the image")
}

type imageLoaderInput struct {
	ImageURL string `json:"image_url"`
}

// Run resolves the image. A missing local file is reported as an observation.
func (t *ImageLoader) Run(_ context.Context, input string) (string, error) {
	ref := parseImageRef(input)
	if ref == "" {
		return "Error: image_url is required", nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:image/") {
		return ref, nil
	}

	path := ref
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve image path %q: %w", ref, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("tools: image file not found", "image_url", ref)
			return fmt.Sprintf("Error: image file does not exist: %s", ref), nil
		}
		return "", fmt.Errorf("read image %q: %w", ref, err)
	}
	return fmt.Sprintf("data:%s;base64,%s", imageMIME(path, data), base64.StdEncoding.EncodeToString(data)), nil
}

func parseImageRef(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "{") {
		var in imageLoaderInput
		if err := json.Unmarshal([]byte(input), &in); err == nil {
			return strings.TrimSpace(in.ImageURL)
		}
	}
	return strings.Trim(input, `"'`)
}

// imageMIME sniffs the content type and falls back to the extension when the
// bytes are not a recognised image.
func imageMIME(path string, data []byte) string {
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return mimeByExt(path)
}

func mimeByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}
