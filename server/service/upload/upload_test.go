package upload

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agents "github.com/hrygo/notecrew/ai/agents"
)

// pngBytes 生成 w×h 的 PNG；alpha < 255 时带透明通道。
func pngBytes(t *testing.T, w, h int, alpha uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: alpha})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSanitizeFileName(t *testing.T) {
	long := strings.Repeat("a", 300) + ".jpg"
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "cafe.jpg", "cafe.jpg"},
		{"path traversal", "../../etc/passwd", ".._.._etc_passwd"},
		{"windows separators", `C:\photos\a.png`, "C__photos_a.png"},
		{"reserved chars", `a<b>c:"d|e?f*.png`, "a_b_c__d_e_f_.png"},
		{"empty uses fallback", "", "img_0.jpg"},
		{"blank uses fallback", "   ", "img_0.jpg"},
		{"dot dot uses fallback", "..", "img_0.jpg"},
		{"long keeps extension", long, strings.Repeat("a", 251) + ".jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeFileName(tt.in, "img_0.jpg", maxFileNameLength)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), maxFileNameLength)
		})
	}

	// 多字节字符不会被截断成非法 UTF-8
	got := SanitizeFileName(strings.Repeat("咖", 100)+".png", "x", 20)
	assert.Equal(t, strings.Repeat("咖", 5)+".png", got)
}

func TestCompressImage(t *testing.T) {
	t.Run("opaque large image becomes jpeg", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "big.png")
		require.NoError(t, os.WriteFile(path, pngBytes(t, 400, 200, 255), 0o644))

		out, err := CompressImage(path, 100, 80)
		require.NoError(t, err)
		assert.Equal(t, ".jpg", filepath.Ext(out))
		assert.NoFileExists(t, path)

		img, err := imaging.Open(out)
		require.NoError(t, err)
		assert.Equal(t, 100, img.Bounds().Dx())
		assert.Equal(t, 50, img.Bounds().Dy())
	})

	t.Run("transparent image stays png", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logo.png")
		require.NoError(t, os.WriteFile(path, pngBytes(t, 50, 80, 100), 0o644))

		out, err := CompressImage(path, 1024, 85)
		require.NoError(t, err)
		assert.Equal(t, path, out)

		img, err := imaging.Open(out)
		require.NoError(t, err)
		// 小图不放大
		assert.Equal(t, 50, img.Bounds().Dx())
		assert.Equal(t, 80, img.Bounds().Dy())
	})

	t.Run("undecodable file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.jpg")
		require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

		_, err := CompressImage(path, 1024, 85)
		require.Error(t, err)
		assert.FileExists(t, path)
	})
}

func TestStage(t *testing.T) {
	dataDir := t.TempDir()
	svc := NewService(Config{DataDir: dataDir, MaxImages: 5, MaxSize: 64, Quality: 85, Parallel: 2})

	batch, err := svc.Stage(context.Background(), []Source{
		{FileName: "cafe.png", Reader: bytes.NewReader(pngBytes(t, 128, 64, 255))},
		{FileName: "../menu.txt", Reader: strings.NewReader("plain text")},
		{FileName: "", Reader: bytes.NewReader(pngBytes(t, 10, 10, 255))},
	})
	require.NoError(t, err)

	assert.Len(t, batch.RunID, 8)
	assert.Equal(t, filepath.Join(dataDir, RunDirName, batch.RunID), batch.Dir)
	assert.Equal(t, []string{"img_0", "img_1", "img_2"}, batch.ImageIDs())

	// 压缩成功：扩展名变为 .jpg
	assert.Equal(t, "cafe.png", batch.Images[0].FileName)
	assert.Equal(t, ".jpg", filepath.Ext(batch.Images[0].LocalPath))
	assert.FileExists(t, batch.Images[0].LocalPath)

	// 压缩失败：保留原文件
	assert.Equal(t, ".._menu.txt", batch.Images[1].FileName)
	assert.FileExists(t, batch.Images[1].LocalPath)
	raw, err := os.ReadFile(batch.Images[1].LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "plain text", string(raw))

	// 缺失文件名时使用 image id
	assert.Equal(t, "img_2.jpg", batch.Images[2].FileName)

	for _, img := range batch.Images {
		assert.Equal(t, batch.Dir, filepath.Dir(img.LocalPath))
	}

	batch.Cleanup()
	batch.Cleanup()
	assert.NoDirExists(t, batch.Dir)
}

func TestStage_Validation(t *testing.T) {
	svc := NewService(Config{DataDir: t.TempDir(), MaxImages: 1})

	_, err := svc.Stage(context.Background(), nil)
	var verr *agents.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, agents.ErrNoImages)

	_, err = svc.Stage(context.Background(), []Source{
		{FileName: "a.png", Reader: strings.NewReader("a")},
		{FileName: "b.png", Reader: strings.NewReader("b")},
	})
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrTooManyImages)
	assert.Contains(t, err.Error(), "at most 1")
}

func TestStage_CancelledContextLeavesNothing(t *testing.T) {
	dataDir := t.TempDir()
	svc := NewService(Config{DataDir: dataDir, Parallel: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Stage(ctx, []Source{{FileName: "a.png", Reader: bytes.NewReader(pngBytes(t, 4, 4, 255))}})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(dataDir, RunDirName))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}
