package note

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agents "github.com/hrygo/notecrew/ai/agents"
	"github.com/hrygo/notecrew/ai/observability/logging"
	"github.com/hrygo/notecrew/ai/xhsnote"
	"github.com/hrygo/notecrew/server/service/upload"
	"github.com/hrygo/notecrew/store"
)

type fakeFlow struct {
	res *xhsnote.Result
	err error

	req          xhsnote.IdeaRequest
	filesExisted bool
}

func (f *fakeFlow) Execute(_ context.Context, req xhsnote.IdeaRequest) (*xhsnote.Result, error) {
	f.req = req
	f.filesExisted = true
	for _, img := range req.Images {
		if _, err := os.Stat(img.LocalPath); err != nil {
			f.filesExisted = false
		}
	}
	return f.res, f.err
}

type recorder struct {
	mu   sync.Mutex
	runs []*store.FlowRun
}

func (r *recorder) SaveFlowRun(_ context.Context, run *store.FlowRun) (*store.FlowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return run, nil
}

func sources(n int) []upload.Source {
	out := make([]upload.Source, n)
	for i := range out {
		out[i] = upload.Source{FileName: "photo.txt", Reader: strings.NewReader("not really an image")}
	}
	return out
}

func TestGenerate_Success(t *testing.T) {
	flow := &fakeFlow{res: &xhsnote.Result{Report: "原始创作意图: 咖啡\n", ProcessedImages: 1, TotalImages: 2}}
	rec := &recorder{}
	svc := NewService(flow, upload.NewService(upload.Config{DataDir: t.TempDir(), MaxImages: 5}), rec)

	ctx := logging.WithRequestID(context.Background(), "req-42")
	out, err := svc.Generate(ctx, "周末咖啡馆探店", sources(2))
	require.NoError(t, err)

	assert.Equal(t, "原始创作意图: 咖啡\n", out.Report)
	assert.Len(t, out.RunID, 8)
	assert.Equal(t, 1, out.ProcessedImages)
	assert.Equal(t, 2, out.TotalImages)
	require.NotNil(t, out.Result)

	// 流程执行期间图片存在，结束后目录被清理
	assert.True(t, flow.filesExisted)
	assert.Equal(t, "周末咖啡馆探店", flow.req.IdeaText)
	require.Len(t, flow.req.Images, 2)
	assert.Equal(t, "img_0", flow.req.Images[0].ImageID)
	for _, img := range flow.req.Images {
		assert.NoFileExists(t, img.LocalPath)
	}

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, out.RunID, run.RunID)
	assert.Equal(t, "req-42", run.RequestID)
	assert.Equal(t, "周末咖啡馆探店", run.IdeaPreview)
	assert.Equal(t, []string{"img_0", "img_1"}, run.ImageIDs)
	assert.Equal(t, store.FlowRunSucceeded, run.Status)
	assert.Equal(t, out.Report, run.Report)
	assert.Empty(t, run.ErrorMessage)
}

func TestGenerate_FlowFailure(t *testing.T) {
	flow := &fakeFlow{err: &agents.PhaseTimeoutError{Phase: "visual", Timeout: 0}}
	rec := &recorder{}
	svc := NewService(flow, upload.NewService(upload.Config{DataDir: t.TempDir()}), rec)

	out, err := svc.Generate(context.Background(), "idea", sources(1))
	var timeout *agents.PhaseTimeoutError
	require.ErrorAs(t, err, &timeout)

	require.NotNil(t, out)
	assert.Empty(t, out.Report)
	assert.Nil(t, out.Result)
	assert.Equal(t, 1, out.TotalImages)
	for _, img := range flow.req.Images {
		assert.NoFileExists(t, img.LocalPath)
	}

	require.Len(t, rec.runs, 1)
	assert.Equal(t, store.FlowRunFailed, rec.runs[0].Status)
	assert.True(t, strings.HasPrefix(rec.runs[0].ErrorMessage, "TimeoutError: "))
}

func TestGenerate_Validation(t *testing.T) {
	flow := &fakeFlow{}
	rec := &recorder{}
	svc := NewService(flow, upload.NewService(upload.Config{DataDir: t.TempDir(), MaxImages: 1}), rec)

	tests := []struct {
		name    string
		idea    string
		sources []upload.Source
		want    error
	}{
		{"no images", "idea", nil, agents.ErrNoImages},
		{"no images beats no idea", "", nil, agents.ErrNoImages},
		{"blank idea", "  ", sources(1), agents.ErrNoIdea},
		{"too many images", "idea", sources(2), upload.ErrTooManyImages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := svc.Generate(context.Background(), tt.idea, tt.sources)
			assert.Nil(t, out)
			var verr *agents.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, rec.runs, "validation failures start no run")
	assert.Nil(t, flow.req.Images)
}

func TestGenerate_WithoutRecorder(t *testing.T) {
	svc := NewService(&fakeFlow{res: &xhsnote.Result{Report: "ok"}}, upload.NewService(upload.Config{DataDir: t.TempDir()}), nil)
	out, err := svc.Generate(context.Background(), "idea", sources(1))
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Report)
}
