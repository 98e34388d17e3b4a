package xhsnote

import (
	"strings"

	"github.com/hrygo/notecrew/ai/internal/strutil"
)

// ideaPreviewLen bounds the idea text kept in run records and logs.
const ideaPreviewLen = 100

// IdeaPreview returns the idea collapsed to one line and cut to 100 runes.
func IdeaPreview(idea string) string {
	return strutil.Preview(idea, ideaPreviewLen)
}

// BuildReport renders the final note report. Images appear in the order of
// the edit batch, which follows the request order.
func BuildReport(idea string, edit EditBatchReport, seo SEOOptimizedNote) string {
	var sb strings.Builder
	line := func(label, value string) {
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	line("原始创作意图", idea)
	line("生成笔记标题", seo.OptimizedTitle)
	line("生成笔记正文", seo.OptimizedContent)
	line("生成笔记图片顺序", formatList(seo.OptimizedPictureOrder))
	line("生成笔记标签", formatList(seo.Tags))
	sb.WriteString("生成笔记图片编辑方案: \n")
	for _, p := range edit.ImagesEditPlan {
		line("图片ID", p.ImageID)
		line("图片编辑方案", p.OverallEditStrategy)
		line("图片剪裁建议", p.CropSuggestion)
		line("图片亮度/对比度/饱和度调整建议", p.LightColorAdjustment)
		line("图片滤镜建议", p.FilterSuggestion)
		line("图片文字建议", p.TextOverlaySuggestion)
		line("图片美颜建议", p.BeautyAdjustmentSuggestion)
		line("图片是否建议作为首图", formatBool(p.Cover()))
		line("图片需要规避的审美风险/平台审核风险", p.RiskAndPitfallNotes)
	}
	return sb.String()
}

func formatList(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}

func formatBool(b bool) string {
	if b {
		return "是"
	}
	return "否"
}
