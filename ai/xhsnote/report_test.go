package xhsnote

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildReport(t *testing.T) {
	yes, no := true, false
	edit := EditBatchReport{ImagesEditPlan: []EditPlan{
		{
			ImageID: "img_1", OverallEditStrategy: "暖色", CropSuggestion: "3:4", LightColorAdjustment: "提亮",
			FilterSuggestion: "奶油", TextOverlaySuggestion: "无", BeautyAdjustmentSuggestion: "无",
			IsRecommendedAsCover: &yes, RiskAndPitfallNotes: "避免过曝",
		},
		{
			ImageID: "img_0", OverallEditStrategy: "冷色", CropSuggestion: "1:1", LightColorAdjustment: "压暗",
			FilterSuggestion: "胶片", TextOverlaySuggestion: "标题", BeautyAdjustmentSuggestion: "轻微",
			IsRecommendedAsCover: &no, RiskAndPitfallNotes: "无",
		},
	}}
	seo := SEOOptimizedNote{
		OptimizedTitle:        "标题",
		OptimizedContent:      "正文",
		OptimizedPictureOrder: []string{"img_1", "img_0"},
		Tags:                  []string{"#咖啡", "#探店"},
	}

	want := "原始创作意图: 想法\n" +
		"生成笔记标题: 标题\n" +
		"生成笔记正文: 正文\n" +
		"生成笔记图片顺序: [img_1, img_0]\n" +
		"生成笔记标签: [#咖啡, #探店]\n" +
		"生成笔记图片编辑方案: \n" +
		"图片ID: img_1\n" +
		"图片编辑方案: 暖色\n" +
		"图片剪裁建议: 3:4\n" +
		"图片亮度/对比度/饱和度调整建议: 提亮\n" +
		"图片滤镜建议: 奶油\n" +
		"图片文字建议: 无\n" +
		"图片美颜建议: 无\n" +
		"图片是否建议作为首图: 是\n" +
		"图片需要规避的审美风险/平台审核风险: 避免过曝\n" +
		"图片ID: img_0\n" +
		"图片编辑方案: 冷色\n" +
		"图片剪裁建议: 1:1\n" +
		"图片亮度/对比度/饱和度调整建议: 压暗\n" +
		"图片滤镜建议: 胶片\n" +
		"图片文字建议: 标题\n" +
		"图片美颜建议: 轻微\n" +
		"图片是否建议作为首图: 否\n" +
		"图片需要规避的审美风险/平台审核风险: 无\n"

	got := BuildReport("想法", edit, seo)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildReport() mismatch (-want +got):\n%s", diff)
	}

	// 相同输入得到相同输出
	if again := BuildReport("想法", edit, seo); again != got {
		t.Error("BuildReport() is not deterministic")
	}
}

func TestBuildReport_Empty(t *testing.T) {
	want := "原始创作意图: 想法\n生成笔记标题: \n生成笔记正文: \n生成笔记图片顺序: []\n生成笔记标签: []\n生成笔记图片编辑方案: \n"
	if diff := cmp.Diff(want, BuildReport("想法", EditBatchReport{}, SEOOptimizedNote{})); diff != "" {
		t.Errorf("BuildReport() mismatch (-want +got):\n%s", diff)
	}
}

func TestIdeaPreview(t *testing.T) {
	if diff := cmp.Diff("周末 咖啡馆 探店", IdeaPreview("周末\n咖啡馆\t探店")); diff != "" {
		t.Errorf("IdeaPreview mismatch (-want +got):\n%s", diff)
	}
	long := IdeaPreview(strings.Repeat("咖", 150))
	if got := []rune(long); len(got) != 103 {
		t.Errorf("IdeaPreview length = %d runes, want 103", len(got))
	}
}
