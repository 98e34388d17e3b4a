package xhsnote

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ImageRef is an uploaded image staged on local disk.
type ImageRef struct {
	ImageID   string `json:"image_id"`
	FileName  string `json:"file_name"`
	LocalPath string `json:"local_path"`
}

// IdeaRequest is the input of one flow invocation.
type IdeaRequest struct {
	IdeaText string     `json:"idea_text"`
	Images   []ImageRef `json:"images"`
}

// VisualAnalysis 单张图片的视觉分析结果。
type VisualAnalysis struct {
	ImageID            string   `json:"image_id"`
	FileName           string   `json:"file_name"`
	SubjectDescription string   `json:"subject_description"`
	AtmosphereVibe     string   `json:"atmosphere_vibe"`
	VisualDetails      []string `json:"visual_details"`
	ImageQualityScore  string   `json:"image_quality_score"`
	HighlightFeature   string   `json:"highlight_feature"`
}

// minVisualDetails is the number of details every analysis must name.
const minVisualDetails = 3

// Validate checks required fields.
func (v *VisualAnalysis) Validate() error {
	if err := requireFields(map[string]string{
		"image_id":            v.ImageID,
		"file_name":           v.FileName,
		"subject_description": v.SubjectDescription,
		"atmosphere_vibe":     v.AtmosphereVibe,
		"image_quality_score": v.ImageQualityScore,
		"highlight_feature":   v.HighlightFeature,
	}); err != nil {
		return err
	}
	if len(v.VisualDetails) < minVisualDetails {
		return fmt.Errorf("visual_details: need at least %d, got %d", minVisualDetails, len(v.VisualDetails))
	}
	return nil
}

// EditPlan 单张图片在小红书内置编辑器中的编辑 / P 图方案。
type EditPlan struct {
	ImageID                    string `json:"image_id"`
	FileName                   string `json:"file_name"`
	OverallEditStrategy        string `json:"overall_edit_strategy"`
	CropSuggestion             string `json:"crop_suggestion"`
	LightColorAdjustment       string `json:"light_color_adjustment"`
	FilterSuggestion           string `json:"filter_suggestion"`
	TextOverlaySuggestion      string `json:"text_overlay_suggestion"`
	BeautyAdjustmentSuggestion string `json:"beauty_adjustment_suggestion"`
	// IsRecommendedAsCover is a pointer so an omitted field fails validation.
	IsRecommendedAsCover *bool  `json:"is_recommended_as_cover"`
	RiskAndPitfallNotes  string `json:"risk_and_pitfall_notes"`
}

// Validate checks required fields.
func (p *EditPlan) Validate() error {
	if err := requireFields(map[string]string{
		"image_id":                     p.ImageID,
		"file_name":                    p.FileName,
		"overall_edit_strategy":        p.OverallEditStrategy,
		"crop_suggestion":              p.CropSuggestion,
		"light_color_adjustment":       p.LightColorAdjustment,
		"filter_suggestion":            p.FilterSuggestion,
		"text_overlay_suggestion":      p.TextOverlaySuggestion,
		"beauty_adjustment_suggestion": p.BeautyAdjustmentSuggestion,
		"risk_and_pitfall_notes":       p.RiskAndPitfallNotes,
	}); err != nil {
		return err
	}
	if p.IsRecommendedAsCover == nil {
		return errors.New("is_recommended_as_cover: required")
	}
	return nil
}

// Cover reports whether the plan recommends the image as cover.
func (p *EditPlan) Cover() bool {
	return p.IsRecommendedAsCover != nil && *p.IsRecommendedAsCover
}

// VisualBatchReport 多张图片的视觉分析汇总报告。
type VisualBatchReport struct {
	UserRawIntent string           `json:"user_raw_intent"`
	ImagesVisual  []VisualAnalysis `json:"images_visual"`
	Summary       string           `json:"summary"`
}

// EditBatchReport 多张图片的编辑方案汇总报告。
type EditBatchReport struct {
	ImagesEditPlan []EditPlan `json:"images_edit_plan"`
	Summary        string     `json:"summary"`
}

// ContentStrategyBrief 内容策略简报，由增长策略 Agent 产出。
type ContentStrategyBrief struct {
	InputEvaluation       string   `json:"input_evaluation"`
	TargetAudiencePersona string   `json:"target_audience_persona"`
	CorePainPoint         string   `json:"core_pain_point"`
	SuggestedTitle        string   `json:"suggested_title"`
	ContentOutline        []string `json:"content_outline"`
	EngagementStrategy    string   `json:"engagement_strategy"`
	RetentionStrategy     string   `json:"retention_strategy"`
	SEOKeywords           []string `json:"seo_keywords"`
}

// Validate checks required fields.
func (b *ContentStrategyBrief) Validate() error {
	return requireFields(map[string]string{
		"target_audience_persona": b.TargetAudiencePersona,
		"core_pain_point":         b.CorePainPoint,
		"suggested_title":         b.SuggestedTitle,
	})
}

// CopywritingOutput 原始文案，由内容编辑 Agent 产出。
type CopywritingOutput struct {
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	PictureOrder   []string `json:"picture_order"`
	HighlightHooks []string `json:"highlight_hooks"`
}

// Validate checks required fields.
func (c *CopywritingOutput) Validate() error {
	return requireFields(map[string]string{
		"title":   c.Title,
		"content": c.Content,
	})
}

// SEOOptimizedNote SEO 优化后的笔记内容。
type SEOOptimizedNote struct {
	OptimizationSummary   string   `json:"optimization_summary"`
	OptimizedTitle        string   `json:"optimized_title"`
	OptimizedContent      string   `json:"optimized_content"`
	OptimizedPictureOrder []string `json:"optimized_picture_order"`
	Tags                  []string `json:"tags"`
}

// Validate checks required fields.
func (n *SEOOptimizedNote) Validate() error {
	return requireFields(map[string]string{
		"optimized_title":   n.OptimizedTitle,
		"optimized_content": n.OptimizedContent,
	})
}

// requireFields reports every blank field, sorted by name.
func requireFields(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%s: required", strings.Join(missing, ", "))
}
