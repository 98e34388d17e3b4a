package llm

import (
	"fmt"
	"regexp"
	"strings"
)

// ImageToolName is the tool whose observations carry images back into the conversation.
const ImageToolName = "add_image_to_content_local"

var imageURLPattern = regexp.MustCompile(`data:image/[A-Za-z0-9.+-]+;base64,[A-Za-z0-9+/=]+|https?://[^\s"'<>()\[\]]+`)

// IsMultimodalObservation reports whether an assistant message carries an image
// fetched by the image tool (a data URL or a plain http(s) link).
func IsMultimodalObservation(m Message) bool {
	if m.Role != RoleAssistant || len(m.Parts) > 0 {
		return false
	}
	if !strings.Contains(m.Content, ImageToolName) {
		return false
	}
	return imageURLPattern.MatchString(m.Content)
}

// IsImageToolReply reports whether a native tool reply is nothing but an
// image reference, which is what the image tool returns.
func IsImageToolReply(m Message) bool {
	if m.Role != RoleTool || len(m.Parts) > 0 {
		return false
	}
	content := strings.TrimSpace(m.Content)
	return content != "" && imageURLPattern.FindString(content) == content
}

// NormalizeMultimodal rewrites image tool observations into user messages with
// [text, image_url] parts. The input slice is not modified. The second return
// value reports whether the resulting conversation carries any image.
//
// Tool replies cannot carry image parts, so an image reply keeps a text
// placeholder and its image follows in a user message placed after the run of
// tool replies.
func NormalizeMultimodal(messages []Message) ([]Message, bool) {
	out := make([]Message, 0, len(messages))
	hasImage := false
	var pending []ContentPart

	flush := func() {
		if len(pending) == 0 {
			return
		}
		out = append(out, Message{Role: RoleUser, Parts: pending})
		pending = nil
		hasImage = true
	}

	for _, m := range messages {
		if m.Role != RoleTool {
			flush()
		}
		switch {
		case IsMultimodalObservation(m):
			url := imageURLPattern.FindString(m.Content)
			text := strings.TrimSpace(strings.Replace(m.Content, url, "[image]", 1))
			m = Message{
				Role: RoleUser,
				Parts: []ContentPart{
					{Type: PartText, Text: text},
					{Type: PartImageURL, ImageURL: url},
				},
			}
		case IsImageToolReply(m):
			url := strings.TrimSpace(m.Content)
			pending = append(pending,
				ContentPart{Type: PartText, Text: fmt.Sprintf("Observation (%s): [image]", m.ToolCallID)},
				ContentPart{Type: PartImageURL, ImageURL: url},
			)
			m = Message{Role: RoleTool, ToolCallID: m.ToolCallID, Content: "[image attached below]"}
		}
		if m.HasImage() {
			hasImage = true
		}
		out = append(out, m)
	}
	flush()
	return out, hasImage
}
