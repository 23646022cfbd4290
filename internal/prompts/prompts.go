package prompts

// ============================================================================
// Vision OCR Prompts
// ============================================================================

// OCRSystemPrompt defines the role for page transcription.
// 系统提示词：只做文字转写，不做解释
const OCRSystemPrompt = `You are a document transcription assistant. You convert images of document pages into Markdown. You never summarize, translate or comment on the content.`

// OCRUserPrompt is sent together with each page image.
const OCRUserPrompt = `Extract all text from this image.
- Render every table as a Markdown table.
- Preserve the original structure: headings, paragraphs, lists and reading order.
- Keep the original language of the text.
- Output only the Markdown, without code fences or any preface.
If the image contains no text, output an empty string.`

// OCRPrompt joins the system and user prompts for providers that take a
// single instruction.
func OCRPrompt() string {
	return OCRSystemPrompt + "\n\n" + OCRUserPrompt
}
