package prompts

// ============================================================================
// OCR Prompts (Vision Language Model)
// ============================================================================

// OCRSystemPrompt defines the role for OCR text extraction.
const OCRSystemPrompt = `You are an OCR engine for meme images. You only transcribe text that is visibly printed in the image. You never describe the picture.`

// OCRUserPrompt instructs the model to output only recognized text.
// Memes in this collection are mostly English and Russian; both must be kept verbatim.
const OCRUserPrompt = `Output only the text written in this image, keeping the original order and line breaks.
Do not translate, explain or add any prefix.
If the image contains no text, output an empty string.`

// OCRMaxTokens bounds the completion length of one OCR call.
const OCRMaxTokens = 400
