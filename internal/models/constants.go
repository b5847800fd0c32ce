package models

const (
	// MarkerRegex matches inline image references like "[image 2]" in
	// prompt and answer text. The capture group is the display number.
	MarkerRegex = `\[image (\d+)\]`

	ContextSeparator = "\n---\n"

	// MaxEmbedBatch is the largest number of texts sent to the embedding
	// endpoint in one call
	MaxEmbedBatch = 2048
)

var (
	PromptHeaderTemplate = `Question: %s

Answer the question based on the context below.
When an image is relevant, reference it inline by number, like [image 1] or [image 2].
`

	PromptFooterText = `
When answering, reference relevant images by number like [image 1], and describe their content concretely.`

	SourceHeaderTemplate = "[Source %d]\nFile: %s\nPage: %d\n"

	ImageLineTemplate = "\n[image %d]: %s - Page %d"
)
