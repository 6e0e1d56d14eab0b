package llm

// CompletionRequest is a single round-trip request to the Completion
// abstraction (spec.md §4.D): a system prompt plus a user prompt, with
// provider-agnostic sampling parameters.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	Model        string
}

// CompletionResponse is the provider-agnostic result of a Completion call.
type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// EmbeddingRequest asks the Embedding abstraction to vectorize a batch of
// texts (spec.md §4.D).
type EmbeddingRequest struct {
	Texts []string
	Model string
}

// EmbeddingResponse holds one vector per input text, in the same order.
type EmbeddingResponse struct {
	Vectors [][]float32
	Model   string
}
