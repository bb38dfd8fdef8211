package completion

// Message is one entry of an OpenAI-compatible chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the OpenAI-compatible chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// chatResponse holds the only part of the response we read. Every level is
// optional so an empty success body decodes cleanly.
type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Answer is the outcome of a completion call. Degraded is set when the
// provider succeeded but returned no usable text and Text holds FallbackAnswer.
type Answer struct {
	Text     string
	Degraded bool
}
