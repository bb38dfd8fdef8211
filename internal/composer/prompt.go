package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/askweb/internal/storage"
)

// SystemPrompt is sent as the system message on every completion request.
const SystemPrompt = "You are a helpful AI assistant that answers questions factually and comprehensively, " +
	"using only the web search results supplied as context. Do not invent facts that the context does not support. " +
	"Structure the answer clearly and cite the sources it draws on."

// Assemble renders results as the context block handed to the model: one
// Title/URL/Content block per result, in input order, separated by a blank
// line. An empty list yields "".
func Assemble(results []storage.Result) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = formatResult(r)
	}
	return strings.Join(blocks, "\n\n")
}

func formatResult(r storage.Result) string {
	return fmt.Sprintf("Title: %s\nURL: %s\nContent: %s", r.Title, r.URL, r.Content)
}

// UserPrompt builds the user message carrying the original query and the
// assembled context verbatim.
func UserPrompt(query, context string) string {
	var sb strings.Builder
	sb.WriteString("Based on the following web search results, provide a comprehensive and accurate answer to the user's question: \"")
	sb.WriteString(query)
	sb.WriteString("\"\n\n")
	sb.WriteString("Search Results:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nPlease provide a detailed, well-structured response that synthesizes information from these sources. Be factual and cite the information appropriately.")
	return sb.String()
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
