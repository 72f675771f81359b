package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Candidate is one concept proposed by the external AI collaborator.
type Candidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// ConceptExtractor is the contract of the external AI concept-extraction
// service: text in, scored concept names out. It may fail or time out;
// the pipeline treats any failure as "no concepts".
type ConceptExtractor interface {
	ExtractConcepts(ctx context.Context, text string) ([]Candidate, error)
}

// ExtractorFunc adapts a function to the ConceptExtractor interface.
type ExtractorFunc func(ctx context.Context, text string) ([]Candidate, error)

// ExtractConcepts calls f.
func (f ExtractorFunc) ExtractConcepts(ctx context.Context, text string) ([]Candidate, error) {
	return f(ctx, text)
}

// maxExtractionChars caps the text sent for extraction; enough signal
// for concept mining while staying well inside model context windows.
const maxExtractionChars = 4000

const extractionSystemPrompt = `You extract key concepts from text.
Respond with only a JSON array of objects, each {"name": string, "score": number},
where score in [0,1] is the concept's relevance. At most 8 concepts.
Use short lowercase noun phrases. No prose, no markdown fences.`

// OpenAIExtractor implements ConceptExtractor against the OpenAI chat
// completions API.
type OpenAIExtractor struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIExtractor creates an extractor using the given API key and
// model. An empty model falls back to gpt-4o-mini.
func NewOpenAIExtractor(apiKey, model string, timeout time.Duration) *OpenAIExtractor {
	if model == "" {
		model = openai.GPT4oMini
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIExtractor{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
	}
}

// ExtractConcepts asks the model for scored concepts in the summary text.
func (e *OpenAIExtractor) ExtractConcepts(ctx context.Context, text string) ([]Candidate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	text = truncateAtRune(text, maxExtractionChars)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Low temperature for consistent extraction.
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0.2,
		MaxTokens:   512,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("concept extraction: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("concept extraction: empty response")
	}

	return parseCandidates(resp.Choices[0].Message.Content)
}

// parseCandidates decodes the model's JSON answer, tolerating markdown
// fences some models insist on adding.
func parseCandidates(raw string) ([]Candidate, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var candidates []Candidate
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		return nil, fmt.Errorf("concept extraction: parse response: %w", err)
	}

	out := candidates[:0]
	for _, c := range candidates {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		if c.Score < 0 {
			c.Score = 0
		}
		if c.Score > 1 {
			c.Score = 1
		}
		out = append(out, c)
	}
	return out, nil
}
