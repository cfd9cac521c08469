package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const systemPrompt = `You are an AI Tutor. You MUST answer strictly and ONLY using the textbook content provided in the context.

If the answer does not exist in the textbook, say:

"Sorry, the textbook does not contain this information."

Do not guess. Do not hallucinate. Do not add extra information beyond the textbook context.`

const suggestionsSystemPrompt = "You are a helpful assistant that generates educational questions " +
	"based on textbook content. Always respond with only the questions, nothing else."

const (
	answerTemperature      = 0.3
	answerMaxTokens        = 1000
	suggestionsTemperature = 0.8
	suggestionsMaxTokens   = 300
	historyWindow          = 5
)

// Message is one prior conversation turn passed back to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds the settings needed to build an OpenAI-backed generator.
type Config struct {
	APIKey string
	Model  string
}

// Generator produces tutoring answers grounded in retrieved textbook context.
type Generator struct {
	model llms.Model
}

// NewGenerator constructs a generator backed by the OpenAI chat API.
func NewGenerator(cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: api key is required")
	}
	model, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: initialize openai client: %w", err)
	}
	return &Generator{model: model}, nil
}

// WrapModel constructs a generator around an existing langchaingo model.
func WrapModel(model llms.Model) (*Generator, error) {
	if model == nil {
		return nil, errors.New("llm: model is required")
	}
	return &Generator{model: model}, nil
}

// Answer generates a response to question using only the supplied context.
// history is truncated to the most recent turns before it reaches the model.
func (g *Generator) Answer(
	ctx context.Context,
	question string,
	contextText string,
	history []Message,
	language string,
) (string, error) {
	target := LanguageName(language)
	prompt := fmt.Sprintf(`<context>
%s
</context>

User question:
%s

IMPORTANT: Answer the question using ONLY the textbook context above. Your response MUST be in %s language. If the user asked in %s, respond in %s. Do not translate the textbook content, but explain it in %s.`,
		contextText, question, target, target, target, target)

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	for _, msg := range trimHistory(history) {
		messages = append(messages, llms.TextParts(mapRole(msg.Role), msg.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	response, err := g.model.GenerateContent(ctx, messages,
		llms.WithTemperature(answerTemperature),
		llms.WithMaxTokens(answerMaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("llm: generate answer: %w", err)
	}
	text, err := firstChoice(response)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Suggest asks the model for starter questions grounded in contextText.
// The returned list holds between one and five cleaned questions; an empty
// list with a nil error never occurs, callers get an error instead.
func (g *Generator) Suggest(ctx context.Context, contextText string) ([]string, error) {
	prompt := fmt.Sprintf(`Here is content from a textbook that was just uploaded:

%s

Based on this textbook content, create exactly 4-5 questions that a student would ask to start learning. Each question must:
1. Be a complete question ending with a question mark
2. Be directly related to the content above
3. Help understand the main topics
4. Be suitable for a beginner

Output format: Write each question on a separate line. Do not include any explanations, numbering, or other text - only the questions.`,
		contextText)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, suggestionsSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	response, err := g.model.GenerateContent(ctx, messages,
		llms.WithTemperature(suggestionsTemperature),
		llms.WithMaxTokens(suggestionsMaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: generate suggestions: %w", err)
	}
	text, err := firstChoice(response)
	if err != nil {
		return nil, err
	}
	questions := ParseQuestions(text)
	if len(questions) == 0 {
		return nil, errors.New("llm: no usable questions in response")
	}
	return questions, nil
}

// ParseQuestions extracts clean question lines from raw model output,
// stripping numbering and bullet prefixes. At most five are kept.
func ParseQuestions(text string) []string {
	var questions []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "1234567890.-*•) ")
		for _, prefix := range []string{"question:", "q:"} {
			if strings.HasPrefix(strings.ToLower(line), prefix) {
				line = strings.TrimSpace(line[len(prefix):])
			}
		}
		if len(line) > 15 && strings.Contains(line, "?") {
			questions = append(questions, line)
		}
		if len(questions) == 5 {
			break
		}
	}
	return questions
}

func trimHistory(history []Message) []Message {
	if len(history) <= historyWindow {
		return history
	}
	return history[len(history)-historyWindow:]
}

func mapRole(role string) llms.ChatMessageType {
	switch role {
	case "assistant":
		return llms.ChatMessageTypeAI
	case "system":
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}

func firstChoice(response *llms.ContentResponse) (string, error) {
	if response == nil || len(response.Choices) == 0 {
		return "", errors.New("llm: empty response")
	}
	text := strings.TrimSpace(response.Choices[0].Content)
	if text == "" {
		return "", errors.New("llm: empty response")
	}
	return text, nil
}
