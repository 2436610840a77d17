package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

// GeminiRanker asks a Gemini model for a task order in JSON mode.
type GeminiRanker struct {
	client *genai.Client
	model  string
}

func NewGeminiRanker(ctx context.Context, apiKey, model string) (*GeminiRanker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiRanker{client: client, model: model}, nil
}

type rankResponse struct {
	TaskIDs []string `json:"taskIds"`
}

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"taskIds": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"taskIds"},
}

func (r *GeminiRanker) Rank(ctx context.Context, player Player, tasks []Candidate) ([]string, error) {
	prompt, err := buildPrompt(player, tasks)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Models.GenerateContent(ctx, r.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}
	return parseRanking(resp.Text())
}

func buildPrompt(player Player, tasks []Candidate) (string, error) {
	playerJSON, err := json.Marshal(player)
	if err != nil {
		return "", err
	}
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You recommend micro-tasks to players of a rewards app.\n")
	b.WriteString("Order the tasks below from most to least suitable for this player, ")
	b.WriteString("favouring tasks that match their level and give good rewards.\n")
	b.WriteString("Player: ")
	b.Write(playerJSON)
	b.WriteString("\nTasks: ")
	b.Write(tasksJSON)
	b.WriteString("\nAnswer with JSON {\"taskIds\": [...]} using only the ids given.")
	return b.String(), nil
}

func parseRanking(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty ranking response")
	}
	var out rankResponse
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("parsing ranking response: %w", err)
	}
	return out.TaskIDs, nil
}
