package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

type AIService struct {
	client *openai.Client
}

// GeneratedTask is one task the model extracted from free text. Its fields use
// the import column names so it can go through the same normalization.
type GeneratedTask struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Importance *float64 `json:"importance"`
	Urgency    *float64 `json:"urgency"`
	DueDate    *string  `json:"due_date"`
	Notes      string   `json:"notes"`
	ParentID   string   `json:"parent_id"`
}

// Record returns the task as a raw import record.
func (t GeneratedTask) Record() map[string]any {
	record := map[string]any{
		"id":        t.ID,
		"name":      t.Name,
		"notes":     t.Notes,
		"parent_id": t.ParentID,
	}
	if t.Importance != nil {
		record["importance"] = *t.Importance
	}
	if t.Urgency != nil {
		record["urgency"] = *t.Urgency
	}
	if t.DueDate != nil {
		record["due_date"] = *t.DueDate
	}
	return record
}

func NewAIService(apiKey string) *AIService {
	return &AIService{
		client: openai.NewClient(apiKey),
	}
}

// GenerateTasksFromText analyzes text and extracts prioritized tasks using OpenAI GPT
func (s *AIService) GenerateTasksFromText(ctx context.Context, text string) ([]GeneratedTask, error) {
	if s.client == nil {
		return nil, fmt.Errorf("OpenAI client not initialized")
	}

	currentTime := time.Now().Format("2006-01-02 15:04:05")
	prompt := fmt.Sprintf(`You are a task extraction assistant for an Eisenhower matrix. Extract concrete tasks from the text below.

Current time: %s

Text:
%s

Return a JSON array of tasks in this format:
[
  {
    "id": "short identifier unique within this answer, e.g. t1",
    "name": "short task title",
    "importance": 0-10 (how much the task matters for the writer's goals),
    "urgency": 0-10 (how soon it has to happen),
    "due_date": "deadline as YYYY-MM-DD, or null when none is stated",
    "notes": "details worth keeping, or an empty string",
    "parent_id": "id of the task this one is a step of, or an empty string"
  }
]

Rules:
- Return an empty array [] when the text contains no tasks
- Turn relative deadlines ("tomorrow", "next week") into concrete dates
- Use parent_id only to point at another id in the same array
- Return JSON only, without any explanation`, currentTime, text)

	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT4o,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: 0.3,
		},
	)

	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := stripCodeFence(resp.Choices[0].Message.Content)

	var tasks []GeneratedTask
	if err := json.Unmarshal([]byte(content), &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w (response: %s)", err, content)
	}

	return tasks, nil
}

// stripCodeFence removes a markdown ```json fence the model sometimes adds.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
