package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/sakusei/pkg/utils"
)

// OpenAIClient drafts sections via an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewOpenAIClient creates a drafting client for the given endpoint and model.
func NewOpenAIClient(endpoint, apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

const systemPrompt = "You are a construction consultant writing tender report sections. " +
	"Write concise, factual prose grounded ONLY in the provided project context and document extracts. " +
	"Do not invent quantities, dates, or standards."

// DraftSection asks the model for one section's prose.
func (c *OpenAIClient) DraftSection(ctx context.Context, req *SectionRequest) (string, error) {
	payload := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": renderSectionPrompt(req)},
		},
		"temperature": 0.2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("draft request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("drafting service returned status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode draft response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("drafting service returned no choices")
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("drafting service returned empty content")
	}
	return content, nil
}

func renderSectionPrompt(req *SectionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the %q section of a %s report.\n", req.SectionTitle, reportAudience(req))
	if req.Context != nil {
		fmt.Fprintf(&b, "\nProject: %s\n", req.Context.ProjectName)
		if req.Context.Details != "" {
			fmt.Fprintf(&b, "Details: %s\n", req.Context.Details)
		}
		if len(req.Context.Objectives) > 0 {
			fmt.Fprintf(&b, "Objectives:\n")
			for _, obj := range req.Context.Objectives {
				fmt.Fprintf(&b, "- %s\n", obj)
			}
		}
		for _, stage := range req.Context.Stages {
			fmt.Fprintf(&b, "Stage: %s (%s to %s)\n", stage.Name, stage.StartDate, stage.EndDate)
		}
		for _, risk := range req.Context.Risks {
			fmt.Fprintf(&b, "Risk: %s\n", risk.Description)
		}
	}
	if len(req.Chunks) > 0 {
		b.WriteString("\nDocument extracts:\n")
		for _, ch := range req.Chunks {
			header := ch.ClauseNumber
			if header == "" {
				header = ch.HierarchyPath
			}
			fmt.Fprintf(&b, "[%s] %s\n", header, utils.Truncate(ch.Content, 1500))
		}
	}
	return b.String()
}

func reportAudience(req *SectionRequest) string {
	switch {
	case req.Discipline != "":
		return req.Discipline + " consultant"
	case req.Trade != "":
		return req.Trade + " contractor"
	default:
		return "consultant"
	}
}
