package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/applyflow/applyflow/internal/config"
	"github.com/applyflow/applyflow/pkg/models"
)

const (
	customizeSystemPrompt = `You tailor résumés. Given a structured CV and a job description, ` +
		`rewrite the summary, reorder skills and experience by relevance, and pick up to five ` +
		`highlights. Respond with a single JSON object using the keys full_name, email, summary, ` +
		`skills, experience, education, highlights. No prose, no markdown.`

	coverLetterSystemPrompt = `You write concise, specific cover letters. Three short paragraphs, ` +
		`no placeholders, no markdown. Respond with the letter text only.`
)

// OpenAIProvider implements models.Customizer against the OpenAI
// chat-completions API (or any compatible endpoint via OPENAI_BASE_URL).
type OpenAIProvider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

// NewOpenAIProvider creates a provider. timeout bounds each inference call.
func NewOpenAIProvider(cfg config.OpenAIConfig, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) CustomizeCV(ctx context.Context, cv models.ParsedCV, jobDescription string) (models.CustomizedCV, error) {
	cvJSON, err := json.Marshal(cv)
	if err != nil {
		return models.CustomizedCV{}, fmt.Errorf("encoding cv: %w", err)
	}

	user := fmt.Sprintf("CV:\n%s\n\nJob description:\n%s", cvJSON, jobDescription)
	content, err := p.complete(ctx, customizeSystemPrompt, user)
	if err != nil {
		return models.CustomizedCV{}, err
	}

	var out models.CustomizedCV
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &out); err != nil {
		return models.CustomizedCV{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.FullName == "" {
		out.FullName = cv.FullName
	}
	return out, nil
}

func (p *OpenAIProvider) GenerateCoverLetter(ctx context.Context, cv models.ParsedCV, jobDescription, company string) (string, error) {
	cvJSON, err := json.Marshal(cv)
	if err != nil {
		return "", fmt.Errorf("encoding cv: %w", err)
	}

	user := fmt.Sprintf("Company: %s\n\nCV:\n%s\n\nJob description:\n%s", company, cvJSON, jobDescription)
	letter, err := p.complete(ctx, coverLetterSystemPrompt, user)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(letter) == "" {
		return "", fmt.Errorf("%w: empty cover letter", ErrInvalidResponse)
	}
	return letter, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/chat/completions", strings.TrimSuffix(p.cfg.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, raw)
		}
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, raw)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return out.Choices[0].Message.Content, nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// stripCodeFence removes a markdown fence some models wrap JSON in despite
// instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var _ models.Customizer = (*OpenAIProvider)(nil)
