// Package questions fetches practice questions from the platform and
// renders them as embed artifacts.
package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"practicebot/internal/gateway"
	logx "practicebot/pkg/logx"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Question is one practice problem as returned by the platform API.
type Question struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Difficulty string `json:"difficulty"`
	URL        string `json:"url"`
}

var difficultyColors = map[string]int{
	"easy":   0x00B8A3,
	"medium": 0xFFC01E,
	"hard":   0xFF375F,
}

type Service struct {
	base   string
	client *http.Client
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("questions: platform base URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{base: base, client: &http.Client{Timeout: timeout}, log: log}, nil
}

// RenderDailyQuestion fetches today's question and renders the shared embed
// artifact. Called once per broadcast run; every delivery target receives
// the same rendering.
func (s *Service) RenderDailyQuestion(ctx context.Context) (gateway.Embed, error) {
	q, err := s.fetch(ctx, "/questions/daily")
	if err != nil {
		return gateway.Embed{}, err
	}
	e := questionEmbed(q)
	e.Title = "Daily Question: " + q.Title
	e.Footer = time.Now().UTC().Format("January 2, 2006")
	return e, nil
}

// RenderRandomQuestion fetches a random question of the given difficulty
// ("easy", "medium", "hard" or "random").
func (s *Service) RenderRandomQuestion(ctx context.Context, difficulty string) (gateway.Embed, error) {
	path := "/questions/random"
	difficulty = strings.ToLower(strings.TrimSpace(difficulty))
	if difficulty != "" && difficulty != "random" {
		path += "?difficulty=" + url.QueryEscape(difficulty)
	}
	q, err := s.fetch(ctx, path)
	if err != nil {
		return gateway.Embed{}, err
	}
	return questionEmbed(q), nil
}

func (s *Service) fetch(ctx context.Context, path string) (Question, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path, nil)
	if err != nil {
		return Question{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Question{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Question{}, fmt.Errorf("platform returned %s", resp.Status)
	}

	var q Question
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return Question{}, fmt.Errorf("decode question: %w", err)
	}
	return q, nil
}

func questionEmbed(q Question) gateway.Embed {
	color, ok := difficultyColors[strings.ToLower(q.Difficulty)]
	if !ok {
		color = 0x5865F2
	}
	return gateway.Embed{
		Title: q.Title,
		URL:   q.URL,
		Color: color,
		Fields: []gateway.EmbedField{
			{Name: "Difficulty", Value: capitalize(q.Difficulty), Inline: true},
			{Name: "ID", Value: fmt.Sprintf("%d", q.ID), Inline: true},
		},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
