// Package questionbank reads question sets from the external question bank.
package questionbank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"examhall/internal/models"

	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrBankNotFound      = errors.New("question bank not found")
	ErrNotEnoughQuestion = errors.New("question bank has fewer questions than requested")
)

// Provider fetches questions from a read-only question bank
type Provider interface {
	FetchQuestions(ctx context.Context, bankID string, count int) ([]models.Question, error)
}

// Config configures an HTTPProvider
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	Timeout      time.Duration
}

// HTTPProvider talks to the question bank API with OAuth2 client credentials
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider whose HTTP client obtains and refreshes
// access tokens from cfg.TokenURL.
func NewHTTPProvider(ctx context.Context, cfg Config) *HTTPProvider {
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}

	client := creds.Client(ctx)
	client.Timeout = cfg.Timeout
	if client.Timeout == 0 {
		client.Timeout = 10 * time.Second
	}

	return &HTTPProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

type questionsResponse struct {
	Questions []models.Question `json:"questions"`
}

// FetchQuestions returns the first count questions of a bank. A count of zero
// returns the whole bank.
func (p *HTTPProvider) FetchQuestions(ctx context.Context, bankID string, count int) ([]models.Question, error) {
	endpoint := fmt.Sprintf("%s/banks/%s/questions", p.baseURL, url.PathEscape(bankID))
	if count > 0 {
		endpoint += "?count=" + strconv.Itoa(count)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("question bank request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrBankNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("question bank returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload questionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode question bank response: %w", err)
	}

	questions := payload.Questions
	if count > 0 {
		if len(questions) < count {
			return nil, fmt.Errorf("%w: want %d, got %d", ErrNotEnoughQuestion, count, len(questions))
		}
		questions = questions[:count]
	}
	if err := models.ValidateQuestions(questions); err != nil {
		return nil, fmt.Errorf("question bank returned invalid questions: %w", err)
	}
	return questions, nil
}
