package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"neuroaid-diagnostic-service/internal/domain"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultScorePath = "/api/diagnostic_score"
	DefaultSavePath  = "/api/save_assessment"

	maxErrorBody = 512
)

// Config points the client at the external scoring and persistence endpoints.
type Config struct {
	BaseURL   string
	ScorePath string
	SavePath  string
	// Timeout bounds each call; zero leaves calls bounded only by the caller's context.
	Timeout time.Duration
}

// Client talks to the backend that owns risk levels, dominant types and assessment storage.
type Client struct {
	baseURL   string
	scorePath string
	savePath  string
	http      *http.Client
	validate  *validator.Validate
}

func NewClient(cfg Config) *Client {
	scorePath := cfg.ScorePath
	if scorePath == "" {
		scorePath = DefaultScorePath
	}
	savePath := cfg.SavePath
	if savePath == "" {
		savePath = DefaultSavePath
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		scorePath: scorePath,
		savePath:  savePath,
		http:      &http.Client{Timeout: cfg.Timeout},
		validate:  validator.New(),
	}
}

// Score posts the tally and decodes the verdict. Transport errors and non-2xx statuses
// wrap domain.ErrScoringFailed; undecodable or incomplete bodies wrap domain.ErrMalformedScore.
func (c *Client) Score(ctx context.Context, req domain.ScoreRequest) (domain.ResultSummary, error) {
	resp, err := c.post(ctx, c.scorePath, req)
	if err != nil {
		return domain.ResultSummary{}, err
	}
	defer resp.Body.Close()

	var summary domain.ResultSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return domain.ResultSummary{}, fmt.Errorf("%w: %v", domain.ErrMalformedScore, err)
	}
	if err := c.validate.Struct(summary); err != nil {
		return domain.ResultSummary{}, fmt.Errorf("%w: %v", domain.ErrMalformedScore, err)
	}
	return summary, nil
}

// SaveAssessment posts the finished record. The response body is not used.
func (c *Client) SaveAssessment(ctx context.Context, record domain.AssessmentRecord) error {
	resp, err := c.post(ctx, c.savePath, record)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %v", domain.ErrScoringFailed, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: POST %s: status %d: %s", domain.ErrScoringFailed, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp, nil
}
