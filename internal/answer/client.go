// Package answer talks to the remote service that turns question text into an
// answer.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "go-quiz-helper/internal/errors"
	"go-quiz-helper/pkg/models"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics
const maxErrorBody = 512

// Client fetches an answer for a recognized question
type Client interface {
	GetAnswer(ctx context.Context, questionText string) (string, error)
}

type httpClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient creates a client posting to endpoint. Each call is a single
// request; there is no retry.
func NewHTTPClient(endpoint string, timeout time.Duration) Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &httpClient{
		endpoint: endpoint,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

func (c *httpClient) GetAnswer(ctx context.Context, questionText string) (string, error) {
	payload, err := json.Marshal(models.AnswerRequest{QuestionText: questionText})
	if err != nil {
		return "", apperrors.NewInternalError("failed to encode answer request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", apperrors.NewInternalError("failed to build answer request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Go-Quiz-Helper/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
			return "", apperrors.NewTimeoutError("answer service timed out", err)
		}
		return "", apperrors.NewNetworkError("answer service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", apperrors.NewNetworkError(
			fmt.Sprintf("answer service returned status %d", resp.StatusCode), nil,
		).WithDetails(strings.TrimSpace(string(body)))
	}

	var out models.AnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.NewNetworkError("answer service returned malformed JSON", err)
	}
	if strings.TrimSpace(out.Answer) == "" {
		return "", apperrors.NewNetworkError("answer service returned no answer", nil)
	}

	return out.Answer, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return stderrors.As(err, &te) && te.Timeout()
}
