package coachapi

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

// FallbackFeedback is returned when the evaluation service cannot be reached.
const FallbackFeedback = "Sorry, the coaching service is unavailable right now. These scores are estimates; please try again in a moment."

// ErrEmptyText is returned for blank answers or blank synthesis input.
var ErrEmptyText = errors.New("text is required")

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheDir string
}

// Client talks to the evaluation and speech synthesis service.
type Client struct {
	baseURL  string
	cacheDir string
	http     *http.Client
	logger   *log.Logger
	metrics  *clientMetrics

	randMu sync.Mutex
	rand   *rand.Rand
}

func New(cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		cacheDir: cfg.CacheDir,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger.WithPrefix("coachapi"),
		metrics:  newClientMetrics(),
		rand:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x636f616368)),
	}
}

type evaluateRequest struct {
	Answer   string `json:"answer"`
	Question string `json:"question"`
}

type evaluateResponse struct {
	Clarity        float64 `json:"clarity"`
	Confidence     float64 `json:"confidence"`
	Tone           float64 `json:"tone"`
	Feedback       string  `json:"feedback"`
	ImprovedAnswer string  `json:"improvedAnswer"`
}

// Evaluate scores answer against question. When the service fails the
// returned evaluation carries placeholder scores and Fallback is set; the
// error is a *domain.EvaluationServiceError so callers may log it and carry on.
func (c *Client) Evaluate(ctx context.Context, question string, answer string) (domain.Evaluation, error) {
	if strings.TrimSpace(answer) == "" {
		return domain.Evaluation{}, ErrEmptyText
	}

	started := time.Now()
	result, err := c.evaluate(ctx, question, answer)
	c.metrics.evaluation(ctx, time.Since(started), err)
	if err != nil {
		c.logger.Warn("evaluation failed, using placeholder scores", "err", err)
		return c.fallback(answer), err
	}
	return result, nil
}

func (c *Client) evaluate(ctx context.Context, question string, answer string) (domain.Evaluation, error) {
	resp, err := c.post(ctx, "/api/evaluate", evaluateRequest{Answer: answer, Question: question})
	if err != nil {
		return domain.Evaluation{}, &domain.EvaluationServiceError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.Evaluation{}, &domain.EvaluationServiceError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("evaluate returned status %s", resp.Status),
		}
	}

	var payload evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Evaluation{}, &domain.EvaluationServiceError{Err: fmt.Errorf("decode evaluation: %w", err)}
	}
	return domain.Evaluation{
		Clarity:        clampScore(payload.Clarity),
		Confidence:     clampScore(payload.Confidence),
		Tone:           clampScore(payload.Tone),
		Feedback:       payload.Feedback,
		ImprovedAnswer: payload.ImprovedAnswer,
	}, nil
}

// fallback mirrors the placeholder ranges of the practice page:
// clarity 6-9, confidence 5-8, tone 6-9.
func (c *Client) fallback(answer string) domain.Evaluation {
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return domain.Evaluation{
		Clarity:        float64(6 + c.rand.IntN(4)),
		Confidence:     float64(5 + c.rand.IntN(4)),
		Tone:           float64(6 + c.rand.IntN(4)),
		Feedback:       FallbackFeedback,
		ImprovedAnswer: answer,
		Fallback:       true,
	}
}

type ttsRequest struct {
	Text string `json:"text"`
}

// Synthesize returns the path of an audio clip speaking text. Clips are
// cached on disk by text hash and reused across calls.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}

	path := filepath.Join(c.cacheDir, ClipName(text))
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		c.metrics.synthesis(ctx, "cached")
		return path, nil
	}

	resp, err := c.post(ctx, "/api/tts", ttsRequest{Text: text})
	if err != nil {
		c.metrics.synthesis(ctx, "error")
		return "", fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.metrics.synthesis(ctx, "error")
		return "", fmt.Errorf("tts returned status %s", resp.Status)
	}

	if err := writeClip(path, resp.Body); err != nil {
		c.metrics.synthesis(ctx, "error")
		return "", err
	}
	c.metrics.synthesis(ctx, "fetched")
	c.logger.Debug("feedback clip cached", "path", path)
	return path, nil
}

// ClipName is the cache file name for text, keyed by its full MD5 digest.
func ClipName(text string) string {
	sum := md5.Sum([]byte(text))
	return "feedback_" + hex.EncodeToString(sum[:]) + ".mp3"
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func writeClip(path string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create audio cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".clip-*")
	if err != nil {
		return fmt.Errorf("create audio clip: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write audio clip: %w", err)
	}
	if n == 0 {
		return errors.New("tts returned an empty clip")
	}
	return os.Rename(tmp.Name(), path)
}

func clampScore(score float64) float64 {
	return min(max(score, 0), 10)
}
