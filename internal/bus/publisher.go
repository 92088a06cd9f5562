package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
)

type Config struct {
	URL            string
	Subject        string
	ConnectTimeout time.Duration
}

// ResultMessage is the payload published for every scored answer.
type ResultMessage struct {
	Scope       string                `json:"scope"`
	Result      domain.QuestionResult `json:"result"`
	Overall     float64               `json:"overall"`
	PublishedAt time.Time             `json:"publishedAt"`
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// Publisher fans finished practice results out over NATS.
type Publisher struct {
	conn    conn
	subject string
	logger  *log.Logger
	clock   func() time.Time
}

func Connect(cfg Config, logger *log.Logger) (*Publisher, error) {
	if logger == nil {
		logger = log.Default()
	}
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("no NATS url configured")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}

	nc, err := nats.Connect(url,
		nats.Name("soft-skill-coach"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("connected to NATS", "url", url, "subject", cfg.Subject)
	return newPublisher(nc, cfg.Subject, logger), nil
}

func newPublisher(c conn, subject string, logger *log.Logger) *Publisher {
	if subject == "" {
		subject = "coach.results"
	}
	return &Publisher{conn: c, subject: subject, logger: logger.WithPrefix("bus"), clock: time.Now}
}

// PublishResult sends result on <subject>.<scope>.
func (p *Publisher) PublishResult(ctx context.Context, scope string, result domain.QuestionResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ResultMessage{
		Scope:       scope,
		Result:      result,
		Overall:     result.Results.Overall(),
		PublishedAt: p.clock().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	subject := ResultSubject(p.subject, scope)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("result published", "subject", subject)
	return nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.logger.Info("closing NATS connection")
	_ = p.conn.Drain()
	p.conn.Close()
}

// ResultSubject is the subject a scope's results are published on. Tokens
// NATS treats as wildcards or separators are replaced.
func ResultSubject(base string, scope string) string {
	scope = strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, scope)
	if scope == "" {
		return base
	}
	return base + "." + scope
}

// Discard drops every result. It stands in when no bus is configured.
type Discard struct{}

func (Discard) PublishResult(context.Context, string, domain.QuestionResult) error { return nil }
