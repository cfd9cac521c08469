package convstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vidyalabs/vidya/pkg/logger"
)

const (
	tableName      = "conversations"
	defaultTimeout = 10 * time.Second
)

// Record is one persisted conversation turn.
type Record struct {
	SessionID   string `json:"session_id"`
	DocumentID  string `json:"document_id"`
	UserMessage string `json:"user_message"`
	AIResponse  string `json:"ai_response"`
	AudioPath   string `json:"audio_path,omitempty"`
	Language    string `json:"language"`
	CreatedAt   string `json:"created_at"`
}

// Config holds the Supabase connection settings.
type Config struct {
	URL     string
	Key     string
	Timeout time.Duration
}

// Store persists conversation turns to Supabase via its REST interface.
// Persistence is best effort: saves log failures instead of raising them,
// and loads degrade to an empty history.
type Store struct {
	client *resty.Client
	url    string
	key    string
}

func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("convstore: supabase url and key are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{
		client: resty.New().SetTimeout(timeout),
		url:    strings.TrimRight(cfg.URL, "/"),
		key:    cfg.Key,
	}, nil
}

// Save persists one exchange. Failures are logged, never returned, so a
// storage outage cannot block the student's response.
func (s *Store) Save(ctx context.Context, record Record) {
	if record.CreatedAt == "" {
		record.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	resp, err := s.request(ctx).
		SetBody(record).
		Post(s.tableURL())
	if err == nil && resp.IsError() {
		err = fmt.Errorf("convstore: status %d", resp.StatusCode())
	}
	if err != nil {
		logger.FromContext(ctx).Warn("failed to persist conversation turn",
			"session_id", record.SessionID, "error", err)
	}
}

// Load returns a session's persisted turns, oldest first. Failures yield
// an empty history.
func (s *Store) Load(ctx context.Context, sessionID string) []Record {
	var records []Record
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{
			"select":     "*",
			"session_id": "eq." + sessionID,
			"order":      "created_at.asc",
		}).
		SetResult(&records).
		Get(s.tableURL())
	if err == nil && resp.IsError() {
		err = fmt.Errorf("convstore: status %d", resp.StatusCode())
	}
	if err != nil {
		logger.FromContext(ctx).Warn("failed to load conversation history",
			"session_id", sessionID, "error", err)
		return nil
	}
	return records
}

// SessionsByDocument returns the distinct session ids that touched a
// document.
func (s *Store) SessionsByDocument(ctx context.Context, documentID string) []string {
	var rows []struct {
		SessionID string `json:"session_id"`
	}
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{
			"select":      "session_id",
			"document_id": "eq." + documentID,
		}).
		SetResult(&rows).
		Get(s.tableURL())
	if err == nil && resp.IsError() {
		err = fmt.Errorf("convstore: status %d", resp.StatusCode())
	}
	if err != nil {
		logger.FromContext(ctx).Warn("failed to list document sessions",
			"document_id", documentID, "error", err)
		return nil
	}
	seen := make(map[string]struct{}, len(rows))
	var sessions []string
	for _, row := range rows {
		if _, ok := seen[row.SessionID]; ok {
			continue
		}
		seen[row.SessionID] = struct{}{}
		sessions = append(sessions, row.SessionID)
	}
	return sessions
}

func (s *Store) request(ctx context.Context) *resty.Request {
	return s.client.R().
		SetContext(ctx).
		SetHeader("apikey", s.key).
		SetHeader("Authorization", "Bearer "+s.key)
}

func (s *Store) tableURL() string {
	return s.url + "/rest/v1/" + tableName
}
