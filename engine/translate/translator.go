package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/vidyalabs/vidya/pkg/logger"
)

const (
	defaultEndpoint = "https://api.cognitive.microsofttranslator.com"
	defaultRegion   = "eastus"
	defaultTimeout  = 10 * time.Second
)

// Config holds the Azure Translator connection settings. An empty Key
// disables translation; the service then passes text through unchanged.
type Config struct {
	Key      string
	Endpoint string
	Region   string
	Timeout  time.Duration
}

// Service is a best-effort Azure Translator wrapper. Translation never
// fails a request: any error returns the original text.
type Service struct {
	client   *resty.Client
	key      string
	endpoint string
	region   string
}

func NewService(cfg Config) *Service {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{
		client:   resty.New().SetTimeout(timeout),
		key:      cfg.Key,
		endpoint: endpoint,
		region:   region,
	}
}

// Translate converts text into the target language. English targets,
// missing credentials, and transport failures all return text unchanged.
func (s *Service) Translate(ctx context.Context, text, targetLanguage string) string {
	if text == "" || targetLanguage == "" || s.key == "" {
		return text
	}
	code := normalizeCode(targetLanguage)
	if code == "en" || code == "english" {
		return text
	}
	var result []struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api-version": "3.0",
			"to":          code,
		}).
		SetHeader("Ocp-Apim-Subscription-Key", s.key).
		SetHeader("Ocp-Apim-Subscription-Region", s.region).
		SetHeader("X-ClientTraceId", uuid.NewString()).
		SetBody([]map[string]string{{"text": text}}).
		SetResult(&result).
		Post(s.endpoint + "/translate")
	if err == nil && resp.IsError() {
		err = fmt.Errorf("translate: status %d", resp.StatusCode())
	}
	if err != nil {
		logger.FromContext(ctx).Warn("translation failed, keeping original text",
			"target_language", targetLanguage, "error", err)
		return text
	}
	if len(result) == 0 || len(result[0].Translations) == 0 {
		return text
	}
	return result[0].Translations[0].Text
}

// normalizeCode reduces regional codes like "hi-IN" to the bare
// translator code "hi".
func normalizeCode(language string) string {
	code := strings.ToLower(strings.TrimSpace(language))
	base, _, found := strings.Cut(code, "-")
	if found {
		return base
	}
	return code
}
