package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	azureOutputFormat = "audio-16khz-128kbitrate-mono-mp3"
	azureTimeout      = 30 * time.Second
)

// AzureConfig holds the Azure Speech connection settings.
type AzureConfig struct {
	Key    string
	Region string
	// Endpoint overrides the regional endpoint, used in tests.
	Endpoint string
}

// AzureTTS synthesizes speech through the Azure Speech REST API.
type AzureTTS struct {
	client   *resty.Client
	key      string
	endpoint string
}

// NewAzureTTS validates credentials at construction. A construction error
// means the speech capability is unavailable, not retryable per request.
func NewAzureTTS(cfg AzureConfig) (*AzureTTS, error) {
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("speech: azure key is required")
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		if strings.TrimSpace(cfg.Region) == "" {
			return nil, errors.New("speech: azure region is required")
		}
		endpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com", cfg.Region)
	}
	return &AzureTTS{
		client:   resty.New().SetTimeout(azureTimeout),
		key:      cfg.Key,
		endpoint: endpoint,
	}, nil
}

func (a *AzureTTS) Name() string { return "azure" }

func (a *AzureTTS) Supports(language string) bool {
	_, ok := voiceMap[language]
	return ok
}

func (a *AzureTTS) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	voice := VoiceFor(language)
	ssml := fmt.Sprintf(
		`<speak version='1.0' xml:lang='%s'><voice name='%s'>%s</voice></speak>`,
		NormalizeLanguage(language), voice, escapeSSML(text),
	)
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Ocp-Apim-Subscription-Key", a.key).
		SetHeader("Content-Type", "application/ssml+xml").
		SetHeader("X-Microsoft-OutputFormat", azureOutputFormat).
		SetBody(ssml).
		Post(a.endpoint + "/cognitiveservices/v1")
	if err != nil {
		return nil, fmt.Errorf("speech: azure synthesis: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("speech: azure synthesis: status %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, errors.New("speech: azure synthesis: empty audio")
	}
	return body, nil
}

func escapeSSML(text string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(text)
}
