package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vidyalabs/vidya/pkg/logger"
)

const (
	ocrAPIVersion   = "2023-10-31-preview"
	ocrPollInterval = 2 * time.Second
	ocrPollBudget   = 150 // polls before giving up on a long-running analysis
)

// AzureOCR extracts text from PDFs through the Document Intelligence
// prebuilt-read model. The analyze call is asynchronous: the service returns
// an operation URL which is polled until the analysis settles.
type AzureOCR struct {
	client   *resty.Client
	endpoint string
	key      string
	interval time.Duration
}

// NewAzureOCR validates credentials at construction; a missing endpoint or key
// makes PDF extraction unavailable rather than failing per request.
func NewAzureOCR(endpoint, key string) (*AzureOCR, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	key = strings.TrimSpace(key)
	if endpoint == "" {
		return nil, errors.New("extract: azure ocr endpoint is required")
	}
	if !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("extract: azure ocr endpoint must use https, got %q", endpoint)
	}
	if key == "" {
		return nil, errors.New("extract: azure ocr key is required")
	}
	return &AzureOCR{
		client:   resty.New().SetTimeout(60 * time.Second),
		endpoint: endpoint,
		key:      key,
		interval: ocrPollInterval,
	}, nil
}

type analyzeResult struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		Content string `json:"content"`
		Pages   []struct {
			PageNumber int `json:"pageNumber"`
		} `json:"pages"`
	} `json:"analyzeResult"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *AzureOCR) Extract(ctx context.Context, path string) (*Result, error) {
	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract: read file: %w", err)
	}
	operationURL, err := a.beginAnalyze(ctx, fileBytes)
	if err != nil {
		return nil, err
	}
	result, err := a.pollAnalyze(ctx, operationURL)
	if err != nil {
		return nil, err
	}
	return &Result{
		Text:  result.AnalyzeResult.Content,
		Pages: len(result.AnalyzeResult.Pages),
	}, nil
}

func (a *AzureOCR) beginAnalyze(ctx context.Context, fileBytes []byte) (string, error) {
	url := fmt.Sprintf(
		"%s/documentintelligence/documentModels/prebuilt-read:analyze?api-version=%s",
		a.endpoint, ocrAPIVersion,
	)
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Ocp-Apim-Subscription-Key", a.key).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(fileBytes).
		Post(url)
	if err != nil {
		return "", fmt.Errorf("extract: azure ocr analyze request: %w", err)
	}
	if resp.IsError() {
		return "", ocrStatusError(resp.StatusCode())
	}
	operationURL := resp.Header().Get("Operation-Location")
	if operationURL == "" {
		return "", errors.New("extract: azure ocr response missing operation location")
	}
	return operationURL, nil
}

func (a *AzureOCR) pollAnalyze(ctx context.Context, operationURL string) (*analyzeResult, error) {
	log := logger.FromContext(ctx)
	for i := 0; i < ocrPollBudget; i++ {
		var result analyzeResult
		resp, err := a.client.R().
			SetContext(ctx).
			SetHeader("Ocp-Apim-Subscription-Key", a.key).
			SetResult(&result).
			Get(operationURL)
		if err != nil {
			return nil, fmt.Errorf("extract: azure ocr poll: %w", err)
		}
		if resp.IsError() {
			return nil, ocrStatusError(resp.StatusCode())
		}
		switch result.Status {
		case "succeeded":
			return &result, nil
		case "failed":
			return nil, fmt.Errorf("extract: azure ocr analysis failed: %s: %s", result.Error.Code, result.Error.Message)
		}
		log.Debug("Azure OCR analysis pending", "status", result.Status, "poll", i+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.interval):
		}
	}
	return nil, errors.New("extract: azure ocr analysis did not settle in time")
}

func ocrStatusError(status int) error {
	switch status {
	case 401, 403:
		return errors.New("extract: azure ocr authentication failed, check the configured key")
	case 404:
		return errors.New("extract: azure ocr endpoint not found, check the configured endpoint")
	case 429:
		return errors.New("extract: azure ocr rate limit exceeded, try again later")
	default:
		return fmt.Errorf("extract: azure ocr request failed with status %d", status)
	}
}
