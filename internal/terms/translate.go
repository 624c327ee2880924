package terms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/resilience"
)

// DefaultTranslateURL is the Google Cloud Translation v2 endpoint.
const DefaultTranslateURL = "https://translation.googleapis.com/language/translate/v2"

// ErrTranslationUnavailable is returned when no translation backend is configured.
var ErrTranslationUnavailable = errors.New("translation unavailable")

// Translator translates short text into a target language.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// GoogleTranslator calls the Cloud Translation v2 REST API.
type GoogleTranslator struct {
	apiKey         string
	apiURL         string
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	retry          *resilience.RetryConfig
	logger         zerolog.Logger
}

type translateRequest struct {
	Q      []string `json:"q"`
	Target string   `json:"target"`
	Source string   `json:"source,omitempty"`
	Format string   `json:"format"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

// NewGoogleTranslator creates a translator. An empty apiURL uses DefaultTranslateURL.
func NewGoogleTranslator(apiKey, apiURL string, cb *resilience.CircuitBreaker, retry *resilience.RetryConfig, logger zerolog.Logger) *GoogleTranslator {
	if apiURL == "" {
		apiURL = DefaultTranslateURL
	}
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &GoogleTranslator{
		apiKey:         apiKey,
		apiURL:         apiURL,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		circuitBreaker: cb,
		retry:          retry,
		logger:         logger.With().Str("component", "translator").Logger(),
	}
}

// Translate translates text from source (a BCP-47 tag, may be empty) to target.
func (g *GoogleTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if g.apiKey == "" {
		return "", ErrTranslationUnavailable
	}

	var translated string
	err := g.circuitBreaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			out, err := g.do(ctx, text, source, target)
			if err != nil {
				return err
			}
			translated = out
			return nil
		}, g.retry, resilience.IsRetryableNetworkError)
	})
	if err != nil {
		return "", fmt.Errorf("translate %q: %w", text, err)
	}
	return translated, nil
}

func (g *GoogleTranslator) do(ctx context.Context, text, source, target string) (string, error) {
	body, err := json.Marshal(translateRequest{
		Q:      []string{text},
		Target: baseLanguage(target),
		Source: baseLanguage(source),
		Format: "text",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := g.apiURL + "?key=" + url.QueryEscape(g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", resilience.NewRetryableError(fmt.Errorf("failed to make request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("translation API returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", resilience.NewRetryableError(err)
		}
		return "", err
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Data.Translations) == 0 {
		return "", fmt.Errorf("translation API returned no translations")
	}
	return html.UnescapeString(out.Data.Translations[0].TranslatedText), nil
}

// baseLanguage reduces "es-MX" to "es"; the v2 API rejects most regional tags.
func baseLanguage(tag string) string {
	for i, r := range tag {
		if r == '-' || r == '_' {
			return tag[:i]
		}
	}
	return tag
}
