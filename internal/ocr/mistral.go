package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/caseaudit/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "pixtral-large-latest"
)

// MistralOCR extracts text from scanned PDFs using the Mistral OCR API.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
}

// NewMistralOCR creates a MistralOCR extractor. If model is empty, the
// default is used. rps <= 0 disables request pacing.
func NewMistralOCR(apiKey, model string, rps float64) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &MistralOCR{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{},
		limiter:  rate.NewLimiter(limit, 1),
		retry:    resilience.RetryConfig{Attempts: 3, Backoff: time.Second, MaxBackoff: 10 * time.Second},
	}
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// ExtractText reads a PDF file, sends it to Mistral OCR, and returns the extracted text.
func (m *MistralOCR) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", failed(pdfPath, eris.Wrap(err, "read PDF"))
	}

	reqBody := mistralOCRRequest{
		Model: m.model,
		Document: mistralOCRDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", failed(pdfPath, eris.Wrap(err, "marshal mistral request"))
	}

	ocrResp, err := resilience.Retry(ctx, m.retry, func(ctx context.Context) (mistralOCRResponse, error) {
		return m.call(ctx, bodyBytes)
	})
	if err != nil {
		return "", failed(pdfPath, err)
	}

	var sb strings.Builder
	for i, page := range ocrResp.Pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(page.Markdown)
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", failed(pdfPath, ErrNoText)
	}
	return sb.String(), nil
}

// call sends one OCR request. 429 and 5xx responses come back as
// transient errors so the caller can retry them.
func (m *MistralOCR) call(ctx context.Context, body []byte) (mistralOCRResponse, error) {
	var out mistralOCRResponse
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return out, eris.Wrap(err, "mistral rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return out, eris.Wrap(err, "create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return out, eris.Wrap(err, "mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, eris.Wrap(err, "read mistral response")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := eris.Errorf("mistral API returned %d: %s", resp.StatusCode, string(respBody))
		if resilience.RetryableStatus(resp.StatusCode) {
			return out, resilience.Transient(apiErr, resp.StatusCode)
		}
		return out, apiErr
	}

	if err := json.Unmarshal(respBody, &out); err != nil {
		return out, eris.Wrap(err, "unmarshal mistral response")
	}
	return out, nil
}
