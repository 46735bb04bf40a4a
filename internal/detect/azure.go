package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/scrubgate-ai/scrubgate/internal/entity"
	"github.com/scrubgate-ai/scrubgate/internal/redact"
)

const azureAPIVersion = "2023-04-01"

// azureClient implements Detector against the Azure AI Language PII
// recognition endpoint.
type azureClient struct {
	endpoint         string
	apiKey           string
	apiVersion       string
	client           *http.Client
	maxResponseBytes int64
}

// NewAzure creates a Detector backed by the Azure AI Language service.
func NewAzure(endpoint, apiKey string, timeout time.Duration, maxResponseBytes int64) Detector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxResponseBytes <= 0 {
		maxResponseBytes = 4 * 1024 * 1024
	}
	return &azureClient{
		endpoint:         strings.TrimSuffix(endpoint, "/"),
		apiKey:           apiKey,
		apiVersion:       azureAPIVersion,
		maxResponseBytes: maxResponseBytes,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type azureAnalyzeRequest struct {
	Kind          string             `json:"kind"`
	AnalysisInput azureAnalysisInput `json:"analysisInput"`
	Parameters    azureParameters    `json:"parameters"`
}

type azureAnalysisInput struct {
	Documents []azureDocument `json:"documents"`
}

type azureDocument struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type azureParameters struct {
	Domain string `json:"domain,omitempty"`
	// Offsets are requested in code points and converted to byte offsets
	// below, so everything downstream works in bytes of the UTF-8 text.
	StringIndexType string `json:"stringIndexType"`
}

type azureAnalyzeResponse struct {
	Results azureResults `json:"results"`
}

type azureResults struct {
	Documents []azureDocumentResult `json:"documents"`
	Errors    []azureDocumentError  `json:"errors"`
}

type azureDocumentResult struct {
	ID       string        `json:"id"`
	Entities []azureEntity `json:"entities"`
}

type azureEntity struct {
	Text            string  `json:"text"`
	Category        string  `json:"category"`
	Subcategory     string  `json:"subcategory"`
	Offset          int     `json:"offset"`
	Length          int     `json:"length"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

type azureDocumentError struct {
	ID    string          `json:"id"`
	Error azureErrorInner `json:"error"`
}

type azureErrorBody struct {
	Error azureErrorInner `json:"error"`
}

type azureErrorInner struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	InnerError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"innererror,omitempty"`
}

func (c *azureClient) Detect(ctx context.Context, text string, domain Domain, language string) ([]entity.Entity, error) {
	wireDomain, err := wireDomain(domain)
	if err != nil {
		return nil, err
	}

	reqBody := azureAnalyzeRequest{
		Kind: "PiiEntityRecognition",
		AnalysisInput: azureAnalysisInput{
			Documents: []azureDocument{
				{ID: "1", Language: language, Text: text},
			},
		},
		Parameters: azureParameters{
			Domain:          wireDomain,
			StringIndexType: "UnicodeCodePoints",
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	url := fmt.Sprintf("%s/language/:analyze-text?api-version=%s", c.endpoint, c.apiVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ServiceError{Message: fmt.Sprintf("call detection service: %v", err)}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.maxResponseBytes+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, &ServiceError{Status: resp.StatusCode, Message: fmt.Sprintf("read detection response: %v", err)}
	}
	if int64(len(respBody)) > c.maxResponseBytes {
		return nil, &ServiceError{Status: resp.StatusCode, Message: fmt.Sprintf("detection response exceeded limit (%d bytes)", c.maxResponseBytes)}
	}

	if resp.StatusCode >= 400 {
		var errBody azureErrorBody
		_ = json.Unmarshal(respBody, &errBody)
		return nil, mapAzureError(resp.StatusCode, errBody.Error)
	}

	var analyzeResp azureAnalyzeResponse
	if err := json.Unmarshal(respBody, &analyzeResp); err != nil {
		return nil, &ServiceError{Status: resp.StatusCode, Message: fmt.Sprintf("decode detection response: %v", err)}
	}

	if len(analyzeResp.Results.Errors) > 0 {
		docErr := analyzeResp.Results.Errors[0].Error
		return nil, mapAzureError(resp.StatusCode, docErr)
	}
	if len(analyzeResp.Results.Documents) == 0 {
		return nil, &ServiceError{Status: resp.StatusCode, Message: "detection response had no documents"}
	}

	return convertEntities(text, analyzeResp.Results.Documents[0].Entities), nil
}

// convertEntities maps code-point offsets reported by the service onto byte
// offsets into text. Spans that fall outside the text are dropped.
func convertEntities(text string, wire []azureEntity) []entity.Entity {
	byteIndex := make([]int, 0, len(text)+1)
	for i := range text {
		byteIndex = append(byteIndex, i)
	}
	byteIndex = append(byteIndex, len(text))

	out := make([]entity.Entity, 0, len(wire))
	for _, w := range wire {
		start := w.Offset
		end := w.Offset + w.Length
		if start < 0 || end <= start || end >= len(byteIndex) {
			redact.Logf("detection: dropping out-of-range span category=%s offset=%d length=%d", w.Category, w.Offset, w.Length)
			continue
		}
		byteStart := byteIndex[start]
		byteEnd := byteIndex[end]
		out = append(out, entity.Entity{
			Category:    entity.Category(w.Category),
			Subcategory: w.Subcategory,
			Text:        text[byteStart:byteEnd],
			Offset:      byteStart,
			Length:      byteEnd - byteStart,
			Confidence:  w.ConfidenceScore,
		})
	}
	return out
}

func mapAzureError(status int, inner azureErrorInner) error {
	code := inner.Code
	message := inner.Message
	if inner.InnerError != nil {
		if inner.InnerError.Code != "" {
			code = inner.InnerError.Code
		}
		if inner.InnerError.Message != "" {
			message = inner.InnerError.Message
		}
	}
	if isDomainError(code, message) {
		return fmt.Errorf("%w: %s", ErrUnsupportedDomain, message)
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &ServiceError{Status: status, Code: code, Message: message}
}

func isDomainError(code, message string) bool {
	lower := strings.ToLower(code + " " + message)
	return strings.Contains(lower, "invalidparameter") && strings.Contains(lower, "domain")
}

func wireDomain(d Domain) (string, error) {
	switch d {
	case DomainHealthcare:
		return "phi", nil
	case DomainGeneral:
		return "", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDomain, d)
	}
}
