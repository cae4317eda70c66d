package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"novel-translator/internal/logger"
	"novel-translator/internal/types"
)

// generateContentRequest is the generateContent request body.
type generateContentRequest struct {
	GenerationConfig generationConfig `json:"generationConfig"`
	Contents         []content        `json:"contents"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateContentResponse is the subset of the response the executor needs.
// Rate limiting arrives as an HTTP status; safety blocking arrives inside a
// 200 body, so both paths have to be checked.
type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// apiErrorResponse is the error envelope on non-200 responses.
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// doRequest issues a single generateContent call with one credential and
// classifies the outcome.
func (c *Client) doRequest(ctx context.Context, key string, req GenerateRequest) (string, error) {
	var parts []part
	if req.SystemPrompt != "" {
		parts = append(parts, part{Text: req.SystemPrompt})
	}
	parts = append(parts, part{Text: req.UserPrompt})

	body := generateContentRequest{
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: req.MaxOutputTokens,
		},
		Contents: []content{{Parts: parts}},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to marshal request body", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, key)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to create HTTP request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", types.NewAppError(types.ErrNetwork, "API request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewAppError(types.ErrNetwork, "failed to read API response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPError(resp.StatusCode, respBody)
	}

	return parseResponse(respBody)
}

// classifyHTTPError maps a non-200 status to the executor's error taxonomy.
func classifyHTTPError(statusCode int, body []byte) error {
	details := ""
	var errResp apiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		details = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(types.ErrAPIRateLimit,
			"API rate limit exceeded", details, nil)
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewAppErrorWithDetails(types.ErrAPIAuth,
			"API authentication failed", details, nil)
	default:
		return types.NewAppErrorWithDetails(types.ErrAPICall,
			"API request failed",
			fmt.Sprintf("status %d: %s", statusCode, details), nil)
	}
}

// parseResponse extracts generated text from a 200 body, surfacing safety
// blocks and empty candidates as their own error classes.
func parseResponse(body []byte) (string, error) {
	var resp generateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", types.NewAppError(types.ErrAPICall, "failed to parse API response", err)
	}

	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		logger.Warn("prompt blocked by safety filter", logger.String("blockReason", reason))
		return "", types.NewAppErrorWithDetails(types.ErrContentBlocked,
			"prompt blocked by content policy", reason, nil)
	}

	if len(resp.Candidates) == 0 {
		return "", types.NewAppError(types.ErrEmptyResponse, "API returned no candidates", nil)
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		logger.Warn("response blocked by safety filter")
		return "", types.NewAppErrorWithDetails(types.ErrContentBlocked,
			"response blocked by content policy", cand.FinishReason, nil)
	}

	if len(cand.Content.Parts) == 0 || cand.Content.Parts[0].Text == "" {
		return "", types.NewAppErrorWithDetails(types.ErrEmptyResponse,
			"API returned empty text",
			fmt.Sprintf("finishReason=%s", cand.FinishReason), nil)
	}

	logger.Debug("generation succeeded",
		logger.Int("tokensUsed", resp.UsageMetadata.TotalTokenCount),
		logger.String("finishReason", cand.FinishReason))
	return cand.Content.Parts[0].Text, nil
}
