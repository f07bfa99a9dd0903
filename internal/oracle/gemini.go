// Package oracle は外部の栄養推定サービスとの通信を提供する。
// Gemini（テキスト・画像からの推定）とOpen Food Facts（バーコード検索）のクライアント、
// および自由文の応答から構造化データを取り出す処理を含む。
package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/nutrilog/internal/model"
)

const (
	// DefaultGeminiBaseURL はGemini APIのベースURL。
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultGeminiModel は既定で使用するモデル。
	DefaultGeminiModel = "gemini-2.0-flash"
	// maxReplySize は応答ボディの読み取り上限。
	maxReplySize = 1 << 20
)

// GeminiConfig はGeminiClientの設定。
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// GeminiClient はGemini generateContent APIのクライアント。
// APIキーが未設定の場合、呼び出し時にmodel.ErrOracleNotConfiguredを返す。
type GeminiClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	baseURL    string
}

// NewGeminiClient はGeminiClientを生成する。
func NewGeminiClient(httpClient *http.Client, logger *slog.Logger, cfg GeminiConfig) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	return &GeminiClient{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Configured はAPIキーが設定されているかを返す。
func (c *GeminiClient) Configured() bool {
	return c.apiKey != ""
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GenerateText はプロンプトを送信し、応答の本文テキストを返す。
func (c *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []geminiPart{{Text: prompt}})
}

// GenerateFromImage はプロンプトと画像を送信し、応答の本文テキストを返す。
func (c *GeminiClient) GenerateFromImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", model.ErrInvalidInput)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}
	return c.generate(ctx, []geminiPart{
		{Text: prompt},
		{InlineData: &geminiInlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(image),
		}},
	})
}

func (c *GeminiClient) generate(ctx context.Context, parts []geminiPart) (string, error) {
	if !c.Configured() {
		return "", model.ErrOracleNotConfigured
	}

	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("failed to encode gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", model.ErrOracleRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Gemini APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("model", c.model),
		)
		return "", fmt.Errorf("%w: %v", model.ErrOracleRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", model.ErrOracleRequestFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Gemini APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("model", c.model),
		)
		return "", fmt.Errorf("%w: gemini returned status %d", model.ErrOracleRequestFailed, resp.StatusCode)
	}

	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: invalid gemini envelope: %v", model.ErrMalformedOracleResponse, err)
	}
	if len(decoded.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", model.ErrMalformedOracleResponse)
	}

	var sb strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned empty text", model.ErrMalformedOracleResponse)
	}
	return text, nil
}
