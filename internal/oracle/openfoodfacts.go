package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/nutrilog/internal/model"
)

const (
	// DefaultOpenFoodFactsBaseURL はOpen Food FactsのベースURL。
	DefaultOpenFoodFactsBaseURL = "https://world.openfoodfacts.org"
	// kjPerKcal はキロジュールからキロカロリーへの換算係数。
	kjPerKcal = 4.184
	userAgent = "Nutrilog/1.0 (personal nutrition tracker)"
)

// OpenFoodFactsClient はOpen Food Facts製品APIのクライアント。
type OpenFoodFactsClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にベースURLを差し替え可能
}

// NewOpenFoodFactsClient はOpenFoodFactsClientを生成する。baseURLが空の場合は公開サーバーを使う。
func NewOpenFoodFactsClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *OpenFoodFactsClient {
	if baseURL == "" {
		baseURL = DefaultOpenFoodFactsBaseURL
	}
	return &OpenFoodFactsClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type offResponse struct {
	Status  int `json:"status"`
	Product struct {
		ProductName     string            `json:"product_name"`
		GenericName     string            `json:"generic_name"`
		NutriscoreGrade string            `json:"nutriscore_grade"`
		NutriscoreScore json.RawMessage   `json:"nutriscore_score"`
		Nutriments      map[string]Number `json:"nutriments"`
	} `json:"product"`
}

// LookupBarcode はバーコードで製品を検索し、100gあたりの栄養値を返す。
// 製品が存在しない場合はmodel.ErrProductNotFoundを返す。
// NutriScoreは生の値（文字またはスコア）のまま返し、正規化は呼び出し側で行う。
func (c *OpenFoodFactsClient) LookupBarcode(ctx context.Context, code string) (*model.Nutrition, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: barcode is empty", model.ErrInvalidInput)
	}

	// 形式は検証せず、該当の有無はOpen Food Facts側の応答で判定する
	endpoint := fmt.Sprintf("%s/api/v2/product/%s.json", c.baseURL, url.PathEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", model.ErrOracleRequestFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Open Food Facts APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("barcode", code),
		)
		return nil, fmt.Errorf("%w: %v", model.ErrOracleRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: barcode %s", model.ErrProductNotFound, code)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Open Food Facts APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("barcode", code),
		)
		return nil, fmt.Errorf("%w: open food facts returned status %d", model.ErrOracleRequestFailed, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", model.ErrOracleRequestFailed, err)
	}

	var decoded offResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: invalid product document: %v", model.ErrMalformedOracleResponse, err)
	}
	if decoded.Status != 1 {
		return nil, fmt.Errorf("%w: barcode %s", model.ErrProductNotFound, code)
	}

	p := decoded.Product
	n := p.Nutriments

	// *_100g のフィールドは定義上100gあたりの値であり、そのまま使用する
	calories, ok := n["energy-kcal_100g"]
	if !ok {
		if kj, ok := n["energy_100g"]; ok {
			calories = Number(float64(kj) / kjPerKcal)
		}
	}

	name := p.ProductName
	if name == "" {
		name = p.GenericName
	}

	grade := p.NutriscoreGrade
	if grade == "" || strings.EqualFold(grade, "unknown") || strings.EqualFold(grade, "not-applicable") {
		grade = rawScore(p.NutriscoreScore)
	}

	return &model.Nutrition{
		Name:       name,
		Calories:   float64(calories),
		Protein:    float64(n["proteins_100g"]),
		Carbs:      float64(n["carbohydrates_100g"]),
		Fat:        float64(n["fat_100g"]),
		Fiber:      float64(n["fiber_100g"]),
		NutriScore: grade,
	}, nil
}

// rawScore はnutriscore_scoreを文字列として返す。数値でなければ空文字列。
func rawScore(raw json.RawMessage) string {
	var f float64
	if len(raw) == 0 || string(raw) == "null" || json.Unmarshal(raw, &f) != nil {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
