package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/nutrilog/internal/food"
	"github.com/hitoshi/nutrilog/internal/middleware"
	"github.com/hitoshi/nutrilog/internal/model"
	"github.com/hitoshi/nutrilog/internal/nutrition"
)

// multipartMemory はmultipartフォームをメモリに保持する上限。超過分は一時ファイルに書き出される。
const multipartMemory = 8 << 20

// FoodServiceInterface は食品ハンドラーが必要とするサービスインターフェース。
type FoodServiceInterface interface {
	AddFood(ctx context.Context, sessionID string, in food.AddFoodInput) (*model.FoodEntry, error)
	Today(ctx context.Context, sessionID string) (*food.DailySummary, error)
	DeleteFood(ctx context.Context, sessionID string, id int64) error
	CalorieLimit(ctx context.Context) (float64, error)
	SetCalorieLimit(ctx context.Context, limit float64) error
	Recognize(ctx context.Context, image []byte, mimeType string) (*model.Nutrition, error)
}

// FoodHandler は食品記録と設定のHTTPハンドラー。
type FoodHandler struct {
	service FoodServiceInterface
	pages   *Pages
	logger  *slog.Logger
}

// NewFoodHandler はFoodHandlerを生成する。
func NewFoodHandler(service FoodServiceInterface, pages *Pages, logger *slog.Logger) *FoodHandler {
	return &FoodHandler{
		service: service,
		pages:   pages,
		logger:  logger,
	}
}

type indexPage struct {
	PageData
	Summary *food.DailySummary
	// SessionID はMCPクライアントから同じ記録を操作するために表示する。
	SessionID string
}

// addFormValues は再表示用に入力値を文字列のまま保持する。
type addFormValues struct {
	Name       string
	Barcode    string
	Quantity   string
	Unit       string
	Calories   string
	Protein    string
	Carbs      string
	Fat        string
	Fiber      string
	NutriScore string
}

type addPage struct {
	PageData
	Form  addFormValues
	Units []model.Unit
}

type settingsPage struct {
	PageData
	CalorieLimit string
	Presets      []model.CaloriePreset
}

// Index は当日の記録と合計を表示する。
// GET /
func (h *FoodHandler) Index(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Today(r.Context(), sessionID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	h.pages.Render(w, http.StatusOK, "index", indexPage{
		PageData:  newPageData(r, "今日の記録"),
		Summary:   summary,
		SessionID: sessionID,
	})
}

// AddForm は食品追加フォームを表示する。
// GET /add
func (h *FoodHandler) AddForm(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, http.StatusOK, "add", addPage{
		PageData: newPageData(r, "食品を追加"),
		Form:     addFormValues{Quantity: "100", Unit: string(model.UnitGram)},
		Units:    model.Units,
	})
}

// AddFood は食品を推定して記録に追加する。
// 成功時は一覧へリダイレクトし、失敗時は入力値とエラーメッセージを付けてフォームを再表示する。
// POST /add
func (h *FoodHandler) AddFood(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	in, values, err := parseAddForm(r)
	if err != nil {
		h.renderAddError(w, r, values, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.service.AddFood(r.Context(), sessionID, in); err != nil {
		switch {
		case errors.Is(err, model.ErrUnknownUnit):
			h.renderAddError(w, r, values, http.StatusBadRequest, model.NewUnknownUnitError(values.Unit).Message)
		case errors.Is(err, model.ErrInvalidInput):
			h.renderAddError(w, r, values, http.StatusBadRequest,
				model.NewInvalidInputError("食品名・バーコード・写真のいずれかと、正の数量を入力してください。").Message)
		case model.IsOracleError(err):
			h.logger.Warn("nutrition estimate failed",
				slog.String("session_id", sessionID),
				slog.String("strategy", string(in.Request.Strategy())),
				slog.String("error", err.Error()),
			)
			h.renderAddError(w, r, values, http.StatusBadGateway, model.NewNutritionUnavailableError().Message)
		default:
			h.internalError(w, r, err)
		}
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Recognize は画像から100gあたりの栄養値を推定し、フォームの事前入力用にJSONで返す。
// POST /recognize
func (h *FoodHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	image, mimeType, err := readImage(r)
	if err != nil {
		h.logger.Warn("failed to read uploaded image", slog.String("error", err.Error()))
	}
	if len(image) == 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewImageRequiredError())
		return
	}

	n, err := h.service.Recognize(r.Context(), image, mimeType)
	if err != nil {
		h.logger.Warn("image recognition failed", slog.String("error", err.Error()))
		if model.IsOracleError(err) || errors.Is(err, model.ErrInvalidInput) {
			middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewNutritionUnavailableError())
			return
		}
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(n)
}

// DeleteFood はセッションが所有する記録を削除する。
// 存在しないIDや他セッションのIDでも一覧へリダイレクトする。
// POST /delete/{id}
func (h *FoodHandler) DeleteFood(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err == nil {
		if err := h.service.DeleteFood(r.Context(), sessionID, id); err != nil {
			h.internalError(w, r, err)
			return
		}
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Settings はカロリー上限の設定フォームを表示する。
// GET /settings
func (h *FoodHandler) Settings(w http.ResponseWriter, r *http.Request) {
	limit, err := h.service.CalorieLimit(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	h.pages.Render(w, http.StatusOK, "settings", settingsPage{
		PageData:     newPageData(r, "設定"),
		CalorieLimit: strconv.FormatFloat(limit, 'f', -1, 64),
		Presets:      model.CaloriePresets,
	})
}

// UpdateSettings はカロリー上限を更新する。
// POST /settings
func (h *FoodHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.PostFormValue("calorie_limit"))

	limit, err := strconv.ParseFloat(raw, 64)
	if err == nil {
		err = h.service.SetCalorieLimit(r.Context(), limit)
	} else {
		err = fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	if err != nil {
		if !errors.Is(err, model.ErrInvalidInput) {
			h.internalError(w, r, err)
			return
		}
		page := settingsPage{
			PageData:     newPageData(r, "設定"),
			CalorieLimit: raw,
			Presets:      model.CaloriePresets,
		}
		page.Error = model.NewInvalidInputError("カロリー上限は正の数値で入力してください。").Message
		h.pages.Render(w, http.StatusBadRequest, "settings", page)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *FoodHandler) renderAddError(w http.ResponseWriter, r *http.Request, values addFormValues, status int, message string) {
	page := addPage{
		PageData: newPageData(r, "食品を追加"),
		Form:     values,
		Units:    model.Units,
	}
	page.Error = message
	h.pages.Render(w, status, "add", page)
}

// sessionID はコンテキストからセッションIDを取得する。
// セッションミドルウェアを通過していない場合は500を返してfalseを返す。
func (h *FoodHandler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return "", false
	}
	return sessionID, true
}

func (h *FoodHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// parseAddForm はフォームから食品追加の入力を組み立てる。
// 5つの栄養値がすべて入力されている場合のみ事前入力値として扱う。
func parseAddForm(r *http.Request) (food.AddFoodInput, addFormValues, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return food.AddFoodInput{}, addFormValues{}, errors.New("フォームを読み取れませんでした。")
	}

	values := addFormValues{
		Name:       strings.TrimSpace(r.FormValue("name")),
		Barcode:    strings.TrimSpace(r.FormValue("barcode")),
		Quantity:   strings.TrimSpace(r.FormValue("quantity")),
		Unit:       strings.TrimSpace(r.FormValue("unit")),
		Calories:   strings.TrimSpace(r.FormValue("calories")),
		Protein:    strings.TrimSpace(r.FormValue("protein")),
		Carbs:      strings.TrimSpace(r.FormValue("carbs")),
		Fat:        strings.TrimSpace(r.FormValue("fat")),
		Fiber:      strings.TrimSpace(r.FormValue("fiber")),
		NutriScore: strings.TrimSpace(r.FormValue("nutriscore")),
	}

	quantity, err := strconv.ParseFloat(values.Quantity, 64)
	if err != nil {
		return food.AddFoodInput{}, values, errors.New("数量は数値で入力してください。")
	}

	in := food.AddFoodInput{
		Request: nutrition.Request{
			Name:    values.Name,
			Barcode: values.Barcode,
		},
		Quantity: quantity,
		Unit:     values.Unit,
	}

	prefilled, err := parsePrefilled(values)
	if err != nil {
		return food.AddFoodInput{}, values, err
	}
	in.Prefilled = prefilled

	image, mimeType, err := readImage(r)
	if err != nil {
		return food.AddFoodInput{}, values, errors.New("画像を読み取れませんでした。")
	}
	in.Image = image
	in.ImageType = mimeType

	return in, values, nil
}

// parsePrefilled は事前入力された栄養値を解析する。1つでも未入力ならnilを返す。
func parsePrefilled(values addFormValues) (*nutrition.Prefilled, error) {
	raw := []string{values.Calories, values.Protein, values.Carbs, values.Fat, values.Fiber}
	parsed := make([]float64, len(raw))
	for i, s := range raw {
		if s == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.New("栄養値は数値で入力してください。")
		}
		parsed[i] = v
	}

	return &nutrition.Prefilled{
		Calories:   parsed[0],
		Protein:    parsed[1],
		Carbs:      parsed[2],
		Fat:        parsed[3],
		Fiber:      parsed[4],
		NutriScore: values.NutriScore,
	}, nil
}

// readImage はアップロードされた画像を読み取る。未送信やmultipart以外の場合は空を返す。
// 本文の大きさはリクエストサイズ制限ミドルウェアで制限される。
func readImage(r *http.Request) ([]byte, string, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, "", nil
		}
		return nil, "", err
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return image, header.Header.Get("Content-Type"), nil
}
