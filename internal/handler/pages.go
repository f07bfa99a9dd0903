package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/nutrilog/internal/middleware"
	"github.com/hitoshi/nutrilog/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pages はHTMLページのテンプレート集合。
type Pages struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewPages は埋め込みテンプレートを読み込んでPagesを生成する。
func NewPages(logger *slog.Logger) (*Pages, error) {
	tmpl, err := template.New("pages").Funcs(template.FuncMap{
		"num":     formatNumber,
		"percent": formatPercent,
		"unit":    func(u model.Unit) string { return u.Label() },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Pages{templates: tmpl, logger: logger}, nil
}

// PageData は全ページ共通の値。
type PageData struct {
	Title     string
	CSRFToken string
	CSRFField string
	Error     string
}

func newPageData(r *http.Request, title string) PageData {
	return PageData{
		Title:     title,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		CSRFField: middleware.CSRFFormField,
	}
}

// Render は名前付きテンプレートを描画する。
// 途中まで書き込まれたレスポンスを返さないよう、バッファに描画してから送信する。
func (p *Pages) Render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := p.templates.ExecuteTemplate(&buf, name, data); err != nil {
		p.logger.Error("template rendering failed",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// formatNumber は栄養値を小数点以下1桁で表示する。
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// formatPercent は進捗率を0〜100に丸めて整数で返す。プログレスバーの幅に使う。
func formatPercent(v float64) string {
	switch {
	case v < 0:
		v = 0
	case v > 100:
		v = 100
	}
	return strconv.Itoa(int(v))
}
