package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findFamily は収集結果から指定名のメトリクスファミリーを探す。
func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

// TestRecordOracleCall_CountsByKindAndOutcome は呼び出し数が種類・結果別に集計されることを検証する。
func TestRecordOracleCall_CountsByKindAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOracleCall(OracleKindText, OutcomeSuccess, 200*time.Millisecond)
	c.RecordOracleCall(OracleKindText, OutcomeSuccess, 300*time.Millisecond)
	c.RecordOracleCall(OracleKindBarcode, OutcomeNotFound, 50*time.Millisecond)

	mf := findFamily(t, reg, "nutrilog_oracle_calls_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		kind := labelValue(m, "kind")
		outcome := labelValue(m, "outcome")
		val := m.GetCounter().GetValue()
		switch {
		case kind == OracleKindText && outcome == OutcomeSuccess:
			if val != 2 {
				t.Errorf("oracle_calls_total{text,success} = %v, want 2", val)
			}
		case kind == OracleKindBarcode && outcome == OutcomeNotFound:
			if val != 1 {
				t.Errorf("oracle_calls_total{barcode,not_found} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected labels: kind=%s outcome=%s", kind, outcome)
		}
	}

	latency := findFamily(t, reg, "nutrilog_oracle_latency_seconds")
	for _, m := range latency.GetMetric() {
		if labelValue(m, "kind") == OracleKindText {
			h := m.GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample count = %d, want 2", h.GetSampleCount())
			}
			if got := h.GetSampleSum(); got < 0.49 || got > 0.51 {
				t.Errorf("sample sum = %v, want 0.5", got)
			}
		}
	}
}

// TestRecordEntryAdded_CountsByStrategy は追加数が推定方法別に集計されることを検証する。
func TestRecordEntryAdded_CountsByStrategy(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEntryAdded("name")
	c.RecordEntryAdded("name")
	c.RecordEntryAdded("barcode")

	mf := findFamily(t, reg, "nutrilog_entries_added_total")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		got[labelValue(m, "strategy")] = m.GetCounter().GetValue()
	}
	if got["name"] != 2 || got["barcode"] != 1 {
		t.Errorf("entries_added_total = %v, want name=2 barcode=1", got)
	}
}

// TestRecordEntryDeleted_IncrementsCounter は削除カウンタが増加することを検証する。
func TestRecordEntryDeleted_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEntryDeleted()

	mf := findFamily(t, reg, "nutrilog_entries_deleted_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("entries_deleted_total = %v, want 1", val)
	}
}

// TestHandler_ReturnsPrometheusFormat はHandlerがPrometheus形式で応答することを検証する。
func TestHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordEntryAdded("image")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `nutrilog_entries_added_total{strategy="image"} 1`) {
		t.Errorf("response should contain entries_added_total, got:\n%s", body)
	}
}

// TestMultipleCollectors_IndependentRegistries は独立したレジストリに重複登録できることを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	c1 := NewCollector(prometheus.NewRegistry())
	c2 := NewCollector(prometheus.NewRegistry())
	if c1 == nil || c2 == nil {
		t.Fatal("expected non-nil Collectors")
	}
}

func TestNop_DoesNothing(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordOracleCall(OracleKindVision, OutcomeError, time.Second)
	r.RecordEntryAdded("prefilled")
	r.RecordEntryDeleted()
}
