package nutrition

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/nutrilog/internal/model"
	"github.com/hitoshi/nutrilog/internal/security"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockTextOracle はTextOracleのテスト用モック。
type mockTextOracle struct {
	generateFn func(ctx context.Context, prompt string) (string, error)
	calls      int
	prompts    []string
}

func (m *mockTextOracle) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt)
	}
	return "", model.ErrOracleNotConfigured
}

// mockVisionOracle はVisionOracleのテスト用モック。
type mockVisionOracle struct {
	generateFn func(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
	calls      int
}

func (m *mockVisionOracle) GenerateFromImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	m.calls++
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt, image, mimeType)
	}
	return "", model.ErrOracleNotConfigured
}

// mockProductLookup はProductLookupのテスト用モック。
type mockProductLookup struct {
	lookupFn func(ctx context.Context, code string) (*model.Nutrition, error)
	calls    int
}

func (m *mockProductLookup) LookupBarcode(ctx context.Context, code string) (*model.Nutrition, error) {
	m.calls++
	if m.lookupFn != nil {
		return m.lookupFn(ctx, code)
	}
	return nil, model.ErrProductNotFound
}

// oracleCall は記録されたメトリクス呼び出し。
type oracleCall struct {
	kind    string
	outcome string
}

// recordingRecorder はメトリクス呼び出しを記録するRecorder。
type recordingRecorder struct {
	mu      sync.Mutex
	oracle  []oracleCall
	added   []string
	deleted int
}

func (r *recordingRecorder) RecordOracleCall(kind, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oracle = append(r.oracle, oracleCall{kind, outcome})
}

func (r *recordingRecorder) RecordEntryAdded(strategy string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, strategy)
}

func (r *recordingRecorder) RecordEntryDeleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted++
}

// newTestEstimator はモックを組み込んだEstimatorを生成する。
func newTestEstimator(text *mockTextOracle, vision *mockVisionOracle, products *mockProductLookup, rec *recordingRecorder) *Estimator {
	return NewEstimator(text, vision, products, security.NewNameSanitizer(), rec, testLogger(), DefaultTimeouts)
}
