package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stockwave/apperrors"
	"stockwave/forecast"
	"stockwave/lstm"
	"stockwave/models"
	"stockwave/symbols"
)

type fakeEngine struct {
	freshCalls atomic.Int32
	delay      time.Duration
	err        error
	inFlight   atomic.Int32
	maxSeen    atomic.Int32
}

func history(n int) *models.PriceSeries {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		c := 100 + float64(i%17)
		bars[i] = models.Bar{Time: start.AddDate(0, 0, i), Open: c - 1, High: c + 1, Low: c - 2, Close: c}
	}
	return &models.PriceSeries{Ticker: "AAPL", Period: "2y", Bars: bars}
}

func (f *fakeEngine) ForecastFresh(ctx context.Context, ticker string, days int) (*forecast.FreshResult, error) {
	f.freshCalls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	preds := make([]float64, days)
	for i := range preds {
		preds[i] = 110 + float64(i)
	}
	return &forecast.FreshResult{
		Ticker: ticker, Horizon: days, Historical: history(400), Predictions: preds,
		Report: lstm.Report{Epochs: 3, FinalLoss: 0.01},
	}, nil
}

func (f *fakeEngine) ForecastRecursive(ctx context.Context, ticker string, days int) (*forecast.RecursiveResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &forecast.RecursiveResult{Ticker: ticker, Days: days, Predictions: make([]float64, days)}, nil
}

type fakeCompany struct{ err error }

func (f fakeCompany) CompanyInfo(ctx context.Context, ticker string) (*models.CompanyInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.CompanyInfo{Symbol: ticker, Name: models.StringPtr("Apple Inc.")}, nil
}

func setupForecastRouter(h *ForecastHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/predict", h.HandlePredict)
	r.GET("/api/forecast", h.HandleForecast)
	return r
}

func get(r http.Handler, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlePredict(t *testing.T) {
	engine := &fakeEngine{}
	r := setupForecastRouter(NewForecastHandler(engine, fakeCompany{}, 2, zap.NewNop()))

	w := get(r, "/api/predict?ticker=aapl&days=30")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp PredictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ticker != "AAPL" || resp.Days != 30 || len(resp.Predictions) != 30 {
		t.Errorf("unexpected response header fields %+v", resp)
	}
	if len(resp.Historical) != 400 {
		t.Errorf("expected 400 historical bars, got %d", len(resp.Historical))
	}
	if resp.PriceComparisonGraph == "" || resp.CandlestickChart == "" || resp.NextDaysChart == "" || resp.OneYearChart == "" {
		t.Errorf("expected all charts to be rendered")
	}
	if resp.Info == nil || *resp.Info.Name != "Apple Inc." {
		t.Errorf("expected company info, got %+v", resp.Info)
	}
}

func TestHandlePredictOmitsUnrenderableCharts(t *testing.T) {
	r := setupForecastRouter(NewForecastHandler(&fakeEngine{}, fakeCompany{err: errors.New("down")}, 1, zap.NewNop()))

	w := get(r, "/api/predict?ticker=AAPL&days=5")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "next_30_days_chart") {
		t.Error("next 30 days chart needs 30 predictions")
	}
	if strings.Contains(body, `"info"`) {
		t.Error("info should be omitted when the provider fails")
	}
}

func TestHandlePredictDefaultsToThirtyDays(t *testing.T) {
	r := setupForecastRouter(NewForecastHandler(&fakeEngine{}, nil, 1, zap.NewNop()))
	w := get(r, "/api/predict?ticker=MSFT")
	var resp PredictResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Days != 30 {
		t.Errorf("expected default of 30 days, got %d", resp.Days)
	}
}

func TestHandlePredictErrors(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		err    error
		status int
	}{
		{"missing ticker", "/api/predict?days=5", nil, http.StatusBadRequest},
		{"bad days", "/api/predict?ticker=AAPL&days=abc", nil, http.StatusBadRequest},
		{"invalid request", "/api/predict?ticker=AAPL&days=800", apperrors.New(apperrors.CodeInvalidRequest, "days out of range"), http.StatusBadRequest},
		{"short history", "/api/predict?ticker=AAPL&days=5", apperrors.New(apperrors.CodeInsufficientHistory, "too short"), http.StatusUnprocessableEntity},
		{"upstream", "/api/predict?ticker=AAPL&days=5", apperrors.New(apperrors.CodeDataUnavailable, "no data"), http.StatusBadGateway},
		{"internal", "/api/predict?ticker=AAPL&days=5", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupForecastRouter(NewForecastHandler(&fakeEngine{err: tt.err}, nil, 1, zap.NewNop()))
			w := get(r, tt.url)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.status == http.StatusInternalServerError && strings.Contains(w.Body.String(), "disk on fire") {
				t.Error("internal detail leaked to the client")
			}
		})
	}
}

func TestHandlePredictLimitsConcurrentTraining(t *testing.T) {
	engine := &fakeEngine{delay: 30 * time.Millisecond}
	r := setupForecastRouter(NewForecastHandler(engine, nil, 2, zap.NewNop()))

	var wg sync.WaitGroup
	for _, ticker := range []string{"AAPL", "MSFT", "TSLA", "NVDA", "AMZN"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			get(r, "/api/predict?ticker="+ticker+"&days=3")
		}()
	}
	wg.Wait()

	if engine.freshCalls.Load() != 5 {
		t.Errorf("expected 5 training runs, got %d", engine.freshCalls.Load())
	}
	if engine.maxSeen.Load() > 2 {
		t.Errorf("more than 2 concurrent training runs: %d", engine.maxSeen.Load())
	}
}

func TestHandlePredictCollapsesDuplicateRequests(t *testing.T) {
	engine := &fakeEngine{delay: 100 * time.Millisecond}
	r := setupForecastRouter(NewForecastHandler(engine, nil, 4, zap.NewNop()))

	var wg sync.WaitGroup
	codes := make([]int, 4)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = get(r, "/api/predict?ticker=AAPL&days=3").Code
		}()
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d returned %d", i, code)
		}
	}
	if n := engine.freshCalls.Load(); n >= 4 {
		t.Errorf("expected duplicate requests to share a run, got %d runs", n)
	}
}

func TestHandlePredictFollowerOutlivesCancelledLeader(t *testing.T) {
	engine := &fakeEngine{delay: 150 * time.Millisecond}
	r := setupForecastRouter(NewForecastHandler(engine, fakeCompany{}, 1, zap.NewNop()))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		get(r, "/api/predict?ticker=MSFT&days=3")
	}()
	time.Sleep(20 * time.Millisecond)

	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	leaderCode := make(chan int, 1)
	go func() {
		defer wg.Done()
		req := httptest.NewRequest(http.MethodGet, "/api/predict?ticker=AAPL&days=3", nil).WithContext(leaderCtx)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		leaderCode <- w.Code
	}()
	time.Sleep(20 * time.Millisecond)

	var follower *httptest.ResponseRecorder
	go func() {
		defer wg.Done()
		follower = get(r, "/api/predict?ticker=AAPL&days=3")
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case code := <-leaderCode:
		if code == http.StatusOK {
			t.Errorf("cancelled leader should not get a forecast")
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled leader kept waiting")
	}
	wg.Wait()

	if follower.Code != http.StatusOK {
		t.Fatalf("follower expected 200, got %d: %s", follower.Code, follower.Body.String())
	}
	var resp PredictResponse
	if err := json.Unmarshal(follower.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ticker != "AAPL" || resp.Info == nil {
		t.Errorf("unexpected follower response %+v", resp)
	}
	if n := engine.freshCalls.Load(); n != 2 {
		t.Errorf("expected one MSFT and one shared AAPL run, got %d", n)
	}
}

func TestHandleForecast(t *testing.T) {
	r := setupForecastRouter(NewForecastHandler(&fakeEngine{}, nil, 1, zap.NewNop()))
	w := get(r, "/api/forecast?ticker=AAPL&days=30")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp RecursiveResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Predictions) != 30 {
		t.Errorf("expected 30 predictions, got %d", len(resp.Predictions))
	}

	r = setupForecastRouter(NewForecastHandler(&fakeEngine{err: apperrors.New(apperrors.CodeModelNotFound, "no model")}, nil, 1, zap.NewNop()))
	if w := get(r, "/api/forecast?ticker=AAPL"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a model, got %d", w.Code)
	}
}

type fakeBoards struct{}

func (fakeBoards) Trending(ctx context.Context) []models.Quote {
	return []models.Quote{{Symbol: "AAPL", Price: 190.1, Change: "+1.2%"}}
}

func (fakeBoards) TopLosers(ctx context.Context) []models.Quote {
	return []models.Quote{}
}

func setupMarketRouter(t *testing.T, company CompanySource) *gin.Engine {
	t.Helper()
	table, err := symbols.Parse(strings.NewReader("Symbol,Name,Sector\nAAPL,Apple Inc.,Information Technology\nAMZN,Amazon,Consumer Discretionary\n"))
	if err != nil {
		t.Fatalf("symbols.Parse: %v", err)
	}
	gin.SetMode(gin.TestMode)
	h := NewMarketHandler(fakeBoards{}, table, company, zap.NewNop())
	r := gin.New()
	r.GET("/api/trending", h.HandleTrending)
	r.GET("/api/top_losers", h.HandleTopLosers)
	r.GET("/api/search", h.HandleSearch)
	r.GET("/api/company", h.HandleCompany)
	return r
}

func TestMarketEndpoints(t *testing.T) {
	r := setupMarketRouter(t, fakeCompany{})

	w := get(r, "/api/trending")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"symbol":"AAPL"`) {
		t.Errorf("trending: %d %s", w.Code, w.Body.String())
	}

	w = get(r, "/api/top_losers")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("top losers: %d %s", w.Code, w.Body.String())
	}

	w = get(r, "/api/search?ticker=am")
	var found []symbols.Symbol
	json.Unmarshal(w.Body.Bytes(), &found)
	if len(found) != 1 || found[0].Symbol != "AMZN" {
		t.Errorf("search: %s", w.Body.String())
	}

	w = get(r, "/api/search")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty search should return [], got %s", w.Body.String())
	}
}

func TestHandleCompany(t *testing.T) {
	r := setupMarketRouter(t, fakeCompany{})
	w := get(r, "/api/company?ticker=aapl")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var info models.CompanyInfo
	json.Unmarshal(w.Body.Bytes(), &info)
	if info.Sector == nil || *info.Sector != "Information Technology" {
		t.Errorf("expected sector from the symbol table, got %+v", info)
	}

	if w := get(r, "/api/company?ticker="); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty ticker, got %d", w.Code)
	}

	failing := setupMarketRouter(t, fakeCompany{err: apperrors.New(apperrors.CodeDataUnavailable, "down")})
	if w := get(failing, "/api/company?ticker=AMZN"); w.Code != http.StatusOK {
		t.Errorf("expected symbol table fallback, got %d", w.Code)
	}
	if w := get(failing, "/api/company?ticker=ZZZZ"); w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for unknown ticker with provider down, got %d", w.Code)
	}
}
