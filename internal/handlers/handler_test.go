package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/yYagoKn/drp/internal/config"
	"github.com/yYagoKn/drp/internal/metrics"
	"github.com/yYagoKn/drp/internal/models"
	"github.com/yYagoKn/drp/internal/repository"
	"github.com/yYagoKn/drp/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

type recordingSink struct {
	mu    sync.Mutex
	leads []models.LeadRecord
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, lead models.LeadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, lead)
	return nil
}

func (s *recordingSink) all() []models.LeadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LeadRecord(nil), s.leads...)
}

type sentMessage struct{ to, body string }

type recordingMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (m *recordingMessenger) SendText(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{to, body})
	return nil
}

func (m *recordingMessenger) all() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type testEnv struct {
	cfg        config.Config
	router     *gin.Engine
	ledger     *repository.Ledger
	dispatcher *services.Dispatcher
	sink       *recordingSink
	messenger  *recordingMessenger
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:         "test",
		VerifyToken:    "verify-me",
		TargetPhone:    "5511988887777",
		WAComposeURL:   "https://api.whatsapp.com/send",
		DefaultMessage: config.DefaultMessage,
		GenericMessage: config.GenericMessage,
		GroupLink:      "https://example.com/grupo",
		CodeTTLSeconds: 86400,
		TokenLength:    8,
		CodeLength:     6,
		CodeAlphabet:   "ABCDEFGHJKMNPQRSTUVWXYZ23456789",
		MaxNameLength:  120,
		DebounceWindow: 30 * time.Second,
		BotSignatures:  config.DefaultBotSignatures(),
	}
}

func setupTestHandler(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	logger := discardLogger()
	store := repository.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	ledger := repository.NewLedger(store, cfg.TTL())
	m := metrics.New()
	filter := services.NewClickFilter(cfg.BotSignatures, cfg.DebounceWindow)
	tracker := services.NewTrackerService(cfg, ledger, filter, nil, nil, m, logger)
	engine := services.NewEngine(ledger, services.Replies{GroupLink: cfg.GroupLink}, cfg.MaxNameLength, nil, m, logger)

	sink := &recordingSink{}
	messenger := &recordingMessenger{}
	dispatcher := services.NewDispatcher(messenger, []services.LeadSink{sink}, services.DispatcherConfig{Workers: 2, QueueSize: 50}, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h := NewHandler(cfg, logger, tracker, engine, dispatcher, m)
	return &testEnv{
		cfg:        cfg,
		router:     h.SetupRouter(nil),
		ledger:     ledger,
		dispatcher: dispatcher,
		sink:       sink,
		messenger:  messenger,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("User-Agent", chromeUA)
	req.RemoteAddr = "203.0.113.7:5555"
	return e.do(req)
}

func (e *testEnv) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.dispatcher.Flush(ctx))
}

var (
	prefilledCode  = regexp.MustCompile(`#([A-Z0-9_-]+)`)
	prefilledToken = regexp.MustCompile(`TID:([A-Za-z0-9_-]+)`)
)

// prefilled decodes the chat text carried by a redirect Location.
func prefilled(t *testing.T, w *httptest.ResponseRecorder) (phone, text string) {
	t.Helper()
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("phone"), loc.Query().Get("text")
}

func extract(t *testing.T, re *regexp.Regexp, text string) string {
	t.Helper()
	m := re.FindStringSubmatch(text)
	require.NotNil(t, m, "no match in %q", text)
	return m[1]
}

func webhookBody(from, id, text string) string {
	return `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"messages":[` +
		`{"from":"` + from + `","id":"` + id + `","type":"text","text":{"body":` + quote(text) + `}}]}}]}]}`
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
