package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"neurogpt/backend/internal/account"
	"neurogpt/backend/internal/ai"
	"neurogpt/backend/internal/config"
	"neurogpt/backend/internal/knowledge"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

// recordingMailer captures outbound mail for assertions.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("expected at least one mail to be sent")
	}
	return m.sent[len(m.sent)-1]
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:            "test",
		APIPrefix:         "/api/v1",
		JWTSecret:         "unit-test-secret-0123456789",
		JWTAlgorithm:      "HS256",
		JWTAudience:       "neurogpt-web",
		JWTIssuer:         "neurogpt-api",
		CORSAllowOrigins:  []string{"http://localhost:5173"},
		AIMaxOutputTokens: 200,
		AITemperature:     0.7,
		FreeMessageLimit:  4,
		CheckoutURL:       "https://pay.example.com/checkout",
	}
}

func testKnowledge() *knowledge.Base {
	return knowledge.NewBase(
		[]knowledge.PromptEntry{
			{
				Title:       "What is a growth mindset?",
				UserMessage: "What is a growth mindset?",
				BotResponse: "a belief that abilities can grow",
			},
		},
		json.RawMessage(`[{"question":"q1"}]`),
		[]knowledge.IntentRecord{
			{
				ID:        "greeting",
				Patterns:  []string{"hello"},
				Responses: []string{"hi there"},
			},
			{
				ID:        "action_plan",
				Patterns:  []string{"i want a plan"},
				Responses: []string{"want a starter plan?"},
				FollowUp:  knowledge.FollowUpActionPlan,
			},
		},
	)
}

func newTestApp(t *testing.T, client ai.Client) (*App, *account.MemoryStore, *recordingMailer) {
	t.Helper()
	store := account.NewMemoryStore()
	mailer := &recordingMailer{}
	app := New(testConfig(), store, testKnowledge(), client, mailer)
	return app, store, mailer
}

// registerUser seeds a user directly in the store with a real bcrypt hash so
// login tests exercise the verification path.
func registerUser(t *testing.T, store *account.MemoryStore, username, email, password string) account.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := store.CreateUser(context.Background(), username, email, string(hashed))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func accessToken(t *testing.T, app *App, user account.User) string {
	t.Helper()
	token, err := app.signAccessToken(user)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// streamRecorder adds the CloseNotify hook gin's Stream helper expects from
// the response writer.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closeNotify chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closeNotify }

func performStreamRequest(t *testing.T, router http.Handler, path, body string) *streamRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := &streamRecorder{httptest.NewRecorder(), make(chan bool, 1)}
	router.ServeHTTP(recorder, request)
	return recorder
}

func performRequest(t *testing.T, router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}
