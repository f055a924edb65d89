package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperpulse/app/middleware"
	"paperpulse/auth"
	"paperpulse/ingest"
	"paperpulse/store"
	"paperpulse/types"
)

var testSecret = []byte("test-secret")

// fakeEmbedder maps text to a letter-frequency vector, so overlapping
// words give high cosine similarity without any model in the loop.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec, nil
}

type fakeAgent struct {
	available   bool
	answer      string
	err         error
	calls       int
	lastContext string
}

func (f *fakeAgent) Available() bool { return f.available }

func (f *fakeAgent) GenerateAnswer(_ context.Context, contextText, _ string) (string, error) {
	f.calls++
	f.lastContext = contextText
	return f.answer, f.err
}

var (
	hashOnce   sync.Once
	passHashes map[string]string
)

func passwordHash(t *testing.T, password string) string {
	t.Helper()
	hashOnce.Do(func() {
		passHashes = make(map[string]string)
		for _, p := range []string{"admin123", "manager123", "employee123"} {
			h, err := auth.HashPassword(p)
			if err != nil {
				t.Fatalf("hash password: %v", err)
			}
			passHashes[p] = h
		}
	})
	return passHashes[password]
}

type testEnv struct {
	app   *fiber.App
	store *store.MemoryStore
	agent *fakeAgent
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	memStore := store.NewMemoryStore()
	seed := []struct {
		username, password, department string
		role                           types.Role
	}{
		{"admin", "admin123", "Management", types.RoleExecutive},
		{"manager", "manager123", "HR", types.RoleManager},
		{"employee", "employee123", "Support", types.RoleEmployee},
	}
	for _, u := range seed {
		err := memStore.CreateUser(context.Background(), types.User{
			Username:       u.username,
			HashedPassword: passwordHash(t, u.password),
			Role:           u.role,
			Department:     u.department,
			CreatedAt:      time.Now(),
		})
		require.NoError(t, err)
	}

	embedder := fakeEmbedder{}
	answerer := &fakeAgent{available: true, answer: "grounded answer"}
	ingestor := ingest.New(memStore, embedder, 0, 0)
	retriever := NewRetriever(memStore, embedder)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})

	authHandler := NewAuthHandler(memStore, testSecret)
	userHandler := NewUserHandler(memStore)
	documentHandler := NewDocumentHandler(memStore, ingestor, retriever)
	chatHandler := NewChatHandler(memStore, retriever, answerer)
	auditHandler := NewAuditHandler(memStore)

	apiv1 := app.Group("/api/v1")
	apiv1.Post("/auth/login", authHandler.HandleLogin)

	apiv1.Use(middleware.JWTAuth(testSecret))
	apiv1.Post("/auth/logout", authHandler.HandleLogout)
	apiv1.Post("/users", middleware.RequireRole(types.RoleExecutive), userHandler.HandleCreateUser)
	apiv1.Get("/users", middleware.RequireRole(types.RoleExecutive), userHandler.HandleListUsers)
	apiv1.Post("/documents", middleware.RequireRole(types.RoleExecutive, types.RoleManager), documentHandler.HandleUpload)
	apiv1.Get("/documents/search", documentHandler.HandleSearch)
	apiv1.Delete("/documents/:id", documentHandler.HandleDelete)
	apiv1.Post("/chat", chatHandler.HandleChat)
	apiv1.Get("/audit", middleware.RequireRole(types.RoleExecutive), auditHandler.HandleListAudit)

	return &testEnv{app: app, store: memStore, agent: answerer}
}

func (env *testEnv) request(t *testing.T, method, target, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (env *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	resp := env.request(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

// seedDocument plants a document and its chunks directly in the store.
func (env *testEnv) seedDocument(t *testing.T, title, department string, acl []types.Role, chunks ...string) uuid.UUID {
	t.Helper()
	docID := uuid.New()
	now := time.Now()
	err := env.store.SaveDocument(context.Background(), types.Document{
		ID:          docID,
		Title:       title,
		Department:  department,
		AccessRoles: acl,
		UploadedBy:  "admin",
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)

	for i, content := range chunks {
		embedding, err := fakeEmbedder{}.Embed(content)
		require.NoError(t, err)
		err = env.store.SaveChunk(context.Background(), types.Chunk{
			ID:        uuid.New(),
			DocID:     docID,
			Index:     i,
			Content:   content,
			Embedding: embedding,
		})
		require.NoError(t, err)
	}
	return docID
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	token := env.login(t, "manager", "manager123")
	claims, err := auth.ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "manager", claims.Username())
	assert.Equal(t, types.RoleManager, claims.Role)
	assert.Equal(t, "HR", claims.Department)

	resp := env.request(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"username": "manager",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"username": "ghost",
		"password": "whatever",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, "GET", "/api/v1/documents/search?q=test", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, "GET", "/api/v1/documents/search?q=test", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)
	execToken := env.login(t, "admin", "admin123")
	managerToken := env.login(t, "manager", "manager123")

	newUser := map[string]string{
		"username":   "analyst",
		"password":   "analyst123",
		"role":       "Employee",
		"department": "Finance",
	}

	resp := env.request(t, "POST", "/api/v1/users", managerToken, newUser)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, "POST", "/api/v1/users", execToken, newUser)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSON[types.User](t, resp)
	assert.Equal(t, "analyst", created.Username)
	assert.Equal(t, types.RoleEmployee, created.Role)

	// Duplicate usernames are rejected.
	resp = env.request(t, "POST", "/api/v1/users", execToken, newUser)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The new account can log in.
	env.login(t, "analyst", "analyst123")
}

func TestCreateUserValidation(t *testing.T) {
	env := newTestEnv(t)
	execToken := env.login(t, "admin", "admin123")

	resp := env.request(t, "POST", "/api/v1/users", execToken, map[string]string{
		"username":   "x",
		"password":   "short",
		"role":       "Wizard",
		"department": "",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSearchAccessFiltering(t *testing.T) {
	env := newTestEnv(t)

	env.seedDocument(t, "HR handbook", "HR",
		[]types.Role{types.RoleManager, types.RoleEmployee},
		"vacation policy and holiday rules for staff")
	env.seedDocument(t, "Board minutes", "Management",
		[]types.Role{types.RoleExecutive},
		"vacation policy decisions made by the board")

	// Executive sees both documents.
	execToken := env.login(t, "admin", "admin123")
	resp := env.request(t, "GET", "/api/v1/documents/search?q=vacation+policy", execToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decodeJSON[[]types.SearchResult](t, resp)
	assert.Len(t, results, 2)

	// Manager in HR sees only the HR document.
	managerToken := env.login(t, "manager", "manager123")
	resp = env.request(t, "GET", "/api/v1/documents/search?q=vacation+policy", managerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results = decodeJSON[[]types.SearchResult](t, resp)
	require.Len(t, results, 1)
	assert.Equal(t, "HR handbook", results[0].Title)

	// Employee in Support matches the HR doc's ACL but not its department.
	employeeToken := env.login(t, "employee", "employee123")
	resp = env.request(t, "GET", "/api/v1/documents/search?q=vacation+policy", employeeToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results = decodeJSON[[]types.SearchResult](t, resp)
	assert.Empty(t, results)
}

func TestSearchDeduplicatesByDocument(t *testing.T) {
	env := newTestEnv(t)

	env.seedDocument(t, "HR handbook", "Management",
		[]types.Role{types.RoleExecutive},
		"vacation policy part one", "vacation policy part two", "vacation policy part three")

	execToken := env.login(t, "admin", "admin123")
	resp := env.request(t, "GET", "/api/v1/documents/search?q=vacation+policy", execToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decodeJSON[[]types.SearchResult](t, resp)
	assert.Len(t, results, 1)
}

func TestDeletePermissions(t *testing.T) {
	env := newTestEnv(t)

	plainDoc := env.seedDocument(t, "Team notes", "HR",
		[]types.Role{types.RoleManager, types.RoleEmployee}, "weekly sync notes")
	execDoc := env.seedDocument(t, "Exec brief", "Management",
		[]types.Role{types.RoleExecutive, types.RoleManager}, "quarterly strategy brief")

	employeeToken := env.login(t, "employee", "employee123")
	managerToken := env.login(t, "manager", "manager123")
	execToken := env.login(t, "admin", "admin123")

	resp := env.request(t, "DELETE", "/api/v1/documents/"+plainDoc.String(), employeeToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, "DELETE", "/api/v1/documents/"+execDoc.String(), managerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, "DELETE", "/api/v1/documents/"+plainDoc.String(), managerToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, "DELETE", "/api/v1/documents/"+execDoc.String(), execToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Gone for real.
	resp = env.request(t, "DELETE", "/api/v1/documents/"+execDoc.String(), execToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.request(t, "GET", "/api/v1/documents/search?q=strategy+brief", execToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decodeJSON[[]types.SearchResult](t, resp)
	assert.Empty(t, results)
}

func TestUploadRoleGate(t *testing.T) {
	env := newTestEnv(t)
	employeeToken := env.login(t, "employee", "employee123")

	req := httptest.NewRequest("POST", "/api/v1/documents", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+employeeToken)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestChatAnswersWithSources(t *testing.T) {
	env := newTestEnv(t)

	env.seedDocument(t, "HR handbook", "HR",
		[]types.Role{types.RoleManager, types.RoleEmployee},
		"employees accrue twenty vacation days per year")

	managerToken := env.login(t, "manager", "manager123")
	resp := env.request(t, "POST", "/api/v1/chat", managerToken, map[string]string{
		"prompt": "how many vacation days do employees accrue",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	chat := decodeJSON[types.ChatResponse](t, resp)
	assert.Equal(t, "grounded answer", chat.Answer)
	require.Len(t, chat.Sources, 1)
	assert.Equal(t, "HR handbook", chat.Sources[0].Title)
	assert.Greater(t, chat.Confidence, 0.0)

	assert.Equal(t, 1, env.agent.calls)
	assert.Contains(t, env.agent.lastContext, "Document: HR handbook")
	assert.Contains(t, env.agent.lastContext, "vacation days")
}

func TestChatNoAccessibleDocuments(t *testing.T) {
	env := newTestEnv(t)

	env.seedDocument(t, "Board minutes", "Management",
		[]types.Role{types.RoleExecutive}, "vacation policy decisions")

	employeeToken := env.login(t, "employee", "employee123")
	resp := env.request(t, "POST", "/api/v1/chat", employeeToken, map[string]string{
		"prompt": "what vacation policy decisions were made",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	chat := decodeJSON[types.ChatResponse](t, resp)
	assert.Equal(t, answerNoDocuments, chat.Answer)
	assert.Empty(t, chat.Sources)
	assert.Zero(t, env.agent.calls)
}

func TestChatLLMUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.agent.available = false

	managerToken := env.login(t, "manager", "manager123")
	resp := env.request(t, "POST", "/api/v1/chat", managerToken, map[string]string{
		"prompt": "anything",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	chat := decodeJSON[types.ChatResponse](t, resp)
	assert.Equal(t, answerUnavailable, chat.Answer)
	assert.Zero(t, env.agent.calls)
}

func TestChatLLMErrorKeepsSources(t *testing.T) {
	env := newTestEnv(t)
	env.agent.err = fmt.Errorf("model exploded")
	env.agent.answer = ""

	env.seedDocument(t, "HR handbook", "HR",
		[]types.Role{types.RoleManager}, "vacation policy details")

	managerToken := env.login(t, "manager", "manager123")
	resp := env.request(t, "POST", "/api/v1/chat", managerToken, map[string]string{
		"prompt": "vacation policy",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	chat := decodeJSON[types.ChatResponse](t, resp)
	assert.Contains(t, chat.Answer, "error while generating the answer")
	assert.Len(t, chat.Sources, 1)
}

func TestAuditLogAccess(t *testing.T) {
	env := newTestEnv(t)

	managerToken := env.login(t, "manager", "manager123")
	resp := env.request(t, "GET", "/api/v1/audit", managerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	execToken := env.login(t, "admin", "admin123")
	resp = env.request(t, "GET", "/api/v1/audit", execToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries := decodeJSON[[]types.AuditEntry](t, resp)
	require.NotEmpty(t, entries)

	actions := make(map[string]bool)
	for _, e := range entries {
		actions[e.Action] = true
	}
	assert.True(t, actions["login"])
}

func TestSearchIsAudited(t *testing.T) {
	env := newTestEnv(t)

	managerToken := env.login(t, "manager", "manager123")
	resp := env.request(t, "GET", "/api/v1/documents/search?q=quarterly+report", managerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	execToken := env.login(t, "admin", "admin123")
	resp = env.request(t, "GET", "/api/v1/audit", execToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries := decodeJSON[[]types.AuditEntry](t, resp)
	var found bool
	for _, e := range entries {
		if e.Action == "search" && e.Username == "manager" {
			found = true
			assert.Equal(t, "quarterly report", e.Details["query"])
		}
	}
	assert.True(t, found, "expected a search audit entry for manager")
}

func TestListUsersHidesHashes(t *testing.T) {
	env := newTestEnv(t)
	execToken := env.login(t, "admin", "admin123")

	resp := env.request(t, "GET", "/api/v1/users", execToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hashed_password")
	assert.NotContains(t, string(raw), "$2a$")

	var users []types.User
	require.NoError(t, json.Unmarshal(raw, &users))
	assert.Len(t, users, 3)

	// admin just logged in, so its last_login is populated.
	for _, u := range users {
		if u.Username == "admin" {
			require.NotNil(t, u.LastLogin)
			assert.WithinDuration(t, time.Now(), *u.LastLogin, time.Minute)
		}
	}
	assert.Contains(t, string(raw), "last_login")
}
