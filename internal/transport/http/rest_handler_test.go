package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quizhub/internal/ai"
	"quizhub/internal/domain"
	"quizhub/internal/infra/memory"
	"quizhub/internal/library"
	"quizhub/internal/service"
)

func newTestServer(t *testing.T, providers map[string]ai.Provider) *httptest.Server {
	t.Helper()

	libStore := memory.NewLibraryStore()
	lib := library.NewService(libStore, memory.NewTokenStore(), memory.NewRateLimiter(3, time.Minute), time.Minute)

	loader := memory.NewStaticQuizLoader(nil)
	game := service.NewGameService(memory.NewSessionStore(), memory.NewQuizRepository(loader, 0), memory.NewHistoryStore())

	mux := http.NewServeMux()
	NewAPIHandler(lib, game, providers, "fake").Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func validQuizBody(filename, title string) map[string]any {
	return map[string]any{
		"filename": filename,
		"quiz": map[string]any{
			"title": title,
			"questions": []map[string]any{
				{
					"type":          "multiple-choice",
					"question":      "What is 2+2?",
					"options":       []string{"3", "4"},
					"correctAnswer": 1,
					"timeLimit":     30,
				},
			},
		},
	}
}

func TestQuizCRUD(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/save-quiz", validQuizBody("math.json", "Math"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save: %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/quizzes", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
	var metas []library.QuizMeta
	if err := json.Unmarshal(body, &metas); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(metas) != 1 || metas[0].Filename != "math.json" || metas[0].DisplayName != "Math" {
		t.Fatalf("unexpected list %+v", metas)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/quiz/math.json", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d", resp.StatusCode)
	}
	var loaded struct {
		Quiz domain.Quiz `json:"quiz"`
	}
	if err := json.Unmarshal(body, &loaded); err != nil {
		t.Fatalf("decode quiz: %v", err)
	}
	if loaded.Quiz.Title != "Math" || len(loaded.Quiz.Questions) != 1 {
		t.Fatalf("unexpected quiz %+v", loaded.Quiz)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/quiz/math.json", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/quiz/math.json", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: %d", resp.StatusCode)
	}
}

func TestSaveQuizRejectsInvalidQuestions(t *testing.T) {
	srv := newTestServer(t, nil)

	body := validQuizBody("bad.json", "Bad")
	body["quiz"].(map[string]any)["questions"].([]map[string]any)[0]["correctAnswer"] = 9
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/save-quiz", body, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestFolderEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/folders", map[string]any{"name": "Science"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	var folder library.Folder
	if err := json.Unmarshal(body, &folder); err != nil {
		t.Fatalf("decode folder: %v", err)
	}

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/api/folders/"+folder.ID, map[string]any{"name": "Physics"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rename: %d", resp.StatusCode)
	}
	var renamed library.Folder
	_ = json.Unmarshal(body, &renamed)
	if renamed.Name != "Physics" {
		t.Fatalf("rename not applied: %+v", renamed)
	}

	// A quiz filed inside makes plain delete a conflict.
	quiz := validQuizBody("inside.json", "Inside")
	quiz["folderId"] = folder.ID
	if resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/save-quiz", quiz, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("save into folder: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/folders/"+folder.ID, nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/folders/"+folder.ID+"?deleteContents=true", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("recursive delete: %d", resp.StatusCode)
	}

	// The tree shows surviving loose quizzes.
	if resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/save-quiz", validQuizBody("loose.json", "Loose"), nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("save loose: %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/quiz-tree", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tree: %d", resp.StatusCode)
	}
	var tree library.Tree
	if err := json.Unmarshal(body, &tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if len(tree.Quizzes) != 1 || tree.Quizzes[0].Filename != "loose.json" {
		t.Fatalf("unexpected tree %+v", tree)
	}
}

func TestFolderCycleConflict(t *testing.T) {
	srv := newTestServer(t, nil)

	var a, b library.Folder
	_, body := doJSON(t, http.MethodPost, srv.URL+"/api/folders", map[string]any{"name": "A"}, nil)
	_ = json.Unmarshal(body, &a)
	_, body = doJSON(t, http.MethodPost, srv.URL+"/api/folders", map[string]any{"name": "B", "parentId": a.ID}, nil)
	_ = json.Unmarshal(body, &b)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/folders/"+a.ID, map[string]any{"parentId": b.ID}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on cycle, got %d", resp.StatusCode)
	}
}

func TestUnlockFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	if resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/save-quiz", validQuizBody("secret.json", "Secret"), nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("save failed")
	}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/set-password", map[string]any{
		"itemType": "quiz", "id": "secret.json", "password": "hunter2",
	}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("set password: %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/requires-auth/quiz/secret.json", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("requires-auth: %d", resp.StatusCode)
	}
	var auth map[string]bool
	_ = json.Unmarshal(body, &auth)
	if !auth["requiresAuth"] {
		t.Fatalf("expected protection flag")
	}

	if resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/quiz/secret.json", nil, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/unlock", map[string]any{
		"itemType": "quiz", "id": "secret.json", "password": "wrong",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/unlock", map[string]any{
		"itemType": "quiz", "id": "secret.json", "password": "hunter2",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unlock: %d", resp.StatusCode)
	}
	var unlock library.UnlockResult
	if err := json.Unmarshal(body, &unlock); err != nil || unlock.Token == "" {
		t.Fatalf("bad unlock response: %v %s", err, body)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/quiz/secret.json", nil, map[string]string{"X-Unlock-Token": unlock.Token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get with token: %d", resp.StatusCode)
	}
}

func TestUnlockRateLimitedOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	_, _ = doJSON(t, http.MethodPost, srv.URL+"/api/save-quiz", validQuizBody("secret.json", "Secret"), nil)
	_, _ = doJSON(t, http.MethodPost, srv.URL+"/api/set-password", map[string]any{
		"itemType": "quiz", "id": "secret.json", "password": "pw",
	}, nil)

	// The limiter allows 3 attempts per source.
	var last int
	for i := 0; i < 4; i++ {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/unlock", map[string]any{
			"itemType": "quiz", "id": "secret.json", "password": "wrong",
		}, nil)
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on fourth attempt, got %d", last)
	}
}

func TestAIGenerateEndpoint(t *testing.T) {
	providers := map[string]ai.Provider{"fake": &scriptedProvider{
		response: `[{"question": "What is 2+2?", "type": "multiple-choice", "options": ["3", "4"], "correctAnswer": 1, "difficulty": "easy"}]`,
	}}
	srv := newTestServer(t, providers)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/ai/generate", map[string]any{
		"content": "Basic arithmetic.",
		"count":   1,
		"types":   []string{"multiple-choice"},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate: %d %s", resp.StatusCode, body)
	}
	var out struct {
		Questions []domain.Question `json:"questions"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Questions) != 1 || out.Questions[0].Prompt != "What is 2+2?" {
		t.Fatalf("unexpected questions %+v", out.Questions)
	}

	// Unknown question type is a client error.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/ai/generate", map[string]any{
		"content": "stuff", "types": []string{"essay"},
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", resp.StatusCode)
	}

	// Missing content is a client error.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/ai/generate", map[string]any{"count": 1}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty content, got %d", resp.StatusCode)
	}
}

func TestAIGenerateRateLimit(t *testing.T) {
	providers := map[string]ai.Provider{"fake": &scriptedProvider{
		err: &ai.ProviderError{Provider: "fake", Status: http.StatusTooManyRequests, RetryAfter: "30"},
	}}
	srv := newTestServer(t, providers)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/ai/generate", map[string]any{"content": "stuff"}, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestAIConfigEndpoint(t *testing.T) {
	providers := map[string]ai.Provider{"fake": &scriptedProvider{}}
	srv := newTestServer(t, providers)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/ai/config", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config: %d", resp.StatusCode)
	}
	var cfg struct {
		Providers []struct {
			Name string `json:"name"`
		} `json:"providers"`
		Default string `json:"default"`
	}
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Default != "fake" || len(cfg.Providers) != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestAIPreviewFlow(t *testing.T) {
	providers := map[string]ai.Provider{"fake": &scriptedProvider{
		response: `[
			{"question": "What is 2+2?", "type": "multiple-choice", "options": ["3", "4"], "correctAnswer": 1, "difficulty": "easy"},
			{"question": "What is 5*5?", "type": "multiple-choice", "options": ["20", "25"], "correctAnswer": 1, "difficulty": "easy"}
		]`,
	}}
	srv := newTestServer(t, providers)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/ai/preview", map[string]any{
		"content": "Basic arithmetic.",
		"count":   2,
		"types":   []string{"multiple-choice"},
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create preview: %d %s", resp.StatusCode, body)
	}
	var created struct {
		PreviewID string           `json:"previewId"`
		Items     []ai.PreviewItem `json:"items"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if created.PreviewID == "" || len(created.Items) != 2 {
		t.Fatalf("unexpected preview %+v", created)
	}
	for i, item := range created.Items {
		if !item.Selected {
			t.Fatalf("item %d should start selected", i)
		}
	}
	base := srv.URL + "/api/ai/preview/" + created.PreviewID

	// Regeneration swaps the question and keeps the slot selected.
	resp, body = doJSON(t, http.MethodPost, base+"/regenerate", map[string]any{"index": 0}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("regenerate: %d %s", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/regenerate", map[string]any{"index": 7}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range regenerate, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/select", map[string]any{"index": 1, "selected": false}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select: %d %s", resp.StatusCode, body)
	}
	var state struct {
		Items []ai.PreviewItem `json:"items"`
	}
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("decode select: %v", err)
	}
	if state.Items[1].Selected {
		t.Fatalf("deselect not applied: %+v", state.Items[1])
	}

	resp, body = doJSON(t, http.MethodPost, base+"/edit", map[string]any{
		"index": 0,
		"question": map[string]any{
			"type":          "multiple-choice",
			"question":      "What is 3+3?",
			"options":       []string{"5", "6"},
			"correctAnswer": 1,
			"timeLimit":     30,
		},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit: %d %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/confirm", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: %d %s", resp.StatusCode, body)
	}
	var confirmed struct {
		Questions []domain.Question `json:"questions"`
	}
	if err := json.Unmarshal(body, &confirmed); err != nil {
		t.Fatalf("decode confirm: %v", err)
	}
	if len(confirmed.Questions) != 1 || confirmed.Questions[0].Prompt != "What is 3+3?" {
		t.Fatalf("unexpected confirmed questions %+v", confirmed.Questions)
	}

	// Confirm consumes the preview.
	resp, _ = doJSON(t, http.MethodPost, base+"/confirm", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after confirm, got %d", resp.StatusCode)
	}
}

func TestAIPreviewUnknownID(t *testing.T) {
	srv := newTestServer(t, map[string]ai.Provider{"fake": &scriptedProvider{}})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/ai/preview/nope/select", map[string]any{"selected": true}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// reachableProvider reports backend reachability like the ollama client does.
type reachableProvider struct {
	scriptedProvider
	up bool
}

func (p *reachableProvider) Available(context.Context) bool { return p.up }

func TestAIConfigReportsAvailability(t *testing.T) {
	providers := map[string]ai.Provider{
		"fake":  &scriptedProvider{},
		"local": &reachableProvider{up: true},
	}
	srv := newTestServer(t, providers)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/ai/config", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config: %d", resp.StatusCode)
	}
	var cfg struct {
		Providers []struct {
			Name      string `json:"name"`
			Available *bool  `json:"available"`
		} `json:"providers"`
	}
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, p := range cfg.Providers {
		switch p.Name {
		case "local":
			if p.Available == nil || !*p.Available {
				t.Fatalf("reachable provider should report availability: %+v", p)
			}
		case "fake":
			if p.Available != nil {
				t.Fatalf("plain provider should omit availability: %+v", p)
			}
		default:
			t.Fatalf("unexpected provider %q", p.Name)
		}
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
	var health struct {
		Status      string `json:"status"`
		ActiveGames int    `json:"activeGames"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.ActiveGames != 0 {
		t.Fatalf("unexpected health %+v", health)
	}
}

// scriptedProvider returns one canned response or error for every call.
type scriptedProvider struct {
	response string
	err      error
	calls    int
}

func (p *scriptedProvider) Name() string   { return "fake" }
func (p *scriptedProvider) BatchSize() int { return 5 }

func (p *scriptedProvider) Generate(_ context.Context, _ string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	if p.response == "" {
		return "", fmt.Errorf("unscripted call %d", p.calls)
	}
	return p.response, nil
}
