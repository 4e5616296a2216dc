package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizhub/internal/ai"
	"quizhub/internal/domain"
	"quizhub/internal/library"
	"quizhub/internal/service"
)

// previewTTL bounds how long an unconfirmed generation preview is kept.
const previewTTL = 30 * time.Minute

// APIHandler serves the REST surface: quiz library CRUD, unlock flow, and
// AI generation with its preview step.
type APIHandler struct {
	library   *library.Service
	game      *service.GameService
	providers map[string]ai.Provider
	defaultAI string

	mu       sync.Mutex
	previews map[string]*previewEntry
}

func NewAPIHandler(lib *library.Service, game *service.GameService, providers map[string]ai.Provider, defaultProvider string) *APIHandler {
	return &APIHandler{
		library:   lib,
		game:      game,
		providers: providers,
		defaultAI: defaultProvider,
		previews:  make(map[string]*previewEntry),
	}
}

// Register wires every route onto the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/save-quiz", h.saveQuiz)
	mux.HandleFunc("GET /api/quizzes", h.listQuizzes)
	mux.HandleFunc("GET /api/quiz/{filename}", h.getQuiz)
	mux.HandleFunc("DELETE /api/quiz/{filename}", h.deleteQuiz)
	mux.HandleFunc("GET /api/quiz-tree", h.quizTree)

	mux.HandleFunc("POST /api/folders", h.createFolder)
	mux.HandleFunc("PUT /api/folders/{id}", h.updateFolder)
	mux.HandleFunc("DELETE /api/folders/{id}", h.deleteFolder)

	mux.HandleFunc("POST /api/set-password", h.setPassword)
	mux.HandleFunc("POST /api/remove-password", h.removePassword)
	mux.HandleFunc("POST /api/unlock", h.unlock)
	mux.HandleFunc("GET /api/requires-auth/{type}/{id}", h.requiresAuth)

	mux.HandleFunc("POST /api/ai/generate", h.aiGenerate)
	mux.HandleFunc("POST /api/ai/preview", h.aiPreviewCreate)
	mux.HandleFunc("POST /api/ai/preview/{id}/select", h.aiPreviewSelect)
	mux.HandleFunc("POST /api/ai/preview/{id}/edit", h.aiPreviewEdit)
	mux.HandleFunc("POST /api/ai/preview/{id}/regenerate", h.aiPreviewRegenerate)
	mux.HandleFunc("POST /api/ai/preview/{id}/confirm", h.aiPreviewConfirm)
	mux.HandleFunc("GET /api/ai/config", h.aiConfig)

	mux.HandleFunc("GET /healthz", h.healthz)
}

type saveQuizRequest struct {
	Filename    string      `json:"filename"`
	DisplayName string      `json:"displayName"`
	FolderID    string      `json:"folderId"`
	Quiz        domain.Quiz `json:"quiz"`
	Token       string      `json:"token"`
}

func (h *APIHandler) saveQuiz(w http.ResponseWriter, r *http.Request) {
	var req saveQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.library.SaveQuiz(r.Context(), req.Filename, req.DisplayName, req.FolderID, req.Quiz, req.Token); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"filename": req.Filename})
}

func (h *APIHandler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.library.ListQuizzes(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if quizzes == nil {
		quizzes = []library.QuizMeta{}
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *APIHandler) getQuiz(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	meta, quiz, err := h.library.LoadQuiz(r.Context(), filename, unlockToken(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"meta": meta, "quiz": quiz})
}

func (h *APIHandler) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if err := h.library.DeleteQuiz(r.Context(), filename, unlockToken(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) quizTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.library.ListTree(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

type folderRequest struct {
	Name           string `json:"name"`
	ParentID       string `json:"parentId"`
	Token          string `json:"token"`
	DeleteContents bool   `json:"deleteContents"`
}

func (h *APIHandler) createFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	folder, err := h.library.CreateFolder(r.Context(), req.Name, req.ParentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

type folderUpdateRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
	Token    string  `json:"token"`
}

// updateFolder renames and/or moves. A present parentId moves the folder,
// "" meaning to the root.
func (h *APIHandler) updateFolder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req folderUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		if err := h.library.RenameFolder(r.Context(), id, req.Name, req.Token); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	if req.ParentID != nil {
		if err := h.library.MoveFolder(r.Context(), id, *req.ParentID, req.Token); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	folder, err := h.library.GetFolder(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (h *APIHandler) deleteFolder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleteContents := r.URL.Query().Get("deleteContents") == "true"
	if err := h.library.DeleteFolder(r.Context(), id, deleteContents, unlockToken(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type passwordRequest struct {
	ItemType string `json:"itemType"`
	ID       string `json:"id"`
	Current  string `json:"currentPassword"`
	Password string `json:"password"`
}

func (h *APIHandler) setPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.library.SetPassword(r.Context(), library.ItemType(req.ItemType), req.ID, req.Current, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) removePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.library.RemovePassword(r.Context(), library.ItemType(req.ItemType), req.ID, req.Current); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type unlockRequest struct {
	ItemType string `json:"itemType"`
	ID       string `json:"id"`
	Password string `json:"password"`
}

func (h *APIHandler) unlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.library.Unlock(r.Context(), library.ItemType(req.ItemType), req.ID, req.Password, clientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) requiresAuth(w http.ResponseWriter, r *http.Request) {
	required, err := h.library.RequiresAuth(r.Context(), library.ItemType(r.PathValue("type")), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"requiresAuth": required})
}

type aiGenerateRequest struct {
	Content    string   `json:"content"`
	Count      int      `json:"count"`
	Types      []string `json:"types"`
	Language   string   `json:"language"`
	BloomLevel string   `json:"bloomLevel"`
	Provider   string   `json:"provider"`
}

// buildGeneration resolves the provider and assembles the pipeline request.
// A false return means an error response was already written.
func (h *APIHandler) buildGeneration(w http.ResponseWriter, req aiGenerateRequest) (*ai.Pipeline, ai.Request, bool) {
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is empty")
		return nil, ai.Request{}, false
	}

	name := req.Provider
	if name == "" {
		name = h.defaultAI
	}
	provider, ok := h.providers[name]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return nil, ai.Request{}, false
	}

	kinds := make([]domain.QuestionKind, 0, len(req.Types))
	for _, t := range req.Types {
		kind, err := domain.CanonicalKind(t)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown question type "+t)
			return nil, ai.Request{}, false
		}
		kinds = append(kinds, kind)
	}

	return ai.NewPipeline(provider), ai.Request{
		Content:     req.Content,
		Count:       req.Count,
		Kinds:       kinds,
		LanguageISO: req.Language,
		Bloom:       ai.BloomLevel(req.BloomLevel),
		Analysis:    ai.AnalyzeContent(req.Content),
	}, true
}

func writeGenerationError(w http.ResponseWriter, err error) {
	var provErr *ai.ProviderError
	if errors.As(err, &provErr) && provErr.RateLimited() {
		writeError(w, http.StatusTooManyRequests, "provider rate limited")
		return
	}
	log.Printf("ai generate failed: %v", err)
	writeError(w, http.StatusBadGateway, err.Error())
}

func (h *APIHandler) aiGenerate(w http.ResponseWriter, r *http.Request) {
	var req aiGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pipeline, genReq, ok := h.buildGeneration(w, req)
	if !ok {
		return
	}
	questions, err := pipeline.Generate(r.Context(), genReq)
	if err != nil {
		writeGenerationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// previewEntry guards one preview session; the handler map lock only covers
// lookup so a slow regeneration cannot stall unrelated previews.
type previewEntry struct {
	mu      sync.Mutex
	preview *ai.Preview
	created time.Time
}

func (h *APIHandler) previewByID(id string) (*previewEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.previews[id]
	if !ok {
		return nil, false
	}
	if time.Since(e.created) > previewTTL {
		delete(h.previews, id)
		return nil, false
	}
	return e, true
}

func (h *APIHandler) aiPreviewCreate(w http.ResponseWriter, r *http.Request) {
	var req aiGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pipeline, genReq, ok := h.buildGeneration(w, req)
	if !ok {
		return
	}
	questions, err := pipeline.Generate(r.Context(), genReq)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	preview := ai.NewPreview(questions, pipeline, genReq)
	id := uuid.NewString()

	h.mu.Lock()
	for old, e := range h.previews {
		if time.Since(e.created) > previewTTL {
			delete(h.previews, old)
		}
	}
	h.previews[id] = &previewEntry{preview: preview, created: time.Now()}
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"previewId": id, "items": preview.Items()})
}

type previewSelectRequest struct {
	Index    *int `json:"index"` // nil selects or deselects everything
	Selected bool `json:"selected"`
}

func (h *APIHandler) aiPreviewSelect(w http.ResponseWriter, r *http.Request) {
	e, ok := h.previewByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "preview not found")
		return
	}
	var req previewSelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if req.Index == nil {
		e.preview.SelectAll(req.Selected)
	} else if err := e.preview.SetSelected(*req.Index, req.Selected); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": e.preview.Items()})
}

type previewEditRequest struct {
	Index    int             `json:"index"`
	Question domain.Question `json:"question"`
}

func (h *APIHandler) aiPreviewEdit(w http.ResponseWriter, r *http.Request) {
	e, ok := h.previewByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "preview not found")
		return
	}
	var req previewEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.preview.Edit(req.Index, req.Question); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": e.preview.Items()})
}

type previewRegenerateRequest struct {
	Index int `json:"index"`
}

func (h *APIHandler) aiPreviewRegenerate(w http.ResponseWriter, r *http.Request) {
	e, ok := h.previewByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "preview not found")
		return
	}
	var req previewRegenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if req.Index < 0 || req.Index >= len(e.preview.Items()) {
		writeError(w, http.StatusBadRequest, "preview index out of range")
		return
	}
	if err := e.preview.Regenerate(r.Context(), req.Index); err != nil {
		writeGenerationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": e.preview.Items()})
}

func (h *APIHandler) aiPreviewConfirm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, ok := h.previewByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "preview not found")
		return
	}

	e.mu.Lock()
	questions := e.preview.Confirm()
	e.mu.Unlock()

	h.mu.Lock()
	delete(h.previews, id)
	h.mu.Unlock()

	if questions == nil {
		questions = []domain.Question{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

type providerInfo struct {
	Name      string `json:"name"`
	BatchSize int    `json:"batchSize"`
	Available *bool  `json:"available,omitempty"`
}

// availabilityReporter is implemented by providers that can cheaply check
// whether their backend is reachable, like the local Ollama server.
type availabilityReporter interface {
	Available(ctx context.Context) bool
}

func (h *APIHandler) aiConfig(w http.ResponseWriter, r *http.Request) {
	infos := make([]providerInfo, 0, len(h.providers))
	for name, p := range h.providers {
		info := providerInfo{Name: name, BatchSize: p.BatchSize()}
		if reporter, ok := p.(availabilityReporter); ok {
			available := reporter.Available(r.Context())
			info.Available = &available
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": infos,
		"default":   h.defaultAI,
	})
}

func (h *APIHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"activeGames": h.game.ActiveGames(),
	})
}

// unlockToken reads the unlock token from the X-Unlock-Token header or a
// token query parameter.
func unlockToken(r *http.Request) string {
	if token := r.Header.Get("X-Unlock-Token"); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrFolderNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrFolderNotEmpty),
		errors.Is(err, domain.ErrFolderCycle):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
