package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"quizhub/internal/domain"
)

// DefaultTokenTTL is how long an unlock token stays valid.
const DefaultTokenTTL = 10 * time.Minute

// Service implements the quiz filesystem operations on top of pluggable
// stores.
type Service struct {
	store    Store
	tokens   TokenStore
	limiter  RateLimiter
	tokenTTL time.Duration
	now      func() time.Time
}

func NewService(store Store, tokens TokenStore, limiter RateLimiter, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{
		store:    store,
		tokens:   tokens,
		limiter:  limiter,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// CreateFolder adds a folder under parentID ("" for root).
func (s *Service) CreateFolder(ctx context.Context, name, parentID string) (Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Folder{}, fmt.Errorf("folder name is empty")
	}
	if parentID != "" {
		if _, err := s.store.GetFolder(ctx, parentID); err != nil {
			return Folder{}, err
		}
	}
	now := s.now()
	f := Folder{
		ID:        uuid.NewString(),
		Name:      name,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateFolder(ctx, f); err != nil {
		return Folder{}, err
	}
	return f, nil
}

// RenameFolder changes a folder's display name.
func (s *Service) RenameFolder(ctx context.Context, id, name, token string) error {
	if err := s.authorize(ctx, ItemFolder, id, token); err != nil {
		return err
	}
	f, err := s.store.GetFolder(ctx, id)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("folder name is empty")
	}
	f.Name = name
	f.UpdatedAt = s.now()
	return s.store.UpdateFolder(ctx, f)
}

// MoveFolder re-parents a folder. Moving into itself or any descendant is
// refused.
func (s *Service) MoveFolder(ctx context.Context, id, newParentID, token string) error {
	if err := s.authorize(ctx, ItemFolder, id, token); err != nil {
		return err
	}
	f, err := s.store.GetFolder(ctx, id)
	if err != nil {
		return err
	}
	if newParentID != "" {
		if _, err := s.store.GetFolder(ctx, newParentID); err != nil {
			return err
		}
		cyclic, err := s.isDescendant(ctx, newParentID, id)
		if err != nil {
			return err
		}
		if cyclic || newParentID == id {
			return domain.ErrFolderCycle
		}
	}
	f.ParentID = newParentID
	f.UpdatedAt = s.now()
	return s.store.UpdateFolder(ctx, f)
}

// isDescendant reports whether candidate sits in ancestor's subtree.
func (s *Service) isDescendant(ctx context.Context, candidate, ancestor string) (bool, error) {
	folders, err := s.store.ListFolders(ctx)
	if err != nil {
		return false, err
	}
	parents := make(map[string]string, len(folders))
	for _, f := range folders {
		parents[f.ID] = f.ParentID
	}
	for cur := candidate; cur != ""; cur = parents[cur] {
		if cur == ancestor {
			return true, nil
		}
	}
	return false, nil
}

// DeleteFolder removes a folder. Non-empty folders are refused unless
// deleteContents is set, in which case the whole subtree and its quizzes go.
func (s *Service) DeleteFolder(ctx context.Context, id string, deleteContents bool, token string) error {
	if err := s.authorize(ctx, ItemFolder, id, token); err != nil {
		return err
	}
	if _, err := s.store.GetFolder(ctx, id); err != nil {
		return err
	}

	folders, err := s.store.ListFolders(ctx)
	if err != nil {
		return err
	}
	quizzes, err := s.store.ListQuizzes(ctx)
	if err != nil {
		return err
	}

	children := childFolders(folders, id)
	contained := quizzesIn(quizzes, id)
	if !deleteContents && (len(children) > 0 || len(contained) > 0) {
		return domain.ErrFolderNotEmpty
	}
	return s.deleteTree(ctx, folders, quizzes, id)
}

// deleteTree removes a folder subtree. The caller already authorized the
// top-level folder; descendants fall with it.
func (s *Service) deleteTree(ctx context.Context, folders []Folder, quizzes []QuizMeta, id string) error {
	for _, child := range childFolders(folders, id) {
		if err := s.deleteTree(ctx, folders, quizzes, child.ID); err != nil {
			return err
		}
	}
	for _, q := range quizzesIn(quizzes, id) {
		if err := s.store.DeleteQuiz(ctx, q.Filename); err != nil {
			return err
		}
	}
	return s.store.DeleteFolder(ctx, id)
}

func childFolders(folders []Folder, parentID string) []Folder {
	var out []Folder
	for _, f := range folders {
		if f.ParentID == parentID {
			out = append(out, f)
		}
	}
	return out
}

func quizzesIn(quizzes []QuizMeta, folderID string) []QuizMeta {
	var out []QuizMeta
	for _, q := range quizzes {
		if q.FolderID == folderID {
			out = append(out, q)
		}
	}
	return out
}

// GetFolder fetches one folder's metadata.
func (s *Service) GetFolder(ctx context.Context, id string) (Folder, error) {
	return s.store.GetFolder(ctx, id)
}

// ListQuizzes returns every quiz's metadata, flat.
func (s *Service) ListQuizzes(ctx context.Context) ([]QuizMeta, error) {
	return s.store.ListQuizzes(ctx)
}

// ListTree assembles the folder hierarchy with quizzes attached.
func (s *Service) ListTree(ctx context.Context) (Tree, error) {
	folders, err := s.store.ListFolders(ctx)
	if err != nil {
		return Tree{}, err
	}
	quizzes, err := s.store.ListQuizzes(ctx)
	if err != nil {
		return Tree{}, err
	}

	nodes := make(map[string]*TreeNode, len(folders))
	for _, f := range folders {
		nodes[f.ID] = &TreeNode{Folder: f}
	}
	var tree Tree
	for _, f := range folders {
		node := nodes[f.ID]
		if parent, ok := nodes[f.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			tree.Roots = append(tree.Roots, node)
		}
	}
	for _, q := range quizzes {
		if node, ok := nodes[q.FolderID]; ok {
			node.Quizzes = append(node.Quizzes, q)
		} else {
			tree.Quizzes = append(tree.Quizzes, q)
		}
	}
	return tree, nil
}

// SaveQuiz validates and stores a quiz document.
func (s *Service) SaveQuiz(ctx context.Context, filename, displayName, folderID string, quiz domain.Quiz, token string) error {
	if filename == "" {
		return fmt.Errorf("filename is empty")
	}
	for i, q := range quiz.Questions {
		if errs := domain.Validate(q); len(errs) > 0 {
			return fmt.Errorf("question %d: %s", i+1, errs[0])
		}
	}
	if _, _, err := s.store.LoadQuiz(ctx, filename); err == nil {
		// Overwriting an existing quiz counts as destructive.
		if err := s.authorize(ctx, ItemQuiz, filename, token); err != nil {
			return err
		}
	}
	if displayName == "" {
		displayName = quiz.Title
	}
	meta := QuizMeta{
		Filename:    filename,
		DisplayName: displayName,
		FolderID:    folderID,
		Questions:   len(quiz.Questions),
		UpdatedAt:   s.now(),
	}
	return s.store.SaveQuiz(ctx, meta, quiz)
}

// LoadQuiz fetches a quiz document, requiring an unlock token for protected
// quizzes.
func (s *Service) LoadQuiz(ctx context.Context, filename, token string) (QuizMeta, domain.Quiz, error) {
	if err := s.authorize(ctx, ItemQuiz, filename, token); err != nil {
		return QuizMeta{}, domain.Quiz{}, err
	}
	return s.store.LoadQuiz(ctx, filename)
}

// DeleteQuiz removes a quiz document.
func (s *Service) DeleteQuiz(ctx context.Context, filename, token string) error {
	if err := s.authorize(ctx, ItemQuiz, filename, token); err != nil {
		return err
	}
	return s.store.DeleteQuiz(ctx, filename)
}

// SetPassword protects an item. Changing an existing password requires the
// current one.
func (s *Service) SetPassword(ctx context.Context, itemType ItemType, id, current, password string) error {
	if password == "" {
		return fmt.Errorf("password is empty")
	}
	existing, err := s.store.GetPasswordHash(ctx, itemType, id)
	if err != nil {
		return err
	}
	if existing != nil {
		if bcrypt.CompareHashAndPassword(existing, []byte(current)) != nil {
			return domain.ErrUnauthorized
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.SetPasswordHash(ctx, itemType, id, hash)
}

// RemovePassword clears protection; the current password is required.
func (s *Service) RemovePassword(ctx context.Context, itemType ItemType, id, current string) error {
	existing, err := s.store.GetPasswordHash(ctx, itemType, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if bcrypt.CompareHashAndPassword(existing, []byte(current)) != nil {
		return domain.ErrUnauthorized
	}
	return s.store.SetPasswordHash(ctx, itemType, id, nil)
}

// RequiresAuth reports whether an item is password protected.
func (s *Service) RequiresAuth(ctx context.Context, itemType ItemType, id string) (bool, error) {
	hash, err := s.store.GetPasswordHash(ctx, itemType, id)
	if err != nil {
		return false, err
	}
	return hash != nil, nil
}

// Unlock checks a password and mints a short-lived bearer token bound to the
// item. Attempts are rate limited per source identity.
func (s *Service) Unlock(ctx context.Context, itemType ItemType, id, password, source string) (UnlockResult, error) {
	allowed, err := s.limiter.Allow(ctx, source)
	if err != nil {
		return UnlockResult{}, err
	}
	if !allowed {
		return UnlockResult{}, domain.ErrRateLimited
	}

	hash, err := s.store.GetPasswordHash(ctx, itemType, id)
	if err != nil {
		return UnlockResult{}, err
	}
	if hash == nil || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return UnlockResult{}, domain.ErrUnauthorized
	}

	token := uuid.NewString()
	grant := Grant{ItemID: id, ItemType: itemType}
	if err := s.tokens.Put(ctx, token, grant, s.tokenTTL); err != nil {
		return UnlockResult{}, err
	}
	return UnlockResult{Token: token, ExpiresIn: s.tokenTTL.Milliseconds()}, nil
}

// authorize passes unprotected items through and demands a matching, unexpired
// token for protected ones.
func (s *Service) authorize(ctx context.Context, itemType ItemType, id, token string) error {
	hash, err := s.store.GetPasswordHash(ctx, itemType, id)
	if err != nil {
		return err
	}
	if hash == nil {
		return nil
	}
	if token == "" {
		return domain.ErrUnauthorized
	}
	grant, ok, err := s.tokens.Get(ctx, token)
	if err != nil {
		return err
	}
	if !ok || grant.ItemID != id || grant.ItemType != itemType {
		return domain.ErrUnauthorized
	}
	return nil
}
