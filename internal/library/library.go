// Package library manages the quiz filesystem: a folder tree with optional
// per-node password protection, quiz documents with display names independent
// of their on-disk filenames, and short-lived unlock tokens for protected
// items.
package library

import (
	"context"
	"time"

	"quizhub/internal/domain"
)

// ItemType distinguishes protectable items.
type ItemType string

const (
	ItemQuiz   ItemType = "quiz"
	ItemFolder ItemType = "folder"
)

// Folder is one node of the tree. An empty ParentID means root level.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parentId,omitempty"`
	Protected bool      `json:"protected"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// QuizMeta describes a stored quiz without its questions. DisplayName is what
// users see; Filename is the storage key.
type QuizMeta struct {
	Filename    string    `json:"filename"`
	DisplayName string    `json:"displayName"`
	FolderID    string    `json:"folderId,omitempty"`
	Protected   bool      `json:"protected"`
	Questions   int       `json:"questions"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TreeNode is one folder with its children and quizzes, for listTree.
type TreeNode struct {
	Folder   Folder      `json:"folder"`
	Children []*TreeNode `json:"children,omitempty"`
	Quizzes  []QuizMeta  `json:"quizzes,omitempty"`
}

// Tree is the whole listing: root-level folders and unfiled quizzes.
type Tree struct {
	Roots   []*TreeNode `json:"roots"`
	Quizzes []QuizMeta  `json:"quizzes"`
}

// Grant is what an unlock token authorizes.
type Grant struct {
	ItemID   string   `json:"itemId"`
	ItemType ItemType `json:"itemType"`
}

// UnlockResult is returned by a successful unlock.
type UnlockResult struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"` // milliseconds
}

// Store persists folders, quizzes, and password hashes.
type Store interface {
	CreateFolder(ctx context.Context, f Folder) error
	GetFolder(ctx context.Context, id string) (Folder, error)
	UpdateFolder(ctx context.Context, f Folder) error
	DeleteFolder(ctx context.Context, id string) error
	ListFolders(ctx context.Context) ([]Folder, error)

	SaveQuiz(ctx context.Context, meta QuizMeta, quiz domain.Quiz) error
	LoadQuiz(ctx context.Context, filename string) (QuizMeta, domain.Quiz, error)
	DeleteQuiz(ctx context.Context, filename string) error
	ListQuizzes(ctx context.Context) ([]QuizMeta, error)

	SetPasswordHash(ctx context.Context, itemType ItemType, id string, hash []byte) error
	// GetPasswordHash returns nil when the item carries no password.
	GetPasswordHash(ctx context.Context, itemType ItemType, id string) ([]byte, error)
}

// TokenStore holds unlock tokens with a TTL.
type TokenStore interface {
	Put(ctx context.Context, token string, grant Grant, ttl time.Duration) error
	Get(ctx context.Context, token string) (Grant, bool, error)
}

// RateLimiter throttles unlock attempts per source identity.
type RateLimiter interface {
	Allow(ctx context.Context, source string) (bool, error)
}
