package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizhub/internal/domain"
	"quizhub/internal/library"
)

// LibraryStore persists the quiz library in Postgres. Quiz documents are
// stored as JSONB; metadata and password hashes live in regular columns.
type LibraryStore struct {
	pool *pgxpool.Pool
}

func NewLibraryStore(pool *pgxpool.Pool) *LibraryStore {
	return &LibraryStore{pool: pool}
}

func (s *LibraryStore) CreateFolder(ctx context.Context, f library.Folder) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO folders (id, name, parent_id, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)`,
		f.ID, f.Name, f.ParentID, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	return nil
}

func (s *LibraryStore) GetFolder(ctx context.Context, id string) (library.Folder, error) {
	var f library.Folder
	var parentID *string
	var protected bool
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, parent_id, password_hash IS NOT NULL, created_at, updated_at
		 FROM folders WHERE id=$1`, id).
		Scan(&f.ID, &f.Name, &parentID, &protected, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return library.Folder{}, domain.ErrFolderNotFound
	}
	if err != nil {
		return library.Folder{}, fmt.Errorf("get folder: %w", err)
	}
	if parentID != nil {
		f.ParentID = *parentID
	}
	f.Protected = protected
	return f, nil
}

func (s *LibraryStore) UpdateFolder(ctx context.Context, f library.Folder) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE folders SET name=$2, parent_id=NULLIF($3, ''), updated_at=$4 WHERE id=$1`,
		f.ID, f.Name, f.ParentID, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update folder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFolderNotFound
	}
	return nil
}

func (s *LibraryStore) DeleteFolder(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM folders WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFolderNotFound
	}
	return nil
}

func (s *LibraryStore) ListFolders(ctx context.Context) ([]library.Folder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, parent_id, password_hash IS NOT NULL, created_at, updated_at
		 FROM folders ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var out []library.Folder
	for rows.Next() {
		var f library.Folder
		var parentID *string
		if err := rows.Scan(&f.ID, &f.Name, &parentID, &f.Protected, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		if parentID != nil {
			f.ParentID = *parentID
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *LibraryStore) SaveQuiz(ctx context.Context, meta library.QuizMeta, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quizzes (filename, display_name, folder_id, data, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		 ON CONFLICT (filename) DO UPDATE
		 SET display_name=EXCLUDED.display_name,
		     folder_id=EXCLUDED.folder_id,
		     data=EXCLUDED.data,
		     updated_at=EXCLUDED.updated_at`,
		meta.Filename, meta.DisplayName, meta.FolderID, data, meta.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}

func (s *LibraryStore) LoadQuiz(ctx context.Context, filename string) (library.QuizMeta, domain.Quiz, error) {
	var meta library.QuizMeta
	var folderID *string
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT filename, display_name, folder_id, password_hash IS NOT NULL, data, updated_at
		 FROM quizzes WHERE filename=$1`, filename).
		Scan(&meta.Filename, &meta.DisplayName, &folderID, &meta.Protected, &raw, &meta.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return library.QuizMeta{}, domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return library.QuizMeta{}, domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if folderID != nil {
		meta.FolderID = *folderID
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return library.QuizMeta{}, domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	meta.Questions = len(quiz.Questions)
	return meta, quiz, nil
}

func (s *LibraryStore) DeleteQuiz(ctx context.Context, filename string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE filename=$1`, filename)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *LibraryStore) ListQuizzes(ctx context.Context) ([]library.QuizMeta, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT filename, display_name, folder_id, password_hash IS NOT NULL,
		        jsonb_array_length(data->'questions'), updated_at
		 FROM quizzes ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var out []library.QuizMeta
	for rows.Next() {
		var meta library.QuizMeta
		var folderID *string
		var questions *int
		if err := rows.Scan(&meta.Filename, &meta.DisplayName, &folderID, &meta.Protected, &questions, &meta.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		if folderID != nil {
			meta.FolderID = *folderID
		}
		if questions != nil {
			meta.Questions = *questions
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

func (s *LibraryStore) SetPasswordHash(ctx context.Context, itemType library.ItemType, id string, hash []byte) error {
	var tag pgconn.CommandTag
	var err error
	switch itemType {
	case library.ItemFolder:
		tag, err = s.pool.Exec(ctx, `UPDATE folders SET password_hash=$2 WHERE id=$1`, id, hash)
	case library.ItemQuiz:
		tag, err = s.pool.Exec(ctx, `UPDATE quizzes SET password_hash=$2 WHERE filename=$1`, id, hash)
	default:
		return fmt.Errorf("unknown item type %q", itemType)
	}
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if itemType == library.ItemFolder {
			return domain.ErrFolderNotFound
		}
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *LibraryStore) GetPasswordHash(ctx context.Context, itemType library.ItemType, id string) ([]byte, error) {
	var query string
	switch itemType {
	case library.ItemFolder:
		query = `SELECT password_hash FROM folders WHERE id=$1`
	case library.ItemQuiz:
		query = `SELECT password_hash FROM quizzes WHERE filename=$1`
	default:
		return nil, fmt.Errorf("unknown item type %q", itemType)
	}
	var hash []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		if itemType == library.ItemFolder {
			return nil, domain.ErrFolderNotFound
		}
		return nil, domain.ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get password hash: %w", err)
	}
	return hash, nil
}
