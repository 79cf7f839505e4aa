package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"insidelm/pkg/domain"
)

const migrateLockID int64 = 84410247

const (
	defaultEmbeddingDim      = 384
	canonicalEmbeddingDimEnv = "INSIDELM_EMBEDDING_DIM"
)

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the canonical embedding dimension used by storage.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres with pgvector.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

var _ Store = (*GormStore)(nil)

// NewGormStore opens the DB and runs auto-migrations under an advisory lock,
// so concurrent service instances cannot race the schema.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim, err := resolveEmbeddingDim(opts.EmbeddingDim)
	if err != nil {
		return nil, err
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(
			&BookModel{},
			&ChunkModel{},
			&UserModel{},
			&NotebookModel{},
			&MessageModel{},
			&NoteModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'document_chunks' AND column_name = 'embedding'
			) THEN
				ALTER TABLE document_chunks ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter chunk embedding type: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'document_chunks'
					AND constraint_name = 'document_chunks_book_id_fkey'
				) THEN
					ALTER TABLE document_chunks
					ADD CONSTRAINT document_chunks_book_id_fkey
					FOREIGN KEY (book_id) REFERENCES books(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'notebooks'
					AND constraint_name = 'notebooks_user_id_fkey'
				) THEN
					ALTER TABLE notebooks
					ADD CONSTRAINT notebooks_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chat_messages'
					AND constraint_name = 'chat_messages_notebook_id_fkey'
				) THEN
					ALTER TABLE chat_messages
					ADD CONSTRAINT chat_messages_notebook_id_fkey
					FOREIGN KEY (notebook_id) REFERENCES notebooks(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'notes'
					AND constraint_name = 'notes_notebook_id_fkey'
				) THEN
					ALTER TABLE notes
					ADD CONSTRAINT notes_notebook_id_fkey
					FOREIGN KEY (notebook_id) REFERENCES notebooks(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure cascade foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

func resolveEmbeddingDim(configValue int) (int, error) {
	if configValue > 0 {
		return configValue, nil
	}
	raw := strings.TrimSpace(os.Getenv(canonicalEmbeddingDimEnv))
	if raw == "" {
		return defaultEmbeddingDim, nil
	}
	dim, err := strconv.Atoi(raw)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", canonicalEmbeddingDimEnv, raw)
	}
	return dim, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// EmbeddingDim returns the canonical embedding dimension.
func (s *GormStore) EmbeddingDim() int { return s.embeddingDim }

// CreateBook registers a book for the ingestion pipeline.
func (s *GormStore) CreateBook(book NewBook) (domain.Book, error) {
	book, err := validateNewBook(book)
	if err != nil {
		return domain.Book{}, err
	}
	now := time.Now().UTC()
	model := BookModel{
		ID:         NewID(),
		Title:      book.Title,
		Author:     book.Author,
		Genre:      string(book.Genre),
		FilePath:   book.FilePath,
		TotalPages: book.TotalPages,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Book{}, err
	}
	return bookFromModel(model), nil
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// GetBooksByIDs returns the books that exist among ids. Missing ids are
// silently skipped: notebook selections may reference deleted books.
func (s *GormStore) GetBooksByIDs(ids []string) ([]domain.Book, error) {
	if len(ids) == 0 {
		return []domain.Book{}, nil
	}
	var models []BookModel
	if err := s.db.Where("id IN ?", ids).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, model := range models {
		books = append(books, bookFromModel(model))
	}
	return books, nil
}

// ListBooks returns books matching the filter, ordered by created_at.
func (s *GormStore) ListBooks(filter BookFilter) ([]domain.Book, error) {
	if filter.Genre != "" && !filter.Genre.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGenre, filter.Genre)
	}
	tx := s.db.Order("created_at ASC")
	if filter.Genre != "" {
		tx = tx.Where("genre = ?", string(filter.Genre))
	}
	if filter.Author != "" {
		tx = tx.Where("author = ?", filter.Author)
	}
	var models []BookModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	books := make([]domain.Book, 0, len(models))
	for _, model := range models {
		books = append(books, bookFromModel(model))
	}
	return books, nil
}

// DeleteBook removes a book; its chunks go with it via the cascade foreign
// key, in the same transaction as the parent delete.
func (s *GormStore) DeleteBook(id string) error {
	res := s.db.Delete(&BookModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: book %s", ErrNotFound, id)
	}
	return nil
}

// CreateChunks bulk-inserts the chunks of a book atomically.
func (s *GormStore) CreateChunks(bookID string, chunks []NewChunk) ([]domain.DocumentChunk, error) {
	for i, chunk := range chunks {
		if err := validateNewChunk(chunk, s.embeddingDim); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	now := time.Now().UTC()
	models := make([]ChunkModel, 0, len(chunks))
	for _, chunk := range chunks {
		model, err := chunkToModel(chunk, bookID, now)
		if err != nil {
			return nil, err
		}
		models = append(models, model)
	}
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&BookModel{}).Where("id = ?", bookID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: book %s", ErrNotFound, bookID)
		}
		if len(models) == 0 {
			return nil
		}
		return tx.CreateInBatches(&models, 200).Error
	}); err != nil {
		return nil, err
	}
	result := make([]domain.DocumentChunk, 0, len(models))
	for _, model := range models {
		result = append(result, chunkFromModel(model))
	}
	return result, nil
}

// ListChunks returns a book's chunks in chunk_index order, optionally
// restricted to chunks overlapping a page range.
func (s *GormStore) ListChunks(bookID string, pages *PageRange) ([]domain.DocumentChunk, error) {
	tx := s.db.Where("book_id = ?", bookID).Order("chunk_index ASC")
	if pages != nil {
		tx = tx.Where("page_end >= ? AND page_start <= ?", pages.First, pages.Last)
	}
	var models []ChunkModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	chunks := make([]domain.DocumentChunk, 0, len(models))
	for _, model := range models {
		chunks = append(chunks, chunkFromModel(model))
	}
	return chunks, nil
}

// SearchChunks finds the nearest chunks by cosine distance using pgvector.
func (s *GormStore) SearchChunks(embedding []float32, bookIDs []string, limit int) ([]domain.DocumentChunk, error) {
	if limit <= 0 {
		return []domain.DocumentChunk{}, nil
	}
	if err := validateEmbedding(embedding, s.embeddingDim); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)
	tx := s.db.Model(&ChunkModel{}).Where("embedding IS NOT NULL")
	if len(bookIDs) > 0 {
		tx = tx.Where("book_id IN ?", bookIDs)
	}
	var models []ChunkModel
	if err := tx.
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	chunks := make([]domain.DocumentChunk, 0, len(models))
	for _, model := range models {
		chunks = append(chunks, chunkFromModel(model))
	}
	return chunks, nil
}

// CreateUser registers an externally authenticated principal.
func (s *GormStore) CreateUser(email, fullName string) (domain.User, error) {
	email, err := validateEmail(email)
	if err != nil {
		return domain.User{}, err
	}
	now := time.Now().UTC()
	model := UserModel{
		ID:        NewID(),
		Email:     email,
		FullName:  strings.TrimSpace(fullName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("%w: email %s", ErrConflict, email)
		}
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

// GetUser returns a user by ID.
func (s *GormStore) GetUser(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", strings.TrimSpace(strings.ToLower(email))).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// DeleteUser removes a user; owned notebooks, their messages, and their notes
// go with it via the cascade chain.
func (s *GormStore) DeleteUser(id string) error {
	res := s.db.Delete(&UserModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return nil
}

// CreateNotebook creates a notebook owned by userID. Selected books are soft
// references and are not checked against the books table.
func (s *GormStore) CreateNotebook(userID, name string, selectedBooks []string, selectedGenres []domain.Genre) (domain.Notebook, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Notebook{}, fmt.Errorf("%w: notebook name is required", ErrValidation)
	}
	if err := validateGenres(selectedGenres); err != nil {
		return domain.Notebook{}, err
	}
	if selectedBooks == nil {
		selectedBooks = []string{}
	}
	if selectedGenres == nil {
		selectedGenres = []domain.Genre{}
	}
	now := time.Now().UTC()
	model := NotebookModel{
		ID:            NewID(),
		UserID:        userID,
		Name:          name,
		MemorySummary: "",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	var err error
	if model.SelectedBooks, err = toJSON(selectedBooks); err != nil {
		return domain.Notebook{}, err
	}
	if model.SelectedGenres, err = toJSON(selectedGenres); err != nil {
		return domain.Notebook{}, err
	}
	if model.KeyFacts, err = toJSON([]string{}); err != nil {
		return domain.Notebook{}, err
	}
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&UserModel{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return tx.Create(&model).Error
	}); err != nil {
		return domain.Notebook{}, err
	}
	return notebookFromModel(model), nil
}

// GetNotebook returns a notebook after the ownership check. Dangling
// selected-book ids are filtered from the returned value, not from the row.
func (s *GormStore) GetNotebook(id, requestingUserID string) (domain.Notebook, error) {
	model, err := s.ownedNotebook(s.db, id, requestingUserID)
	if err != nil {
		return domain.Notebook{}, err
	}
	notebook := notebookFromModel(model)
	notebook.SelectedBooks, err = s.pruneDangling(notebook.SelectedBooks)
	if err != nil {
		return domain.Notebook{}, err
	}
	return notebook, nil
}

// ListNotebooks returns a user's notebooks, most recently updated first.
func (s *GormStore) ListNotebooks(userID string) ([]domain.Notebook, error) {
	var models []NotebookModel
	if err := s.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	notebooks := make([]domain.Notebook, 0, len(models))
	for _, model := range models {
		notebook := notebookFromModel(model)
		pruned, err := s.pruneDangling(notebook.SelectedBooks)
		if err != nil {
			return nil, err
		}
		notebook.SelectedBooks = pruned
		notebooks = append(notebooks, notebook)
	}
	return notebooks, nil
}

// UpdateNotebookMemory partially updates the running conversation memory.
// Last writer wins; there is deliberately no version check, so parallel chat
// turns against one notebook can overwrite each other's edits.
func (s *GormStore) UpdateNotebookMemory(id, requestingUserID string, memorySummary *string, keyFacts []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ownedNotebook(tx, id, requestingUserID); err != nil {
			return err
		}
		updates := map[string]any{
			"updated_at": time.Now().UTC(),
		}
		if memorySummary != nil {
			updates["memory_summary"] = *memorySummary
		}
		if keyFacts != nil {
			facts, err := toJSON(keyFacts)
			if err != nil {
				return err
			}
			updates["key_facts"] = facts
		}
		return tx.Model(&NotebookModel{}).Where("id = ?", id).Updates(updates).Error
	})
}

// DeleteNotebook removes a notebook after the ownership check; messages and
// notes cascade with it.
func (s *GormStore) DeleteNotebook(id, requestingUserID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ownedNotebook(tx, id, requestingUserID); err != nil {
			return err
		}
		return tx.Delete(&NotebookModel{}, "id = ?", id).Error
	})
}

// AppendChatMessage records one conversational turn. Messages are
// append-only; no update or delete path exists.
func (s *GormStore) AppendChatMessage(notebookID, requestingUserID string, msg NewMessage) (domain.ChatMessage, error) {
	if msg.UserMessage == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: user message is required", ErrValidation)
	}
	if msg.AssistantResponse == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: assistant response is required", ErrValidation)
	}
	if msg.Citations == nil {
		msg.Citations = []domain.Citation{}
	}
	citations, err := toJSON(msg.Citations)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	model := MessageModel{
		ID:                NewID(),
		NotebookID:        notebookID,
		UserMessage:       msg.UserMessage,
		AssistantResponse: msg.AssistantResponse,
		Citations:         citations,
		Timestamp:         time.Now().UTC(),
	}
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ownedNotebook(tx, notebookID, requestingUserID); err != nil {
			return err
		}
		return tx.Create(&model).Error
	}); err != nil {
		return domain.ChatMessage{}, err
	}
	return messageFromModel(model), nil
}

// ListChatMessages returns a notebook's chat history in insertion order.
func (s *GormStore) ListChatMessages(notebookID, requestingUserID string, limit int) ([]domain.ChatMessage, error) {
	if _, err := s.ownedNotebook(s.db, notebookID, requestingUserID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultChatHistoryLimit
	}
	var models []MessageModel
	if err := s.db.Where("notebook_id = ?", notebookID).
		Order("timestamp ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(models))
	for _, model := range models {
		msgs = append(msgs, messageFromModel(model))
	}
	return msgs, nil
}

// CreateNote adds a note to a notebook after the ownership check.
func (s *GormStore) CreateNote(notebookID, requestingUserID string, note NewNote) (domain.Note, error) {
	note, err := validateNewNote(note)
	if err != nil {
		return domain.Note{}, err
	}
	tags, err := toJSON(note.Tags)
	if err != nil {
		return domain.Note{}, err
	}
	now := time.Now().UTC()
	model := NoteModel{
		ID:         NewID(),
		NotebookID: notebookID,
		Title:      note.Title,
		Content:    note.Content,
		Tags:       tags,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ownedNotebook(tx, notebookID, requestingUserID); err != nil {
			return err
		}
		return tx.Create(&model).Error
	}); err != nil {
		return domain.Note{}, err
	}
	return noteFromModel(model), nil
}

// GetNote returns a note after checking ownership through its notebook.
func (s *GormStore) GetNote(id, requestingUserID string) (domain.Note, error) {
	model, err := s.ownedNote(s.db, id, requestingUserID)
	if err != nil {
		return domain.Note{}, err
	}
	return noteFromModel(model), nil
}

// ListNotes returns a notebook's notes in creation order.
func (s *GormStore) ListNotes(notebookID, requestingUserID string) ([]domain.Note, error) {
	if _, err := s.ownedNotebook(s.db, notebookID, requestingUserID); err != nil {
		return nil, err
	}
	var models []NoteModel
	if err := s.db.Where("notebook_id = ?", notebookID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	notes := make([]domain.Note, 0, len(models))
	for _, model := range models {
		notes = append(notes, noteFromModel(model))
	}
	return notes, nil
}

// UpdateNote partially updates a note; updated_at advances in the same
// transaction as the edit.
func (s *GormStore) UpdateNote(id, requestingUserID string, update NoteUpdate) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ownedNote(tx, id, requestingUserID); err != nil {
			return err
		}
		updates := map[string]any{
			"updated_at": time.Now().UTC(),
		}
		if update.Title != nil {
			title := strings.TrimSpace(*update.Title)
			if title == "" {
				return fmt.Errorf("%w: note title is required", ErrValidation)
			}
			updates["title"] = title
		}
		if update.Content != nil {
			if *update.Content == "" {
				return fmt.Errorf("%w: note content is required", ErrValidation)
			}
			updates["content"] = *update.Content
		}
		if update.Tags != nil {
			tags, err := toJSON(update.Tags)
			if err != nil {
				return err
			}
			updates["tags"] = tags
		}
		return tx.Model(&NoteModel{}).Where("id = ?", id).Updates(updates).Error
	})
}

// DeleteNote removes a note after the ownership check.
func (s *GormStore) DeleteNote(id, requestingUserID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ownedNote(tx, id, requestingUserID); err != nil {
			return err
		}
		return tx.Delete(&NoteModel{}, "id = ?", id).Error
	})
}

// ownedNotebook loads a notebook and enforces the ownership predicate. A
// missing notebook is ErrNotFound; an existing notebook owned by someone else
// is ErrForbidden.
func (s *GormStore) ownedNotebook(tx *gorm.DB, id, requestingUserID string) (NotebookModel, error) {
	var model NotebookModel
	if err := tx.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model, fmt.Errorf("%w: notebook %s", ErrNotFound, id)
		}
		return model, err
	}
	if model.UserID != requestingUserID {
		return model, fmt.Errorf("%w: notebook %s", ErrForbidden, id)
	}
	return model, nil
}

// ownedNote loads a note and enforces ownership through its notebook.
func (s *GormStore) ownedNote(tx *gorm.DB, id, requestingUserID string) (NoteModel, error) {
	var model NoteModel
	if err := tx.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model, fmt.Errorf("%w: note %s", ErrNotFound, id)
		}
		return model, err
	}
	if _, err := s.ownedNotebook(tx, model.NotebookID, requestingUserID); err != nil {
		return model, err
	}
	return model, nil
}

// pruneDangling drops selected-book ids that no longer reference a book,
// preserving the selection order.
func (s *GormStore) pruneDangling(selectedBooks []string) ([]string, error) {
	if len(selectedBooks) == 0 {
		return []string{}, nil
	}
	var existing []string
	if err := s.db.Model(&BookModel{}).Where("id IN ?", selectedBooks).Pluck("id", &existing).Error; err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}
	pruned := make([]string, 0, len(selectedBooks))
	for _, id := range selectedBooks {
		if known[id] {
			pruned = append(pruned, id)
		}
	}
	return pruned, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func toJSON(v any) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return datatypes.JSON(data), nil
}

func stringsFromJSON(data datatypes.JSON) []string {
	if len(data) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func genresFromJSON(data datatypes.JSON) []domain.Genre {
	if len(data) == 0 {
		return []domain.Genre{}
	}
	var out []domain.Genre
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return []domain.Genre{}
	}
	return out
}

func citationsFromJSON(data datatypes.JSON) []domain.Citation {
	if len(data) == 0 {
		return []domain.Citation{}
	}
	var out []domain.Citation
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return []domain.Citation{}
	}
	return out
}

func metadataFromJSON(data datatypes.JSON) map[string]any {
	if len(data) == 0 {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:         m.ID,
		Title:      m.Title,
		Author:     m.Author,
		Genre:      domain.Genre(m.Genre),
		FilePath:   m.FilePath,
		TotalPages: m.TotalPages,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func chunkToModel(chunk NewChunk, bookID string, now time.Time) (ChunkModel, error) {
	if chunk.Metadata == nil {
		chunk.Metadata = map[string]any{}
	}
	metadata, err := toJSON(chunk.Metadata)
	if err != nil {
		return ChunkModel{}, err
	}
	vec := pgvector.NewVector(chunk.Embedding)
	return ChunkModel{
		ID:         NewID(),
		BookID:     bookID,
		Content:    chunk.Content,
		PageStart:  chunk.PageStart,
		PageEnd:    chunk.PageEnd,
		ChunkIndex: chunk.ChunkIndex,
		Embedding:  &vec,
		Metadata:   metadata,
		CreatedAt:  now,
	}, nil
}

func chunkFromModel(m ChunkModel) domain.DocumentChunk {
	chunk := domain.DocumentChunk{
		ID:         m.ID,
		BookID:     m.BookID,
		Content:    m.Content,
		PageStart:  m.PageStart,
		PageEnd:    m.PageEnd,
		ChunkIndex: m.ChunkIndex,
		Metadata:   metadataFromJSON(m.Metadata),
		CreatedAt:  m.CreatedAt,
	}
	if m.Embedding != nil {
		chunk.Embedding = m.Embedding.Slice()
	}
	return chunk
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		Email:     m.Email,
		FullName:  m.FullName,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func notebookFromModel(m NotebookModel) domain.Notebook {
	return domain.Notebook{
		ID:             m.ID,
		UserID:         m.UserID,
		Name:           m.Name,
		SelectedBooks:  stringsFromJSON(m.SelectedBooks),
		SelectedGenres: genresFromJSON(m.SelectedGenres),
		MemorySummary:  m.MemorySummary,
		KeyFacts:       stringsFromJSON(m.KeyFacts),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func messageFromModel(m MessageModel) domain.ChatMessage {
	return domain.ChatMessage{
		ID:                m.ID,
		NotebookID:        m.NotebookID,
		UserMessage:       m.UserMessage,
		AssistantResponse: m.AssistantResponse,
		Citations:         citationsFromJSON(m.Citations),
		Timestamp:         m.Timestamp,
	}
}

func noteFromModel(m NoteModel) domain.Note {
	return domain.Note{
		ID:         m.ID,
		NotebookID: m.NotebookID,
		Title:      m.Title,
		Content:    m.Content,
		Tags:       stringsFromJSON(m.Tags),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
