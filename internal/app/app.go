// Package app wires the persistent store together with its optional
// integrations: the Redis catalog cache, the source-object store, and the
// change-event publisher. Collaborating services (ingestion, chat) consume
// the store through this facade.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"insidelm/pkg/cache"
	"insidelm/pkg/domain"
	"insidelm/pkg/events"
	"insidelm/pkg/storage"
	"insidelm/pkg/store"
)

// Config holds runtime configuration. Store takes precedence over
// DatabaseURL; Cache, Objects, and Events are optional.
type Config struct {
	DatabaseURL  string
	EmbeddingDim int
	Store        store.Store
	Cache        *cache.BookCache
	Objects      storage.ObjectStore
	Events       events.Publisher
	Logger       *slog.Logger
}

// App exposes the store operations plus cache/object/event side effects.
type App struct {
	store   store.Store
	cache   *cache.BookCache
	objects storage.ObjectStore
	events  events.Publisher
	log     *slog.Logger
}

// New constructs the app. With no injected Store it opens the Postgres
// store and runs migrations.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL, store.WithEmbeddingDim(cfg.EmbeddingDim))
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		store:   dataStore,
		cache:   cfg.Cache,
		objects: cfg.Objects,
		events:  publisher,
		log:     logger,
	}, nil
}

// Store exposes the underlying store.
func (a *App) Store() store.Store { return a.store }

// CreateBook registers a book, invalidates the catalog cache, and announces
// the new book.
func (a *App) CreateBook(ctx context.Context, book store.NewBook) (domain.Book, error) {
	created, err := a.store.CreateBook(book)
	if err != nil {
		return domain.Book{}, err
	}
	a.invalidateCatalog(ctx)
	a.publish(ctx, events.Event{Type: events.TypeBookCreated, BookID: created.ID})
	return created, nil
}

// GetBook retrieves a book.
func (a *App) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	return a.store.GetBook(id)
}

// GetBooksByIDs resolves a set of book ids, skipping dangling entries.
func (a *App) GetBooksByIDs(ctx context.Context, ids []string) ([]domain.Book, error) {
	return a.store.GetBooksByIDs(ids)
}

// ListBooks returns the catalog filtered by genre/author, read through the
// cache when one is configured.
func (a *App) ListBooks(ctx context.Context, filter store.BookFilter) ([]domain.Book, error) {
	key := cache.ListKey(string(filter.Genre), filter.Author)
	if a.cache != nil {
		if books, ok, err := a.cache.GetList(ctx, key); err != nil {
			a.log.Warn("book cache read failed", "error", err)
		} else if ok {
			return books, nil
		}
	}
	books, err := a.store.ListBooks(filter)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		if err := a.cache.SetList(ctx, key, books); err != nil {
			a.log.Warn("book cache write failed", "error", err)
		}
	}
	return books, nil
}

// DeleteBook removes a book and its chunks, drops the backing source object,
// invalidates the catalog cache, and announces the deletion. The source
// object delete is best-effort: the row cascade is the contract.
func (a *App) DeleteBook(ctx context.Context, id string) error {
	book, found, err := a.store.GetBook(id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: book %s", store.ErrNotFound, id)
	}
	if err := a.store.DeleteBook(id); err != nil {
		return err
	}
	if a.objects != nil {
		if err := a.objects.Delete(ctx, book.FilePath); err != nil {
			a.log.Warn("source object delete failed", "bookId", id, "key", book.FilePath, "error", err)
		}
	}
	a.invalidateCatalog(ctx)
	a.publish(ctx, events.Event{Type: events.TypeBookDeleted, BookID: id})
	return nil
}

// CreateChunks stores an ingested chunk batch and announces it.
func (a *App) CreateChunks(ctx context.Context, bookID string, chunks []store.NewChunk) ([]domain.DocumentChunk, error) {
	created, err := a.store.CreateChunks(bookID, chunks)
	if err != nil {
		return nil, err
	}
	a.publish(ctx, events.Event{Type: events.TypeChunksCreated, BookID: bookID, ChunkCount: len(created)})
	return created, nil
}

// ListChunks returns a book's chunks, optionally narrowed to a page range.
func (a *App) ListChunks(ctx context.Context, bookID string, pages *store.PageRange) ([]domain.DocumentChunk, error) {
	return a.store.ListChunks(bookID, pages)
}

// SearchChunks runs cosine nearest-neighbor retrieval for the chat
// collaborator.
func (a *App) SearchChunks(ctx context.Context, embedding []float32, bookIDs []string, limit int) ([]domain.DocumentChunk, error) {
	return a.store.SearchChunks(embedding, bookIDs, limit)
}

// CreateUser registers an externally authenticated principal.
func (a *App) CreateUser(ctx context.Context, email, fullName string) (domain.User, error) {
	return a.store.CreateUser(email, fullName)
}

// GetUser returns a user by id.
func (a *App) GetUser(ctx context.Context, id string) (domain.User, bool, error) {
	return a.store.GetUser(id)
}

// DeleteUser removes a user and everything the user owns.
func (a *App) DeleteUser(ctx context.Context, id string) error {
	return a.store.DeleteUser(id)
}

// CreateNotebook creates a notebook owned by userID.
func (a *App) CreateNotebook(ctx context.Context, userID, name string, selectedBooks []string, selectedGenres []domain.Genre) (domain.Notebook, error) {
	return a.store.CreateNotebook(userID, name, selectedBooks, selectedGenres)
}

// GetNotebook returns a notebook after the ownership check.
func (a *App) GetNotebook(ctx context.Context, id, requestingUserID string) (domain.Notebook, error) {
	return a.store.GetNotebook(id, requestingUserID)
}

// ListNotebooks returns a user's notebooks, most recently updated first.
func (a *App) ListNotebooks(ctx context.Context, userID string) ([]domain.Notebook, error) {
	return a.store.ListNotebooks(userID)
}

// UpdateNotebookMemory applies the chat collaborator's memory edits.
func (a *App) UpdateNotebookMemory(ctx context.Context, id, requestingUserID string, memorySummary *string, keyFacts []string) error {
	return a.store.UpdateNotebookMemory(id, requestingUserID, memorySummary, keyFacts)
}

// DeleteNotebook removes a notebook with its messages and notes.
func (a *App) DeleteNotebook(ctx context.Context, id, requestingUserID string) error {
	return a.store.DeleteNotebook(id, requestingUserID)
}

// AppendChatMessage records one conversational turn.
func (a *App) AppendChatMessage(ctx context.Context, notebookID, requestingUserID string, msg store.NewMessage) (domain.ChatMessage, error) {
	return a.store.AppendChatMessage(notebookID, requestingUserID, msg)
}

// ListChatMessages returns a notebook's chat history in insertion order.
func (a *App) ListChatMessages(ctx context.Context, notebookID, requestingUserID string, limit int) ([]domain.ChatMessage, error) {
	return a.store.ListChatMessages(notebookID, requestingUserID, limit)
}

// CreateNote adds a note to a notebook.
func (a *App) CreateNote(ctx context.Context, notebookID, requestingUserID string, note store.NewNote) (domain.Note, error) {
	return a.store.CreateNote(notebookID, requestingUserID, note)
}

// GetNote returns a note after the ownership check.
func (a *App) GetNote(ctx context.Context, id, requestingUserID string) (domain.Note, error) {
	return a.store.GetNote(id, requestingUserID)
}

// ListNotes returns a notebook's notes.
func (a *App) ListNotes(ctx context.Context, notebookID, requestingUserID string) ([]domain.Note, error) {
	return a.store.ListNotes(notebookID, requestingUserID)
}

// UpdateNote applies a partial note edit.
func (a *App) UpdateNote(ctx context.Context, id, requestingUserID string, update store.NoteUpdate) error {
	return a.store.UpdateNote(id, requestingUserID, update)
}

// DeleteNote removes a note.
func (a *App) DeleteNote(ctx context.Context, id, requestingUserID string) error {
	return a.store.DeleteNote(id, requestingUserID)
}

// WarmCache preloads the per-genre catalog listings. Useful after deploys
// and bulk ingests; a no-op without a cache.
func (a *App) WarmCache(ctx context.Context) error {
	if a.cache == nil {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, genre := range domain.Genres() {
		genre := genre
		g.Go(func() error {
			books, err := a.store.ListBooks(store.BookFilter{Genre: genre})
			if err != nil {
				return fmt.Errorf("list %s books: %w", genre, err)
			}
			return a.cache.SetList(ctx, cache.ListKey(string(genre), ""), books)
		})
	}
	return g.Wait()
}

// Close releases the event publisher.
func (a *App) Close() error {
	return a.events.Close()
}

func (a *App) invalidateCatalog(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx); err != nil {
		a.log.Warn("book cache invalidation failed", "error", err)
	}
}

func (a *App) publish(ctx context.Context, event events.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := a.events.Publish(ctx, event); err != nil {
		a.log.Warn("event publish failed", "type", event.Type, "error", err)
	}
}
