package store

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"insidelm/pkg/domain"
)

// MemoryStore keeps everything in-process. It honors the same contract as
// GormStore (validation, ownership checks, cascade deletes, server-side
// timestamps) with brute-force cosine distance instead of a vector index.
type MemoryStore struct {
	mu           sync.RWMutex
	embeddingDim int

	books     map[string]domain.Book
	bookOrder []string
	chunks    map[string][]domain.DocumentChunk // keyed by book ID

	users  map[string]domain.User
	emails map[string]string // email -> user ID

	notebooks map[string]domain.Notebook
	messages  map[string][]domain.ChatMessage // keyed by notebook ID
	notes     map[string]domain.Note
	noteOrder map[string][]string // notebook ID -> note IDs in creation order
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore initializes an empty in-memory store. A non-positive
// embeddingDim falls back to the canonical default.
func NewMemoryStore(embeddingDim int) *MemoryStore {
	if embeddingDim <= 0 {
		embeddingDim = defaultEmbeddingDim
	}
	return &MemoryStore{
		embeddingDim: embeddingDim,
		books:        make(map[string]domain.Book),
		chunks:       make(map[string][]domain.DocumentChunk),
		users:        make(map[string]domain.User),
		emails:       make(map[string]string),
		notebooks:    make(map[string]domain.Notebook),
		messages:     make(map[string][]domain.ChatMessage),
		notes:        make(map[string]domain.Note),
		noteOrder:    make(map[string][]string),
	}
}

// EmbeddingDim returns the canonical embedding dimension.
func (m *MemoryStore) EmbeddingDim() int { return m.embeddingDim }

// CreateBook registers a book.
func (m *MemoryStore) CreateBook(book NewBook) (domain.Book, error) {
	book, err := validateNewBook(book)
	if err != nil {
		return domain.Book{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	created := domain.Book{
		ID:         NewID(),
		Title:      book.Title,
		Author:     book.Author,
		Genre:      book.Genre,
		FilePath:   book.FilePath,
		TotalPages: book.TotalPages,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.books[created.ID] = created
	m.bookOrder = append(m.bookOrder, created.ID)
	return created, nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	book, ok := m.books[id]
	return book, ok, nil
}

// GetBooksByIDs returns the books that exist among ids, skipping dangling ids.
func (m *MemoryStore) GetBooksByIDs(ids []string) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	books := make([]domain.Book, 0, len(ids))
	for _, id := range m.bookOrder {
		for _, want := range ids {
			if id == want {
				books = append(books, m.books[id])
				break
			}
		}
	}
	return books, nil
}

// ListBooks returns books matching the filter in insertion order.
func (m *MemoryStore) ListBooks(filter BookFilter) ([]domain.Book, error) {
	if filter.Genre != "" && !filter.Genre.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGenre, filter.Genre)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	books := make([]domain.Book, 0, len(m.bookOrder))
	for _, id := range m.bookOrder {
		book := m.books[id]
		if filter.Genre != "" && book.Genre != filter.Genre {
			continue
		}
		if filter.Author != "" && book.Author != filter.Author {
			continue
		}
		books = append(books, book)
	}
	return books, nil
}

// DeleteBook removes a book and every chunk under it.
func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return fmt.Errorf("%w: book %s", ErrNotFound, id)
	}
	delete(m.books, id)
	delete(m.chunks, id)
	filtered := m.bookOrder[:0]
	for _, existing := range m.bookOrder {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	m.bookOrder = filtered
	return nil
}

// CreateChunks bulk-inserts chunks for a book; all or nothing.
func (m *MemoryStore) CreateChunks(bookID string, chunks []NewChunk) ([]domain.DocumentChunk, error) {
	for i, chunk := range chunks {
		if err := validateNewChunk(chunk, m.embeddingDim); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[bookID]; !ok {
		return nil, fmt.Errorf("%w: book %s", ErrNotFound, bookID)
	}
	now := time.Now().UTC()
	created := make([]domain.DocumentChunk, 0, len(chunks))
	for _, chunk := range chunks {
		metadata := chunk.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		embedding := make([]float32, len(chunk.Embedding))
		copy(embedding, chunk.Embedding)
		created = append(created, domain.DocumentChunk{
			ID:         NewID(),
			BookID:     bookID,
			Content:    chunk.Content,
			PageStart:  chunk.PageStart,
			PageEnd:    chunk.PageEnd,
			ChunkIndex: chunk.ChunkIndex,
			Embedding:  embedding,
			Metadata:   metadata,
			CreatedAt:  now,
		})
	}
	m.chunks[bookID] = append(m.chunks[bookID], created...)
	return created, nil
}

// ListChunks returns a book's chunks in chunk index order.
func (m *MemoryStore) ListChunks(bookID string, pages *PageRange) ([]domain.DocumentChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks := make([]domain.DocumentChunk, 0, len(m.chunks[bookID]))
	for _, chunk := range m.chunks[bookID] {
		if pages != nil && (chunk.PageEnd < pages.First || chunk.PageStart > pages.Last) {
			continue
		}
		chunks = append(chunks, chunk)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks, nil
}

// SearchChunks ranks chunks by cosine similarity to embedding, brute force
// over every stored chunk.
func (m *MemoryStore) SearchChunks(embedding []float32, bookIDs []string, limit int) ([]domain.DocumentChunk, error) {
	if limit <= 0 {
		return []domain.DocumentChunk{}, nil
	}
	if err := validateEmbedding(embedding, m.embeddingDim); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(bookIDs))
	for _, id := range bookIDs {
		wanted[id] = true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	type scored struct {
		chunk domain.DocumentChunk
		sim   float64
	}
	var candidates []scored
	for bookID, chunks := range m.chunks {
		if len(bookIDs) > 0 && !wanted[bookID] {
			continue
		}
		for _, chunk := range chunks {
			if len(chunk.Embedding) == 0 {
				continue
			}
			candidates = append(candidates, scored{chunk: chunk, sim: cosineSimilarity(embedding, chunk.Embedding)})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	result := make([]domain.DocumentChunk, 0, len(candidates))
	for _, c := range candidates {
		result = append(result, c.chunk)
	}
	return result, nil
}

// CreateUser registers a user; the email must be unused.
func (m *MemoryStore) CreateUser(email, fullName string) (domain.User, error) {
	email, err := validateEmail(email)
	if err != nil {
		return domain.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.emails[email]; taken {
		return domain.User{}, fmt.Errorf("%w: email %s", ErrConflict, email)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:        NewID(),
		Email:     email,
		FullName:  strings.TrimSpace(fullName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.users[user.ID] = user
	m.emails[email] = user.ID
	return user, nil
}

// GetUser returns a user by ID.
func (m *MemoryStore) GetUser(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	return user, ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[strings.TrimSpace(strings.ToLower(email))]
	if !ok {
		return domain.User{}, false, nil
	}
	user, ok := m.users[id]
	return user, ok, nil
}

// DeleteUser removes a user and cascades to notebooks, messages, and notes.
func (m *MemoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	delete(m.users, id)
	delete(m.emails, user.Email)
	for notebookID, notebook := range m.notebooks {
		if notebook.UserID == id {
			m.dropNotebookLocked(notebookID)
		}
	}
	return nil
}

// CreateNotebook creates a notebook owned by userID.
func (m *MemoryStore) CreateNotebook(userID, name string, selectedBooks []string, selectedGenres []domain.Genre) (domain.Notebook, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Notebook{}, fmt.Errorf("%w: notebook name is required", ErrValidation)
	}
	if err := validateGenres(selectedGenres); err != nil {
		return domain.Notebook{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return domain.Notebook{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	now := time.Now().UTC()
	notebook := domain.Notebook{
		ID:             NewID(),
		UserID:         userID,
		Name:           name,
		SelectedBooks:  append([]string{}, selectedBooks...),
		SelectedGenres: append([]domain.Genre{}, selectedGenres...),
		MemorySummary:  "",
		KeyFacts:       []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.notebooks[notebook.ID] = notebook
	return notebook, nil
}

// GetNotebook returns a notebook after the ownership check, with dangling
// selected-book ids filtered from the returned value.
func (m *MemoryStore) GetNotebook(id, requestingUserID string) (domain.Notebook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	notebook, err := m.ownedNotebookLocked(id, requestingUserID)
	if err != nil {
		return domain.Notebook{}, err
	}
	return m.pruneDanglingLocked(notebook), nil
}

// ListNotebooks returns a user's notebooks, most recently updated first.
func (m *MemoryStore) ListNotebooks(userID string) ([]domain.Notebook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var notebooks []domain.Notebook
	for _, notebook := range m.notebooks {
		if notebook.UserID == userID {
			notebooks = append(notebooks, m.pruneDanglingLocked(notebook))
		}
	}
	sort.SliceStable(notebooks, func(i, j int) bool {
		return notebooks[i].UpdatedAt.After(notebooks[j].UpdatedAt)
	})
	return notebooks, nil
}

// UpdateNotebookMemory partially updates conversation memory, last writer
// wins.
func (m *MemoryStore) UpdateNotebookMemory(id, requestingUserID string, memorySummary *string, keyFacts []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	notebook, err := m.ownedNotebookLocked(id, requestingUserID)
	if err != nil {
		return err
	}
	if memorySummary != nil {
		notebook.MemorySummary = *memorySummary
	}
	if keyFacts != nil {
		notebook.KeyFacts = append([]string{}, keyFacts...)
	}
	notebook.UpdatedAt = time.Now().UTC()
	m.notebooks[id] = notebook
	return nil
}

// DeleteNotebook removes a notebook and cascades to messages and notes.
func (m *MemoryStore) DeleteNotebook(id, requestingUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.ownedNotebookLocked(id, requestingUserID); err != nil {
		return err
	}
	m.dropNotebookLocked(id)
	return nil
}

// AppendChatMessage records one conversational turn.
func (m *MemoryStore) AppendChatMessage(notebookID, requestingUserID string, msg NewMessage) (domain.ChatMessage, error) {
	if msg.UserMessage == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: user message is required", ErrValidation)
	}
	if msg.AssistantResponse == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: assistant response is required", ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.ownedNotebookLocked(notebookID, requestingUserID); err != nil {
		return domain.ChatMessage{}, err
	}
	citations := msg.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	message := domain.ChatMessage{
		ID:                NewID(),
		NotebookID:        notebookID,
		UserMessage:       msg.UserMessage,
		AssistantResponse: msg.AssistantResponse,
		Citations:         citations,
		Timestamp:         time.Now().UTC(),
	}
	m.messages[notebookID] = append(m.messages[notebookID], message)
	return message, nil
}

// ListChatMessages returns chat history in insertion order.
func (m *MemoryStore) ListChatMessages(notebookID, requestingUserID string, limit int) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, err := m.ownedNotebookLocked(notebookID, requestingUserID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultChatHistoryLimit
	}
	history := m.messages[notebookID]
	if len(history) > limit {
		history = history[:limit]
	}
	return append([]domain.ChatMessage{}, history...), nil
}

// CreateNote adds a note to a notebook.
func (m *MemoryStore) CreateNote(notebookID, requestingUserID string, note NewNote) (domain.Note, error) {
	note, err := validateNewNote(note)
	if err != nil {
		return domain.Note{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.ownedNotebookLocked(notebookID, requestingUserID); err != nil {
		return domain.Note{}, err
	}
	now := time.Now().UTC()
	created := domain.Note{
		ID:         NewID(),
		NotebookID: notebookID,
		Title:      note.Title,
		Content:    note.Content,
		Tags:       append([]string{}, note.Tags...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.notes[created.ID] = created
	m.noteOrder[notebookID] = append(m.noteOrder[notebookID], created.ID)
	return created, nil
}

// GetNote returns a note after checking ownership through its notebook.
func (m *MemoryStore) GetNote(id, requestingUserID string) (domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ownedNoteLocked(id, requestingUserID)
}

// ListNotes returns a notebook's notes in creation order.
func (m *MemoryStore) ListNotes(notebookID, requestingUserID string) ([]domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, err := m.ownedNotebookLocked(notebookID, requestingUserID); err != nil {
		return nil, err
	}
	notes := make([]domain.Note, 0, len(m.noteOrder[notebookID]))
	for _, noteID := range m.noteOrder[notebookID] {
		if note, ok := m.notes[noteID]; ok {
			notes = append(notes, note)
		}
	}
	return notes, nil
}

// UpdateNote partially updates a note and advances updated_at.
func (m *MemoryStore) UpdateNote(id, requestingUserID string, update NoteUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, err := m.ownedNoteLocked(id, requestingUserID)
	if err != nil {
		return err
	}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return fmt.Errorf("%w: note title is required", ErrValidation)
		}
		note.Title = title
	}
	if update.Content != nil {
		if *update.Content == "" {
			return fmt.Errorf("%w: note content is required", ErrValidation)
		}
		note.Content = *update.Content
	}
	if update.Tags != nil {
		note.Tags = append([]string{}, update.Tags...)
	}
	note.UpdatedAt = time.Now().UTC()
	m.notes[id] = note
	return nil
}

// DeleteNote removes a note after the ownership check.
func (m *MemoryStore) DeleteNote(id, requestingUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, err := m.ownedNoteLocked(id, requestingUserID)
	if err != nil {
		return err
	}
	delete(m.notes, id)
	order := m.noteOrder[note.NotebookID][:0]
	for _, noteID := range m.noteOrder[note.NotebookID] {
		if noteID != id {
			order = append(order, noteID)
		}
	}
	m.noteOrder[note.NotebookID] = order
	return nil
}

func (m *MemoryStore) ownedNotebookLocked(id, requestingUserID string) (domain.Notebook, error) {
	notebook, ok := m.notebooks[id]
	if !ok {
		return domain.Notebook{}, fmt.Errorf("%w: notebook %s", ErrNotFound, id)
	}
	if notebook.UserID != requestingUserID {
		return domain.Notebook{}, fmt.Errorf("%w: notebook %s", ErrForbidden, id)
	}
	return notebook, nil
}

func (m *MemoryStore) ownedNoteLocked(id, requestingUserID string) (domain.Note, error) {
	note, ok := m.notes[id]
	if !ok {
		return domain.Note{}, fmt.Errorf("%w: note %s", ErrNotFound, id)
	}
	if _, err := m.ownedNotebookLocked(note.NotebookID, requestingUserID); err != nil {
		return domain.Note{}, err
	}
	return note, nil
}

func (m *MemoryStore) dropNotebookLocked(id string) {
	delete(m.notebooks, id)
	delete(m.messages, id)
	for _, noteID := range m.noteOrder[id] {
		delete(m.notes, noteID)
	}
	delete(m.noteOrder, id)
}

func (m *MemoryStore) pruneDanglingLocked(notebook domain.Notebook) domain.Notebook {
	pruned := make([]string, 0, len(notebook.SelectedBooks))
	for _, bookID := range notebook.SelectedBooks {
		if _, ok := m.books[bookID]; ok {
			pruned = append(pruned, bookID)
		}
	}
	notebook.SelectedBooks = pruned
	notebook.SelectedGenres = append([]domain.Genre{}, notebook.SelectedGenres...)
	notebook.KeyFacts = append([]string{}, notebook.KeyFacts...)
	return notebook
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
