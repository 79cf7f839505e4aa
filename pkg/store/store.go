package store

import "insidelm/pkg/domain"

// NewBook carries the fields required to register a book.
type NewBook struct {
	Title      string
	Author     string
	Genre      domain.Genre // empty defaults to GenreOther
	FilePath   string
	TotalPages int
}

// NewChunk carries one chunk of a book produced by the ingestion pipeline.
type NewChunk struct {
	Content    string
	PageStart  int
	PageEnd    int
	ChunkIndex int
	Embedding  []float32
	Metadata   map[string]any
}

// NewMessage carries one conversational turn.
type NewMessage struct {
	UserMessage       string
	AssistantResponse string
	Citations         []domain.Citation
}

// NewNote carries the fields of a user note.
type NewNote struct {
	Title   string
	Content string
	Tags    []string
}

// NoteUpdate is a partial note edit; nil pointers leave the field unchanged.
type NoteUpdate struct {
	Title   *string
	Content *string
	Tags    []string // nil keeps existing tags
}

// BookFilter narrows ListBooks. Zero values mean no filtering.
type BookFilter struct {
	Genre  domain.Genre
	Author string
}

// PageRange restricts ListChunks to chunks overlapping [First, Last].
type PageRange struct {
	First int
	Last  int
}

// DefaultChatHistoryLimit applies when ListChatMessages gets limit <= 0.
const DefaultChatHistoryLimit = 50

// Store defines the persistence contract for books, chunks, users,
// notebooks, chat messages, and notes.
//
// Books and chunks are globally readable and carry no owner. Every operation
// touching a notebook, its messages, or its notes takes the requesting user's
// id explicitly and refuses with ErrForbidden when that user does not own the
// notebook. There is no ambient current-user state.
type Store interface {
	// books
	CreateBook(book NewBook) (domain.Book, error)
	GetBook(id string) (domain.Book, bool, error)
	GetBooksByIDs(ids []string) ([]domain.Book, error)
	ListBooks(filter BookFilter) ([]domain.Book, error)
	// DeleteBook removes the book and, atomically, every chunk under it.
	DeleteBook(id string) error

	// chunks
	// CreateChunks inserts a batch atomically: either all chunks land or none.
	CreateChunks(bookID string, chunks []NewChunk) ([]domain.DocumentChunk, error)
	ListChunks(bookID string, pages *PageRange) ([]domain.DocumentChunk, error)
	// SearchChunks returns up to limit chunks nearest to embedding by cosine
	// distance, optionally restricted to bookIDs.
	SearchChunks(embedding []float32, bookIDs []string, limit int) ([]domain.DocumentChunk, error)

	// users
	CreateUser(email, fullName string) (domain.User, error)
	GetUser(id string) (domain.User, bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	// DeleteUser removes the user and, atomically, every owned notebook with
	// its messages and notes.
	DeleteUser(id string) error

	// notebooks
	CreateNotebook(userID, name string, selectedBooks []string, selectedGenres []domain.Genre) (domain.Notebook, error)
	GetNotebook(id, requestingUserID string) (domain.Notebook, error)
	ListNotebooks(userID string) ([]domain.Notebook, error)
	// UpdateNotebookMemory partially updates the running memory. Last writer
	// wins: concurrent chat turns on one notebook may overwrite each other.
	UpdateNotebookMemory(id, requestingUserID string, memorySummary *string, keyFacts []string) error
	DeleteNotebook(id, requestingUserID string) error

	// chat messages (append-only; no update or delete exists)
	AppendChatMessage(notebookID, requestingUserID string, msg NewMessage) (domain.ChatMessage, error)
	ListChatMessages(notebookID, requestingUserID string, limit int) ([]domain.ChatMessage, error)

	// notes
	CreateNote(notebookID, requestingUserID string, note NewNote) (domain.Note, error)
	GetNote(id, requestingUserID string) (domain.Note, error)
	ListNotes(notebookID, requestingUserID string) ([]domain.Note, error)
	UpdateNote(id, requestingUserID string, update NoteUpdate) error
	DeleteNote(id, requestingUserID string) error
}
