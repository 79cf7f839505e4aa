package domain

import "time"

type Genre string

const (
	GenreHistory    Genre = "history"
	GenreScience    Genre = "science"
	GenreLiterature Genre = "literature"
	GenrePhilosophy Genre = "philosophy"
	GenreTechnology Genre = "technology"
	GenreOther      Genre = "other"
)

// Genres lists every valid genre value.
func Genres() []Genre {
	return []Genre{
		GenreHistory,
		GenreScience,
		GenreLiterature,
		GenrePhilosophy,
		GenreTechnology,
		GenreOther,
	}
}

// Valid reports whether g is one of the closed genre set.
func (g Genre) Valid() bool {
	switch g {
	case GenreHistory, GenreScience, GenreLiterature, GenrePhilosophy, GenreTechnology, GenreOther:
		return true
	}
	return false
}

type Book struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Genre      Genre     `json:"genre"`
	FilePath   string    `json:"filePath"`
	TotalPages int       `json:"totalPages"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DocumentChunk is a page-aligned span of a book's text plus its embedding.
// Chunks are immutable once written; they only go away with their book.
type DocumentChunk struct {
	ID         string         `json:"id"`
	BookID     string         `json:"bookId"`
	Content    string         `json:"content"`
	PageStart  int            `json:"pageStart"`
	PageEnd    int            `json:"pageEnd"`
	ChunkIndex int            `json:"chunkIndex"`
	Embedding  []float32      `json:"-"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// User is an externally authenticated principal. Credentials live with the
// identity provider; the store only trusts the subject identifier.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Notebook binds a user's book/genre selection to a running conversation
// memory. SelectedBooks are soft references: entries may point at books that
// have since been deleted.
type Notebook struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	SelectedBooks  []string  `json:"selectedBooks"`
	SelectedGenres []Genre   `json:"selectedGenres"`
	MemorySummary  string    `json:"memorySummary"`
	KeyFacts       []string  `json:"keyFacts"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Citation points from an assistant answer back to the supporting chunk.
type Citation struct {
	ChunkID   string `json:"chunkId,omitempty"`
	BookID    string `json:"bookId"`
	BookTitle string `json:"bookTitle,omitempty"`
	PageStart int    `json:"pageStart"`
	PageEnd   int    `json:"pageEnd"`
}

// ChatMessage is one conversational turn. Messages are append-only.
type ChatMessage struct {
	ID                string     `json:"id"`
	NotebookID        string     `json:"notebookId"`
	UserMessage       string     `json:"userMessage"`
	AssistantResponse string     `json:"assistantResponse"`
	Citations         []Citation `json:"citations"`
	Timestamp         time.Time  `json:"timestamp"`
}

type Note struct {
	ID         string    `json:"id"`
	NotebookID string    `json:"notebookId"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
