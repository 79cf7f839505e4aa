package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence. Table names are pinned because external
// collaborators (ingestion, chat) address these tables directly.

type BookModel struct {
	ID         string    `gorm:"primaryKey"`
	Title      string    `gorm:"not null"`
	Author     string    `gorm:"not null;index"`
	Genre      string    `gorm:"not null;default:other;index"`
	FilePath   string    `gorm:"not null"`
	TotalPages int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (BookModel) TableName() string { return "books" }

type ChunkModel struct {
	ID         string           `gorm:"primaryKey"`
	BookID     string           `gorm:"not null;index"`
	Content    string           `gorm:"type:text;not null"`
	PageStart  int              `gorm:"not null"`
	PageEnd    int              `gorm:"not null"`
	ChunkIndex int              `gorm:"not null"`
	Embedding  *pgvector.Vector `gorm:"type:vector(384)"`
	Metadata   datatypes.JSON   `gorm:"type:jsonb"`
	CreatedAt  time.Time        `gorm:"not null"`
}

func (ChunkModel) TableName() string { return "document_chunks" }

type UserModel struct {
	ID        string    `gorm:"primaryKey"`
	Email     string    `gorm:"uniqueIndex;not null"`
	FullName  string    ``
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type NotebookModel struct {
	ID             string         `gorm:"primaryKey"`
	UserID         string         `gorm:"not null;index"`
	Name           string         `gorm:"not null"`
	SelectedBooks  datatypes.JSON `gorm:"type:jsonb"`
	SelectedGenres datatypes.JSON `gorm:"type:jsonb"`
	MemorySummary  string         `gorm:"type:text;not null;default:''"`
	KeyFacts       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time      `gorm:"not null;index"`
}

func (NotebookModel) TableName() string { return "notebooks" }

type MessageModel struct {
	ID                string         `gorm:"primaryKey"`
	NotebookID        string         `gorm:"not null;index"`
	UserMessage       string         `gorm:"type:text;not null"`
	AssistantResponse string         `gorm:"type:text;not null"`
	Citations         datatypes.JSON `gorm:"type:jsonb"`
	Timestamp         time.Time      `gorm:"not null;index"`
}

func (MessageModel) TableName() string { return "chat_messages" }

type NoteModel struct {
	ID         string         `gorm:"primaryKey"`
	NotebookID string         `gorm:"not null;index"`
	Title      string         `gorm:"not null"`
	Content    string         `gorm:"type:text;not null"`
	Tags       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

func (NoteModel) TableName() string { return "notes" }
