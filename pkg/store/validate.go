package store

import (
	"fmt"
	"strings"

	"insidelm/pkg/domain"
)

// Shared input validation so the Postgres and in-memory stores reject the
// same inputs with the same error classes.

func validateNewBook(book NewBook) (NewBook, error) {
	book.Title = strings.TrimSpace(book.Title)
	book.Author = strings.TrimSpace(book.Author)
	book.FilePath = strings.TrimSpace(book.FilePath)
	if book.Title == "" {
		return book, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if book.Author == "" {
		return book, fmt.Errorf("%w: author is required", ErrValidation)
	}
	if book.FilePath == "" {
		return book, fmt.Errorf("%w: file path is required", ErrValidation)
	}
	if book.TotalPages <= 0 {
		return book, fmt.Errorf("%w: total pages must be positive", ErrValidation)
	}
	if book.Genre == "" {
		book.Genre = domain.GenreOther
	}
	if !book.Genre.Valid() {
		return book, fmt.Errorf("%w: %q", ErrInvalidGenre, book.Genre)
	}
	return book, nil
}

func validateNewChunk(chunk NewChunk, embeddingDim int) error {
	if strings.TrimSpace(chunk.Content) == "" {
		return fmt.Errorf("%w: chunk content is required", ErrValidation)
	}
	if chunk.ChunkIndex < 0 {
		return fmt.Errorf("%w: chunk index must not be negative", ErrValidation)
	}
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("%w: chunk embedding is required", ErrValidation)
	}
	if embeddingDim > 0 && len(chunk.Embedding) != embeddingDim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(chunk.Embedding), embeddingDim)
	}
	return nil
}

func validateEmbedding(embedding []float32, embeddingDim int) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding is required", ErrValidation)
	}
	if embeddingDim > 0 && len(embedding) != embeddingDim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), embeddingDim)
	}
	return nil
}

func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: malformed email %q", ErrValidation, email)
	}
	return email, nil
}

func validateGenres(genres []domain.Genre) error {
	for _, genre := range genres {
		if !genre.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidGenre, genre)
		}
	}
	return nil
}

func validateNewNote(note NewNote) (NewNote, error) {
	note.Title = strings.TrimSpace(note.Title)
	if note.Title == "" {
		return note, fmt.Errorf("%w: note title is required", ErrValidation)
	}
	if note.Content == "" {
		return note, fmt.Errorf("%w: note content is required", ErrValidation)
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}
	return note, nil
}
