package store

import (
	"errors"
	"testing"
	"time"

	"insidelm/pkg/domain"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(3)
}

func mustCreateBook(t *testing.T, s *MemoryStore, title, author string, genre domain.Genre) domain.Book {
	t.Helper()
	book, err := s.CreateBook(NewBook{
		Title:      title,
		Author:     author,
		Genre:      genre,
		FilePath:   "/library/" + title + ".pdf",
		TotalPages: 300,
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	return book
}

func mustCreateUser(t *testing.T, s *MemoryStore, email string) domain.User {
	t.Helper()
	user, err := s.CreateUser(email, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func mustCreateNotebook(t *testing.T, s *MemoryStore, userID, name string, books []string) domain.Notebook {
	t.Helper()
	notebook, err := s.CreateNotebook(userID, name, books, nil)
	if err != nil {
		t.Fatalf("create notebook: %v", err)
	}
	return notebook
}

func TestCreateBookValidation(t *testing.T) {
	s := newTestStore()

	_, err := s.CreateBook(NewBook{Author: "A", FilePath: "/x.pdf", TotalPages: 10})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing title, got: %v", err)
	}
	_, err = s.CreateBook(NewBook{Title: "T", FilePath: "/x.pdf", TotalPages: 10})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing author, got: %v", err)
	}
	_, err = s.CreateBook(NewBook{Title: "T", Author: "A", TotalPages: 10})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing file path, got: %v", err)
	}
	_, err = s.CreateBook(NewBook{Title: "T", Author: "A", FilePath: "/x.pdf"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for non-positive pages, got: %v", err)
	}
	_, err = s.CreateBook(NewBook{Title: "T", Author: "A", FilePath: "/x.pdf", TotalPages: 10, Genre: "sci-fi"})
	if !errors.Is(err, ErrInvalidGenre) {
		t.Fatalf("expected invalid genre error, got: %v", err)
	}
}

func TestCreateBookDefaultsGenreToOther(t *testing.T) {
	s := newTestStore()
	book := mustCreateBook(t, s, "Untagged", "Anon", "")
	if book.Genre != domain.GenreOther {
		t.Fatalf("genre = %q, want %q", book.Genre, domain.GenreOther)
	}
	if book.ID == "" {
		t.Fatalf("expected server-generated id")
	}
	if book.UpdatedAt.Before(book.CreatedAt) {
		t.Fatalf("updated_at %v before created_at %v", book.UpdatedAt, book.CreatedAt)
	}
}

func TestGetBooksByIDsSkipsDanglingIDs(t *testing.T) {
	s := newTestStore()
	first := mustCreateBook(t, s, "Rome", "Gibbon", domain.GenreHistory)
	doomed := mustCreateBook(t, s, "Doomed", "Anon", domain.GenreScience)
	second := mustCreateBook(t, s, "Cosmos", "Sagan", domain.GenreScience)
	if err := s.DeleteBook(doomed.ID); err != nil {
		t.Fatalf("delete book: %v", err)
	}

	books, err := s.GetBooksByIDs([]string{first.ID, doomed.ID, second.ID, "never-existed"})
	if err != nil {
		t.Fatalf("get books by ids: %v", err)
	}
	if len(books) != 2 || books[0].ID != first.ID || books[1].ID != second.ID {
		t.Fatalf("expected existing books in order, got %+v", books)
	}

	books, err = s.GetBooksByIDs(nil)
	if err != nil {
		t.Fatalf("get books by no ids: %v", err)
	}
	if len(books) != 0 {
		t.Fatalf("expected empty result for no ids, got %d", len(books))
	}
}

func TestListBooksFilter(t *testing.T) {
	s := newTestStore()
	mustCreateBook(t, s, "Rome", "Gibbon", domain.GenreHistory)
	mustCreateBook(t, s, "Cosmos", "Sagan", domain.GenreScience)
	mustCreateBook(t, s, "Athens", "Gibbon", domain.GenreHistory)

	history, err := s.ListBooks(BookFilter{Genre: domain.GenreHistory})
	if err != nil {
		t.Fatalf("list by genre: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history books, got %d", len(history))
	}
	gibbon, err := s.ListBooks(BookFilter{Genre: domain.GenreHistory, Author: "Gibbon"})
	if err != nil {
		t.Fatalf("list by genre and author: %v", err)
	}
	if len(gibbon) != 2 || gibbon[0].Title != "Rome" {
		t.Fatalf("unexpected filtered listing: %+v", gibbon)
	}
	if _, err := s.ListBooks(BookFilter{Genre: "romance"}); !errors.Is(err, ErrInvalidGenre) {
		t.Fatalf("expected invalid genre error, got: %v", err)
	}
}

func TestCreateChunksRequiresBook(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateChunks("missing", []NewChunk{
		{Content: "text", ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown book, got: %v", err)
	}
}

func TestCreateChunksDimensionMismatchIsAtomic(t *testing.T) {
	s := newTestStore()
	book := mustCreateBook(t, s, "Rome", "Gibbon", domain.GenreHistory)

	_, err := s.CreateChunks(book.ID, []NewChunk{
		{Content: "ok", ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
		{Content: "bad", ChunkIndex: 1, Embedding: []float32{1, 0}},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got: %v", err)
	}
	chunks, err := s.ListChunks(book.ID, nil)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks after failed batch, got %d", len(chunks))
	}
}

func TestDeleteBookCascadesOwnChunksOnly(t *testing.T) {
	s := newTestStore()
	doomed := mustCreateBook(t, s, "Doomed", "A", domain.GenreHistory)
	kept := mustCreateBook(t, s, "Kept", "B", domain.GenreScience)
	for _, book := range []domain.Book{doomed, kept} {
		if _, err := s.CreateChunks(book.ID, []NewChunk{
			{Content: "one", ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
			{Content: "two", ChunkIndex: 1, Embedding: []float32{0, 1, 0}},
		}); err != nil {
			t.Fatalf("create chunks: %v", err)
		}
	}

	if err := s.DeleteBook(doomed.ID); err != nil {
		t.Fatalf("delete book: %v", err)
	}
	gone, err := s.ListChunks(doomed.ID, nil)
	if err != nil {
		t.Fatalf("list deleted book chunks: %v", err)
	}
	if len(gone) != 0 {
		t.Fatalf("expected cascade to remove chunks, found %d", len(gone))
	}
	remaining, err := s.ListChunks(kept.ID, nil)
	if err != nil {
		t.Fatalf("list kept book chunks: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("cascade removed unrelated chunks: got %d, want 2", len(remaining))
	}
	if err := s.DeleteBook(doomed.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for second delete, got: %v", err)
	}
}

func TestListChunksPageRange(t *testing.T) {
	s := newTestStore()
	book := mustCreateBook(t, s, "Rome", "Gibbon", domain.GenreHistory)
	if _, err := s.CreateChunks(book.ID, []NewChunk{
		{Content: "p1-2", PageStart: 1, PageEnd: 2, ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
		{Content: "p3-4", PageStart: 3, PageEnd: 4, ChunkIndex: 1, Embedding: []float32{0, 1, 0}},
		{Content: "p9", PageStart: 9, PageEnd: 9, ChunkIndex: 2, Embedding: []float32{0, 0, 1}},
	}); err != nil {
		t.Fatalf("create chunks: %v", err)
	}

	chunks, err := s.ListChunks(book.ID, &PageRange{First: 2, Last: 4})
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(chunks) != 2 || chunks[0].Content != "p1-2" || chunks[1].Content != "p3-4" {
		t.Fatalf("unexpected page range result: %+v", chunks)
	}
}

func TestSearchChunksRanksByCosineSimilarity(t *testing.T) {
	s := newTestStore()
	book := mustCreateBook(t, s, "Rome", "Gibbon", domain.GenreHistory)
	other := mustCreateBook(t, s, "Cosmos", "Sagan", domain.GenreScience)
	if _, err := s.CreateChunks(book.ID, []NewChunk{
		{Content: "exact", ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
		{Content: "close", ChunkIndex: 1, Embedding: []float32{0.9, 0.1, 0}},
		{Content: "far", ChunkIndex: 2, Embedding: []float32{0, 0, 1}},
	}); err != nil {
		t.Fatalf("create chunks: %v", err)
	}
	if _, err := s.CreateChunks(other.ID, []NewChunk{
		{Content: "other book", ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
	}); err != nil {
		t.Fatalf("create chunks: %v", err)
	}

	results, err := s.SearchChunks([]float32{1, 0, 0}, []string{book.ID}, 2)
	if err != nil {
		t.Fatalf("search chunks: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "exact" || results[1].Content != "close" {
		t.Fatalf("unexpected ranking: %q then %q", results[0].Content, results[1].Content)
	}
	for _, result := range results {
		if result.BookID != book.ID {
			t.Fatalf("result leaked from another book: %+v", result)
		}
	}

	if _, err := s.SearchChunks([]float32{1, 0}, nil, 2); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch for bad query vector, got: %v", err)
	}
}

func TestCreateUserDuplicateEmailConflicts(t *testing.T) {
	s := newTestStore()
	mustCreateUser(t, s, "reader@example.com")
	_, err := s.CreateUser("reader@example.com", "Someone Else")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got: %v", err)
	}
	// Email comparison is case-insensitive.
	_, err = s.CreateUser("Reader@Example.com", "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for case-variant duplicate, got: %v", err)
	}
	if _, err := s.CreateUser("not-an-email", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for malformed email, got: %v", err)
	}
}

func TestNotebookOwnershipChecks(t *testing.T) {
	s := newTestStore()
	owner := mustCreateUser(t, s, "owner@example.com")
	intruder := mustCreateUser(t, s, "intruder@example.com")
	notebook := mustCreateNotebook(t, s, owner.ID, "My Reading", nil)

	if _, err := s.GetNotebook(notebook.ID, owner.ID); err != nil {
		t.Fatalf("owner read refused: %v", err)
	}
	if _, err := s.GetNotebook(notebook.ID, intruder.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner, got: %v", err)
	}
	if _, err := s.GetNotebook("missing", owner.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing notebook, got: %v", err)
	}
	if _, err := s.ListChatMessages(notebook.ID, intruder.ID, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner message read, got: %v", err)
	}
	if _, err := s.AppendChatMessage(notebook.ID, intruder.ID, NewMessage{UserMessage: "q", AssistantResponse: "a"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner message write, got: %v", err)
	}
	if err := s.UpdateNotebookMemory(notebook.ID, intruder.ID, nil, []string{"x"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner memory update, got: %v", err)
	}
	if err := s.DeleteNotebook(notebook.ID, intruder.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner delete, got: %v", err)
	}
}

func TestCreateNotebookRequiresUser(t *testing.T) {
	s := newTestStore()
	if _, err := s.CreateNotebook("ghost", "Nope", nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown user, got: %v", err)
	}
	user := mustCreateUser(t, s, "reader@example.com")
	if _, err := s.CreateNotebook(user.ID, "  ", nil, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for blank name, got: %v", err)
	}
	if _, err := s.CreateNotebook(user.ID, "Bad Genres", nil, []domain.Genre{"sci-fi"}); !errors.Is(err, ErrInvalidGenre) {
		t.Fatalf("expected invalid genre error, got: %v", err)
	}
}

func TestChatMessagesKeepInsertionOrder(t *testing.T) {
	s := newTestStore()
	user := mustCreateUser(t, s, "reader@example.com")
	notebook := mustCreateNotebook(t, s, user.ID, "History Chat", nil)

	turns := []string{"first", "second", "third"}
	for _, turn := range turns {
		if _, err := s.AppendChatMessage(notebook.ID, user.ID, NewMessage{
			UserMessage:       "q " + turn,
			AssistantResponse: "a " + turn,
		}); err != nil {
			t.Fatalf("append %s: %v", turn, err)
		}
	}

	msgs, err := s.ListChatMessages(notebook.ID, user.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, turn := range turns {
		if msgs[i].UserMessage != "q "+turn || msgs[i].AssistantResponse != "a "+turn {
			t.Fatalf("message %d out of order or mutated: %+v", i, msgs[i])
		}
	}
	if msgs[0].Citations == nil || len(msgs[0].Citations) != 0 {
		t.Fatalf("expected empty citations list, got %+v", msgs[0].Citations)
	}
}

func TestUpdateNotebookMemoryPartial(t *testing.T) {
	s := newTestStore()
	user := mustCreateUser(t, s, "reader@example.com")
	notebook := mustCreateNotebook(t, s, user.ID, "Memory", nil)

	summary := "We discussed the fall of Rome."
	if err := s.UpdateNotebookMemory(notebook.ID, user.ID, &summary, []string{"Rome fell in 476"}); err != nil {
		t.Fatalf("update memory: %v", err)
	}
	got, err := s.GetNotebook(notebook.ID, user.ID)
	if err != nil {
		t.Fatalf("get notebook: %v", err)
	}
	if got.MemorySummary != summary || len(got.KeyFacts) != 1 {
		t.Fatalf("memory not applied: %+v", got)
	}

	// Nil summary keeps the existing one; facts update alone.
	if err := s.UpdateNotebookMemory(notebook.ID, user.ID, nil, []string{"Rome fell in 476", "Odoacer deposed Romulus"}); err != nil {
		t.Fatalf("partial update: %v", err)
	}
	got, err = s.GetNotebook(notebook.ID, user.ID)
	if err != nil {
		t.Fatalf("get notebook: %v", err)
	}
	if got.MemorySummary != summary {
		t.Fatalf("summary lost on partial update: %q", got.MemorySummary)
	}
	if len(got.KeyFacts) != 2 {
		t.Fatalf("expected 2 key facts, got %d", len(got.KeyFacts))
	}
	if !got.UpdatedAt.After(notebook.UpdatedAt) && !got.UpdatedAt.Equal(notebook.UpdatedAt) {
		t.Fatalf("updated_at went backwards: %v -> %v", notebook.UpdatedAt, got.UpdatedAt)
	}
}

func TestNotebookSelectionFiltersDanglingBooks(t *testing.T) {
	s := newTestStore()
	kept := mustCreateBook(t, s, "Kept", "A", domain.GenreHistory)
	doomed := mustCreateBook(t, s, "Doomed", "B", domain.GenreHistory)
	user := mustCreateUser(t, s, "reader@example.com")
	notebook := mustCreateNotebook(t, s, user.ID, "Selection", []string{kept.ID, doomed.ID})

	if err := s.DeleteBook(doomed.ID); err != nil {
		t.Fatalf("delete book: %v", err)
	}
	got, err := s.GetNotebook(notebook.ID, user.ID)
	if err != nil {
		t.Fatalf("get notebook: %v", err)
	}
	if len(got.SelectedBooks) != 1 || got.SelectedBooks[0] != kept.ID {
		t.Fatalf("dangling selection not filtered: %+v", got.SelectedBooks)
	}
}

func TestListNotebooksMostRecentFirst(t *testing.T) {
	s := newTestStore()
	user := mustCreateUser(t, s, "reader@example.com")
	first := mustCreateNotebook(t, s, user.ID, "First", nil)
	time.Sleep(5 * time.Millisecond)
	second := mustCreateNotebook(t, s, user.ID, "Second", nil)
	time.Sleep(5 * time.Millisecond)

	// Touching the older notebook moves it to the front.
	summary := "touched"
	if err := s.UpdateNotebookMemory(first.ID, user.ID, &summary, nil); err != nil {
		t.Fatalf("update memory: %v", err)
	}
	notebooks, err := s.ListNotebooks(user.ID)
	if err != nil {
		t.Fatalf("list notebooks: %v", err)
	}
	if len(notebooks) != 2 || notebooks[0].ID != first.ID || notebooks[1].ID != second.ID {
		t.Fatalf("unexpected notebook order: %+v", notebooks)
	}
}

func TestDeleteUserCascadesNotebooksMessagesNotes(t *testing.T) {
	s := newTestStore()
	user := mustCreateUser(t, s, "reader@example.com")
	survivor := mustCreateUser(t, s, "other@example.com")
	notebook := mustCreateNotebook(t, s, user.ID, "Doomed", nil)
	kept := mustCreateNotebook(t, s, survivor.ID, "Kept", nil)
	if _, err := s.AppendChatMessage(notebook.ID, user.ID, NewMessage{UserMessage: "q", AssistantResponse: "a"}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	note, err := s.CreateNote(notebook.ID, user.ID, NewNote{Title: "N", Content: "body"})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	if err := s.DeleteUser(user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := s.GetNotebook(notebook.ID, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected notebook gone, got: %v", err)
	}
	if _, err := s.GetNote(note.ID, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected note gone, got: %v", err)
	}
	if _, err := s.GetNotebook(kept.ID, survivor.ID); err != nil {
		t.Fatalf("cascade removed another user's notebook: %v", err)
	}
	// The freed email can be registered again.
	if _, err := s.CreateUser("reader@example.com", ""); err != nil {
		t.Fatalf("re-register email after delete: %v", err)
	}
}

func TestDeleteNotebookCascadesMessagesAndNotes(t *testing.T) {
	s := newTestStore()
	user := mustCreateUser(t, s, "reader@example.com")
	notebook := mustCreateNotebook(t, s, user.ID, "Doomed", nil)
	if _, err := s.AppendChatMessage(notebook.ID, user.ID, NewMessage{UserMessage: "q", AssistantResponse: "a"}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	note, err := s.CreateNote(notebook.ID, user.ID, NewNote{Title: "N", Content: "body"})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	if err := s.DeleteNotebook(notebook.ID, user.ID); err != nil {
		t.Fatalf("delete notebook: %v", err)
	}
	if _, err := s.ListChatMessages(notebook.ID, user.ID, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected messages gone with notebook, got: %v", err)
	}
	if _, err := s.GetNote(note.ID, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected note gone with notebook, got: %v", err)
	}
}

func TestNoteCRUDAndTimestamps(t *testing.T) {
	s := newTestStore()
	user := mustCreateUser(t, s, "reader@example.com")
	intruder := mustCreateUser(t, s, "intruder@example.com")
	notebook := mustCreateNotebook(t, s, user.ID, "Notes", nil)

	if _, err := s.CreateNote(notebook.ID, user.ID, NewNote{Content: "body"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing title, got: %v", err)
	}
	note, err := s.CreateNote(notebook.ID, user.ID, NewNote{Title: "Rome", Content: "fell", Tags: []string{"history"}})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	content := "fell in 476"
	if err := s.UpdateNote(note.ID, user.ID, NoteUpdate{Content: &content}); err != nil {
		t.Fatalf("update note: %v", err)
	}
	updated, err := s.GetNote(note.ID, user.ID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if updated.Content != content || updated.Title != "Rome" {
		t.Fatalf("partial update wrong: %+v", updated)
	}
	if updated.UpdatedAt.Before(note.UpdatedAt) {
		t.Fatalf("updated_at regressed: %v -> %v", note.UpdatedAt, updated.UpdatedAt)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatalf("updated_at %v not after created_at %v", updated.UpdatedAt, updated.CreatedAt)
	}

	if err := s.UpdateNote(note.ID, intruder.ID, NoteUpdate{Content: &content}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner note update, got: %v", err)
	}
	if err := s.DeleteNote(note.ID, intruder.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner note delete, got: %v", err)
	}
	if err := s.DeleteNote(note.ID, user.ID); err != nil {
		t.Fatalf("delete note: %v", err)
	}
	notes, err := s.ListNotes(notebook.ID, user.ID)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("expected no notes after delete, got %d", len(notes))
	}
}

func TestEndToEndNotebookFlow(t *testing.T) {
	s := newTestStore()

	book, err := s.CreateBook(NewBook{
		Title:      "Sample History Book",
		Author:     "John Doe",
		Genre:      domain.GenreHistory,
		FilePath:   "/sample/history.pdf",
		TotalPages: 300,
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	chunks, err := s.CreateChunks(book.ID, []NewChunk{
		{Content: "The first chapter.", PageStart: 1, PageEnd: 3, ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
		{Content: "The second chapter.", PageStart: 4, PageEnd: 6, ChunkIndex: 1, Embedding: []float32{0, 1, 0}},
	})
	if err != nil {
		t.Fatalf("create chunks: %v", err)
	}
	user := mustCreateUser(t, s, "test@example.com")
	notebook := mustCreateNotebook(t, s, user.ID, "History Notebook", []string{book.ID})

	if _, err := s.AppendChatMessage(notebook.ID, user.ID, NewMessage{
		UserMessage:       "What happens in chapter one?",
		AssistantResponse: "The first chapter covers the setup.",
		Citations: []domain.Citation{{
			ChunkID:   chunks[0].ID,
			BookID:    book.ID,
			BookTitle: book.Title,
			PageStart: chunks[0].PageStart,
			PageEnd:   chunks[0].PageEnd,
		}},
	}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	msgs, err := s.ListChatMessages(notebook.ID, user.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if len(msgs[0].Citations) != 1 || msgs[0].Citations[0].BookID != book.ID {
		t.Fatalf("citation not preserved: %+v", msgs[0].Citations)
	}
	stored, err := s.ListChunks(book.ID, nil)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(stored))
	}

	stranger := mustCreateUser(t, s, "stranger@example.com")
	if _, err := s.GetNotebook(notebook.ID, stranger.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for other user, got: %v", err)
	}
}
