package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/statstutor/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedConversation(t *testing.T, db *DB, id string) {
	t.Helper()
	ctx := context.Background()
	if err := db.CreateArticle(ctx, &model.Article{ID: "a-" + id, Title: "T", FullText: "text"}); err != nil {
		t.Fatalf("CreateArticle: %v", err)
	}
	if err := db.CreateConversation(ctx, &model.Conversation{ID: id, ArticleID: "a-" + id}); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
}

func TestArticleRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &model.Article{ID: "a1", Title: "Trial", FullText: "Randomized trial, n=120", Source: "trial.pdf", CreatedAt: created}
	if err := db.CreateArticle(ctx, in); err != nil {
		t.Fatalf("CreateArticle: %v", err)
	}

	got, err := db.GetArticle(ctx, "a1")
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if got == nil {
		t.Fatal("expected article")
	}
	if got.Title != "Trial" || got.FullText != in.FullText || got.Source != "trial.pdf" {
		t.Errorf("unexpected article %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("expected created_at %v, got %v", created, got.CreatedAt)
	}
}

func TestGetMissingRecords(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a, err := db.GetArticle(ctx, "nope")
	if err != nil || a != nil {
		t.Errorf("expected nil, nil for missing article; got %v, %v", a, err)
	}
	c, err := db.GetConversation(ctx, "nope")
	if err != nil || c != nil {
		t.Errorf("expected nil, nil for missing conversation; got %v, %v", c, err)
	}
}

func TestConversationRequiresArticle(t *testing.T) {
	db := openTestDB(t)
	err := db.CreateConversation(context.Background(), &model.Conversation{ID: "c1", ArticleID: "missing"})
	if err == nil {
		t.Error("expected foreign key violation")
	}
}

func TestAppendTurnsAssignsSequence(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedConversation(t, db, "c1")
	seedConversation(t, db, "c2")

	roles := []model.Role{model.RoleAI, model.RoleStudent, model.RoleAI}
	for i, r := range roles {
		turn := &model.Turn{ConversationID: "c1", Role: r, Content: fmt.Sprintf("turn %d", i)}
		if err := db.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
		if turn.Seq != i+1 {
			t.Errorf("expected seq %d, got %d", i+1, turn.Seq)
		}
		if turn.ID == 0 {
			t.Error("expected turn ID to be assigned")
		}
	}

	other := &model.Turn{ConversationID: "c2", Role: model.RoleAI, Content: "hello"}
	if err := db.AppendTurn(ctx, other); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if other.Seq != 1 {
		t.Errorf("sequence should be per conversation, got %d", other.Seq)
	}

	turns, err := db.ListTurns(ctx, "c1")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Role != roles[i] || turn.Content != fmt.Sprintf("turn %d", i) {
			t.Errorf("turn %d out of order: %+v", i, turn)
		}
	}
}

func TestAppendTurnRejectsUnknownRole(t *testing.T) {
	db := openTestDB(t)
	seedConversation(t, db, "c1")
	err := db.AppendTurn(context.Background(), &model.Turn{ConversationID: "c1", Role: "system", Content: "x"})
	if err == nil {
		t.Error("expected role check to fail")
	}
}

func TestConcurrentAppendsKeepTotalOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedConversation(t, db, "c1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := db.AppendTurn(ctx, &model.Turn{ConversationID: "c1", Role: model.RoleStudent, Content: fmt.Sprint(i)}); err != nil {
				t.Errorf("AppendTurn: %v", err)
			}
		}(i)
	}
	wg.Wait()

	turns, err := db.ListTurns(ctx, "c1")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 20 {
		t.Fatalf("expected 20 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Seq != i+1 {
			t.Errorf("expected dense sequence, got seq %d at %d", turn.Seq, i)
		}
	}
}

func TestSearchCourseChunks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	chunks := []model.CourseChunk{
		{Filepath: "week1.pdf", Content: "regression", Embedding: []float32{1, 0, 0}},
		{Filepath: "week1.pdf", Content: "anova", Embedding: []float32{0, 1, 0}},
		{Filepath: "week2.pdf", Content: "mostly regression", Embedding: []float32{0.9, 0.1, 0}},
		{Filepath: "other.pdf", Content: "wrong dims", Embedding: []float32{1, 0}},
	}
	if err := db.InsertCourseChunks(ctx, chunks); err != nil {
		t.Fatalf("InsertCourseChunks: %v", err)
	}

	got, err := db.SearchCourseChunks(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchCourseChunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Content != "regression" || got[1].Content != "mostly regression" {
		t.Errorf("unexpected ranking: %q, %q", got[0].Content, got[1].Content)
	}
	if got[0].Similarity < got[1].Similarity {
		t.Error("expected descending similarity")
	}

	has, err := db.HasCourseFile(ctx, "week2.pdf")
	if err != nil || !has {
		t.Errorf("expected week2.pdf to be present, got %v, %v", has, err)
	}
	has, _ = db.HasCourseFile(ctx, "week9.pdf")
	if has {
		t.Error("did not expect week9.pdf")
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	db := openTestDB(t)
	got, err := db.SearchCourseChunks(context.Background(), []float32{1, 2}, 5)
	if err != nil {
		t.Fatalf("SearchCourseChunks: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestCosineSimilarity(t *testing.T) {
	if s := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); s < 0.999 {
		t.Errorf("identical vectors: got %f", s)
	}
	if s := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); s != 0 {
		t.Errorf("orthogonal vectors: got %f", s)
	}
	if s := cosineSimilarity([]float32{0, 0}, []float32{1, 1}); s != 0 {
		t.Errorf("zero vector: got %f", s)
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedConversation(t, db, "c1")
	db.AppendTurn(ctx, &model.Turn{ConversationID: "c1", Role: model.RoleAI, Content: "hi"})
	db.InsertCourseChunks(ctx, []model.CourseChunk{
		{Filepath: "a.pdf", Content: "x", Embedding: []float32{1}},
		{Filepath: "a.pdf", Content: "y", Embedding: []float32{1}},
	})

	s, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Articles != 1 || s.Conversations != 1 || s.Turns != 1 || s.CourseChunks != 2 || s.CourseFiles != 1 {
		t.Errorf("unexpected stats %+v", s)
	}

	convs, err := db.ListConversations(ctx, 10)
	if err != nil || len(convs) != 1 || convs[0].ID != "c1" {
		t.Errorf("ListConversations = %v, %v", convs, err)
	}
}
