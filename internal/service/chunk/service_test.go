package chunk_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ashwinyue/docsearch/internal/model"
	"github.com/ashwinyue/docsearch/internal/service/chunk"
	"github.com/ashwinyue/docsearch/internal/testutil"
)

// ========== Service 测试 ==========

func TestService_ListByFile(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewTestRepositories(t)
	svc := chunk.NewService(repos)

	cat := testutil.SeedCategory(t, repos, "docs")
	f := testutil.SeedFile(t, repos, cat.ID, "a.txt")
	err := repos.Chunk.CreateBatch(ctx, []*model.Chunk{
		{FileID: f.ID, ChunkID: "file_1_chunk_1_bbbbbbbb", ChunkText: "second", ChunkIndex: 1},
		{FileID: f.ID, ChunkID: "file_1_chunk_0_aaaaaaaa", ChunkText: "first", ChunkIndex: 0},
	})
	if err != nil {
		t.Fatalf("CreateBatch() error: %v", err)
	}

	chunks, err := svc.ListByFile(ctx, f.ID)
	if err != nil {
		t.Fatalf("ListByFile() error: %v", err)
	}
	if len(chunks) != 2 || chunks[0].ChunkText != "first" {
		t.Errorf("ListByFile() = %+v, want ordered by index", chunks)
	}
}

func TestService_ListByFile_NotFound(t *testing.T) {
	svc := chunk.NewService(testutil.NewTestRepositories(t))

	_, err := svc.ListByFile(context.Background(), 42)
	if !errors.Is(err, chunk.ErrFileNotFound) {
		t.Errorf("ListByFile() error = %v, want ErrFileNotFound", err)
	}
}
