package vectorstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ashwinyue/docsearch/internal/service/types"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v8"
)

// fakeES 最小化的 Elasticsearch 模拟服务
type fakeES struct {
	mu          sync.Mutex
	indexExists bool
	createdBody map[string]any
	docs        map[string]esDocument
	lastSearch  map[string]any
	lastDelete  map[string]any
	bulkFails   bool
}

func newFakeES() *fakeES {
	return &fakeES{docs: make(map[string]esDocument)}
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodHead && path == "docs":
		if f.indexExists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && path == "docs":
		_ = json.NewDecoder(r.Body).Decode(&f.createdBody)
		f.indexExists = true
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case strings.HasSuffix(path, "_bulk"):
		f.handleBulk(w, r)
	case path == "docs/_refresh":
		_, _ = io.WriteString(w, `{"_shards":{"total":1,"successful":1,"failed":0}}`)
	case path == "docs/_count":
		f.handleCount(w, r)
	case path == "docs/_search":
		_ = json.NewDecoder(r.Body).Decode(&f.lastSearch)
		f.writeHits(w)
	case path == "missing/_search":
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"index_not_found_exception"},"status":404}`)
	case path == "docs/_delete_by_query":
		_ = json.NewDecoder(r.Body).Decode(&f.lastDelete)
		_, _ = io.WriteString(w, `{"deleted":1}`)
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"unexpected request `+r.Method+` `+path+`"}`)
	}
}

func (f *fakeES) handleBulk(w http.ResponseWriter, r *http.Request) {
	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	var id string
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if id == "" {
			var action struct {
				Index struct {
					ID string `json:"_id"`
				} `json:"index"`
			}
			_ = json.Unmarshal(line, &action)
			id = action.Index.ID
			continue
		}
		var doc esDocument
		_ = json.Unmarshal(line, &doc)
		// 模拟单条失败：整批返回 200，但失败的条目不落盘
		if !f.bulkFails {
			f.docs[id] = doc
		}
		id = ""
	}
	if f.bulkFails {
		_, _ = io.WriteString(w, `{"took":1,"errors":true,"items":[]}`)
		return
	}
	_, _ = io.WriteString(w, `{"took":1,"errors":false,"items":[]}`)
}

func (f *fakeES) handleCount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query struct {
			IDs struct {
				Values []string `json:"values"`
			} `json:"ids"`
		} `json:"query"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	n := 0
	for _, id := range body.Query.IDs.Values {
		if _, ok := f.docs[id]; ok {
			n++
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"count": n})
}

func (f *fakeES) writeHits(w http.ResponseWriter) {
	type hit struct {
		Index  string     `json:"_index"`
		ID     string     `json:"_id"`
		Score  float64    `json:"_score"`
		Source esDocument `json:"_source"`
	}
	hits := []hit{}
	for id, d := range f.docs {
		d.Vector = nil
		hits = append(hits, hit{Index: "docs", ID: id, Score: 1.8, Source: d})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"took":      1,
		"timed_out": false,
		"_shards":   map[string]int{"total": 1, "successful": 1, "skipped": 0, "failed": 0},
		"hits": map[string]any{
			"total": map[string]any{"value": len(hits), "relation": "eq"},
			"hits":  hits,
		},
	})
}

func (f *fakeES) snapshot() (exists bool, created map[string]any, docs int, search, del map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexExists, f.createdBody, len(f.docs), f.lastSearch, f.lastDelete
}

func (f *fakeES) reset(bulkFails bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdBody = nil
	f.bulkFails = bulkFails
}

func newTestESStore(t *testing.T, index string) (*ElasticsearchStore, *fakeES) {
	t.Helper()
	fake := newFakeES()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	s, err := NewElasticsearchStore(context.Background(), client, index, 3)
	if err != nil {
		t.Fatalf("NewElasticsearchStore() error: %v", err)
	}
	return s, fake
}

// ========== ElasticsearchStore 测试 ==========

func TestElasticsearchStore_EnsureIndex(t *testing.T) {
	s, fake := newTestESStore(t, "docs")

	if err := s.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex() error: %v", err)
	}
	exists, created, _, _, _ := fake.snapshot()
	if !exists {
		t.Fatal("EnsureIndex() did not create the index")
	}

	props := created["mappings"].(map[string]any)["properties"].(map[string]any)
	vector := props["vector"].(map[string]any)
	if vector["type"] != "dense_vector" || vector["similarity"] != "cosine" || vector["dims"] != float64(3) {
		t.Errorf("vector mapping = %v", vector)
	}

	// 已存在时不重复创建
	fake.reset(false)
	if err := s.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex() error: %v", err)
	}
	if _, created, _, _, _ = fake.snapshot(); created != nil {
		t.Error("EnsureIndex() recreated an existing index")
	}
}

func TestElasticsearchStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestESStore(t, "docs")

	err := s.Add(ctx, []Entry{{
		ID:       "file_1_chunk_0_abcd1234",
		Text:     "quarterly revenue",
		Vector:   []float32{0.1, 0.2, 0.3},
		Metadata: types.ChunkMetadata{FileID: 1, CategoryID: 7, ChunkIndex: 0, PageNumber: 2},
	}})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if _, _, n, _, _ := fake.snapshot(); n != 1 {
		t.Fatalf("bulk stored %d docs, want 1", n)
	}

	hits, err := s.Search(ctx, []float32{0.1, 0.2, 0.3}, ByCategory(7), 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("Search() len = %d, want 1", len(hits))
	}
	h := hits[0]
	if h.ID != "file_1_chunk_0_abcd1234" || h.Text != "quarterly revenue" {
		t.Errorf("hit = %+v", h)
	}
	if h.Metadata.CategoryID != 7 || h.Metadata.PageNumber != 2 {
		t.Errorf("hit metadata = %+v", h.Metadata)
	}
	if d := h.Distance; d < 0.19 || d > 0.21 {
		t.Errorf("Distance = %v, want 0.2", d)
	}

	_, _, _, search, _ := fake.snapshot()
	body, _ := json.Marshal(search)
	for _, want := range []string{
		"cosineSimilarity(params.embedding, 'vector') + 1.0",
		`"category_id":{"value":7}`,
		`"size":5`,
		`"excludes":["vector"]`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("search body %s missing %s", body, want)
		}
	}
}

func TestElasticsearchStore_AddFailures(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestESStore(t, "docs")

	err := s.Add(ctx, []Entry{{ID: "x", Vector: []float32{1}}})
	if !errors.Is(err, types.ErrVectorStoreWrite) {
		t.Errorf("Add(bad dim) error = %v, want ErrVectorStoreWrite", err)
	}

	// bulk 返回 200 但条目未写入，按计数判定失败
	fake.reset(true)
	err = s.Add(ctx, []Entry{{ID: "y", Vector: []float32{1, 2, 3}}})
	if !errors.Is(err, types.ErrVectorStoreWrite) {
		t.Errorf("Add(bulk errors) error = %v, want ErrVectorStoreWrite", err)
	}
}

func TestElasticsearchStore_DeleteByFilter(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestESStore(t, "docs")

	if err := s.DeleteByFilter(ctx, Filter{}); !errors.Is(err, types.ErrInvalidRequest) {
		t.Errorf("DeleteByFilter(empty) error = %v, want ErrInvalidRequest", err)
	}

	if err := s.DeleteByFilter(ctx, ByFile(4)); err != nil {
		t.Fatalf("DeleteByFilter() error: %v", err)
	}
	_, _, _, _, del := fake.snapshot()
	body, _ := json.Marshal(del)
	if !strings.Contains(string(body), `"file_id":4`) {
		t.Errorf("delete body = %s", body)
	}
}

func TestElasticsearchStore_MissingIndexIsEmpty(t *testing.T) {
	s, _ := newTestESStore(t, "missing")

	hits, err := s.GetAllByFilter(context.Background(), ByCategory(1), 50)
	if err != nil {
		t.Fatalf("GetAllByFilter() error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("GetAllByFilter() len = %d, want 0", len(hits))
	}

	hits, err = s.Search(context.Background(), []float32{1, 0, 0}, ByCategory(1), 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Search() len = %d, want 0", len(hits))
	}
}

// ========== es8 字段映射测试 ==========

func TestDocumentToFields(t *testing.T) {
	doc := &schema.Document{ID: "c1", MetaData: map[string]any{esDocumentKey: esDocument{
		ChunkID: "c1", Text: "t", Vector: []float32{1, 2, 3}, FileID: 2, CategoryID: 5, ChunkIndex: 4, PageNumber: 1,
	}}}
	fields, err := documentToFields(context.Background(), doc)
	if err != nil {
		t.Fatalf("documentToFields() error: %v", err)
	}
	for k, v := range fields {
		if v.EmbedKey != "" {
			t.Errorf("field %s asks for embedding, vectors are precomputed", k)
		}
	}
	if fields["category_id"].Value != uint(5) || fields["chunk_index"].Value != 4 {
		t.Errorf("fields = %+v", fields)
	}

	if _, err := documentToFields(context.Background(), &schema.Document{ID: "bare"}); err == nil {
		t.Error("documentToFields() expected error for document without index fields")
	}
}

func TestQueryVector_EmbedStrings(t *testing.T) {
	out, err := queryVector{0.5, 1}.EmbedStrings(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedStrings() error: %v", err)
	}
	if len(out) != 2 || out[1][0] != 0.5 || out[1][1] != 1 {
		t.Errorf("EmbedStrings() = %v", out)
	}
}
