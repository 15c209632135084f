package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ashwinyue/docsearch/internal/service/types"
	"github.com/cloudwego/eino-ext/components/indexer/es8"
	es8retriever "github.com/cloudwego/eino-ext/components/retriever/es8"
	"github.com/cloudwego/eino-ext/components/retriever/es8/search_mode"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	estypes "github.com/elastic/go-elasticsearch/v8/typedapi/types"
)

const (
	esVectorField = "vector"
	esDocumentKey = "_es_document"
)

// ElasticsearchStore 基于 dense_vector 的 Elasticsearch 向量索引
// 写入走 Eino es8 Indexer，相似度检索走 Eino es8 Retriever，按条件删除和全量读取直接调用客户端
type ElasticsearchStore struct {
	client    *elasticsearch.Client
	index     string
	dimension int
	indexer   *es8.Indexer
	retriever *es8retriever.Retriever
}

// NewElasticsearchStore 创建 ES 向量索引
func NewElasticsearchStore(ctx context.Context, client *elasticsearch.Client, index string, dimension int) (*ElasticsearchStore, error) {
	idx, err := es8.NewIndexer(ctx, &es8.IndexerConfig{
		Client:           client,
		Index:            index,
		BatchSize:        100,
		DocumentToFields: documentToFields,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create es8 indexer: %w", err)
	}

	ret, err := es8retriever.NewRetriever(ctx, &es8retriever.RetrieverConfig{
		Client: client,
		Index:  index,
		SearchMode: excludeVectorSource{
			SearchMode: search_mode.SearchModeDenseVectorSimilarity(search_mode.DenseVectorSimilarityTypeCosineSimilarity, esVectorField),
		},
		ResultParser: parseHit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create es8 retriever: %w", err)
	}

	return &ElasticsearchStore{
		client:    client,
		index:     index,
		dimension: dimension,
		indexer:   idx,
		retriever: ret,
	}, nil
}

// esDocument 索引中的文档结构
type esDocument struct {
	ChunkID    string    `json:"chunk_id"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector,omitempty"`
	FileID     uint      `json:"file_id"`
	CategoryID uint      `json:"category_id"`
	ChunkIndex int       `json:"chunk_index"`
	PageNumber int       `json:"page_number"`
}

func (d esDocument) hit(distance float64) Hit {
	return Hit{
		ID:   d.ChunkID,
		Text: d.Text,
		Metadata: types.ChunkMetadata{
			FileID:     d.FileID,
			CategoryID: d.CategoryID,
			ChunkIndex: d.ChunkIndex,
			PageNumber: d.PageNumber,
		},
		Distance: distance,
	}
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string     `json:"_id"`
			Score  float64    `json:"_score"`
			Source esDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// EnsureIndex 确保索引存在（如不存在则创建）
func (s *ElasticsearchStore) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"chunk_id": map[string]interface{}{"type": "keyword"},
				"text":     map[string]interface{}{"type": "text"},
				"vector": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       s.dimension,
					"index":      true,
					"similarity": "cosine",
				},
				"file_id":     map[string]interface{}{"type": "integer"},
				"category_id": map[string]interface{}{"type": "integer"},
				"chunk_index": map[string]interface{}{"type": "integer"},
				"page_number": map[string]interface{}{"type": "integer"},
			},
		},
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
	}

	mappingData, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	req := esapi.IndicesCreateRequest{
		Index: s.index,
		Body:  bytes.NewReader(mappingData),
	}
	res, err = req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to create index: %s", res.String())
	}
	return nil
}

// Add 通过 es8 Indexer 批量写入，刷新后按 ID 计数确认全部落盘
// Indexer 不回报单条失败，计数不足即视为写入失败
func (s *ElasticsearchStore) Add(ctx context.Context, entries []Entry) error {
	const op = "elasticsearch add"
	if len(entries) == 0 {
		return nil
	}

	docs := make([]*schema.Document, 0, len(entries))
	ids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return types.Errorf(types.KindVectorStoreWrite, op,
				"vector dimension mismatch for %s: expected %d, got %d", e.ID, s.dimension, len(e.Vector))
		}
		ids[e.ID] = struct{}{}
		docs = append(docs, &schema.Document{
			ID:      e.ID,
			Content: e.Text,
			MetaData: map[string]any{esDocumentKey: esDocument{
				ChunkID:    e.ID,
				Text:       e.Text,
				Vector:     e.Vector,
				FileID:     e.Metadata.FileID,
				CategoryID: e.Metadata.CategoryID,
				ChunkIndex: e.Metadata.ChunkIndex,
				PageNumber: e.Metadata.PageNumber,
			}},
		})
	}

	if _, err := s.indexer.Store(ctx, docs); err != nil {
		return types.E(types.KindVectorStoreWrite, op, err)
	}
	if err := s.refresh(ctx); err != nil {
		return types.E(types.KindVectorStoreWrite, op, err)
	}

	stored, err := s.countIDs(ctx, ids)
	if err != nil {
		return types.E(types.KindVectorStoreWrite, op, err)
	}
	if stored != len(ids) {
		return types.Errorf(types.KindVectorStoreWrite, op, "bulk indexed %d of %d documents", stored, len(ids))
	}
	return nil
}

// Search es8 Retriever 的 script_score 余弦检索，得分为 cos+1，距离取 2-得分
func (s *ElasticsearchStore) Search(ctx context.Context, vector []float32, filter Filter, topK int) ([]Hit, error) {
	const op = "elasticsearch search"
	if topK <= 0 {
		return []Hit{}, nil
	}

	docs, err := s.retriever.Retrieve(ctx, "",
		retriever.WithTopK(topK),
		retriever.WithEmbedding(queryVector(vector)),
		es8retriever.WithFilters(filterTerms(filter)),
	)
	if err != nil {
		if isIndexNotFound(err) {
			return []Hit{}, nil
		}
		return nil, types.E(types.KindVectorStoreRead, op, err)
	}

	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		doc, _ := d.MetaData[esDocumentKey].(esDocument)
		distance := 2 - d.Score()
		if distance < 0 {
			distance = 0
		}
		hit := doc.hit(distance)
		if hit.ID == "" {
			hit.ID = d.ID
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteByFilter delete_by_query 删除，索引不存在视为成功
func (s *ElasticsearchStore) DeleteByFilter(ctx context.Context, filter Filter) error {
	const op = "elasticsearch delete"
	if filter.Empty() {
		return errEmptyDeleteFilter(op)
	}

	body, err := json.Marshal(map[string]interface{}{"query": s.filterQuery(filter)})
	if err != nil {
		return types.E(types.KindVectorStoreRead, op, err)
	}

	res, err := s.client.DeleteByQuery([]string{s.index}, bytes.NewReader(body),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
		s.client.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return types.E(types.KindVectorStoreRead, op, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return types.Errorf(types.KindVectorStoreRead, op, "delete_by_query failed: %s", res.String())
	}
	return nil
}

// GetAllByFilter 按文件和分块顺序取出匹配条目
func (s *ElasticsearchStore) GetAllByFilter(ctx context.Context, filter Filter, limit int) ([]Hit, error) {
	const op = "elasticsearch get all"
	if limit <= 0 {
		limit = 10000
	}

	query := map[string]interface{}{
		"size":    limit,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
		"query":   s.filterQuery(filter),
		"sort": []interface{}{
			map[string]interface{}{"file_id": "asc"},
			map[string]interface{}{"chunk_index": "asc"},
		},
	}

	resp, err := s.search(ctx, query)
	if err != nil {
		return nil, types.E(types.KindVectorStoreRead, op, err)
	}

	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hit := h.Source.hit(0)
		if hit.ID == "" {
			hit.ID = h.ID
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// filterQuery 将 Filter 转为 bool.filter 查询
func (s *ElasticsearchStore) filterQuery(filter Filter) map[string]interface{} {
	var terms []interface{}
	if filter.CategoryID != nil {
		terms = append(terms, map[string]interface{}{"term": map[string]interface{}{"category_id": *filter.CategoryID}})
	}
	if filter.FileID != nil {
		terms = append(terms, map[string]interface{}{"term": map[string]interface{}{"file_id": *filter.FileID}})
	}
	if len(terms) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{"filter": terms},
	}
}

// filterTerms 将 Filter 转为检索器使用的 term 过滤条件
func filterTerms(filter Filter) []estypes.Query {
	var terms []estypes.Query
	if filter.CategoryID != nil {
		terms = append(terms, estypes.Query{Term: map[string]estypes.TermQuery{"category_id": {Value: *filter.CategoryID}}})
	}
	if filter.FileID != nil {
		terms = append(terms, estypes.Query{Term: map[string]estypes.TermQuery{"file_id": {Value: *filter.FileID}}})
	}
	return terms
}

// documentToFields 将文档元数据展开为索引字段，向量已预先计算，直接作为字段值写入
func documentToFields(_ context.Context, doc *schema.Document) (map[string]es8.FieldValue, error) {
	d, ok := doc.MetaData[esDocumentKey].(esDocument)
	if !ok {
		return nil, fmt.Errorf("document %s has no index fields", doc.ID)
	}
	return map[string]es8.FieldValue{
		"chunk_id":    {Value: d.ChunkID},
		"text":        {Value: d.Text},
		esVectorField: {Value: d.Vector},
		"file_id":     {Value: d.FileID},
		"category_id": {Value: d.CategoryID},
		"chunk_index": {Value: d.ChunkIndex},
		"page_number": {Value: d.PageNumber},
	}, nil
}

// parseHit 将命中结果还原为带得分的文档
func parseHit(_ context.Context, hit estypes.Hit) (*schema.Document, error) {
	var d esDocument
	if len(hit.Source_) > 0 {
		if err := json.Unmarshal(hit.Source_, &d); err != nil {
			return nil, fmt.Errorf("failed to decode hit source: %w", err)
		}
	}
	id := d.ChunkID
	if id == "" && hit.Id_ != nil {
		id = *hit.Id_
	}

	doc := &schema.Document{ID: id, Content: d.Text, MetaData: map[string]any{esDocumentKey: d}}
	if hit.Score_ != nil {
		doc.WithScore(float64(*hit.Score_))
	}
	return doc, nil
}

// queryVector 把已计算好的查询向量交给检索器，不再调用嵌入服务
type queryVector []float32

func (v queryVector) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	vec := make([]float64, len(v))
	for i, x := range v {
		vec[i] = float64(x)
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = vec
	}
	return out, nil
}

// excludeVectorSource 检索结果不返回向量字段
type excludeVectorSource struct {
	es8retriever.SearchMode
}

func (m excludeVectorSource) BuildRequest(ctx context.Context, conf *es8retriever.RetrieverConfig, query string, opts ...retriever.Option) (*search.Request, error) {
	req, err := m.SearchMode.BuildRequest(ctx, conf, query, opts...)
	if err != nil {
		return nil, err
	}
	req.Source_ = estypes.SourceFilter{Excludes: []string{esVectorField}}
	return req, nil
}

func isIndexNotFound(err error) bool {
	var esErr *estypes.ElasticsearchError
	return errors.As(err, &esErr) && esErr.Status == http.StatusNotFound
}

// refresh 刷新索引，使刚写入的文档可被检索
func (s *ElasticsearchStore) refresh(ctx context.Context) error {
	res, err := s.client.Indices.Refresh(
		s.client.Indices.Refresh.WithContext(ctx),
		s.client.Indices.Refresh.WithIndex(s.index),
	)
	if err != nil {
		return fmt.Errorf("failed to refresh index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to refresh index: %s", res.String())
	}
	return nil
}

// countIDs 统计索引中存在的文档 ID 数
func (s *ElasticsearchStore) countIDs(ctx context.Context, ids map[string]struct{}) (int, error) {
	values := make([]string, 0, len(ids))
	for id := range ids {
		values = append(values, id)
	}
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"ids": map[string]interface{}{"values": values}},
	})
	if err != nil {
		return 0, err
	}

	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.index),
		s.client.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("failed to count documents: %s", res.String())
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return out.Count, nil
}

// search 执行查询，索引不存在时返回空结果
func (s *ElasticsearchStore) search(ctx context.Context, query map[string]interface{}) (*esSearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return &esSearchResponse{}, nil
	}
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: [%d] %s", res.StatusCode, raw)
	}

	var out esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &out, nil
}
