package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"

	"github.com/Skotchmaster/bi_dashboard/internal/events"
)

const maxPageSize = 100

// MaxResultWindow mirrors the index.max_result_window default; from+size past
// it is rejected by Elasticsearch.
const MaxResultWindow = 10000

var indexMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"type":        map[string]any{"type": "keyword"},
			"email":       map[string]any{"type": "keyword"},
			"account_id":  map[string]any{"type": "long"},
			"occurred_at": map[string]any{"type": "date"},
		},
	},
}

type Store struct {
	es    *elasticsearch.Client
	index string
}

func NewStore(es *elasticsearch.Client, index string) *Store {
	return &Store{es: es, index: index}
}

type Page struct {
	Total  int64          `json:"total"`
	Events []events.Event `json:"events"`
}

func (s *Store) EnsureIndex(ctx context.Context) error {
	res, err := s.es.Indices.Exists([]string{s.index}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("es: index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := encode(indexMapping)
	if err != nil {
		return err
	}
	res, err = s.es.Indices.Create(s.index,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(body),
	)
	if err != nil {
		return fmt.Errorf("es: create index: %w", err)
	}
	return checkResponse("create index", res)
}

// Publish indexes one auth event; it lets Store sit behind events.Fanout.
func (s *Store) Publish(ctx context.Context, e events.Event) error {
	body, err := encode(e)
	if err != nil {
		return err
	}
	res, err := s.es.Index(s.index, body, s.es.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("es: index event: %w", err)
	}
	return checkResponse("index event", res)
}

// Search matches q against event type and email, newest first.
// An empty q lists everything.
func (s *Store) Search(ctx context.Context, q string, page, size int) (*Page, error) {
	from, size := Calculate(page, size)

	query := map[string]any{"match_all": map[string]any{}}
	if q != "" {
		query = map[string]any{
			"multi_match": map[string]any{
				"query":   q,
				"fields":  []string{"type", "email"},
				"lenient": true,
			},
		}
	}
	body, err := encode(map[string]any{
		"query": query,
		"sort":  []any{map[string]any{"occurred_at": map[string]any{"order": "desc"}}},
		"from":  from,
		"size":  size,
	})
	if err != nil {
		return nil, err
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(body),
		s.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("es: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("es: search: %s: %s", res.Status(), msg)
	}

	var r struct {
		Hits struct {
			Total struct{ Value int64 } `json:"total"`
			Hits  []struct {
				Source events.Event `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("es: decode search: %w", err)
	}

	out := &Page{Total: r.Hits.Total.Value, Events: make([]events.Event, len(r.Hits.Hits))}
	for i, hit := range r.Hits.Hits {
		out.Events[i] = hit.Source
	}
	return out, nil
}

// Calculate turns a 1-based page and a page size into an offset and limit.
func Calculate(page, size int) (from, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = 10
	}
	return (page - 1) * size, size
}

func encode(v any) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("es: encode: %w", err)
	}
	return &buf, nil
}

func checkResponse(op string, res *esapi.Response) error {
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("es: %s: %s: %s", op, res.Status(), msg)
	}
	return nil
}
