package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
)

// LogEntry is a single log line with a parsed timestamp. Service is empty
// for entries read from plain log files.
type LogEntry struct {
	Message string `json:"message"`
	Service string `json:"service,omitempty"`
	TS      string `json:"ts"` // RFC3339
}

// LogQuery selects log entries for one day. Since, Search and Service are
// optional; Service narrows to a single binary (agent, toolagent, notifier)
// since all three ship to the same index.
type LogQuery struct {
	Date    string // yyyyMMdd, required
	Since   string // RFC3339; only entries strictly after this instant
	Search  string // full-text query against the message field
	Service string // exact service tag
}

// dayBounds returns the [start, end) RFC3339 window for the query's date.
func (q LogQuery) dayBounds() (string, string, error) {
	t, err := time.Parse("20060102", q.Date)
	if err != nil {
		return "", "", fmt.Errorf("invalid log date %q: %w", q.Date, err)
	}
	return t.UTC().Format(time.RFC3339), t.Add(24 * time.Hour).UTC().Format(time.RFC3339), nil
}

// esQuery builds the ES bool query for this selection.
func (q LogQuery) esQuery() (map[string]interface{}, error) {
	start, end, err := q.dayBounds()
	if err != nil {
		return nil, err
	}
	window := map[string]interface{}{"lt": end}
	if q.Since != "" {
		window["gt"] = q.Since
	} else {
		window["gte"] = start
	}

	must := []interface{}{
		map[string]interface{}{"range": map[string]interface{}{"@timestamp": window}},
	}
	if q.Search != "" {
		must = append(must, map[string]interface{}{
			"simple_query_string": map[string]interface{}{
				"query":  q.Search,
				"fields": []string{"message"},
			},
		})
	}
	if q.Service != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"service": q.Service},
		})
	}
	if len(must) == 1 {
		return must[0].(map[string]interface{}), nil
	}
	return map[string]interface{}{"bool": map[string]interface{}{"must": must}}, nil
}

// ESClient queries the index the logger's esWriter ships to. All three
// binaries (agent, toolagent, notifier) write to the same index, so the
// entries carry a service tag.
type ESClient struct {
	client *elasticsearch.Client
	index  string
}

// NewESClient creates a client for querying logs from ES. Caller should close the client when done.
func NewESClient(addresses []string, index string) (*ESClient, error) {
	if len(addresses) == 0 || index == "" {
		return nil, nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, err
	}
	return &ESClient{client: client, index: index}, nil
}

// Close releases the ES client.
func (c *ESClient) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close(context.Background())
	}
	return nil
}

// search runs one search request against the log index and decodes the
// response into out.
func (c *ESClient) search(ctx context.Context, body map[string]interface{}, out interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	res, err := esapi.SearchRequest{Index: []string{c.index}, Body: &buf}.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return errFromESResponse(res)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// GetDates returns sorted list of dates (yyyyMMdd) that have logs in ES, most recent first.
func (c *ESClient) GetDates(ctx context.Context) ([]string, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	body := map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"by_day": map[string]interface{}{
				"date_histogram": map[string]interface{}{
					"field":    "@timestamp",
					"interval": "day",
					"format":   "yyyyMMdd",
				},
			},
		},
	}
	var out struct {
		Aggregations struct {
			ByDay struct {
				Buckets []struct {
					KeyAsString string `json:"key_as_string"`
				} `json:"buckets"`
			} `json:"by_day"`
		} `json:"aggregations"`
	}
	if err := c.search(ctx, body, &out); err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(out.Aggregations.ByDay.Buckets))
	for _, b := range out.Aggregations.ByDay.Buckets {
		if b.KeyAsString != "" {
			dates = append(dates, b.KeyAsString)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// SearchLogs returns every entry matching the query, in ascending time
// order. Days can exceed the ES result window, so it pages with
// search_after until the day is exhausted.
func (c *ESClient) SearchLogs(ctx context.Context, q LogQuery) ([]LogEntry, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	query, err := q.esQuery()
	if err != nil {
		return nil, err
	}

	const pageSize = 10000
	var (
		entries     []LogEntry
		searchAfter []interface{}
	)
	for {
		body := map[string]interface{}{
			"size":    pageSize,
			"sort":    []map[string]interface{}{{"@timestamp": map[string]string{"order": "asc"}}},
			"_source": []string{"message", "service", "@timestamp"},
			"query":   query,
		}
		if len(searchAfter) > 0 {
			body["search_after"] = searchAfter
		}

		var out struct {
			Hits struct {
				Hits []struct {
					Source struct {
						Message   string `json:"message"`
						Service   string `json:"service"`
						Timestamp string `json:"@timestamp"`
					} `json:"_source"`
					Sort []interface{} `json:"sort"`
				} `json:"hits"`
			} `json:"hits"`
		}
		if err := c.search(ctx, body, &out); err != nil {
			return nil, err
		}

		hits := out.Hits.Hits
		if len(hits) == 0 {
			break
		}
		for _, h := range hits {
			msg := strings.TrimSpace(h.Source.Message)
			if msg == "" {
				continue
			}
			entries = append(entries, LogEntry{
				Message: msg,
				Service: h.Source.Service,
				TS:      h.Source.Timestamp,
			})
		}
		if len(hits) < pageSize {
			break
		}
		searchAfter = hits[len(hits)-1].Sort
		if len(searchAfter) == 0 {
			break
		}
	}
	return entries, nil
}

// GetCheckpoint returns the RFC3339 timestamp of the most recent log entry for the given date.
// Returns an empty string when no entries exist.
func (c *ESClient) GetCheckpoint(ctx context.Context, dateStr string) (string, error) {
	if c == nil || c.client == nil {
		return "", nil
	}
	query, err := LogQuery{Date: dateStr}.esQuery()
	if err != nil {
		return "", err
	}
	body := map[string]interface{}{
		"size":    1,
		"sort":    []map[string]interface{}{{"@timestamp": map[string]string{"order": "desc"}}},
		"_source": []string{"@timestamp"},
		"query":   query,
	}
	var out struct {
		Hits struct {
			Hits []struct {
				Source struct {
					Timestamp string `json:"@timestamp"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := c.search(ctx, body, &out); err != nil {
		return "", err
	}
	if len(out.Hits.Hits) == 0 {
		return "", nil
	}
	return out.Hits.Hits[0].Source.Timestamp, nil
}

func errFromESResponse(res *esapi.Response) error {
	var e struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	_ = json.NewDecoder(res.Body).Decode(&e)
	if e.Error.Reason != "" {
		return &esError{status: res.StatusCode, reason: e.Error.Reason}
	}
	return &esError{status: res.StatusCode, reason: res.String()}
}

type esError struct {
	status int
	reason string
}

func (e *esError) Error() string {
	return e.reason
}
