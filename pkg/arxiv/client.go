// Package arxiv is a minimal client for the arXiv Atom query API.
package arxiv

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/example/paperwatch/internal/model"
)

// ProviderError wraps any network or parse failure from the search API so the
// worker can classify it without inspecting the cause.
type ProviderError struct {
	Query string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("arxiv: query %q: %v", e.Query, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client queries the arXiv export API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	parser     *gofeed.Parser
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		parser:     gofeed.NewParser(),
	}
}

// abs/2301.00001v2 -> 2301.00001
var versionSuffix = regexp.MustCompile(`v\d+$`)

// Search returns up to limit papers matching the topic, newest submissions
// first. Categories, when present, restrict results to those arXiv categories.
func (c *Client) Search(ctx context.Context, topic string, categories []string, offset, limit int) ([]model.PaperSummary, error) {
	query := buildQuery(topic, categories)

	q := url.Values{}
	q.Set("search_query", query)
	q.Set("start", strconv.Itoa(offset))
	q.Set("max_results", strconv.Itoa(limit))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &ProviderError{Query: query, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Query: query, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Query: query, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, &ProviderError{Query: query, Err: err}
	}

	papers := make([]model.PaperSummary, 0, len(feed.Items))
	for _, item := range feed.Items {
		papers = append(papers, toPaper(item))
	}
	return papers, nil
}

func buildQuery(topic string, categories []string) string {
	query := fmt.Sprintf("all:%q", model.NormalizeTopic(topic))
	if len(categories) > 0 {
		cats := make([]string, len(categories))
		for i, c := range categories {
			cats[i] = "cat:" + c
		}
		query += " AND (" + strings.Join(cats, " OR ") + ")"
	}
	return query
}

func toPaper(item *gofeed.Item) model.PaperSummary {
	p := model.PaperSummary{
		PaperID:    PaperID(item.GUID),
		Title:      strings.Join(strings.Fields(item.Title), " "),
		Summary:    strings.TrimSpace(item.Description),
		Link:       item.Link,
		Categories: item.Categories,
	}
	if p.Link == "" {
		p.Link = item.GUID
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			p.Authors = append(p.Authors, a.Name)
		}
	}
	if item.PublishedParsed != nil {
		p.Published = *item.PublishedParsed
	}
	return p
}

// PaperID extracts the bare arXiv identifier from an entry id URL, dropping
// the version so re-submissions dedup against the original.
func PaperID(entryID string) string {
	id := entryID
	if i := strings.LastIndex(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}
	return versionSuffix.ReplaceAllString(id, "")
}
