package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query: search_query=all:"quantum computing"</title>
  <entry>
    <id>http://arxiv.org/abs/2301.00001v2</id>
    <updated>2023-01-02T00:00:00Z</updated>
    <published>2023-01-01T18:30:00Z</published>
    <title>Quantum Error Correction
  with Surface Codes</title>
    <summary>  We study surface codes under realistic noise.
  </summary>
    <author><name>Alice Example</name></author>
    <author><name>Bob Sample</name></author>
    <link href="http://arxiv.org/abs/2301.00001v2" rel="alternate" type="text/html"/>
    <category term="quant-ph" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.ET" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/hep-th/9901001v1</id>
    <published>1999-01-04T00:00:00Z</published>
    <title>Old Style Identifier</title>
    <summary>Legacy identifier scheme.</summary>
    <author><name>Carol Legacy</name></author>
    <link href="http://arxiv.org/abs/hep-th/9901001v1" rel="alternate" type="text/html"/>
    <category term="hep-th" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
</feed>`

func TestClient_Search(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	papers, err := c.Search(context.Background(), "Quantum  Computing", []string{"quant-ph", "cs.ET"}, 0, 25)
	require.NoError(t, err)
	require.Len(t, papers, 2)

	assert.Equal(t, `all:"quantum computing" AND (cat:quant-ph OR cat:cs.ET)`, gotQuery["search_query"][0])
	assert.Equal(t, "0", gotQuery["start"][0])
	assert.Equal(t, "25", gotQuery["max_results"][0])
	assert.Equal(t, "submittedDate", gotQuery["sortBy"][0])

	p := papers[0]
	assert.Equal(t, "2301.00001", p.PaperID, "version suffix must be stripped")
	assert.Equal(t, "Quantum Error Correction with Surface Codes", p.Title, "whitespace must be collapsed")
	assert.Equal(t, []string{"Alice Example", "Bob Sample"}, p.Authors)
	assert.Equal(t, "We study surface codes under realistic noise.", p.Summary)
	assert.Equal(t, []string{"quant-ph", "cs.ET"}, p.Categories)
	assert.Equal(t, "http://arxiv.org/abs/2301.00001v2", p.Link)
	assert.Equal(t, 2023, p.Published.Year())

	assert.Equal(t, "hep-th/9901001", papers[1].PaperID, "legacy ids keep their slash")
}

func TestClient_SearchHTTPErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Search(context.Background(), "topic", nil, 0, 10)
	require.Error(t, err)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
}

func TestClient_SearchParseErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a feed"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Search(context.Background(), "topic", nil, 0, 10)
	require.Error(t, err)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
}

func TestPaperID(t *testing.T) {
	cases := map[string]string{
		"http://arxiv.org/abs/2301.00001v2":    "2301.00001",
		"http://arxiv.org/abs/hep-th/9901001":  "hep-th/9901001",
		"https://arxiv.org/abs/2405.12345v10":  "2405.12345",
		"2301.00001v1":                         "2301.00001",
		"2301.00001":                           "2301.00001",
	}
	for in, want := range cases {
		assert.Equal(t, want, PaperID(in), "input %q", in)
	}
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, `all:"robotics"`, buildQuery("Robotics", nil))
	assert.Equal(t, `all:"robotics" AND (cat:cs.RO)`, buildQuery("robotics", []string{"cs.RO"}))
}
