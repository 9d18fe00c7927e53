package extractor

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collyfetcher "github.com/aitoolsdir/harvester/internal/fetcher/colly"
	"github.com/aitoolsdir/harvester/internal/harvest"
)

func rawWith(website string) harvest.RawCandidate {
	return harvest.RawCandidate{Name: "ToolCo", Website: website}
}

const listingHTML = `<html><head>
<link rel="canonical" href="https://listing.example/tool/toolco"/>
<title>ToolCo on Listing</title>
</head><body>
<a href="https://listing.example/tool/other">other tool</a>
<a href="https://toolco.com/" target="_blank" rel="noopener noreferrer">Visit Website</a>
</body></html>`

const homeHTML = `<html><head>
<meta property="og:title" content="ToolCo - AI Workflows"/>
<meta name="description" content="ToolCo helps teams automate repetitive work with AI agents and integrations."/>
<meta name="keywords" content="ai automation, workflows"/>
<link rel="icon" href="/icons/icon-192.png" sizes="192x192"/>
<link rel="shortcut icon" href="/favicon.ico"/>
<title>ToolCo</title>
</head><body><h1>ToolCo</h1></body></html>`

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

func newTestExtractor(t *testing.T, transport *httpmock.MockTransport, cfg Config) *Extractor {
	t.Helper()
	f := collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}, nil)
	f.WithTransport(transport)
	ex, err := New(f, nil, nil, cfg, nil)
	require.NoError(t, err)
	return ex
}

func TestExtractFullChain(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://listing.example/tool/toolco", htmlResponder(listingHTML))
	transport.RegisterResponder("GET", "https://toolco.com/", htmlResponder(homeHTML))

	ex := newTestExtractor(t, transport, Config{})
	cand, err := ex.Extract(context.Background(), "https://listing.example/tool/toolco", "listing")
	require.NoError(t, err)

	assert.Equal(t, "https://toolco.com/", cand.Website)
	assert.Equal(t, "ToolCo - AI Workflows", cand.Name)
	assert.Contains(t, cand.Description, "automate repetitive work")
	assert.Equal(t, "https://toolco.com/icons/icon-192.png", cand.Logo)
	assert.Equal(t, "Ai Automation", cand.Category)
	assert.Equal(t, "listing", cand.Source)
}

func TestExtractHomepageUnreachable(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://listing.example/tool/toolco", htmlResponder(listingHTML))
	// toolco.com homepage deliberately unregistered: connection error.

	ex := newTestExtractor(t, transport, Config{})
	cand, err := ex.Extract(context.Background(), "https://listing.example/tool/toolco", "listing")
	require.NoError(t, err)

	// Website still resolved from the listing; name falls back to the
	// listing page title; logo and category need the homepage and stay empty.
	assert.Equal(t, "https://toolco.com/", cand.Website)
	assert.Equal(t, "ToolCo on Listing", cand.Name)
	assert.Empty(t, cand.Logo)
	assert.Empty(t, cand.Category)
}

func TestExtractSearchFallback(t *testing.T) {
	t.Parallel()

	bare := `<html><head><title>ToolCo</title></head><body><h1>ToolCo</h1></body></html>`
	snippet := `<html><body><div class="result__snippet">ToolCo is an AI automation platform used by thousands of teams worldwide.</div></body></html>`

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://listing.example/tool/toolco", htmlResponder(listingHTML))
	transport.RegisterResponder("GET", "https://toolco.com/", htmlResponder(bare))
	transport.RegisterResponder("GET", "https://duckduckgo.com/html/", htmlResponder(snippet))

	ex := newTestExtractor(t, transport, Config{SearchFallback: true})
	cand, err := ex.Extract(context.Background(), "https://listing.example/tool/toolco", "listing")
	require.NoError(t, err)
	assert.Contains(t, cand.Description, "AI automation platform")
}

func TestExtractListingUnreachable(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	ex := newTestExtractor(t, transport, Config{})
	_, err := ex.Extract(context.Background(), "https://listing.example/gone", "listing")
	require.Error(t, err)
}

func TestHomepageMemoized(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://listing.example/tool/toolco", htmlResponder(listingHTML))
	transport.RegisterResponder("GET", "https://toolco.com/", htmlResponder(homeHTML))

	ex := newTestExtractor(t, transport, Config{})
	for range 3 {
		_, err := ex.Extract(context.Background(), "https://listing.example/tool/toolco", "listing")
		require.NoError(t, err)
	}
	info := transport.GetCallCountInfo()
	assert.Equal(t, 1, info["GET https://toolco.com/"])
}
