package builtin

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

// citableTags are the block-level elements worth citing individually; a
// claim entailed against one paragraph shouldn't be scored against the
// whole article.
var citableTags = "p, li, blockquote, h1, h2, h3, h4, h5, h6"

// ResearchSpec is the registry entry for the research tool: fetch a URL,
// extract its main content, and return it as markdown plus a CitationRef
// the Verifier can later check claims against.
var ResearchSpec = &models.ToolSpec{
	Name:        "research",
	Description: "Fetches a web page and returns its main content as markdown, with a citation the Verifier can check claims against.",
	ArgSchema: models.ArgSchema{
		Required: []string{"url"},
		Properties: map[string]models.ArgConstraint{
			"url": {Type: "string"},
		},
	},
	RiskTier:       models.RiskSafe,
	RateLimitClass: "safe",
	SideEffect:     models.SideEffectNetwork,
}

// Research implements ports.ToolHandler. The extraction pipeline (fetch →
// readability → goquery segmentation → markdown) is internal to this tool,
// per the design note that research's sub-steps are not separately
// represented ActionPlans.
type Research struct {
	client *http.Client
	store  ports.CitationStore
}

// NewResearch builds a Research tool. store persists each cited paragraph's
// content so the Verifier can resolve a CitationRef back to the bytes it
// was scored against, independent of the ExecutionResult that produced it.
func NewResearch(store ports.CitationStore) *Research {
	return &Research{
		client: &http.Client{
			Timeout: 20 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		store: store,
	}
}

func (r *Research) Run(ctx context.Context, args map[string]any, execCtx *ports.ExecutionContext) (*models.ExecutionResult, error) {
	start := time.Now()

	if !execCtx.HasCapability(ports.CapNetwork) {
		return nil, fmt.Errorf("research tool requires network capability")
	}

	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "cogexec-research/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return &models.ExecutionResult{Success: false, ErrorKind: "network_error", ErrorMessage: err.Error(), Duration: time.Since(start)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &models.ExecutionResult{
			Success:      false,
			ErrorKind:    "http_error",
			ErrorMessage: fmt.Sprintf("HTTP %d", resp.StatusCode),
			Duration:     time.Since(start),
		}, nil
	}

	var bodyBuf bytes.Buffer
	limited := io.LimitReader(resp.Body, int64(maxBodyBytes(execCtx)))
	truncated := false
	n, err := bodyBuf.ReadFrom(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if n == int64(maxBodyBytes(execCtx)) {
		truncated = true
	}

	article, err := readability.FromReader(bytes.NewReader(bodyBuf.Bytes()), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}

	var htmlBuf bytes.Buffer
	if err := article.RenderHTML(&htmlBuf); err != nil {
		return nil, fmt.Errorf("failed to render extracted content: %w", err)
	}

	markdown, err := htmltomarkdown.ConvertString(htmlBuf.String(), converter.WithDomain(parsedURL.Host))
	if err != nil {
		return nil, fmt.Errorf("failed to convert to markdown: %w", err)
	}
	markdown = strings.TrimSpace(markdown)

	citations := r.citeByParagraph(ctx, rawURL, htmlBuf.String(), markdown, parsedURL.Host)

	return &models.ExecutionResult{
		Success: true,
		Value: map[string]any{
			"title":   article.Title(),
			"content": markdown,
			"url":     rawURL,
		},
		SideEffects: []models.SideEffectEntry{{Kind: "http_fetch", Target: rawURL}},
		Duration:    time.Since(start),
		Citations:   citations,
		Truncated:   truncated,
	}, nil
}

// citeByParagraph walks the extracted article's block-level elements with
// goquery and locates each one's rendered markdown inside the full
// document, producing one CitationRef per paragraph instead of a single
// whole-document span. This is what lets the Verifier score a claim
// against the specific passage it came from rather than the entire page.
// Paragraphs it can't locate (conversion reflowed whitespace, nested
// markup) are skipped; if none can be matched the whole document is cited
// as a single fallback span.
func (r *Research) citeByParagraph(ctx context.Context, rawURL, articleHTML, markdown, domainHost string) []models.CitationRef {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(articleHTML))
	if err != nil {
		return []models.CitationRef{wholeDocumentCitation(rawURL, markdown)}
	}

	var citations []models.CitationRef
	cursor := 0

	doc.Find(citableTags).Each(func(_ int, s *goquery.Selection) {
		frag, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		segment, err := htmltomarkdown.ConvertString(frag, converter.WithDomain(domainHost))
		if err != nil {
			return
		}
		segment = strings.TrimSpace(segment)
		if segment == "" {
			return
		}

		idx := strings.Index(markdown[cursor:], segment)
		if idx == -1 {
			return
		}
		start := cursor + idx
		end := start + len(segment)
		cursor = end

		ref := models.CitationRef{
			SourceURI:   rawURL,
			ByteSpan:    [2]int{start, end},
			ContentHash: contentHash(segment),
		}
		if r.store != nil {
			if _, err := r.store.Put(ctx, ref, []byte(segment)); err != nil {
				log.Printf("research: failed to persist citation for %s[%d:%d]: %v", rawURL, start, end, err)
			}
		}
		citations = append(citations, ref)
	})

	if len(citations) == 0 {
		fallback := wholeDocumentCitation(rawURL, markdown)
		if r.store != nil {
			if _, err := r.store.Put(ctx, fallback, []byte(markdown)); err != nil {
				log.Printf("research: failed to persist fallback citation for %s: %v", rawURL, err)
			}
		}
		citations = append(citations, fallback)
	}
	return citations
}

func wholeDocumentCitation(rawURL, markdown string) models.CitationRef {
	return models.CitationRef{
		SourceURI:   rawURL,
		ByteSpan:    [2]int{0, len(markdown)},
		ContentHash: contentHash(markdown),
	}
}

func contentHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

func maxBodyBytes(execCtx *ports.ExecutionContext) int {
	if execCtx.MaxOutput > 0 {
		return execCtx.MaxOutput * 8 // room for raw HTML ahead of extraction/truncation
	}
	return 2 << 20
}
