package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	einotool "github.com/cloudwego/eino/components/tool"
)

const webfetchDescription = `Fetches content from a specified URL and returns it in the requested format.

Usage notes:
  - IMPORTANT: If an MCP-provided web fetch tool is available, prefer using that tool instead of this one, as it may have fewer restrictions.
  - The URL must be a fully-formed valid URL starting with http:// or https://
  - HTTP URLs are fetched as given; they are not upgraded to HTTPS
  - This tool is read-only and does not modify any files
  - Responses larger than 5MB are rejected with an error
  - Use format "markdown" for readable content, "text" for plain text, "html" for raw HTML`

const (
	maxResponseSize = 5 * 1024 * 1024 // 5MB
	defaultTimeout  = 30 * time.Second
	maxTimeout      = 120 * time.Second
)

// fetchAcceptHeaders orders content negotiation by the requested format.
var fetchAcceptHeaders = map[string]string{
	"markdown": "text/markdown;q=1.0, text/x-markdown;q=0.9, text/plain;q=0.8, text/html;q=0.7, */*;q=0.1",
	"text":     "text/plain;q=1.0, text/markdown;q=0.9, text/html;q=0.8, */*;q=0.1",
	"html":     "text/html;q=1.0, application/xhtml+xml;q=0.9, text/plain;q=0.8, text/markdown;q=0.7, */*;q=0.1",
}

// WebFetchTool retrieves a URL and renders it as text, markdown, or HTML.
type WebFetchTool struct {
	workDir string
	client  *http.Client
}

// WebFetchInput is the decoded input for the webfetch tool.
type WebFetchInput struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Timeout int    `json:"timeout,omitempty"`
}

// NewWebFetchTool creates a webfetch tool.
func NewWebFetchTool(workDir string) *WebFetchTool {
	return &WebFetchTool{
		workDir: workDir,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

func (t *WebFetchTool) ID() string          { return "webfetch" }
func (t *WebFetchTool) Description() string { return webfetchDescription }

func (t *WebFetchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The URL to fetch content from"
			},
			"format": {
				"type": "string",
				"enum": ["text", "markdown", "html"],
				"description": "The format to return the content in (text, markdown, or html)"
			},
			"timeout": {
				"type": "integer",
				"description": "Optional timeout in seconds (max 120)"
			}
		},
		"required": ["url", "format"]
	}`)
}

func (t *WebFetchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WebFetchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return nil, fmt.Errorf("URL must start with http:// or https://")
	}
	accept, ok := fetchAcceptHeaders[params.Format]
	if !ok {
		return nil, fmt.Errorf("format must be 'text', 'markdown', or 'html'")
	}

	timeout := defaultTimeout
	if params.Timeout > 0 {
		timeout = min(time.Duration(params.Timeout)*time.Second, maxTimeout)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, params.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", accept)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status code: %d", resp.StatusCode)
	}
	if resp.ContentLength > maxResponseSize {
		return nil, fmt.Errorf("response too large (exceeds 5MB limit)")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("response too large (exceeds 5MB limit)")
	}

	contentType := resp.Header.Get("Content-Type")
	output, err := renderFetched(string(body), contentType, params.Format)
	if err != nil {
		return nil, err
	}

	return &Result{
		Title:    fmt.Sprintf("%s (%s)", params.URL, contentType),
		Output:   output,
		Metadata: map[string]any{},
	}, nil
}

// renderFetched converts an HTML body into the requested format; non-HTML
// responses pass through untouched.
func renderFetched(content, contentType, format string) (string, error) {
	if !strings.Contains(contentType, "text/html") {
		return content, nil
	}
	switch format {
	case "markdown":
		out, err := htmlToMarkdown(content)
		if err != nil {
			return "", fmt.Errorf("failed to convert HTML to markdown: %w", err)
		}
		return out, nil
	case "text":
		out, err := htmlToText(content)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from HTML: %w", err)
		}
		return out, nil
	default:
		return content, nil
	}
}

func (t *WebFetchTool) EinoTool() einotool.InvokableTool {
	return &einoAdapter{tool: t}
}

// htmlToText strips scripts, styles, and embeds, returning the page text.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, object, embed").Remove()
	return strings.TrimSpace(doc.Text()), nil
}

// htmlToMarkdown renders HTML as fenced-code, ATX-heading markdown.
func htmlToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	converter.Remove("script", "style", "meta", "link")
	return converter.ConvertString(html)
}
