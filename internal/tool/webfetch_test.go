package tool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// serveContent stands up a test server returning fixed content.
func serveContent(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func fetchInput(url, format string) json.RawMessage {
	return json.RawMessage(`{"url": "` + url + `", "format": "` + format + `"}`)
}

func TestWebFetchTool_Properties(t *testing.T) {
	wf := NewWebFetchTool("/tmp")

	if wf.ID() != "webfetch" {
		t.Errorf("want ID 'webfetch', got %q", wf.ID())
	}
	if !strings.Contains(wf.Description(), "URL") {
		t.Error("description should mention 'URL'")
	}

	var schema map[string]any
	if err := json.Unmarshal(wf.Parameters(), &schema); err != nil {
		t.Fatalf("parameters should be valid JSON: %v", err)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("schema should have properties")
	}
	for _, key := range []string{"url", "format", "timeout"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing %q", key)
		}
	}
}

func TestWebFetchTool_RejectsBadURLs(t *testing.T) {
	wf := NewWebFetchTool("/tmp")

	for _, url := range []string{"example.com", "ftp://example.com", "file:///etc/passwd"} {
		t.Run(url, func(t *testing.T) {
			_, err := wf.Execute(context.Background(), fetchInput(url, "text"), testContext())
			if err == nil || !strings.Contains(err.Error(), "http:// or https://") {
				t.Errorf("want scheme error for %q, got %v", url, err)
			}
		})
	}
}

func TestWebFetchTool_RejectsBadFormats(t *testing.T) {
	wf := NewWebFetchTool("/tmp")
	server := serveContent(t, "text/plain", "test")

	for _, format := range []string{"json", "xml", ""} {
		if _, err := wf.Execute(context.Background(), fetchInput(server.URL, format), testContext()); err == nil {
			t.Errorf("want format error for %q", format)
		}
	}
	for _, format := range []string{"text", "markdown", "html"} {
		if _, err := wf.Execute(context.Background(), fetchInput(server.URL, format), testContext()); err != nil {
			t.Errorf("format %q should be accepted: %v", format, err)
		}
	}
}

func TestWebFetchTool_HTMLToMarkdown(t *testing.T) {
	wf := NewWebFetchTool("/tmp")
	server := serveContent(t, "text/html", `<!DOCTYPE html>
<html>
<head><title>Test</title></head>
<body>
<h1>Hello World</h1>
<p>This is a <strong>test</strong> paragraph.</p>
<ul>
<li>Item 1</li>
<li>Item 2</li>
</ul>
</body>
</html>`)

	result, err := wf.Execute(context.Background(), fetchInput(server.URL, "markdown"), testContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	for _, want := range []string{"# Hello World", "**test**", "- Item 1"} {
		if !strings.Contains(result.Output, want) {
			t.Errorf("markdown output missing %q: %q", want, result.Output)
		}
	}
}

func TestWebFetchTool_HTMLToText(t *testing.T) {
	wf := NewWebFetchTool("/tmp")
	server := serveContent(t, "text/html", `<!DOCTYPE html>
<html>
<head>
<title>Test</title>
<script>alert('bad');</script>
<style>body { color: red; }</style>
</head>
<body>
<h1>Hello World</h1>
<p>This is a test.</p>
<script>console.log('hidden');</script>
</body>
</html>`)

	result, err := wf.Execute(context.Background(), fetchInput(server.URL, "text"), testContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !strings.Contains(result.Output, "Hello World") || !strings.Contains(result.Output, "This is a test") {
		t.Errorf("text output missing page content: %q", result.Output)
	}
	for _, leak := range []string{"alert", "console.log", "color: red"} {
		if strings.Contains(result.Output, leak) {
			t.Errorf("script/style content leaked: %q", leak)
		}
	}
}

func TestWebFetchTool_HTMLPassthrough(t *testing.T) {
	wf := NewWebFetchTool("/tmp")
	raw := `<html><body><h1>Test</h1></body></html>`
	server := serveContent(t, "text/html", raw)

	result, err := wf.Execute(context.Background(), fetchInput(server.URL, "html"), testContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Output != raw {
		t.Errorf("html format should return the body untouched, got %q", result.Output)
	}
}

func TestWebFetchTool_PlainTextPassthrough(t *testing.T) {
	wf := NewWebFetchTool("/tmp")
	plain := "This is plain text content."
	server := serveContent(t, "text/plain", plain)

	// Non-HTML responses pass through for every format.
	for _, format := range []string{"text", "markdown", "html"} {
		t.Run(format, func(t *testing.T) {
			result, err := wf.Execute(context.Background(), fetchInput(server.URL, format), testContext())
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if result.Output != plain {
				t.Errorf("want passthrough, got %q", result.Output)
			}
		})
	}
}

func TestWebFetchTool_HTTPError(t *testing.T) {
	wf := NewWebFetchTool("/tmp")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := wf.Execute(context.Background(), fetchInput(server.URL, "text"), testContext())
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("want 404 error, got %v", err)
	}
}

func TestWebFetchTool_InvalidInput(t *testing.T) {
	wf := NewWebFetchTool("/tmp")
	if _, err := wf.Execute(context.Background(), json.RawMessage(`{invalid json}`), testContext()); err == nil {
		t.Error("want error for malformed JSON input")
	}
}

func TestWebFetchTool_ExplicitTimeout(t *testing.T) {
	wf := NewWebFetchTool("/tmp")
	server := serveContent(t, "text/plain", "fast response")

	input := json.RawMessage(`{"url": "` + server.URL + `", "format": "text", "timeout": 5}`)
	result, err := wf.Execute(context.Background(), input, testContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Output != "fast response" {
		t.Errorf("output = %q", result.Output)
	}
}

func TestWebFetchTool_Title(t *testing.T) {
	wf := NewWebFetchTool("/tmp")
	server := serveContent(t, "text/html; charset=utf-8", "<html><body>Test</body></html>")

	result, err := wf.Execute(context.Background(), fetchInput(server.URL, "text"), testContext())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result.Title, server.URL) || !strings.Contains(result.Title, "text/html") {
		t.Errorf("title should carry URL and content type: %q", result.Title)
	}
}

func TestWebFetchTool_EinoTool(t *testing.T) {
	wf := NewWebFetchTool("/tmp")
	info, err := wf.EinoTool().Info(context.Background())
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Name != "webfetch" {
		t.Errorf("want name 'webfetch', got %q", info.Name)
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    string
		wantNot []string
	}{
		{"basic text", "<html><body><p>Hello World</p></body></html>", "Hello World", nil},
		{"skip script", "<html><body><p>Text</p><script>alert('bad')</script></body></html>", "Text", []string{"alert", "bad"}},
		{"skip style", "<html><head><style>body{color:red}</style></head><body><p>Text</p></body></html>", "Text", []string{"color", "red"}},
		{"skip noscript", "<html><body><p>Text</p><noscript>Enable JS</noscript></body></html>", "Text", []string{"Enable JS"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := htmlToText(tt.html)
			if err != nil {
				t.Fatalf("htmlToText failed: %v", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("want %q in %q", tt.want, got)
			}
			for _, leak := range tt.wantNot {
				if strings.Contains(got, leak) {
					t.Errorf("%q should have been stripped from %q", leak, got)
				}
			}
		})
	}
}

func TestHTMLToMarkdown(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    []string
		wantNot []string
	}{
		{"heading", "<h1>Title</h1>", []string{"# Title"}, nil},
		{"bold", "<p><strong>Bold</strong></p>", []string{"**Bold**"}, nil},
		{"italic", "<p><em>Italic</em></p>", []string{"*Italic*"}, nil},
		{"list", "<ul><li>Item 1</li><li>Item 2</li></ul>", []string{"- Item 1", "- Item 2"}, nil},
		{"skip script", "<p>Text</p><script>bad()</script>", []string{"Text"}, []string{"bad", "script"}},
		{"horizontal rule", "<p>Above</p><hr><p>Below</p>", []string{"---"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := htmlToMarkdown(tt.html)
			if err != nil {
				t.Fatalf("htmlToMarkdown failed: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("want %q in %q", want, got)
				}
			}
			for _, leak := range tt.wantNot {
				if strings.Contains(got, leak) {
					t.Errorf("%q should have been stripped from %q", leak, got)
				}
			}
		})
	}
}
