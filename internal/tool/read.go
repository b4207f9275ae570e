package tool

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
)

const readDescription = `Reads a file from the local filesystem.

Usage:
- The filePath parameter must be an absolute path
- By default, reads up to 2000 lines from the beginning
- You can optionally specify offset and limit for pagination
- Returns file contents with line numbers
- Can read image files and return them as base64 data`

const (
	// readDefaultLimit is how many lines come back without pagination.
	readDefaultLimit = 2000
	// readMaxLineLen truncates pathological single lines.
	readMaxLineLen = 2000
)

// imageMediaTypes maps recognized image extensions to their MIME types.
var imageMediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
}

// ReadTool reads text files (paginated, line-numbered) and images
// (returned as base64 attachments).
type ReadTool struct {
	workDir string
}

// ReadInput is the decoded input for the read tool.
type ReadInput struct {
	FilePath string `json:"filePath"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// NewReadTool creates a read tool rooted at workDir.
func NewReadTool(workDir string) *ReadTool {
	return &ReadTool{workDir: workDir}
}

func (t *ReadTool) ID() string          { return "read" }
func (t *ReadTool) Description() string { return readDescription }

func (t *ReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to read"
			},
			"offset": {
				"type": "integer",
				"description": "Line number to start reading from"
			},
			"limit": {
				"type": "integer",
				"description": "Number of lines to read (default: 2000)"
			}
		},
		"required": ["filePath"]
	}`)
}

func (t *ReadTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ReadInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Limit <= 0 {
		params.Limit = readDefaultLimit
	}

	if isProtectedEnvFile(params.FilePath) {
		return nil, fmt.Errorf("The user has blocked you from reading %s, DO NOT make further attempts to read it", params.FilePath)
	}

	info, err := os.Stat(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", params.FilePath)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", params.FilePath)
	}

	if isImageFile(params.FilePath) {
		return t.readImage(params.FilePath)
	}
	if isBinaryFile(params.FilePath) {
		return nil, fmt.Errorf("file appears to be binary")
	}
	return t.readText(params)
}

func (t *ReadTool) readText(params ReadInput) (*Result, error) {
	file, err := os.Open(params.FilePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var lines []string
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if params.Offset > 0 && lineNum < params.Offset {
			continue
		}
		if len(lines) >= params.Limit {
			break
		}
		line := scanner.Text()
		if len(line) > readMaxLineLen {
			line = line[:readMaxLineLen] + "..."
		}
		lines = append(lines, fmt.Sprintf("%05d| %s", lineNum, line))
	}

	// Wrap in <file> tags so the model can tell content from commentary.
	var sb strings.Builder
	sb.WriteString("<file>\n")
	sb.WriteString(strings.Join(lines, "\n"))

	// Offset is 1-based, so the last line shown is Offset-1+len(lines).
	lastReadLine := len(lines)
	if params.Offset > 0 {
		lastReadLine = params.Offset - 1 + len(lines)
	}
	if lineNum > lastReadLine {
		fmt.Fprintf(&sb, "\n\n(File has more lines. Use 'offset' parameter to read beyond line %d)", lastReadLine)
	} else {
		fmt.Fprintf(&sb, "\n\n(End of file - total %d lines)", lineNum)
	}
	sb.WriteString("\n</file>")

	return &Result{
		Title:  fmt.Sprintf("Read %s", filepath.Base(params.FilePath)),
		Output: sb.String(),
		Metadata: map[string]any{
			"file":       params.FilePath,
			"lines":      len(lines),
			"totalLines": lineNum,
		},
	}, nil
}

func (t *ReadTool) readImage(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	mediaType := detectMediaType(path)
	return &Result{
		Title:  fmt.Sprintf("Read %s", filepath.Base(path)),
		Output: "(Image file)",
		Attachments: []Attachment{{
			Filename:  filepath.Base(path),
			MediaType: mediaType,
			URL:       fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data)),
		}},
	}, nil
}

func (t *ReadTool) EinoTool() einotool.InvokableTool {
	return &einoAdapter{tool: t}
}

func isImageFile(path string) bool {
	_, ok := imageMediaTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

func detectMediaType(path string) string {
	if mt, ok := imageMediaTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// isBinaryFile sniffs the first 8 KB: a NUL byte, or over 30% control
// characters, marks the file as binary.
func isBinaryFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	buf := make([]byte, 8000)
	n, _ := file.Read(buf)
	if n == 0 {
		return false
	}

	nonPrintable := 0
	for _, b := range buf[:n] {
		if b == 0 {
			return true
		}
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(n) > 0.3
}

// isProtectedEnvFile blocks .env-style secret files; samples and examples
// stay readable.
func isProtectedEnvFile(filePath string) bool {
	for _, allowed := range []string{".env.sample", ".example"} {
		if strings.HasSuffix(filePath, allowed) {
			return false
		}
	}
	return strings.Contains(filePath, ".env")
}
