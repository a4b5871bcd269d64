// Package fileio provides the "list_files_in_directory" tool, which reports
// the regular files directly inside a directory together with their size and
// modification time.
//
// Failures never surface as Go errors: a missing directory, a permission
// problem or any other I/O failure is reported inside the result payload as
// {"error": "..."} so the model can read it.
//
// By default any directory may be listed. [WithRoot] confines listings to a
// directory tree; paths escaping it are reported as not found.
package fileio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/mcpagent/internal/mcp/tools"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// ToolName is the name the tool is declared under.
const ToolName = "list_files_in_directory"

// TimeLayout matches the C ctime format, e.g. "Mon Jan  2 15:04:05 2006".
const TimeLayout = "Mon Jan _2 15:04:05 2006"

// listArgs is the JSON-decoded input for the tool.
type listArgs struct {
	DirectoryPath string `json:"directory_path"`
}

// FileInfo is one entry of the tool's JSON output.
type FileInfo struct {
	Filename     string `json:"filename"`
	SizeBytes    int64  `json:"size_bytes"`
	ModifiedTime string `json:"modified_time"`
	Path         string `json:"path"`
}

type config struct {
	root string
}

// Option configures the tool set.
type Option func(*config)

// WithRoot restricts listings to dir and its subdirectories.
func WithRoot(dir string) Option {
	return func(c *config) {
		c.root = dir
	}
}

// insideRoot reports whether path resolves to root or a directory below it.
func insideRoot(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return absPath == absRoot || strings.HasPrefix(absPath, absRoot+string(filepath.Separator))
}

// errorPayload renders {"error": msg} with the spacing the tool has always
// used.
func errorPayload(msg string) string {
	b, _ := json.Marshal(msg)
	return `{"error": ` + string(b) + `}`
}

// entryPath joins dir and name the way a directory scan reports paths: the
// directory exactly as given, then the name.
func entryPath(dir, name string) string {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir + name
	}
	return dir + string(filepath.Separator) + name
}

// List returns the JSON listing of the regular files directly inside dir,
// indented by two spaces with non-ASCII characters preserved.
func List(dir string) string {
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errorPayload("Directory not found")
		}
		if errors.Is(err, fs.ErrPermission) {
			return errorPayload("Permission denied")
		}
		return errorPayload(err.Error())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return errorPayload("Permission denied")
		}
		return errorPayload(err.Error())
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		path := entryPath(dir, e.Name())
		// Stat follows symlinks so links to regular files are listed too.
		info, err := os.Stat(path)
		if err != nil {
			if e.Type()&fs.ModeSymlink != 0 && errors.Is(err, fs.ErrNotExist) {
				continue // dangling link
			}
			if errors.Is(err, fs.ErrPermission) {
				return errorPayload("Permission denied")
			}
			return errorPayload(err.Error())
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, FileInfo{
			Filename:     e.Name(),
			SizeBytes:    info.Size(),
			ModifiedTime: info.ModTime().Local().Format(TimeLayout),
			Path:         path,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(files); err != nil {
		return errorPayload(err.Error())
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func makeListHandler(cfg config) func(context.Context, string) (string, error) {
	return func(ctx context.Context, raw string) (string, error) {
		var a listArgs
		if err := tools.DecodeArgs(ToolName, raw, &a); err != nil {
			return errorPayload(err.Error()), nil
		}
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%s: %w", ToolName, err)
		}
		if cfg.root != "" && !insideRoot(cfg.root, a.DirectoryPath) {
			return errorPayload("Directory not found"), nil
		}
		return List(a.DirectoryPath), nil
	}
}

// NewTools constructs the file listing tool set.
func NewTools(opts ...Option) []tools.Tool {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	return []tools.Tool{{
		Definition: types.ToolDefinition{
			Name:        ToolName,
			Description: "获取指定目录下的所有文件信息 (文件名, 大小, 修改时间, 路径), 以JSON格式返回。",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"directory_path": map[string]any{
						"type":        "string",
						"description": `目标文件夹的路径 (例如: "./data")`,
					},
				},
				"required": []string{"directory_path"},
			},
		},
		Handler: makeListHandler(cfg),
	}}
}
