package desktop

import (
	"context"
	"log/slog"
)

type FileInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// SearchFiles is a stand-in for an OS file index; the query does not narrow
// the result.
func SearchFiles(ctx context.Context, query string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.Debug("searching files", "query", query)
	return []FileInfo{
		{Name: "report.docx", Path: "/documents/reports/report.docx"},
		{Name: "image.png", Path: "/pictures/image.png"},
	}, nil
}
