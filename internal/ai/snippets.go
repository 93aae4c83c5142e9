package ai

import (
	"os"
	"path/filepath"

	"github.com/qs3c/repo_insight_server/internal/analyzer"
)

const (
	defaultMaxFiles = 5
	defaultMaxChars = 4000
)

// CollectSnippets 从清点结果里取行数最多的若干代码文件作为模型样本，
// 超长文件截断到 maxChars
func CollectSnippets(root string, inv *analyzer.Inventory, maxFiles, maxChars int) []Snippet {
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	var snippets []Snippet
	for _, cf := range inv.RankedFiles {
		if len(snippets) >= maxFiles {
			break
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(cf.Path)))
		if err != nil {
			continue
		}
		content := string(data)
		if len(content) > maxChars {
			content = content[:maxChars] + "\n... (truncated)"
		}
		snippets = append(snippets, Snippet{
			Path:     cf.Path,
			Language: cf.Language,
			Content:  content,
		})
	}
	return snippets
}
