package analyzer

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Inventory 仓库清点结果：语言分布、文件与代码行数统计
type Inventory struct {
	Name         string         `json:"name"`
	Languages    map[string]int `json:"languages"` // 语言 -> 文件数
	TotalFiles   int            `json:"total_files"`
	CodeFiles    int            `json:"code_files"`
	LinesOfCode  int            `json:"lines_of_code"`
	// 按行数降序排列的代码文件（仓库内相对路径），AI 阶段取样用
	RankedFiles []CodeFile `json:"-"`
}

// CodeFile 单个代码文件的度量
type CodeFile struct {
	Path     string `json:"path"` // 相对仓库根目录
	Language string `json:"language"`
	Lines    int    `json:"lines"`
}

// PrimaryLanguage 返回文件数最多的语言，空仓库返回 "Unknown"
func (inv *Inventory) PrimaryLanguage() string {
	best, bestCount := "Unknown", 0
	for lang, n := range inv.Languages {
		if n > bestCount || (n == bestCount && lang < best) {
			best, bestCount = lang, n
		}
	}
	return best
}

// 扩展名 -> 语言
var languageByExt = map[string]string{
	".py":    "Python",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".go":    "Go",
	".java":  "Java",
	".rb":    "Ruby",
	".rs":    "Rust",
	".c":     "C",
	".h":     "C",
	".cpp":   "C++",
	".cc":    "C++",
	".hpp":   "C++",
	".cs":    "C#",
	".php":   "PHP",
	".swift": "Swift",
	".kt":    "Kotlin",
	".scala": "Scala",
	".sh":    "Shell",
	".sql":   "SQL",
	".html":  "HTML",
	".css":   "CSS",
	".vue":   "Vue",
}

// 不进入统计的目录
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".idea":        true,
	".vscode":      true,
}

const maxScanFileSize = 2 << 20 // 超过 2MB 的文件只计数不读内容

// ScanRepository 遍历克隆后的仓库目录，统计语言、文件与行数。
// repoName 取 URL 最后一段，由调用方传入。
func ScanRepository(root, repoName string) (*Inventory, error) {
	inv := &Inventory{
		Name:      repoName,
		Languages: make(map[string]int),
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		inv.TotalFiles++

		ext := strings.ToLower(filepath.Ext(path))
		lang, ok := languageByExt[ext]
		if !ok {
			return nil
		}
		inv.CodeFiles++
		inv.Languages[lang]++

		info, err := d.Info()
		if err != nil || info.Size() > maxScanFileSize {
			return nil
		}
		lines, err := countLines(path)
		if err != nil {
			return nil // 单文件读取失败不影响整体清点
		}
		inv.LinesOfCode += lines

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		inv.RankedFiles = append(inv.RankedFiles, CodeFile{
			Path:     filepath.ToSlash(rel),
			Language: lang,
			Lines:    lines,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan repository: %w", err)
	}

	sort.Slice(inv.RankedFiles, func(i, j int) bool {
		if inv.RankedFiles[i].Lines != inv.RankedFiles[j].Lines {
			return inv.RankedFiles[i].Lines > inv.RankedFiles[j].Lines
		}
		return inv.RankedFiles[i].Path < inv.RankedFiles[j].Path
	})
	return inv, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}
