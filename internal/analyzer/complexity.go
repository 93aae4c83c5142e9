package analyzer

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ComplexityReport 圈复杂度估算结果
type ComplexityReport struct {
	AverageComplexity float64          `json:"average_complexity"`
	HighCount         int              `json:"high_count"`      // 复杂度 > 10 的文件数
	VeryHighCount     int              `json:"very_high_count"` // 复杂度 > 20 的文件数
	FilesAnalyzed     int              `json:"files_analyzed"`
	Hotspots          []FileComplexity `json:"hotspots,omitempty"` // 复杂度最高的文件，降序
}

// FileComplexity 单文件复杂度
type FileComplexity struct {
	Path       string `json:"path"`
	Complexity int    `json:"complexity"`
}

const (
	highComplexityThreshold     = 10
	veryHighComplexityThreshold = 20
	maxHotspots                 = 10
)

// 分支关键字：每次出现复杂度 +1，基数为 1
var decisionPoint = regexp.MustCompile(`\b(if|else if|elif|for|while|case|when|catch|except|rescue|&&|\|\|)\b|\?\s*[^:]+:|&&|\|\|`)

// MeasureComplexity 对清点出的代码文件做决策点计数，估算平均圈复杂度。
// 这是启发式估算，不做语法解析，跨语言统一按分支关键字计数。
func MeasureComplexity(root string, inv *Inventory) *ComplexityReport {
	report := &ComplexityReport{}
	total := 0

	for _, cf := range inv.RankedFiles {
		c, err := fileComplexity(filepath.Join(root, filepath.FromSlash(cf.Path)))
		if err != nil {
			continue
		}
		report.FilesAnalyzed++
		total += c
		if c > veryHighComplexityThreshold {
			report.VeryHighCount++
			report.HighCount++
		} else if c > highComplexityThreshold {
			report.HighCount++
		}
		report.Hotspots = insertHotspot(report.Hotspots, FileComplexity{Path: cf.Path, Complexity: c})
	}

	if report.FilesAnalyzed > 0 {
		report.AverageComplexity = float64(total) / float64(report.FilesAnalyzed)
	}
	return report
}

func fileComplexity(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	complexity := 1
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}
		complexity += len(decisionPoint.FindAllString(line, -1))
	}
	return complexity, sc.Err()
}

// 维护一个按复杂度降序、定长的热点列表
func insertHotspot(hs []FileComplexity, fc FileComplexity) []FileComplexity {
	hs = append(hs, fc)
	for i := len(hs) - 1; i > 0 && hs[i].Complexity > hs[i-1].Complexity; i-- {
		hs[i], hs[i-1] = hs[i-1], hs[i]
	}
	if len(hs) > maxHotspots {
		hs = hs[:maxHotspots]
	}
	return hs
}
