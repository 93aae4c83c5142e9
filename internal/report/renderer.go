package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/qs3c/repo_insight_server/internal/model"
)

// ArtifactName 报告产物文件名：insight_<jobID>_<时间戳>.txt
func ArtifactName(jobID string, at time.Time) string {
	return fmt.Sprintf("insight_%s_%s.txt", jobID, at.UTC().Format("20060102150405"))
}

// RenderText 把最终报告渲染成纯文本产物，供下载与归档
func RenderText(jobID string, r *model.FinalReport) []byte {
	var b strings.Builder

	line := strings.Repeat("=", 64)
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, "仓库分析报告  %s\n", r.RepositoryOverview.Name)
	fmt.Fprintf(&b, "任务 ID: %s\n", jobID)
	fmt.Fprintf(&b, "生成时间: %s\n", r.GeneratedAt.Format(time.RFC3339))
	b.WriteString(line + "\n\n")

	b.WriteString("[摘要]\n")
	b.WriteString(r.ExecutiveSummary + "\n\n")

	b.WriteString("[评分]\n")
	fmt.Fprintf(&b, "综合质量     %3d/100\n", r.Scores.OverallQuality)
	fmt.Fprintf(&b, "架构         %3d/100\n", r.Scores.Architecture)
	fmt.Fprintf(&b, "代码质量     %3d/100\n", r.Scores.CodeQuality)
	fmt.Fprintf(&b, "安全         %3d/100\n", r.Scores.Security)
	fmt.Fprintf(&b, "可维护性     %3d/100\n", r.Scores.Maintainability)
	fmt.Fprintf(&b, "性能         %3d/100\n\n", r.Scores.Performance)

	b.WriteString("[仓库概况]\n")
	fmt.Fprintf(&b, "文件总数: %d，代码文件: %d，代码行数: %d\n",
		r.RepositoryOverview.TotalFiles, r.RepositoryOverview.CodeFiles, r.RepositoryOverview.LinesOfCode)
	if len(r.RepositoryOverview.Languages) > 0 {
		b.WriteString("语言分布: ")
		b.WriteString(formatLanguages(r.RepositoryOverview.Languages))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("[技术指标]\n")
	fmt.Fprintf(&b, "平均圈复杂度: %.1f，高复杂度文件: %d\n",
		r.TechnicalMetrics.AverageComplexity, r.TechnicalMetrics.HighComplexityCount)
	fmt.Fprintf(&b, "安全问题: %d，坏味道: %d\n",
		r.TechnicalMetrics.SecurityVulnerabilities, r.TechnicalMetrics.CodeSmells)
	fmt.Fprintf(&b, "依赖总数: %d，待跟进: %d\n\n",
		r.TechnicalMetrics.DependenciesTotal, r.TechnicalMetrics.DependenciesOutdated)

	b.WriteString("[AI 洞察]\n")
	if r.AIError {
		fmt.Fprintf(&b, "(部分维度降级: %s)\n", r.AIErrorDetail)
	}
	if r.AIInsights.ArchitecturePattern != "" {
		fmt.Fprintf(&b, "架构模式: %s\n", r.AIInsights.ArchitecturePattern)
	}
	writeSection(&b, "架构", r.AIInsights.ArchitectureSummary)
	writeSection(&b, "质量", r.AIInsights.QualitySummary)
	writeSection(&b, "安全", r.AIInsights.SecuritySummary)
	writeList(&b, "优势", r.AIInsights.Strengths)
	writeList(&b, "薄弱点", r.AIInsights.Weaknesses)
	writeList(&b, "安全风险", r.AIInsights.SecurityRisks)
	b.WriteString("\n")

	writeList(&b, "改进建议", r.Recommendations)

	return []byte(b.String())
}

func writeSection(b *strings.Builder, title, body string) {
	if body == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", title, body)
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}

func formatLanguages(langs map[string]int) string {
	keys := make([]string, 0, len(langs))
	for k := range langs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if langs[keys[i]] != langs[keys[j]] {
			return langs[keys[i]] > langs[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s(%d)", k, langs[k]))
	}
	return strings.Join(parts, ", ")
}
