package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/qs3c/repo_insight_server/internal/ai"
	"github.com/qs3c/repo_insight_server/internal/analyzer"
	"github.com/qs3c/repo_insight_server/internal/model"
)

// Inputs 合成最终报告所需的全部输入。AI 洞察允许为 nil（对应维度降级），
// 此时用静态事实推导兜底结论。
type Inputs struct {
	RepoName     string
	Facts        *analyzer.Facts
	Architecture *ai.Insight
	Quality      *ai.Insight
	Security     *ai.Insight
	AIErrors     []string // 降级维度的错误摘要，写进报告供排障
}

// Synthesize 把静态事实与 AI 洞察合成为最终报告。
// 评分全部由静态事实推导，AI 建议分不参与计算，保证同一仓库多次分析
// 评分可复现。
func Synthesize(in *Inputs) *model.FinalReport {
	facts := in.Facts
	if facts == nil {
		facts = &analyzer.Facts{}
	}

	report := &model.FinalReport{
		RepositoryOverview: buildOverview(in.RepoName, facts),
		Scores:             computeScores(facts),
		TechnicalMetrics:   buildMetrics(facts),
		AIInsights:         buildInsights(in, facts),
		GeneratedAt:        time.Now(),
	}

	if len(in.AIErrors) > 0 {
		report.AIError = true
		report.AIErrorDetail = strings.Join(in.AIErrors, "; ")
	}

	report.Recommendations = buildRecommendations(in, facts, report.Scores)
	report.ExecutiveSummary = buildExecutiveSummary(in.RepoName, facts, report)
	return report
}

func buildOverview(repoName string, facts *analyzer.Facts) model.RepositoryOverview {
	ov := model.RepositoryOverview{Name: repoName, Languages: map[string]int{}}
	if inv := facts.Inventory; inv != nil {
		ov.Languages = inv.Languages
		ov.TotalFiles = inv.TotalFiles
		ov.CodeFiles = inv.CodeFiles
		ov.LinesOfCode = inv.LinesOfCode
	}
	return ov
}

func buildMetrics(facts *analyzer.Facts) model.TechnicalMetrics {
	m := model.TechnicalMetrics{}
	if c := facts.Complexity; c != nil {
		m.AverageComplexity = c.AverageComplexity
		m.HighComplexityCount = c.HighCount
	}
	if s := facts.Security; s != nil {
		m.SecurityVulnerabilities = len(s.Vulnerabilities)
	}
	if c := facts.Complexity; c != nil {
		// 高复杂度文件同时计入坏味道
		m.CodeSmells = c.HighCount + c.VeryHighCount
	}
	if d := facts.Dependencies; d != nil {
		m.DependenciesTotal = d.Total
		m.DependenciesOutdated = d.Outdated
	}
	return m
}

// computeScores 按静态事实打分，各维度公式独立
func computeScores(facts *analyzer.Facts) model.Scores {
	quality := qualityScore(facts)
	return model.Scores{
		OverallQuality:  quality,
		CodeQuality:     quality,
		Architecture:    architectureScore(facts),
		Security:        securityScore(facts),
		Maintainability: maintainabilityScore(facts),
		Performance:     performanceScore(facts),
	}
}

// 质量分：满分 100 扣罚，复杂度、漏洞、坏味道各自设扣分上限
func qualityScore(facts *analyzer.Facts) int {
	score := 100.0
	if c := facts.Complexity; c != nil {
		if c.AverageComplexity > 10 {
			score -= minF(30, (c.AverageComplexity-10)*3)
		}
		score -= minF(20, float64(c.HighCount)*2)
		score -= minF(30, float64(c.VeryHighCount)*5)
	}
	if s := facts.Security; s != nil {
		score -= minF(40, float64(len(s.Vulnerabilities))*8)
	}
	if c := facts.Complexity; c != nil {
		smells := c.HighCount + c.VeryHighCount
		score -= minF(20, float64(smells)*2)
	}
	return clamp(int(score))
}

// 安全分：按漏洞数量分档
func securityScore(facts *analyzer.Facts) int {
	if facts.Security == nil {
		return 95
	}
	n := len(facts.Security.Vulnerabilities)
	switch {
	case n == 0:
		return 95
	case n <= 2:
		return 80
	case n <= 5:
		return 60
	case n <= 10:
		return 35
	default:
		return 15
	}
}

// 架构分：基础 70，按平均文件行数分布与模块化程度加减
func architectureScore(facts *analyzer.Facts) int {
	score := 70
	inv := facts.Inventory
	if inv == nil || inv.CodeFiles == 0 {
		return score
	}
	avgFileSize := float64(inv.LinesOfCode) / float64(inv.CodeFiles)
	switch {
	case avgFileSize >= 50 && avgFileSize <= 200:
		score += 20
	case avgFileSize > 200 && avgFileSize <= 350:
		score += 10
	case avgFileSize > 500:
		score -= 20
	}
	if inv.CodeFiles > 20 && avgFileSize < 300 {
		score += 10
	} else if inv.CodeFiles < 5 && inv.LinesOfCode > 5000 {
		score -= 15
	}
	return clamp(score)
}

// 可维护性分：按平均复杂度分档
func maintainabilityScore(facts *analyzer.Facts) int {
	if facts.Complexity == nil {
		return 90
	}
	avg := facts.Complexity.AverageComplexity
	switch {
	case avg <= 3:
		return 90
	case avg <= 6:
		return 75
	case avg <= 10:
		return 60
	case avg <= 15:
		return 40
	default:
		return 20
	}
}

// 性能分：基础 75，按代码规模与复杂度加减
func performanceScore(facts *analyzer.Facts) int {
	score := 75.0
	if inv := facts.Inventory; inv != nil {
		if inv.LinesOfCode > 100000 {
			score -= 10
		} else if inv.LinesOfCode < 10000 {
			score += 10
		}
	}
	if c := facts.Complexity; c != nil && c.AverageComplexity > 10 {
		score -= minF(25, (c.AverageComplexity-10)*2)
	}
	return clamp(int(score))
}

func buildInsights(in *Inputs, facts *analyzer.Facts) model.AIInsights {
	insights := model.AIInsights{}

	if a := in.Architecture; a != nil {
		insights.ArchitecturePattern = a.Pattern
		insights.ArchitectureSummary = a.Summary
		insights.Strengths = append(insights.Strengths, a.Findings...)
	} else {
		insights.ArchitecturePattern = fallbackPattern(facts)
		insights.ArchitectureSummary = fallbackArchitectureSummary(facts)
	}

	if q := in.Quality; q != nil {
		insights.QualitySummary = q.Summary
		insights.Weaknesses = append(insights.Weaknesses, q.Findings...)
	} else {
		insights.QualitySummary = fallbackQualitySummary(facts)
	}

	if s := in.Security; s != nil {
		insights.SecuritySummary = s.Summary
		insights.SecurityRisks = append(insights.SecurityRisks, s.Findings...)
	} else {
		insights.SecuritySummary = fallbackSecuritySummary(facts)
		if sec := facts.Security; sec != nil {
			for i, v := range sec.Vulnerabilities {
				if i >= 5 {
					break
				}
				insights.SecurityRisks = append(insights.SecurityRisks,
					fmt.Sprintf("%s (%s:%d)", v.Description, v.File, v.Line))
			}
		}
	}
	return insights
}

// AI 架构维度降级时用规模特征猜一个粗粒度形态
func fallbackPattern(facts *analyzer.Facts) string {
	inv := facts.Inventory
	if inv == nil || inv.CodeFiles == 0 {
		return "unknown"
	}
	if inv.CodeFiles > 20 {
		return "modular"
	}
	return "monolithic"
}

func fallbackArchitectureSummary(facts *analyzer.Facts) string {
	inv := facts.Inventory
	if inv == nil {
		return "架构分析不可用，仓库清点数据缺失。"
	}
	return fmt.Sprintf("静态分析结果：共 %d 个代码文件、%d 行代码，主要语言为 %s。AI 架构分析不可用，本结论由静态指标推导。",
		inv.CodeFiles, inv.LinesOfCode, inv.PrimaryLanguage())
}

func fallbackQualitySummary(facts *analyzer.Facts) string {
	if c := facts.Complexity; c != nil {
		return fmt.Sprintf("静态分析结果：平均圈复杂度 %.1f，高复杂度文件 %d 个。AI 质量分析不可用，本结论由静态指标推导。",
			c.AverageComplexity, c.HighCount)
	}
	return "AI 质量分析不可用，且缺少复杂度数据。"
}

func fallbackSecuritySummary(facts *analyzer.Facts) string {
	if s := facts.Security; s != nil {
		return fmt.Sprintf("静态扫描发现 %d 处疑似安全问题，风险等级 %s。AI 安全分析不可用，本结论由规则扫描推导。",
			len(s.Vulnerabilities), s.RiskLevel)
	}
	return "AI 安全分析不可用，且缺少扫描数据。"
}

func buildRecommendations(in *Inputs, facts *analyzer.Facts, scores model.Scores) []string {
	var recs []string
	seen := map[string]bool{}
	add := func(r string) {
		if r != "" && !seen[r] {
			seen[r] = true
			recs = append(recs, r)
		}
	}

	for _, insight := range []*ai.Insight{in.Architecture, in.Quality, in.Security} {
		if insight == nil {
			continue
		}
		for _, r := range insight.Recommendations {
			add(r)
		}
	}

	// 静态事实推导的建议兜底，AI 全部可用时也保留规则建议
	if c := facts.Complexity; c != nil && c.HighCount > 0 {
		add(fmt.Sprintf("重构 %d 个高复杂度文件，优先处理圈复杂度超过 20 的部分", c.HighCount))
	}
	if s := facts.Security; s != nil && len(s.Vulnerabilities) > 0 {
		add(fmt.Sprintf("修复静态扫描发现的 %d 处安全问题，优先处理 critical 级别", len(s.Vulnerabilities)))
	}
	if d := facts.Dependencies; d != nil && d.Outdated > 0 {
		add(fmt.Sprintf("检查 %d 个钉死版本的依赖是否需要升级", d.Outdated))
	}
	if scores.Maintainability < 60 {
		add("拆分大函数、补充单元测试以改善可维护性")
	}
	if len(recs) == 0 {
		add("保持当前代码质量，建议补充持续集成中的自动化检查")
	}
	return recs
}

func buildExecutiveSummary(repoName string, facts *analyzer.Facts, r *model.FinalReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "仓库 %s 综合质量评分 %d/100。", repoName, r.Scores.OverallQuality)
	if inv := facts.Inventory; inv != nil {
		fmt.Fprintf(&b, "共 %d 个代码文件、%d 行代码，主要语言 %s。",
			inv.CodeFiles, inv.LinesOfCode, inv.PrimaryLanguage())
	}
	fmt.Fprintf(&b, "安全 %d 分、架构 %d 分、可维护性 %d 分。",
		r.Scores.Security, r.Scores.Architecture, r.Scores.Maintainability)
	if r.TechnicalMetrics.SecurityVulnerabilities > 0 {
		fmt.Fprintf(&b, "静态扫描发现 %d 处安全问题，需要关注。", r.TechnicalMetrics.SecurityVulnerabilities)
	}
	if r.AIError {
		b.WriteString("部分 AI 分析维度不可用，相关结论由静态指标推导。")
	}
	return b.String()
}


func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
