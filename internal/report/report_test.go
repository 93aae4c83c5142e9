package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qs3c/repo_insight_server/internal/ai"
	"github.com/qs3c/repo_insight_server/internal/analyzer"
)

func cleanFacts() *analyzer.Facts {
	return &analyzer.Facts{
		Inventory: &analyzer.Inventory{
			Name:        "demo",
			Languages:   map[string]int{"Go": 25, "Python": 2},
			TotalFiles:  40,
			CodeFiles:   27,
			LinesOfCode: 3000,
		},
		Complexity:   &analyzer.ComplexityReport{AverageComplexity: 2.5, FilesAnalyzed: 27},
		Security:     &analyzer.SecurityReport{Vulnerabilities: []analyzer.Vulnerability{}, RiskLevel: "low"},
		Dependencies: &analyzer.DependencyReport{Total: 12, Outdated: 0, Managers: []string{"go modules"}},
	}
}

func TestSynthesizeCleanRepo(t *testing.T) {
	r := Synthesize(&Inputs{
		RepoName: "demo",
		Facts:    cleanFacts(),
		Architecture: &ai.Insight{
			Summary: "layered design", Pattern: "layered",
			Recommendations: []string{"extract domain layer"},
		},
		Quality:  &ai.Insight{Summary: "clean code"},
		Security: &ai.Insight{Summary: "no issues found"},
	})

	assert.False(t, r.AIError)
	assert.Equal(t, 100, r.Scores.OverallQuality)
	assert.Equal(t, r.Scores.OverallQuality, r.Scores.CodeQuality)
	assert.Equal(t, 95, r.Scores.Security)
	assert.Equal(t, 90, r.Scores.Maintainability)
	// avg 111 行/文件落在 50-200 档 (+20)，27 个文件 (+10)
	assert.Equal(t, 100, r.Scores.Architecture)
	// 3000 行 < 10000 (+10)
	assert.Equal(t, 85, r.Scores.Performance)

	assert.Equal(t, "layered", r.AIInsights.ArchitecturePattern)
	assert.Contains(t, r.Recommendations, "extract domain layer")
	assert.Contains(t, r.ExecutiveSummary, "demo")
}

func TestSynthesizeScoresPenalties(t *testing.T) {
	facts := cleanFacts()
	facts.Complexity = &analyzer.ComplexityReport{
		AverageComplexity: 12, HighCount: 3, VeryHighCount: 1, FilesAnalyzed: 27,
	}
	facts.Security.Vulnerabilities = make([]analyzer.Vulnerability, 6)

	r := Synthesize(&Inputs{RepoName: "demo", Facts: facts})

	// 100 - (12-10)*3 - 3*2 - 1*5 - min(40,6*8) - (3+1)*2 = 100-6-6-5-40-8 = 35
	assert.Equal(t, 35, r.Scores.OverallQuality)
	// 6 个漏洞落在 6-10 档
	assert.Equal(t, 35, r.Scores.Security)
	// avg 12 在 10-15 档
	assert.Equal(t, 40, r.Scores.Maintainability)
	// 75 + 10(小仓库) - (12-10)*2 = 81
	assert.Equal(t, 81, r.Scores.Performance)
}

func TestSynthesizeSecurityBands(t *testing.T) {
	tests := []struct {
		vulns int
		want  int
	}{
		{0, 95},
		{2, 80},
		{5, 60},
		{10, 35},
		{11, 15},
	}
	for _, tt := range tests {
		facts := cleanFacts()
		facts.Security.Vulnerabilities = make([]analyzer.Vulnerability, tt.vulns)
		r := Synthesize(&Inputs{RepoName: "demo", Facts: facts})
		assert.Equal(t, tt.want, r.Scores.Security, "vulns=%d", tt.vulns)
	}
}

func TestSynthesizeDegraded(t *testing.T) {
	facts := cleanFacts()
	facts.Security.Vulnerabilities = []analyzer.Vulnerability{
		{File: "a.py", Line: 3, RuleID: "weak_crypto", Severity: "medium", Description: "使用弱哈希算法 MD5 / SHA1"},
	}

	r := Synthesize(&Inputs{
		RepoName: "demo",
		Facts:    facts,
		AIErrors: []string{"architecture: timeout", "quality: timeout", "security: timeout"},
	})

	assert.True(t, r.AIError)
	assert.Contains(t, r.AIErrorDetail, "architecture")
	// 兜底结论由静态事实推导
	assert.Contains(t, r.AIInsights.ArchitectureSummary, "静态")
	assert.NotEmpty(t, r.AIInsights.SecurityRisks)
	assert.Equal(t, "modular", r.AIInsights.ArchitecturePattern)
	assert.Contains(t, r.ExecutiveSummary, "AI")
	assert.NotEmpty(t, r.Recommendations)
}

func TestSynthesizeDeterministic(t *testing.T) {
	a := Synthesize(&Inputs{RepoName: "demo", Facts: cleanFacts()})
	b := Synthesize(&Inputs{RepoName: "demo", Facts: cleanFacts()})
	assert.Equal(t, a.Scores, b.Scores)
}

func TestArtifactName(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, "insight_job-1_20250314092653.txt", ArtifactName("job-1", at))
}

func TestRenderText(t *testing.T) {
	r := Synthesize(&Inputs{
		RepoName: "demo",
		Facts:    cleanFacts(),
		Quality:  &ai.Insight{Summary: "clean", Recommendations: []string{"add tests"}},
	})

	text := string(RenderText("job-1", r))
	assert.Contains(t, text, "仓库分析报告")
	assert.Contains(t, text, "job-1")
	assert.Contains(t, text, "综合质量")
	assert.Contains(t, text, "add tests")
	assert.True(t, strings.Contains(text, "Go(25)"))
}
