package ai

import (
	"fmt"
	"strings"
)

// 三个维度共用的事实摘要 + 各自的侧重指令

func architecturePrompt(in *AnalysisInput) string {
	var b strings.Builder
	writeFactsSection(&b, in)
	b.WriteString("\nTask: analyze the ARCHITECTURE of this repository.\n")
	b.WriteString("Identify the dominant architecture pattern (e.g. MVC, layered, microservice, monolith) in the \"pattern\" field.\n")
	writeSchemaSection(&b)
	return b.String()
}

func qualityPrompt(in *AnalysisInput) string {
	var b strings.Builder
	writeFactsSection(&b, in)
	b.WriteString("\nTask: analyze the CODE QUALITY of this repository.\n")
	b.WriteString("Focus on readability, duplication, error handling and test coverage signals.\n")
	writeSchemaSection(&b)
	return b.String()
}

func securityPrompt(in *AnalysisInput) string {
	var b strings.Builder
	writeFactsSection(&b, in)
	if in.Facts != nil && in.Facts.Security != nil {
		b.WriteString("\nStatic scanner findings:\n")
		for i, v := range in.Facts.Security.Vulnerabilities {
			if i >= 20 {
				b.WriteString(fmt.Sprintf("... and %d more\n", len(in.Facts.Security.Vulnerabilities)-i))
				break
			}
			b.WriteString(fmt.Sprintf("- [%s] %s:%d %s\n", v.Severity, v.File, v.Line, v.RuleID))
		}
	}
	b.WriteString("\nTask: analyze the SECURITY posture of this repository.\n")
	b.WriteString("Confirm or dismiss the scanner findings and point out risks the scanner cannot see.\n")
	writeSchemaSection(&b)
	return b.String()
}

func writeFactsSection(b *strings.Builder, in *AnalysisInput) {
	fmt.Fprintf(b, "Repository: %s (primary language: %s)\n", in.RepoName, in.PrimaryLanguage)
	if f := in.Facts; f != nil {
		if f.Inventory != nil {
			fmt.Fprintf(b, "Files: %d total, %d code, %d lines of code\n",
				f.Inventory.TotalFiles, f.Inventory.CodeFiles, f.Inventory.LinesOfCode)
		}
		if f.Complexity != nil {
			fmt.Fprintf(b, "Average complexity: %.1f, high-complexity files: %d\n",
				f.Complexity.AverageComplexity, f.Complexity.HighCount)
		}
		if f.Dependencies != nil {
			fmt.Fprintf(b, "Dependencies: %d total, %d pinned/outdated (%s)\n",
				f.Dependencies.Total, f.Dependencies.Outdated, strings.Join(f.Dependencies.Managers, ", "))
		}
	}
	if len(in.Snippets) > 0 {
		b.WriteString("\nCode samples:\n")
		for _, s := range in.Snippets {
			fmt.Fprintf(b, "--- %s (%s) ---\n%s\n", s.Path, s.Language, s.Content)
		}
	}
}

func writeSchemaSection(b *strings.Builder) {
	b.WriteString(`Respond with JSON: {"summary": string, "pattern": string, "findings": [string], "recommendations": [string], "score": int 0-100}` + "\n")
}
