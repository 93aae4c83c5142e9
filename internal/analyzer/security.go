package analyzer

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SecurityReport 安全规则扫描结果
type SecurityReport struct {
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	RiskLevel       string          `json:"risk_level"` // low / medium / high / critical
}

// Vulnerability 单条安全告警
type Vulnerability struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	RuleID      string `json:"rule_id"`
	Severity    string `json:"severity"` // low / medium / high / critical
	Description string `json:"description"`
}

type securityRule struct {
	id          string
	severity    string
	description string
	pattern     *regexp.Regexp
}

// 基于正则的模式匹配规则，每条规则带固定严重级别
var securityRules = []securityRule{
	{
		id:          "sql_injection",
		severity:    "critical",
		description: "SQL 语句通过字符串拼接构造，存在注入风险",
		pattern:     regexp.MustCompile(`(?i)(execute|query|exec)\s*\(\s*["'].*%s|["']\s*\+\s*\w+\s*\+\s*["'].*\b(select|insert|update|delete)\b|\b(select|insert|update|delete)\b.*["']\s*\+`),
	},
	{
		id:          "command_injection",
		severity:    "critical",
		description: "命令执行参数来自拼接输入，存在命令注入风险",
		pattern:     regexp.MustCompile(`(?i)(os\.system|subprocess\.(call|run|Popen)|exec\.Command|shell_exec|popen)\s*\([^)]*(\+|%s|\$\{|f["'])`),
	},
	{
		id:          "code_injection",
		severity:    "high",
		description: "动态执行字符串代码 (eval/exec)",
		pattern:     regexp.MustCompile(`\b(eval|exec)\s*\(`),
	},
	{
		id:          "hardcoded_secret",
		severity:    "high",
		description: "疑似硬编码的密码 / API Key / Token",
		pattern:     regexp.MustCompile(`(?i)(password|passwd|api_key|apikey|secret|token)\s*[:=]\s*["'][^"']{6,}["']`),
	},
	{
		id:          "weak_crypto",
		severity:    "medium",
		description: "使用弱哈希算法 MD5 / SHA1",
		pattern:     regexp.MustCompile(`(?i)\b(md5|sha1)\s*\(|hashlib\.(md5|sha1)|crypto/(md5|sha1)`),
	},
	{
		id:          "insecure_random",
		severity:    "medium",
		description: "安全场景使用了非加密随机数",
		pattern:     regexp.MustCompile(`\brandom\.(random|randint|choice)\s*\(|\bmath/rand\b|Math\.random\s*\(`),
	},
	{
		id:          "debug_enabled",
		severity:    "low",
		description: "调试模式开关疑似在代码中写死开启",
		pattern:     regexp.MustCompile(`(?i)\bdebug\s*[:=]\s*(true|1)\b`),
	},
}

const maxVulnerabilities = 200 // 防止病态仓库撑爆结果

// ScanSecurity 对代码文件逐行做规则匹配。测试文件与示例目录会产生大量
// 误报，跳过不扫。
func ScanSecurity(root string, inv *Inventory) *SecurityReport {
	report := &SecurityReport{Vulnerabilities: []Vulnerability{}}

	for _, cf := range inv.RankedFiles {
		if isTestPath(cf.Path) {
			continue
		}
		scanFile(root, cf.Path, report)
		if len(report.Vulnerabilities) >= maxVulnerabilities {
			break
		}
	}

	report.RiskLevel = riskLevel(report.Vulnerabilities)
	return report
}

func scanFile(root, rel string, report *SecurityReport) {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, rule := range securityRules {
			if rule.pattern.MatchString(line) {
				report.Vulnerabilities = append(report.Vulnerabilities, Vulnerability{
					File:        rel,
					Line:        lineNo,
					RuleID:      rule.id,
					Severity:    rule.severity,
					Description: rule.description,
				})
				if len(report.Vulnerabilities) >= maxVulnerabilities {
					return
				}
			}
		}
	}
}

func isTestPath(rel string) bool {
	lower := strings.ToLower(rel)
	return strings.HasSuffix(lower, "_test.go") ||
		strings.Contains(lower, "/test") || strings.HasPrefix(lower, "test") ||
		strings.Contains(lower, "/examples/") || strings.Contains(lower, "/fixtures/")
}

func riskLevel(vulns []Vulnerability) string {
	critical, high := 0, 0
	for _, v := range vulns {
		switch v.Severity {
		case "critical":
			critical++
		case "high":
			high++
		}
	}
	switch {
	case critical > 0:
		return "critical"
	case high > 0:
		return "high"
	case len(vulns) > 0:
		return "medium"
	default:
		return "low"
	}
}
