package analyzer

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// DependencyReport 依赖清单统计
type DependencyReport struct {
	Total    int      `json:"total"`
	Outdated int      `json:"outdated"` // 锁定了确切旧版本写法的依赖数，启发式
	Managers []string `json:"managers"` // 识别到的包管理器
}

// AuditDependencies 解析仓库根目录下常见的依赖清单文件。
// 不访问网络，"outdated" 只按版本声明写法估算：钉死确切版本
// （== 或无范围前缀）视为需要人工跟进的候选。
func AuditDependencies(root string) *DependencyReport {
	report := &DependencyReport{Managers: []string{}}

	if total, outdated, ok := parseRequirementsTxt(filepath.Join(root, "requirements.txt")); ok {
		report.Managers = append(report.Managers, "pip")
		report.Total += total
		report.Outdated += outdated
	}
	if total, outdated, ok := parsePackageJSON(filepath.Join(root, "package.json")); ok {
		report.Managers = append(report.Managers, "npm")
		report.Total += total
		report.Outdated += outdated
	}
	if total, ok := parseGoMod(filepath.Join(root, "go.mod")); ok {
		report.Managers = append(report.Managers, "go modules")
		report.Total += total
	}
	return report
}

func parseRequirementsTxt(path string) (total, outdated int, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		total++
		if strings.Contains(line, "==") {
			outdated++
		}
	}
	return total, outdated, true
}

func parsePackageJSON(path string) (total, outdated int, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, false
	}
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return 0, 0, true // 文件存在但解析失败，按空清单处理
	}
	count := func(deps map[string]string) {
		for _, ver := range deps {
			total++
			// 无 ^ ~ >= 前缀的确切版本视为钉死
			if ver != "" && !strings.ContainsAny(string(ver[0]), "^~><*") {
				outdated++
			}
		}
	}
	count(pkg.Dependencies)
	count(pkg.DevDependencies)
	return total, outdated, true
}

func parseGoMod(path string) (total int, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	inBlock := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "require ("):
			inBlock = true
		case inBlock && line == ")":
			inBlock = false
		case inBlock && line != "" && !strings.HasPrefix(line, "//"):
			total++
		case strings.HasPrefix(line, "require ") && !strings.Contains(line, "("):
			total++
		}
	}
	return total, true
}
