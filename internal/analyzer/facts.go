package analyzer

// Facts 静态分析阶段产出的全部事实，供 AI 阶段与报告合成使用
type Facts struct {
	Inventory    *Inventory        `json:"inventory"`
	Complexity   *ComplexityReport `json:"complexity"`
	Security     *SecurityReport   `json:"security"`
	Dependencies *DependencyReport `json:"dependencies"`
}
