package plan

import "context"

// AssetInfo describes the asset a plan is generated for.
type AssetInfo struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Environment string `json:"environment"`
}

// GeneratedTask is one task definition proposed by the plan generator.
type GeneratedTask struct {
	Name                string   `json:"name"`
	Instructions        []string `json:"instructions"`
	EstimatedMinutes    int      `json:"estimated_minutes"`
	ToolsNeeded         string   `json:"tools_needed"`
	TechniciansNeeded   int      `json:"technicians_needed"`
	Consumables         []string `json:"consumables"`
	Criticality         string   `json:"criticality"`
	Reason              string   `json:"reason"`
	SafetyPrecautions   string   `json:"safety_precautions"`
	MaintenanceInterval string   `json:"maintenance_interval"`
}

// Generator proposes a maintenance task plan for an asset. The production
// implementation calls an LLM service; the engine only consumes its output
// and never depends on how it was produced.
type Generator interface {
	Generate(ctx context.Context, asset AssetInfo) ([]GeneratedTask, error)
}
