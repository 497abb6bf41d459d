package plan

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type PlanStatus string

var (
	Current  PlanStatus = "current"
	Replaced PlanStatus = "replaced"
	Removed  PlanStatus = "removed"
)

func (s PlanStatus) String() string {
	switch s {
	case Current, Replaced, Removed:
		return string(s)
	default:
		return ""
	}
}

// Plan groups the maintenance task definitions generated for one asset.
type Plan struct {
	ID        string     `gorm:"column:id;primaryKey"`
	SiteID    string     `gorm:"column:site_id;index"`
	AssetName string     `gorm:"column:asset_name;not null"`
	Slug      string     `gorm:"column:slug;index"`
	Status    PlanStatus `gorm:"column:status;type:varchar(20);default:'current'"`
	StartDate time.Time  `gorm:"column:start_date"`
	CreatedBy string     `gorm:"column:created_by"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	Tasks     []Task     `gorm:"foreignKey:PlanID"`
}

// Task is the reusable definition of a maintenance activity. Occurrence
// records reference it; it is soft-marked inactive, never deleted.
type Task struct {
	ID                  string         `gorm:"column:id;primaryKey"`
	PlanID              string         `gorm:"column:plan_id;index;not null"`
	Name                string         `gorm:"column:name;not null"`
	Instructions        datatypes.JSON `gorm:"column:instructions"`
	EstimatedMinutes    int            `gorm:"column:estimated_minutes"`
	ToolsNeeded         string         `gorm:"column:tools_needed"`
	TechniciansNeeded   int            `gorm:"column:technicians_needed"`
	Consumables         datatypes.JSON `gorm:"column:consumables"`
	Criticality         string         `gorm:"column:criticality;type:varchar(20)"`
	Reason              string         `gorm:"column:reason;type:text"`
	SafetyPrecautions   string         `gorm:"column:safety_precautions;type:text"`
	MaintenanceInterval string         `gorm:"column:maintenance_interval;type:varchar(100)"`
	Active              bool           `gorm:"column:active;default:true"`
	CreatedAt           time.Time      `gorm:"autoCreateTime"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime"`
}

func (t *Task) InstructionList() []string {
	return decodeStrings(t.Instructions)
}

func (t *Task) ConsumableList() []string {
	return decodeStrings(t.Consumables)
}

func encodeStrings(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return datatypes.JSON(b)
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	return values
}
