package signoff

import "time"

// State is the persisted lifecycle tag of an occurrence. completed and
// deleted are terminal; nothing mutates an occurrence past either.
type State string

var (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateDeleted   State = "deleted"
)

func (s State) String() string {
	switch s {
	case StatePending, StateCompleted, StateDeleted:
		return string(s)
	default:
		return ""
	}
}

// SignOff is one concrete scheduled occurrence of a task definition. At most
// one occurrence per task may be pending (no completion date, not deleted)
// at a time. Rows are soft-deleted by flipping state, never removed.
type SignOff struct {
	ID             string     `gorm:"column:id;primaryKey"`
	TaskID         string     `gorm:"column:task_id;index;not null"`
	DueDate        time.Time  `gorm:"column:due_date"`
	ScheduledDate  time.Time  `gorm:"column:scheduled_date"`
	ScheduledTime  *string    `gorm:"column:scheduled_time;type:varchar(10)"`
	CompletionDate *time.Time `gorm:"column:completion_date"`
	TechnicianID   *string    `gorm:"column:technician_id"`
	TotalExpense   *float64   `gorm:"column:total_expense"`
	State          State      `gorm:"column:status;type:varchar(20);default:'pending'"`
	CreatedBy      string     `gorm:"column:created_by"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime"`
}

// ConsumableUsage records whether a named consumable was used during a
// sign-off, and what it cost. Created at sign-off time, immutable after.
type ConsumableUsage struct {
	ID        string    `gorm:"column:id;primaryKey"`
	SignOffID string    `gorm:"column:signoff_id;index;not null"`
	Name      string    `gorm:"column:name;not null"`
	Used      bool      `gorm:"column:used"`
	Brand     string    `gorm:"column:brand"`
	Cost      *float64  `gorm:"column:cost"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Attachment references an uploaded file stored alongside a sign-off.
type Attachment struct {
	ID          string    `gorm:"column:id;primaryKey"`
	SignOffID   string    `gorm:"column:signoff_id;index;not null"`
	FileName    string    `gorm:"column:file_name"`
	ObjectKey   string    `gorm:"column:object_key"`
	ContentType string    `gorm:"column:content_type"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}
