package audit

import "time"

// TaskAudit is an append-only log entry capturing one field-level change to a
// task definition. Rows are never mutated or deleted.
type TaskAudit struct {
	ID            string    `gorm:"column:id;primaryKey"`
	TaskID        string    `gorm:"column:task_id;index;not null"`
	UserID        string    `gorm:"column:user_id;not null"`
	ChangedField  string    `gorm:"column:changed_field;type:varchar(100);not null"`
	PreviousValue string    `gorm:"column:previous_value;type:text"`
	NewValue      string    `gorm:"column:new_value;type:text"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}
