package models

import "time"

// Script is an automation script pushed to devices for execution. The
// content itself is opaque to the control plane.
type Script struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:255;not null"`
	Content   string `gorm:"type:longtext"`
	Version   string `gorm:"size:64"`
	Remark    string `gorm:"size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
