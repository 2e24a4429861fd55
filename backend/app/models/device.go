package models

import "time"

type Device struct {
	ID             uint   `gorm:"primaryKey"`
	Code           string `gorm:"uniqueIndex;size:191;not null"`
	Name           string `gorm:"size:255"`
	Brand          string `gorm:"size:128"`
	Model          string `gorm:"size:128"`
	AndroidVersion string `gorm:"size:64"`
	AppVersion     string `gorm:"size:64"`
	GroupID        uint   `gorm:"index"`
	Remark         string `gorm:"size:512"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type DeviceGroup struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:191;not null"`
	Remark    string `gorm:"size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
