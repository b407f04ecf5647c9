package models

import (
	"time"
)

type DidLog struct {
	Path          string `gorm:"primaryKey"`
	Did           string `gorm:"uniqueIndex"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastVersionID string
	Entries       int
}

type LogLine struct {
	Path      string `gorm:"primaryKey;index:idx_log_lines_path_seq,sort:asc"`
	Seq       int    `gorm:"primaryKey;index:idx_log_lines_path_seq,sort:asc"`
	VersionID string `gorm:"index"`
	CreatedAt time.Time
	Line      string
}
