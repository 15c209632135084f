package model

import (
	"time"
)

// FileStatus 文件处理状态
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

// Terminal 是否为终态
func (s FileStatus) Terminal() bool {
	return s == FileStatusCompleted || s == FileStatusFailed
}

// File 上传的文件
// 状态只由处理流水线推进: pending -> processing -> completed | failed
type File struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	Filename         string     `json:"filename" gorm:"size:255;not null"`
	OriginalFilename string     `json:"original_filename" gorm:"size:255;not null"`
	FilePath         string     `json:"file_path" gorm:"size:500;not null"` // 存储系统中的路径
	FileType         string     `json:"file_type" gorm:"size:20;not null"`  // 小写扩展名，如 .pdf
	FileSize         int64      `json:"file_size"`
	CategoryID       uint       `json:"category_id" gorm:"index;not null"`
	Status           FileStatus `json:"status" gorm:"size:20;index;default:pending"`
	TaskID           string     `json:"task_id" gorm:"size:64;index"`
	ErrorMessage     string     `json:"error_message" gorm:"type:text"`
	TotalChunks      int        `json:"total_chunks" gorm:"default:0"`
	ProcessedAt      *time.Time `json:"processed_at"`
	CreatedAt        time.Time  `json:"created_at" gorm:"autoCreateTime"`
	Category         *Category  `json:"-" gorm:"foreignKey:CategoryID"`
}

// TableName 指定表名
func (File) TableName() string {
	return "files"
}
