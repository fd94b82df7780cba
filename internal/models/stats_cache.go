package models

import "time"

// RollupCourseID is the course id of the period-wide stats row for a teacher.
const RollupCourseID uint = 0

const (
	// StatsSourceIncremental marks rows last written by the per-submission path.
	StatsSourceIncremental = "incremental"
	// StatsSourceRecompute marks rows last written by a full recompute job.
	StatsSourceRecompute = "recompute"
)

// StatsCache is the denormalized aggregate of evaluation scores for a teacher.
// CourseID RollupCourseID holds the period-wide figures across all courses.
type StatsCache struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TeacherID     uint      `gorm:"not null;uniqueIndex:idx_stats_key,priority:1" json:"teacher_id"`
	Period        string    `gorm:"size:64;not null;uniqueIndex:idx_stats_key,priority:2" json:"period"`
	CourseID      uint      `gorm:"not null;default:0;uniqueIndex:idx_stats_key,priority:3" json:"course_id"`
	StudentScore  float64   `gorm:"not null;default:0" json:"student_score"`
	PeerScore     float64   `gorm:"not null;default:0" json:"peer_score"`
	DeptHeadScore float64   `gorm:"not null;default:0" json:"dept_head_score"`
	StudentCount  int64     `gorm:"not null;default:0" json:"student_count"`
	PeerCount     int64     `gorm:"not null;default:0" json:"peer_count"`
	DeptHeadCount int64     `gorm:"not null;default:0" json:"dept_head_count"`
	FinalScore    float64   `gorm:"not null;default:0" json:"final_score"`
	Source        string    `gorm:"size:16;not null;default:'incremental'" json:"source"`
	Version       int64     `gorm:"not null;default:0" json:"version"`
	LastUpdated   time.Time `json:"last_updated"`
}

// TableName pins the table name used by both aggregation paths.
func (StatsCache) TableName() string {
	return "stats_cache"
}

// IsRollup reports whether the row aggregates every course of the period.
func (s StatsCache) IsRollup() bool {
	return s.CourseID == RollupCourseID
}
