package models

import "time"

// ReportStatus tracks moderation review of a report.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportReviewed ReportStatus = "reviewed"
)

// Report categories accepted from clients.
const (
	ReportHarassment           = "harassment"
	ReportSpam                 = "spam"
	ReportFakeProfile          = "fake_profile"
	ReportInappropriateContent = "inappropriate_content"
	ReportUnderage             = "underage"
	ReportOther                = "other"
)

var reportCategories = map[string]struct{}{
	ReportHarassment:           {},
	ReportSpam:                 {},
	ReportFakeProfile:          {},
	ReportInappropriateContent: {},
	ReportUnderage:             {},
	ReportOther:                {},
}

// ValidReportCategory reports whether category is accepted.
func ValidReportCategory(category string) bool {
	_, ok := reportCategories[category]
	return ok
}

// Report records that one user reported another. It also acts as a mutual
// block: neither side sees the other as a candidate again.
type Report struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	ReporterID uint         `gorm:"not null;index:idx_reports_pair,priority:1" json:"reporter_id"`
	ReportedID uint         `gorm:"not null;index:idx_reports_pair,priority:2;index:idx_reports_reported" json:"reported_id"`
	MatchID    *uint        `json:"match_id,omitempty"`
	Category   string       `gorm:"size:32;not null" json:"category"`
	Reason     string       `gorm:"size:1000" json:"reason"`
	Status     ReportStatus `gorm:"size:16;not null;default:pending" json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}
