package models

import "time"

const (
	PermissionSourceToken = "token"
	PermissionSourceAdmin = "admin"
)

// PermissionRecord tracks whether a guardian has signed for a subject to attend an activity.
// There is at most one record per (subject, activity).
type PermissionRecord struct {
	BaseModel

	SubjectID       string     `gorm:"type:uuid;not null;uniqueIndex:idx_permission_subject_activity" json:"subject_id"`
	ActivityID      string     `gorm:"type:uuid;not null;uniqueIndex:idx_permission_subject_activity;index" json:"activity_id"`
	Signed          bool       `gorm:"not null;default:false;index" json:"signed"`
	SignedAt        *time.Time `json:"signed_at,omitempty"`
	SignedBy        string     `gorm:"type:varchar(255)" json:"signed_by,omitempty"`
	IPAddress       string     `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent       string     `gorm:"type:text" json:"user_agent,omitempty"`
	LastRequestedAt *time.Time `json:"last_requested_at,omitempty"`
	DocumentPath    string     `gorm:"type:text" json:"document_path,omitempty"`
	DocumentSHA256  string     `gorm:"type:varchar(64)" json:"document_sha256,omitempty"`
	Source          string     `gorm:"type:varchar(16)" json:"source,omitempty"`
	GrantedBy       *string    `gorm:"type:uuid" json:"granted_by,omitempty"`

	Subject  *Subject  `gorm:"constraint:OnDelete:CASCADE" json:"subject,omitempty"`
	Activity *Activity `gorm:"constraint:OnDelete:CASCADE" json:"activity,omitempty"`
}

// Status renders the signing state as shown to admins.
func (r *PermissionRecord) Status() string {
	if r.Signed {
		return "signed"
	}
	return "pending"
}
