package models

// ActivityInterest records a subject selecting an activity idea for a given year.
type ActivityInterest struct {
	BaseModel

	SubjectID    string `gorm:"type:uuid;not null;uniqueIndex:idx_interest_subject_name_year" json:"subject_id"`
	ActivityName string `gorm:"type:varchar(255);not null;uniqueIndex:idx_interest_subject_name_year;index" json:"activity_name"`
	Year         int    `gorm:"not null;uniqueIndex:idx_interest_subject_name_year;index" json:"year"`

	Subject *Subject `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
