package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/models"
)

// InterestService records which activity ideas subjects select each year.
type InterestService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewInterestService constructs an InterestService.
func NewInterestService(db *gorm.DB) (*InterestService, error) {
	if db == nil {
		return nil, errors.New("interest service: db is required")
	}
	return &InterestService{db: db, now: time.Now}, nil
}

// SetInterests replaces the subject's selections for year. A zero year means the current year.
func (s *InterestService) SetInterests(ctx context.Context, subjectID string, year int, names []string) ([]models.ActivityInterest, error) {
	ctx = ensureContext(ctx)

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, newValidationError("subject_id", "is required")
	}
	year = s.resolveYear(year)
	names = normaliseList(names)

	var selections []models.ActivityInterest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Subject{}).Where("id = ?", subjectID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}

		if err := tx.Where("subject_id = ? AND year = ?", subjectID, year).Delete(&models.ActivityInterest{}).Error; err != nil {
			return err
		}
		for _, name := range names {
			selections = append(selections, models.ActivityInterest{
				SubjectID:    subjectID,
				ActivityName: name,
				Year:         year,
			})
		}
		if len(selections) == 0 {
			return nil
		}
		return tx.Create(&selections).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("interest service: set interests: %w", err)
	}
	return selections, nil
}

// List returns the subject's selections for year.
func (s *InterestService) List(ctx context.Context, subjectID string, year int) ([]models.ActivityInterest, error) {
	ctx = ensureContext(ctx)

	var selections []models.ActivityInterest
	if err := s.db.WithContext(ctx).
		Where("subject_id = ? AND year = ?", strings.TrimSpace(subjectID), s.resolveYear(year)).
		Order("activity_name ASC").
		Find(&selections).Error; err != nil {
		return nil, fmt.Errorf("interest service: list: %w", err)
	}
	return selections, nil
}

// CountSelectedActivities counts, per activity name, how many subjects in group
// selected it for year.
func (s *InterestService) CountSelectedActivities(ctx context.Context, group string, year int) (map[string]int64, error) {
	ctx = ensureContext(ctx)

	group = strings.TrimSpace(group)
	if group == "" {
		return nil, newValidationError("group", "is required")
	}
	year = s.resolveYear(year)

	var subjects []models.Subject
	if err := s.db.WithContext(ctx).Find(&subjects).Error; err != nil {
		return nil, fmt.Errorf("interest service: load subjects: %w", err)
	}
	var members []string
	for _, subject := range subjects {
		if subject.InGroup(group) {
			members = append(members, subject.ID)
		}
	}

	counts := make(map[string]int64)
	if len(members) == 0 {
		return counts, nil
	}

	var rows []struct {
		ActivityName string
		Total        int64
	}
	if err := s.db.WithContext(ctx).
		Model(&models.ActivityInterest{}).
		Select("activity_name, COUNT(DISTINCT subject_id) AS total").
		Where("year = ? AND subject_id IN ?", year, members).
		Group("activity_name").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("interest service: count selections: %w", err)
	}
	for _, row := range rows {
		counts[row.ActivityName] = row.Total
	}
	return counts, nil
}

func (s *InterestService) resolveYear(year int) int {
	if year > 0 {
		return year
	}
	return s.now().Year()
}
