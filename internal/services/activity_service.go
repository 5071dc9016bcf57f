package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/youthtracker/internal/models"
)

// BudgetItemInput is one planned cost supplied with an activity.
type BudgetItemInput struct {
	Item   string
	Amount float64
}

// ActivityInput carries the full state of an activity. Update replaces every
// field and the whole budget.
type ActivityInput struct {
	Name        string
	StartsAt    time.Time
	EndsAt      time.Time
	Description string
	Location    string
	Groups      []string
	Drivers     []string
	IsOvernight bool
	IsCoed      bool
	TotalCost   *float64
	Thoughts    string
	BudgetItems []BudgetItemInput
}

// ReconcileInput records the settled cost after an activity. Nil fields keep
// their stored value.
type ReconcileInput struct {
	ActualCost float64
	TotalCost  *float64
	Thoughts   *string
}

// Approval levels accepted by Approve.
const (
	ApprovalBishop = "bishop"
	ApprovalStake  = "stake"
)

// ApprovalInput sets or clears one approval on an activity. A missing date on
// an approval defaults to now.
type ApprovalInput struct {
	Level    string
	Approved bool
	Date     *time.Time
}

// ActivityFilters captures listing filters.
type ActivityFilters struct {
	Group string
	From  *time.Time
	Until *time.Time
}

// ActivityDetail composes an activity with its budget, drivers and groups.
// PlannedCost is the stated total cost when one was given, otherwise the sum
// of the budget line items. Variance is actual minus planned.
type ActivityDetail struct {
	*models.Activity
	BudgetTotal float64  `json:"budget_total"`
	PlannedCost float64  `json:"planned_cost"`
	Variance    *float64 `json:"variance,omitempty"`
}

// ActivityService manages activities and their budgets.
type ActivityService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// NewActivityService constructs an ActivityService.
func NewActivityService(db *gorm.DB, audit *AuditService) (*ActivityService, error) {
	if db == nil {
		return nil, errors.New("activity service: db is required")
	}
	return &ActivityService{db: db, audit: audit, now: time.Now}, nil
}

// Create stores an activity together with its budget line items.
func (s *ActivityService) Create(ctx context.Context, input ActivityInput) (*models.Activity, error) {
	ctx = ensureContext(ctx)

	if err := validateActivityInput(input); err != nil {
		return nil, err
	}

	activity := &models.Activity{}
	applyActivityInput(activity, input)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("BudgetItems").Create(activity).Error; err != nil {
			return err
		}
		items, err := replaceBudgetItems(tx, activity.ID, input.BudgetItems)
		if err != nil {
			return err
		}
		activity.BudgetItems = items
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("activity service: create: %w", err)
	}
	return activity, nil
}

// Get loads an activity with its ordered budget line items.
func (s *ActivityService) Get(ctx context.Context, id string) (*models.Activity, error) {
	ctx = ensureContext(ctx)

	var activity models.Activity
	err := s.db.WithContext(ctx).
		Preload("BudgetItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&activity, "id = ?", strings.TrimSpace(id)).Error
	if err != nil {
		return nil, translateStoreError(err)
	}
	return &activity, nil
}

// GetDetail returns the activity view with the budget rolled up.
func (s *ActivityService) GetDetail(ctx context.Context, id string) (*ActivityDetail, error) {
	activity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return newActivityDetail(activity), nil
}

// List returns activities ordered by start time.
func (s *ActivityService) List(ctx context.Context, filters ActivityFilters) ([]models.Activity, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Activity{})
	if filters.From != nil {
		query = query.Where("ends_at >= ?", filters.From.UTC())
	}
	if filters.Until != nil {
		query = query.Where("starts_at <= ?", filters.Until.UTC())
	}

	var activities []models.Activity
	if err := query.Order("starts_at ASC").Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("activity service: list: %w", err)
	}

	if group := strings.TrimSpace(filters.Group); group != "" {
		filtered := activities[:0]
		for _, activity := range activities {
			if activity.HasGroup(group) {
				filtered = append(filtered, activity)
			}
		}
		activities = filtered
	}
	return activities, nil
}

// Update replaces the activity fields and its budget atomically.
func (s *ActivityService) Update(ctx context.Context, id string, input ActivityInput) (*models.Activity, error) {
	ctx = ensureContext(ctx)

	if err := validateActivityInput(input); err != nil {
		return nil, err
	}
	activity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyActivityInput(activity, input)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(activity).Omit("BudgetItems").Updates(map[string]any{
			"name":         activity.Name,
			"starts_at":    activity.StartsAt,
			"ends_at":      activity.EndsAt,
			"description":  activity.Description,
			"location":     activity.Location,
			"groups":       activity.Groups,
			"drivers":      activity.Drivers,
			"is_overnight": activity.IsOvernight,
			"is_coed":      activity.IsCoed,
			"total_cost":   activity.TotalCost,
			"thoughts":     activity.Thoughts,
		}).Error; err != nil {
			return err
		}
		items, err := replaceBudgetItems(tx, activity.ID, input.BudgetItems)
		if err != nil {
			return err
		}
		activity.BudgetItems = items
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("activity service: update: %w", err)
	}
	return activity, nil
}

// Reconcile records what the activity actually cost, optionally correcting
// the planned total and the leader's notes.
func (s *ActivityService) Reconcile(ctx context.Context, id string, input ReconcileInput, actor Actor) (*ActivityDetail, error) {
	ctx = ensureContext(ctx)

	fields := map[string]string{}
	if !validAmount(input.ActualCost) {
		fields["actual_cost"] = "must be a non-negative amount"
	}
	if input.TotalCost != nil && !validAmount(*input.TotalCost) {
		fields["total_cost"] = "must be a non-negative amount"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	activity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cost := roundCents(input.ActualCost)
	activity.ActualCost = &cost
	updates := map[string]any{"actual_cost": cost}
	if input.TotalCost != nil {
		total := roundCents(*input.TotalCost)
		activity.TotalCost = &total
		updates["total_cost"] = total
	}
	if input.Thoughts != nil {
		activity.Thoughts = strings.TrimSpace(*input.Thoughts)
		updates["thoughts"] = activity.Thoughts
	}
	if err := s.db.WithContext(ctx).Model(activity).Omit("BudgetItems").Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("activity service: reconcile: %w", err)
	}

	detail := newActivityDetail(activity)
	recordAudit(s.audit, ctx, actorEntry(actor, AuditActionActivityReconcile, "activities/"+activity.ID, map[string]any{
		"actual_cost":  cost,
		"planned_cost": detail.PlannedCost,
	}))
	return detail, nil
}

// Approve sets or clears the bishop or stake approval. Clearing an approval
// also clears its date.
func (s *ActivityService) Approve(ctx context.Context, id string, input ApprovalInput, actor Actor) (*ActivityDetail, error) {
	ctx = ensureContext(ctx)

	level := strings.ToLower(strings.TrimSpace(input.Level))
	if level != ApprovalBishop && level != ApprovalStake {
		return nil, newValidationError("level", "must be bishop or stake")
	}
	activity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var date *time.Time
	if input.Approved {
		at := s.now().UTC()
		if input.Date != nil && !input.Date.IsZero() {
			at = input.Date.UTC()
		}
		date = &at
	}

	updates := map[string]any{level + "_approval": input.Approved, level + "_approval_date": date}
	if err := s.db.WithContext(ctx).Model(activity).Omit("BudgetItems").Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("activity service: approve: %w", err)
	}
	if level == ApprovalBishop {
		activity.BishopApproval, activity.BishopApprovalDate = input.Approved, date
	} else {
		activity.StakeApproval, activity.StakeApprovalDate = input.Approved, date
	}

	recordAudit(s.audit, ctx, actorEntry(actor, AuditActionActivityApprove, "activities/"+activity.ID, map[string]any{
		"level":    level,
		"approved": input.Approved,
	}))
	return newActivityDetail(activity), nil
}

// Delete removes an activity. Without cascade the delete is refused while
// tokens or permission records reference it.
func (s *ActivityService) Delete(ctx context.Context, id string, cascade bool, actor Actor) error {
	ctx = ensureContext(ctx)

	activity, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refs, err := countReferences(tx, "activity_id", activity.ID,
			&models.PermissionToken{}, &models.PermissionRecord{})
		if err != nil {
			return err
		}
		if refs > 0 && !cascade {
			return fmt.Errorf("%w: activity has %d dependent rows", ErrConflict, refs)
		}
		if refs > 0 {
			if err := deletePermissionData(tx, "activity_id", activity.ID); err != nil {
				return err
			}
		}
		if err := tx.Where("activity_id = ?", activity.ID).Delete(&models.BudgetLineItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Activity{}, "id = ?", activity.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("activity service: delete: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		AdminID:   actor.auditID(),
		Username:  actor.Username,
		Action:    AuditActionActivityDelete,
		Resource:  "activities/" + activity.ID,
		Result:    "success",
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		Metadata:  map[string]any{"cascade": cascade, "name": activity.Name},
	})
	return nil
}

func validateActivityInput(input ActivityInput) error {
	fields := map[string]string{}
	if strings.TrimSpace(input.Name) == "" {
		fields["name"] = "is required"
	}
	if input.StartsAt.IsZero() {
		fields["starts_at"] = "is required"
	}
	if input.EndsAt.IsZero() {
		fields["ends_at"] = "is required"
	} else if input.EndsAt.Before(input.StartsAt) {
		fields["ends_at"] = "must not be before starts_at"
	}
	for i, item := range input.BudgetItems {
		if strings.TrimSpace(item.Item) == "" {
			fields[fmt.Sprintf("budget_items[%d].item", i)] = "is required"
		}
		if !validAmount(item.Amount) {
			fields[fmt.Sprintf("budget_items[%d].amount", i)] = "must be a non-negative amount"
		}
	}
	if input.TotalCost != nil && !validAmount(*input.TotalCost) {
		fields["total_cost"] = "must be a non-negative amount"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func applyActivityInput(activity *models.Activity, input ActivityInput) {
	activity.Name = strings.TrimSpace(input.Name)
	activity.StartsAt = input.StartsAt.UTC()
	activity.EndsAt = input.EndsAt.UTC()
	activity.Description = strings.TrimSpace(input.Description)
	activity.Location = strings.TrimSpace(input.Location)
	activity.Groups = normaliseList(input.Groups)
	activity.IsOvernight = input.IsOvernight
	activity.IsCoed = input.IsCoed
	activity.Thoughts = strings.TrimSpace(input.Thoughts)
	activity.TotalCost = nil
	if input.TotalCost != nil {
		total := roundCents(*input.TotalCost)
		activity.TotalCost = &total
	}

	// drivers keep their order and may repeat across legs
	drivers := make([]string, 0, len(input.Drivers))
	for _, d := range input.Drivers {
		if d = strings.TrimSpace(d); d != "" {
			drivers = append(drivers, d)
		}
	}
	activity.Drivers = drivers
}

func replaceBudgetItems(tx *gorm.DB, activityID string, inputs []BudgetItemInput) ([]models.BudgetLineItem, error) {
	if err := tx.Where("activity_id = ?", activityID).Delete(&models.BudgetLineItem{}).Error; err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return []models.BudgetLineItem{}, nil
	}

	items := make([]models.BudgetLineItem, 0, len(inputs))
	for i, input := range inputs {
		items = append(items, models.BudgetLineItem{
			ActivityID: activityID,
			Item:       strings.TrimSpace(input.Item),
			Amount:     roundCents(input.Amount),
			Position:   i,
		})
	}
	if err := tx.Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func newActivityDetail(activity *models.Activity) *ActivityDetail {
	var total float64
	for _, item := range activity.BudgetItems {
		total += item.Amount
	}
	detail := &ActivityDetail{Activity: activity, BudgetTotal: roundCents(total)}
	detail.PlannedCost = detail.BudgetTotal
	if activity.TotalCost != nil {
		detail.PlannedCost = *activity.TotalCost
	}
	if activity.ActualCost != nil {
		variance := roundCents(*activity.ActualCost - detail.PlannedCost)
		detail.Variance = &variance
	}
	return detail
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
