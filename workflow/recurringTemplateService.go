package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/repository"
)

const defaultSeqPrefix = "INV-"

// RecurringTemplateService edits templates. Firing belongs to the scheduler;
// content edits never touch NextRunAt, NextNumber or the fired marker.
type RecurringTemplateService struct {
	*Core
}

func NewRecurringTemplateService(core *Core) *RecurringTemplateService {
	return &RecurringTemplateService{Core: core}
}

func normalizeRule(rule models.IntervalRule, nextRunAt time.Time) models.IntervalRule {
	if rule.Every == 0 {
		rule.Every = 1
	}
	if rule.AnchorDay == 0 && (rule.Terms == models.RecurringTermsMonth || rule.Terms == models.RecurringTermsYear) {
		rule.AnchorDay = nextRunAt.Day()
	}
	if rule.EndDate != nil {
		end := rule.EndDate.UTC()
		rule.EndDate = &end
	}
	return rule
}

func (s *RecurringTemplateService) Create(ctx context.Context, input *models.NewRecurringTemplate) (*models.RecurringTemplate, error) {
	if input.NextNumber == 0 {
		input.NextNumber = 1
	}
	if input.SeqPrefix == "" {
		input.SeqPrefix = defaultSeqPrefix
	}
	nextRunAt := input.NextRunAt.UTC()
	input.IntervalRule = normalizeRule(input.IntervalRule, nextRunAt)
	if err := models.ValidateStruct(input); err != nil {
		return nil, err
	}

	now := s.now()
	t := &models.RecurringTemplate{
		ID:           newId(),
		Name:         input.Name,
		Customer:     input.Customer,
		Items:        prepareLineItems(input.Items),
		Active:       true,
		SeqPrefix:    input.SeqPrefix,
		NextNumber:   input.NextNumber,
		NextRunAt:    &nextRunAt,
		AutoSend:     input.AutoSend,
		IntervalRule: input.IntervalRule,
		DueInDays:    input.DueInDays,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.Repo.SaveRecurringTemplate(ctx, t); err != nil {
		s.logFailure("Create", "SaveRecurringTemplate", input, err)
		return nil, err
	}
	return t, nil
}

// Update edits content only: customer, items, name, autoSend and dueInDays.
func (s *RecurringTemplateService) Update(ctx context.Context, id string, input *models.UpdateRecurringTemplate) (*models.RecurringTemplate, error) {
	if err := models.ValidateStruct(input); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "Update", id, func(t *models.RecurringTemplate) error {
		if !t.Active {
			return immutable("active", "template is deactivated")
		}
		t.Name = input.Name
		t.Customer = input.Customer
		t.Items = prepareLineItems(input.Items)
		t.AutoSend = input.AutoSend
		t.DueInDays = input.DueInDays
		return nil
	})
}

// Reschedule replaces the schedule. Moving NextRunAt back onto an occurrence
// that already fired does not fire it again.
func (s *RecurringTemplateService) Reschedule(ctx context.Context, id string, input *models.RescheduleRecurringTemplate) (*models.RecurringTemplate, error) {
	nextRunAt := input.NextRunAt.UTC()
	input.IntervalRule = normalizeRule(input.IntervalRule, nextRunAt)
	if err := models.ValidateStruct(input); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "Reschedule", id, func(t *models.RecurringTemplate) error {
		if !t.Active {
			return immutable("active", "template is deactivated")
		}
		t.NextRunAt = &nextRunAt
		t.IntervalRule = input.IntervalRule
		return nil
	})
}

// Deactivate is terminal for firing. The record stays.
func (s *RecurringTemplateService) Deactivate(ctx context.Context, id string) (*models.RecurringTemplate, error) {
	return s.mutate(ctx, "Deactivate", id, func(t *models.RecurringTemplate) error {
		t.Active = false
		return nil
	})
}

func (s *RecurringTemplateService) mutate(ctx context.Context, funcName string, id string, apply func(t *models.RecurringTemplate) error) (*models.RecurringTemplate, error) {
	var result *models.RecurringTemplate
	err := s.transact(ctx, func(tx *repository.Repository) error {
		t, err := tx.GetRecurringTemplate(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(t); err != nil {
			return err
		}
		t.UpdatedAt = s.now()
		if err := tx.SaveRecurringTemplate(ctx, t); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		s.logFailure(funcName, "Tx", id, err)
		return nil, err
	}
	return result, nil
}

func (s *RecurringTemplateService) Get(ctx context.Context, id string) (*models.RecurringTemplate, error) {
	return read(s.Core, ctx, func(ctx context.Context) (*models.RecurringTemplate, error) {
		return s.Repo.GetRecurringTemplate(ctx, id)
	})
}

func (s *RecurringTemplateService) List(ctx context.Context) ([]*models.RecurringTemplate, error) {
	return read(s.Core, ctx, s.Repo.ListRecurringTemplates)
}
