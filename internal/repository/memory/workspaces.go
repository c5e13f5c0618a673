package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/careconnect/pairing-server/internal/model"
)

type workspaceRepo struct{ s *Store }

func (r *workspaceRepo) GetPlan(_ context.Context, connectionID string) (*model.CarePlan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.plans[connectionID]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r *workspaceRepo) UpsertPlan(_ context.Context, params model.UpdateCarePlanParams) (*model.CarePlan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.plans[params.ConnectionID]
	if !ok {
		p = &model.CarePlan{ConnectionID: params.ConnectionID}
		r.s.plans[params.ConnectionID] = p
	}

	setIf(&p.Title, params.Title)
	setIf(&p.Summary, params.Summary)
	setIf(&p.PrimaryDiagnosis, params.PrimaryDiagnosis)
	setIf(&p.TreatmentPlan, params.TreatmentPlan)
	setIf(&p.MedicationOverview, params.MedicationOverview)
	setIf(&p.LifestyleGuidelines, params.LifestyleGuidelines)
	setIf(&p.FollowUpInstructions, params.FollowUpInstructions)
	if params.NextReviewDate != nil {
		d := *params.NextReviewDate
		p.NextReviewDate = &d
	}
	p.UpdatedAt = r.s.now()

	c := *p
	return &c, nil
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (r *workspaceRepo) AddEntry(_ context.Context, params model.CreateTimelineEntryParams) (*model.TimelineEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row := entryRow{
		TimelineEntry: model.TimelineEntry{
			ID:           uuid.NewString(),
			ConnectionID: params.ConnectionID,
			EntryType:    params.EntryType,
			Title:        params.Title,
			Summary:      params.Summary,
			Details:      params.Details,
			Visibility:   params.Visibility,
			IsCritical:   params.IsCritical,
			CreatedBy:    params.CreatedBy,
			CreatedAt:    r.s.now(),
		},
		seq: r.s.nextSeq(),
	}
	r.s.entries[params.ConnectionID] = append(r.s.entries[params.ConnectionID], row)
	e := row.TimelineEntry
	return &e, nil
}

func (r *workspaceRepo) ListEntries(_ context.Context, connectionID string, includeInternal bool) ([]model.TimelineEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows := make([]entryRow, 0, len(r.s.entries[connectionID]))
	for _, row := range r.s.entries[connectionID] {
		if includeInternal || row.Visibility == model.VisibilityPatient {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})

	entries := make([]model.TimelineEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.TimelineEntry)
	}
	return entries, nil
}
