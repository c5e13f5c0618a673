package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/careconnect/pairing-server/internal/model"
)

type WorkspaceRepository interface {
	// GetPlan returns nil when no plan has been authored yet.
	GetPlan(ctx context.Context, connectionID string) (*model.CarePlan, error)
	UpsertPlan(ctx context.Context, params model.UpdateCarePlanParams) (*model.CarePlan, error)
	AddEntry(ctx context.Context, params model.CreateTimelineEntryParams) (*model.TimelineEntry, error)
	// ListEntries returns entries newest first, omitting internal ones unless
	// includeInternal is set.
	ListEntries(ctx context.Context, connectionID string, includeInternal bool) ([]model.TimelineEntry, error)
}

type workspaceRepo struct {
	db *sqlx.DB
}

func NewWorkspaceRepository(db *sqlx.DB) WorkspaceRepository {
	return &workspaceRepo{db: db}
}

func (r *workspaceRepo) GetPlan(ctx context.Context, connectionID string) (*model.CarePlan, error) {
	var p model.CarePlan
	err := r.db.GetContext(ctx, &p, `SELECT * FROM care_plans WHERE connection_id = $1`, connectionID)
	return HandleNotFound(&p, err)
}

func (r *workspaceRepo) UpsertPlan(ctx context.Context, params model.UpdateCarePlanParams) (*model.CarePlan, error) {
	var p model.CarePlan
	err := r.db.GetContext(ctx, &p, `
		INSERT INTO care_plans (
			connection_id, title, summary, primary_diagnosis, treatment_plan,
			medication_overview, lifestyle_guidelines, follow_up_instructions, next_review_date
		) VALUES (
			$1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, ''),
			COALESCE($6, ''), COALESCE($7, ''), COALESCE($8, ''), $9
		)
		ON CONFLICT (connection_id) DO UPDATE SET
			title = COALESCE($2, care_plans.title),
			summary = COALESCE($3, care_plans.summary),
			primary_diagnosis = COALESCE($4, care_plans.primary_diagnosis),
			treatment_plan = COALESCE($5, care_plans.treatment_plan),
			medication_overview = COALESCE($6, care_plans.medication_overview),
			lifestyle_guidelines = COALESCE($7, care_plans.lifestyle_guidelines),
			follow_up_instructions = COALESCE($8, care_plans.follow_up_instructions),
			next_review_date = COALESCE($9, care_plans.next_review_date),
			updated_at = NOW()
		RETURNING *
	`, params.ConnectionID, params.Title, params.Summary, params.PrimaryDiagnosis, params.TreatmentPlan,
		params.MedicationOverview, params.LifestyleGuidelines, params.FollowUpInstructions, params.NextReviewDate)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *workspaceRepo) AddEntry(ctx context.Context, params model.CreateTimelineEntryParams) (*model.TimelineEntry, error) {
	var e model.TimelineEntry
	err := r.db.GetContext(ctx, &e, `
		INSERT INTO timeline_entries (
			connection_id, entry_type, title, summary, details, visibility, is_critical, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`, params.ConnectionID, params.EntryType, params.Title, params.Summary, params.Details,
		params.Visibility, params.IsCritical, params.CreatedBy)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *workspaceRepo) ListEntries(ctx context.Context, connectionID string, includeInternal bool) ([]model.TimelineEntry, error) {
	entries := []model.TimelineEntry{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM timeline_entries
		WHERE connection_id = $1 AND ($2 OR visibility = 'patient')
		ORDER BY created_at DESC, id DESC
	`, connectionID, includeInternal)
	return entries, err
}
