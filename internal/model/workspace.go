package model

import (
	"time"
)

// CarePlan holds the doctor-authored plan fields of a workspace.
type CarePlan struct {
	ConnectionID         string     `db:"connection_id" json:"connectionId"`
	Title                string     `db:"title" json:"title"`
	Summary              string     `db:"summary" json:"summary"`
	PrimaryDiagnosis     string     `db:"primary_diagnosis" json:"primaryDiagnosis"`
	TreatmentPlan        string     `db:"treatment_plan" json:"treatmentPlan"`
	MedicationOverview   string     `db:"medication_overview" json:"medicationOverview"`
	LifestyleGuidelines  string     `db:"lifestyle_guidelines" json:"lifestyleGuidelines"`
	FollowUpInstructions string     `db:"follow_up_instructions" json:"followUpInstructions"`
	NextReviewDate       *time.Time `db:"next_review_date" json:"nextReviewDate,omitempty"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updatedAt"`
}

// UpdateCarePlanParams carries a partial update; nil fields are left alone.
type UpdateCarePlanParams struct {
	ConnectionID         string
	Title                *string
	Summary              *string
	PrimaryDiagnosis     *string
	TreatmentPlan        *string
	MedicationOverview   *string
	LifestyleGuidelines  *string
	FollowUpInstructions *string
	NextReviewDate       *time.Time
}

type TimelineEntry struct {
	ID           string     `db:"id" json:"id"`
	ConnectionID string     `db:"connection_id" json:"connectionId"`
	EntryType    EntryType  `db:"entry_type" json:"entryType"`
	Title        string     `db:"title" json:"title"`
	Summary      string     `db:"summary" json:"summary"`
	Details      string     `db:"details" json:"details"`
	Visibility   Visibility `db:"visibility" json:"visibility"`
	IsCritical   bool       `db:"is_critical" json:"isCritical"`
	CreatedBy    string     `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

type CreateTimelineEntryParams struct {
	ConnectionID string
	EntryType    EntryType
	Title        string
	Summary      string
	Details      string
	Visibility   Visibility
	IsCritical   bool
	CreatedBy    string
}
