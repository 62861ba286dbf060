package models

import (
	"time"
)

type SurveyType string

const (
	SurveyTypeExpress SurveyType = "EXPRESS"
	SurveyTypeFull    SurveyType = "FULL"
)

func (t SurveyType) Valid() bool {
	return t == SurveyTypeExpress || t == SurveyTypeFull
}

type VersionStatus string

const (
	StatusDraft     VersionStatus = "DRAFT"
	StatusPublished VersionStatus = "PUBLISHED"
	StatusArchived  VersionStatus = "ARCHIVED"
)

func (s VersionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Survey is the logical assessment that owns versions.
type Survey struct {
	ID   int64      `db:"id" json:"id"`
	Type SurveyType `db:"type" json:"type"`
	Name string     `db:"name" json:"name"`
	// LatestPublishedVersionID is the version new sessions are started on.
	LatestPublishedVersionID *int64     `db:"latest_published_version_id" json:"latestPublishedVersionId"`
	DeletedAt                *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt                time.Time  `db:"created_at" json:"createdAt"`
}

func (s *Survey) Deleted() bool {
	return s.DeletedAt != nil
}

type Admin struct {
	ID               int64     `db:"id" json:"id"`
	TelegramUsername string    `db:"telegram_username" json:"telegramUsername"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// SurveyVersion is one snapshot of a survey structure with a lifecycle status.
type SurveyVersion struct {
	ID            int64         `db:"id" json:"id"`
	SurveyID      int64         `db:"survey_id" json:"surveyId"`
	VersionNumber int           `db:"version" json:"versionNumber"`
	Name          string        `db:"name" json:"name"`
	Type          SurveyType    `db:"type" json:"type"`
	Structure     Structure     `db:"structure" json:"structure"`
	Status        VersionStatus `db:"status" json:"status"`
	PublishedAt   *time.Time    `db:"published_at" json:"publishedAt"`
	CreatedByID   int64         `db:"created_by_id" json:"createdById"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updatedAt"`

	// CreatedBy is only populated by history queries.
	CreatedBy *Admin `db:"-" json:"createdBy,omitempty"`
}

type SessionStatus string

const (
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
)

// SurveySession pins an end user's run to the version it was started on.
type SurveySession struct {
	ID              string        `db:"id" json:"id"`
	UserID          int64         `db:"user_telegram_id" json:"userId"`
	SurveyID        int64         `db:"survey_id" json:"surveyId"`
	SurveyVersionID int64         `db:"survey_version_id" json:"surveyVersionId"`
	Status          SessionStatus `db:"status" json:"status"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
}
