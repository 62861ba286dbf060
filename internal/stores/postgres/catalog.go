package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/pkg/fault"
	"github.com/paulexconde/bizassess/pkg/store"
)

type newSurvey struct {
	Type models.SurveyType `db:"type"`
	Name string            `db:"name"`
}

func (newSurvey) TableName() string { return "surveys" }

type surveyStore struct {
	ds store.Datastorer[models.Survey]
}

func newSurveyStore(db *sqlx.DB) *surveyStore {
	return &surveyStore{ds: store.NewDataStore[models.Survey](db, "surveys")}
}

func (s *surveyStore) Create(ctx context.Context, survey *models.Survey) (*models.Survey, error) {
	return s.ds.Create(ctx, &newSurvey{Type: survey.Type, Name: survey.Name})
}

func (s *surveyStore) Get(ctx context.Context, surveyID int64) (*models.Survey, error) {
	return s.ds.Get(ctx, "SELECT * FROM surveys WHERE id = $1", surveyID)
}

// Lock takes an exclusive row lock that is held until the transaction in ctx ends.
func (s *surveyStore) Lock(ctx context.Context, surveyID int64) (*models.Survey, error) {
	return s.lockRow(ctx, surveyID, "FOR UPDATE")
}

func (s *surveyStore) LockShared(ctx context.Context, surveyID int64) (*models.Survey, error) {
	return s.lockRow(ctx, surveyID, "FOR SHARE")
}

func (s *surveyStore) lockRow(ctx context.Context, surveyID int64, mode string) (*models.Survey, error) {
	if _, ok := store.TxFrom(ctx); !ok {
		return nil, fmt.Errorf("lock survey %d: no transaction in context", surveyID)
	}
	return s.ds.Get(ctx, "SELECT * FROM surveys WHERE id = $1 "+mode, surveyID)
}

func (s *surveyStore) SetLatestPublished(ctx context.Context, surveyID int64, versionID *int64) error {
	n, err := s.ds.Exec(ctx, "UPDATE surveys SET latest_published_version_id = $2 WHERE id = $1", surveyID, versionID)
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.ErrNotFound
	}
	return nil
}

func (s *surveyStore) List(ctx context.Context) ([]models.Survey, error) {
	return s.ds.Select(ctx, "SELECT * FROM surveys ORDER BY id")
}

func (s *surveyStore) SoftDelete(ctx context.Context, id int64) error {
	n, err := s.ds.Exec(ctx, "UPDATE surveys SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.ErrNotFound
	}
	return nil
}

type newSession struct {
	ID              string               `db:"id"`
	UserID          int64                `db:"user_telegram_id"`
	SurveyID        int64                `db:"survey_id"`
	SurveyVersionID int64                `db:"survey_version_id"`
	Status          models.SessionStatus `db:"status"`
}

func (newSession) TableName() string { return "survey_sessions" }

type sessionStore struct {
	ds store.Datastorer[models.SurveySession]
}

func newSessionStore(db *sqlx.DB) *sessionStore {
	return &sessionStore{ds: store.NewDataStore[models.SurveySession](db, "survey_sessions")}
}

func (s *sessionStore) Create(ctx context.Context, session *models.SurveySession) (*models.SurveySession, error) {
	return s.ds.Create(ctx, &newSession{
		ID:              session.ID,
		UserID:          session.UserID,
		SurveyID:        session.SurveyID,
		SurveyVersionID: session.SurveyVersionID,
		Status:          session.Status,
	})
}

func (s *sessionStore) Get(ctx context.Context, id string) (*models.SurveySession, error) {
	// Anything that is not a uuid cannot be a session id.
	if _, err := uuid.Parse(id); err != nil {
		return nil, fault.ErrNotFound
	}
	return s.ds.Get(ctx, "SELECT * FROM survey_sessions WHERE id = $1", id)
}

func (s *sessionStore) CountByVersion(ctx context.Context, versionID int64) (int, error) {
	raw, err := s.ds.QueryRow(ctx, "SELECT COUNT(*) FROM survey_sessions WHERE survey_version_id = $1", versionID)
	if err != nil {
		return 0, err
	}
	count, ok := raw.(int64)
	if !ok {
		return 0, fmt.Errorf("expected int64 session count, got %T", raw)
	}
	return int(count), nil
}

type newAdmin struct {
	TelegramUsername string `db:"telegram_username"`
}

func (newAdmin) TableName() string { return "admins" }

type adminStore struct {
	ds store.Datastorer[models.Admin]
}

func newAdminStore(db *sqlx.DB) *adminStore {
	return &adminStore{ds: store.NewDataStore[models.Admin](db, "admins")}
}

func (s *adminStore) Create(ctx context.Context, admin *models.Admin) (*models.Admin, error) {
	return s.ds.Create(ctx, &newAdmin{TelegramUsername: admin.TelegramUsername})
}

func (s *adminStore) Get(ctx context.Context, id int64) (*models.Admin, error) {
	return s.ds.Get(ctx, "SELECT * FROM admins WHERE id = $1", id)
}
