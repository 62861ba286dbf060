package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/paulexconde/bizassess/internal/logger"
	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/internal/pkg/paginator"
	"github.com/paulexconde/bizassess/pkg/fault"
	"github.com/paulexconde/bizassess/pkg/store"
)

const versionsTable = "survey_versions"

// newVersion is the insert shape of a survey version.
type newVersion struct {
	SurveyID    int64                `db:"survey_id"`
	Version     int                  `db:"version"`
	Name        string               `db:"name"`
	Type        models.SurveyType    `db:"type"`
	Structure   models.Structure     `db:"structure" cast:"jsonb"`
	Status      models.VersionStatus `db:"status"`
	CreatedByID int64                `db:"created_by_id"`
}

func (newVersion) TableName() string { return versionsTable }

// versionChanges holds the mutable columns. Empty fields are left untouched.
type versionChanges struct {
	Name        string               `db:"name"`
	Structure   models.Structure     `db:"structure" cast:"jsonb"`
	Status      models.VersionStatus `db:"status"`
	PublishedAt *time.Time           `db:"published_at"`
	UpdatedAt   time.Time            `db:"updated_at"`
}

func (versionChanges) TableName() string { return versionsTable }

// historyRow is a version joined with its author.
type historyRow struct {
	models.SurveyVersion
	AuthorID        *int64     `db:"author_id"`
	AuthorUsername  *string    `db:"author_username"`
	AuthorCreatedAt *time.Time `db:"author_created_at"`
}

func (r historyRow) version() models.SurveyVersion {
	v := r.SurveyVersion
	if r.AuthorID != nil && r.AuthorUsername != nil {
		v.CreatedBy = &models.Admin{ID: *r.AuthorID, TelegramUsername: *r.AuthorUsername}
		if r.AuthorCreatedAt != nil {
			v.CreatedBy.CreatedAt = *r.AuthorCreatedAt
		}
	}
	return v
}

const historyQuery = `SELECT v.*, a.id AS author_id, a.telegram_username AS author_username, a.created_at AS author_created_at
FROM survey_versions v
LEFT JOIN admins a ON a.id = v.created_by_id
WHERE v.survey_id = $1
ORDER BY v.version DESC`

type versionStore struct {
	ds      store.Datastorer[models.SurveyVersion]
	history store.Datastorer[historyRow]
	pages   paginator.Paginator[historyRow]
}

func newVersionStore(db *sqlx.DB, log *logger.Logger) *versionStore {
	ds := store.NewDataStore[models.SurveyVersion](db, versionsTable)
	ds.SetHooks(store.Hooks{
		PreSave: []func(ctx context.Context, tx *sqlx.Tx, data store.DTO, isNew bool) error{
			func(_ context.Context, _ *sqlx.Tx, data store.DTO, isNew bool) error {
				if changes, ok := data.(*versionChanges); ok && !isNew {
					changes.UpdatedAt = time.Now().UTC()
				}
				return nil
			},
		},
		PostSave: []func(ctx context.Context, tx *sqlx.Tx, data store.DTO, model any, isNew bool) error{
			func(_ context.Context, _ *sqlx.Tx, _ store.DTO, model any, isNew bool) error {
				if v, ok := model.(*models.SurveyVersion); ok {
					log.Debug("survey version saved", "version_id", v.ID, "survey_id", v.SurveyID, "status", v.Status, "new", isNew)
				}
				return nil
			},
		},
	})

	history := store.NewDataStore[historyRow](db, versionsTable)

	return &versionStore{
		ds:      ds,
		history: history,
		pages:   paginator.NewPaginator[historyRow](history),
	}
}

func (s *versionStore) Insert(ctx context.Context, version *models.SurveyVersion) (*models.SurveyVersion, error) {
	structure := version.Structure
	if structure == nil {
		structure = models.Structure{}
	}

	return s.ds.Create(ctx, &newVersion{
		SurveyID:    version.SurveyID,
		Version:     version.VersionNumber,
		Name:        version.Name,
		Type:        version.Type,
		Structure:   structure,
		Status:      version.Status,
		CreatedByID: version.CreatedByID,
	})
}

func (s *versionStore) Get(ctx context.Context, id int64) (*models.SurveyVersion, error) {
	return s.ds.Get(ctx, "SELECT * FROM survey_versions WHERE id = $1", id)
}

func (s *versionStore) Save(ctx context.Context, version *models.SurveyVersion) (*models.SurveyVersion, error) {
	return s.ds.Update(ctx, version.ID, &versionChanges{
		Name:        version.Name,
		Structure:   version.Structure,
		Status:      version.Status,
		PublishedAt: version.PublishedAt,
	})
}

func (s *versionStore) MaxVersionNumber(ctx context.Context, surveyID int64) (int, error) {
	raw, err := s.ds.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM survey_versions WHERE survey_id = $1", surveyID)
	if err != nil {
		return 0, err
	}

	switch v := raw.(type) {
	case int64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("expected integer max version, got %T", raw)
	}
}

func (s *versionStore) Latest(ctx context.Context, surveyID int64, status *models.VersionStatus) (*models.SurveyVersion, error) {
	var (
		version *models.SurveyVersion
		err     error
	)
	if status == nil {
		version, err = s.ds.Get(ctx, "SELECT * FROM survey_versions WHERE survey_id = $1 ORDER BY version DESC LIMIT 1", surveyID)
	} else {
		version, err = s.ds.Get(ctx, "SELECT * FROM survey_versions WHERE survey_id = $1 AND status = $2 ORDER BY version DESC LIMIT 1", surveyID, *status)
	}
	if errors.Is(err, fault.ErrNotFound) {
		return nil, nil
	}
	return version, err
}

func (s *versionStore) History(ctx context.Context, surveyID int64) ([]models.SurveyVersion, error) {
	rows, err := s.history.Select(ctx, historyQuery, surveyID)
	if err != nil {
		return nil, err
	}

	versions := make([]models.SurveyVersion, len(rows))
	for i, row := range rows {
		versions[i] = row.version()
	}
	return versions, nil
}

func (s *versionStore) HistoryPage(ctx context.Context, surveyID int64, page, limit int) (*paginator.PaginatedResponse[models.SurveyVersion], error) {
	res, err := s.pages.PaginateQuery(ctx, historyQuery, []any{surveyID}, page, limit)
	if err != nil {
		return nil, err
	}

	return paginator.Map(res, historyRow.version), nil
}

func (s *versionStore) ListByStatus(ctx context.Context, surveyID int64, status models.VersionStatus) ([]models.SurveyVersion, error) {
	return s.ds.Select(ctx, "SELECT * FROM survey_versions WHERE survey_id = $1 AND status = $2 ORDER BY version DESC", surveyID, status)
}
