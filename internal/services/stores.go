package services

import (
	"context"

	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/internal/pkg/paginator"
)

// TxRunner runs fn as one atomic unit. Calls made with the ctx handed to fn join
// the same transaction, and a nested InTx does not open a second one.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Missing rows are reported as fault.ErrNotFound, a taken (survey, version) pair
// as fault.ErrUniqueViolation and a referenced row as fault.ErrForeignKeyViolation.
type VersionStore interface {
	Insert(ctx context.Context, version *models.SurveyVersion) (*models.SurveyVersion, error)
	Get(ctx context.Context, id int64) (*models.SurveyVersion, error)
	// Save persists name, structure, status and published_at of an existing version.
	Save(ctx context.Context, version *models.SurveyVersion) (*models.SurveyVersion, error)
	// MaxVersionNumber returns 0 when the survey has no versions.
	MaxVersionNumber(ctx context.Context, surveyID int64) (int, error)
	// Latest returns nil without error when nothing matches.
	Latest(ctx context.Context, surveyID int64, status *models.VersionStatus) (*models.SurveyVersion, error)
	// History is ordered by version number, highest first, with CreatedBy set.
	History(ctx context.Context, surveyID int64) ([]models.SurveyVersion, error)
	HistoryPage(ctx context.Context, surveyID int64, page, limit int) (*paginator.PaginatedResponse[models.SurveyVersion], error)
	ListByStatus(ctx context.Context, surveyID int64, status models.VersionStatus) ([]models.SurveyVersion, error)
}

type SurveyPointerStore interface {
	Get(ctx context.Context, surveyID int64) (*models.Survey, error)
	// Lock reads the survey and holds it exclusively until the surrounding transaction ends.
	Lock(ctx context.Context, surveyID int64) (*models.Survey, error)
	// LockShared is Lock for readers: shared holders do not wait for each other,
	// only for an exclusive holder such as a publish.
	LockShared(ctx context.Context, surveyID int64) (*models.Survey, error)
	SetLatestPublished(ctx context.Context, surveyID int64, versionID *int64) error
	List(ctx context.Context) ([]models.Survey, error)
}

type SessionStore interface {
	Create(ctx context.Context, session *models.SurveySession) (*models.SurveySession, error)
	Get(ctx context.Context, id string) (*models.SurveySession, error)
	CountByVersion(ctx context.Context, versionID int64) (int, error)
}

type SurveyStore interface {
	Create(ctx context.Context, survey *models.Survey) (*models.Survey, error)
	SoftDelete(ctx context.Context, id int64) error
}

type AdminStore interface {
	Create(ctx context.Context, admin *models.Admin) (*models.Admin, error)
	Get(ctx context.Context, id int64) (*models.Admin, error)
}

// Stores groups the persistence a service layer runs against.
type Stores struct {
	Tx       TxRunner
	Versions VersionStore
	Pointers SurveyPointerStore
	Sessions SessionStore
	Surveys  SurveyStore
	Admins   AdminStore
}
