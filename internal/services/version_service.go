package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulexconde/bizassess/internal/logger"
	"github.com/paulexconde/bizassess/internal/metrics"
	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/internal/pkg/paginator"
	"github.com/paulexconde/bizassess/internal/pkg/retry"
	"github.com/paulexconde/bizassess/pkg/fault"
	"go.opentelemetry.io/otel/attribute"
)

// Manages the DRAFT -> PUBLISHED -> ARCHIVED lifecycle of survey versions.
//
// Every mutating call is a single transaction. A published structure is never
// edited: changes go through CreateNewVersionFromExisting and a new draft.
type VersionService interface {
	// Validates structure and stores it as the next DRAFT of the survey.
	CreateDraftVersion(ctx context.Context, surveyID int64, name string, surveyType models.SurveyType, structure models.Structure, authorID int64) (*models.SurveyVersion, error)
	// Clones name, type and structure of a version into a new DRAFT of the same survey.
	CreateNewVersionFromExisting(ctx context.Context, versionID int64, authorID int64) (*models.SurveyVersion, error)
	// Publishes a DRAFT and points its survey at it. Any other published
	// version of the survey is archived in the same transaction.
	PublishVersion(ctx context.Context, versionID int64) (*models.SurveyVersion, error)
	// Archives a PUBLISHED version. The survey pointer and sessions are left alone.
	UnpublishVersion(ctx context.Context, versionID int64) (*models.SurveyVersion, error)
	// Returns nil when the survey has no version with the given status.
	GetLatestVersion(ctx context.Context, surveyID int64, status *models.VersionStatus) (*models.SurveyVersion, error)
	GetVersionHistory(ctx context.Context, surveyID int64) ([]models.SurveyVersion, error)
	GetVersionHistoryPage(ctx context.Context, surveyID int64, page, limit int) (*paginator.PaginatedResponse[models.SurveyVersion], error)
	GetVersion(ctx context.Context, versionID int64) (*models.SurveyVersion, error)
	// Edits a DRAFT nobody has started a session on yet.
	UpdateDraftStructure(ctx context.Context, versionID int64, name string, structure models.Structure) (*models.SurveyVersion, error)
}

type VersionServiceOptions struct {
	// Retry bounds how often a colliding version number is recomputed.
	Retry retry.Config
	Rules []PublishRule
	Now   func() time.Time
}

type versionServiceImpl struct {
	stores    Stores
	validator StructureValidator
	log       *logger.Logger
	metrics   *metrics.Metrics
	retry     retry.Config
	rules     []PublishRule
	now       func() time.Time
}

// Instantiate the VersionService.
func NewVersionService(stores Stores, validator StructureValidator, log *logger.Logger, m *metrics.Metrics, opts VersionServiceOptions) VersionService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}

	return &versionServiceImpl{
		stores:    stores,
		validator: validator,
		log:       log,
		metrics:   m,
		retry:     opts.Retry,
		rules:     opts.Rules,
		now:       opts.Now,
	}
}

func (s *versionServiceImpl) CreateDraftVersion(ctx context.Context, surveyID int64, name string, surveyType models.SurveyType, structure models.Structure, authorID int64) (created *models.SurveyVersion, err error) {
	ctx, finish := observe(ctx, s.metrics, "create_draft_version", attribute.Int64("survey.id", surveyID))
	defer func() { finish(err) }()

	surveyType = models.SurveyType(strings.ToUpper(string(surveyType)))
	structure = structure.Clone()

	created, err = retry.On(ctx, s.retry, isVersionCollision,
		func(attempt int, err error) {
			s.metrics.VersionConflict()
			s.log.Warn("version number collision, retrying", "survey_id", surveyID, "attempt", attempt, "error", err)
		},
		func(ctx context.Context) (*models.SurveyVersion, error) {
			return s.insertDraft(ctx, surveyID, name, surveyType, structure, authorID)
		},
	)
	if err != nil {
		if isVersionCollision(err) {
			return nil, fault.Conflict(itoa(surveyID), fmt.Sprintf("Could not assign a version number for survey %d", surveyID), err)
		}
		return nil, err
	}

	s.log.Info("draft version created",
		"survey_id", surveyID,
		"version_id", created.ID,
		"version", created.VersionNumber,
		"author_id", authorID,
	)
	return created, nil
}

func isVersionCollision(err error) bool {
	return errors.Is(err, fault.ErrUniqueViolation)
}

// insertDraft assigns max+1 while the survey row is locked, so concurrent
// creators for the same survey queue up behind each other.
func (s *versionServiceImpl) insertDraft(ctx context.Context, surveyID int64, name string, surveyType models.SurveyType, structure models.Structure, authorID int64) (*models.SurveyVersion, error) {
	var created *models.SurveyVersion

	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		survey, err := s.stores.Pointers.Lock(ctx, surveyID)
		if err != nil {
			return surveyNotFound(surveyID, err)
		}
		if survey.Deleted() {
			s.log.Warn("creating draft for a deleted survey", "survey_id", surveyID)
		}

		if !surveyType.Valid() {
			s.metrics.StructureRejection("draft")
			return fault.InvalidStructure(string(surveyType), fmt.Sprintf("Unknown survey type %q", surveyType))
		}
		if err := s.validator.Validate(structure); err != nil {
			s.metrics.StructureRejection("draft")
			return err
		}

		if name == "" {
			name = survey.Name
		}

		latest, err := s.stores.Versions.MaxVersionNumber(ctx, surveyID)
		if err != nil {
			return err
		}

		created, err = s.stores.Versions.Insert(ctx, &models.SurveyVersion{
			SurveyID:      surveyID,
			VersionNumber: latest + 1,
			Name:          name,
			Type:          surveyType,
			Structure:     structure,
			Status:        models.StatusDraft,
			CreatedByID:   authorID,
		})
		if errors.Is(err, fault.ErrForeignKeyViolation) {
			return fault.NotFound(itoa(authorID), "Admin %d not found", authorID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (s *versionServiceImpl) CreateNewVersionFromExisting(ctx context.Context, versionID int64, authorID int64) (created *models.SurveyVersion, err error) {
	ctx, finish := observe(ctx, s.metrics, "clone_version", attribute.Int64("version.id", versionID))
	defer func() { finish(err) }()

	existing, err := s.stores.Versions.Get(ctx, versionID)
	if err != nil {
		return nil, versionNotFound(versionID, err)
	}

	created, err = s.CreateDraftVersion(ctx, existing.SurveyID, existing.Name, existing.Type, existing.Structure, authorID)
	if err != nil {
		return nil, err
	}

	s.log.Info("version cloned", "from_version_id", versionID, "version_id", created.ID)
	return created, nil
}

func (s *versionServiceImpl) PublishVersion(ctx context.Context, versionID int64) (published *models.SurveyVersion, err error) {
	ctx, finish := observe(ctx, s.metrics, "publish_version", attribute.Int64("version.id", versionID))
	defer func() { finish(err) }()

	var archived []int64

	err = s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		version, err := s.lockVersion(ctx, versionID)
		if err != nil {
			return err
		}

		if version.Status != models.StatusDraft {
			return fault.InvalidTransition(itoa(versionID), "Version %d is not in DRAFT status (current: %s)", versionID, version.Status)
		}

		if err := s.validator.Validate(version.Structure); err != nil {
			s.metrics.StructureRejection("publish")
			return err
		}
		if err := checkPublishRules(s.rules, version); err != nil {
			s.metrics.StructureRejection("publish_rule")
			return err
		}

		rivals, err := s.stores.Versions.ListByStatus(ctx, version.SurveyID, models.StatusPublished)
		if err != nil {
			return err
		}
		for i := range rivals {
			rival := &rivals[i]
			if rival.ID == version.ID {
				continue
			}
			rival.Status = models.StatusArchived
			if _, err := s.stores.Versions.Save(ctx, rival); err != nil {
				return err
			}
			archived = append(archived, rival.ID)
		}

		now := s.now().UTC()
		version.Status = models.StatusPublished
		version.PublishedAt = &now

		published, err = s.stores.Versions.Save(ctx, version)
		if err != nil {
			return err
		}

		return s.stores.Pointers.SetLatestPublished(ctx, version.SurveyID, &published.ID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("version published",
		"survey_id", published.SurveyID,
		"version_id", published.ID,
		"version", published.VersionNumber,
		"archived", archived,
	)
	return published, nil
}

func (s *versionServiceImpl) UnpublishVersion(ctx context.Context, versionID int64) (archived *models.SurveyVersion, err error) {
	ctx, finish := observe(ctx, s.metrics, "unpublish_version", attribute.Int64("version.id", versionID))
	defer func() { finish(err) }()

	var pointerKept bool

	err = s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		version, err := s.lockVersion(ctx, versionID)
		if err != nil {
			return err
		}

		if version.Status != models.StatusPublished {
			return fault.InvalidTransition(itoa(versionID), "Version %d is not in PUBLISHED status (current: %s)", versionID, version.Status)
		}

		version.Status = models.StatusArchived
		archived, err = s.stores.Versions.Save(ctx, version)
		if err != nil {
			return err
		}

		survey, err := s.stores.Pointers.Get(ctx, version.SurveyID)
		if err != nil {
			return surveyNotFound(version.SurveyID, err)
		}
		pointerKept = survey.LatestPublishedVersionID != nil && *survey.LatestPublishedVersionID == versionID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if pointerKept {
		s.log.Warn("survey still points at an archived version; new sessions are refused until another version is published",
			"survey_id", archived.SurveyID,
			"version_id", archived.ID,
		)
	}
	s.log.Info("version unpublished", "survey_id", archived.SurveyID, "version_id", archived.ID)
	return archived, nil
}

// lockVersion locks the owning survey and reads the version again under that
// lock, so two lifecycle changes of one survey never interleave.
func (s *versionServiceImpl) lockVersion(ctx context.Context, versionID int64) (*models.SurveyVersion, error) {
	version, err := s.stores.Versions.Get(ctx, versionID)
	if err != nil {
		return nil, versionNotFound(versionID, err)
	}

	if _, err := s.stores.Pointers.Lock(ctx, version.SurveyID); err != nil {
		return nil, surveyNotFound(version.SurveyID, err)
	}

	version, err = s.stores.Versions.Get(ctx, versionID)
	if err != nil {
		return nil, versionNotFound(versionID, err)
	}
	return version, nil
}

func (s *versionServiceImpl) GetLatestVersion(ctx context.Context, surveyID int64, status *models.VersionStatus) (version *models.SurveyVersion, err error) {
	attrs := []attribute.KeyValue{attribute.Int64("survey.id", surveyID)}
	if status != nil {
		attrs = append(attrs, attribute.String("version.status", string(*status)))
	}
	ctx, finish := observe(ctx, s.metrics, "get_latest_version", attrs...)
	defer func() { finish(err) }()

	return s.stores.Versions.Latest(ctx, surveyID, status)
}

func (s *versionServiceImpl) GetVersionHistory(ctx context.Context, surveyID int64) (history []models.SurveyVersion, err error) {
	ctx, finish := observe(ctx, s.metrics, "get_version_history", attribute.Int64("survey.id", surveyID))
	defer func() { finish(err) }()

	history, err = s.stores.Versions.History(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []models.SurveyVersion{}
	}
	return history, nil
}

func (s *versionServiceImpl) GetVersionHistoryPage(ctx context.Context, surveyID int64, page, limit int) (result *paginator.PaginatedResponse[models.SurveyVersion], err error) {
	ctx, finish := observe(ctx, s.metrics, "get_version_history_page", attribute.Int64("survey.id", surveyID), attribute.Int("page", page))
	defer func() { finish(err) }()

	return s.stores.Versions.HistoryPage(ctx, surveyID, page, limit)
}

func (s *versionServiceImpl) GetVersion(ctx context.Context, versionID int64) (version *models.SurveyVersion, err error) {
	ctx, finish := observe(ctx, s.metrics, "get_version", attribute.Int64("version.id", versionID))
	defer func() { finish(err) }()

	version, err = s.stores.Versions.Get(ctx, versionID)
	if err != nil {
		return nil, versionNotFound(versionID, err)
	}
	return version, nil
}

func (s *versionServiceImpl) UpdateDraftStructure(ctx context.Context, versionID int64, name string, structure models.Structure) (updated *models.SurveyVersion, err error) {
	ctx, finish := observe(ctx, s.metrics, "update_draft_structure", attribute.Int64("version.id", versionID))
	defer func() { finish(err) }()

	structure = structure.Clone()

	err = s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		version, err := s.editableDraft(ctx, versionID)
		if err != nil {
			return err
		}

		if err := s.validator.Validate(structure); err != nil {
			s.metrics.StructureRejection("draft")
			return err
		}

		if name != "" {
			version.Name = name
		}
		version.Structure = structure

		updated, err = s.stores.Versions.Save(ctx, version)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("draft version updated", "survey_id", updated.SurveyID, "version_id", updated.ID)
	return updated, nil
}

// editableDraft returns the version if it is a DRAFT no session refers to.
func (s *versionServiceImpl) editableDraft(ctx context.Context, versionID int64) (*models.SurveyVersion, error) {
	version, err := s.lockVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	if version.Status != models.StatusDraft {
		return nil, fault.InvalidTransition(itoa(versionID), "Version %d is not in DRAFT status (current: %s)", versionID, version.Status)
	}

	sessions, err := s.stores.Sessions.CountByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if sessions > 0 {
		return nil, fault.InvalidTransition(itoa(versionID), "Version %d is used by %d sessions", versionID, sessions)
	}

	return version, nil
}
