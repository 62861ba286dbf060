package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/paulexconde/bizassess/internal/logger"
	"github.com/paulexconde/bizassess/internal/metrics"
	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/pkg/fault"
	"go.opentelemetry.io/otel/attribute"
)

// Starts end-user sessions and resolves the version a session runs on.
//
// A session captures the version id when it starts. Unpublishing or
// republishing afterwards never moves an existing session.
type SessionService interface {
	// Starts a session on the survey's latest published version.
	StartSession(ctx context.Context, surveyID int64, userID int64) (*models.SurveySession, error)
	// Returns the version captured when the session started, whatever its status is now.
	ResolveSessionVersion(ctx context.Context, sessionID string) (*models.SurveyVersion, error)
}

type sessionServiceImpl struct {
	stores  Stores
	log     *logger.Logger
	metrics *metrics.Metrics
	newID   func() string
}

func NewSessionService(stores Stores, log *logger.Logger, m *metrics.Metrics) SessionService {
	return &sessionServiceImpl{
		stores:  stores,
		log:     log,
		metrics: m,
		newID:   func() string { return uuid.NewString() },
	}
}

func (s *sessionServiceImpl) StartSession(ctx context.Context, surveyID int64, userID int64) (session *models.SurveySession, err error) {
	ctx, finish := observe(ctx, s.metrics, "start_session", attribute.Int64("survey.id", surveyID))
	defer func() { finish(err) }()

	err = s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		survey, err := s.stores.Pointers.LockShared(ctx, surveyID)
		if err != nil {
			return surveyNotFound(surveyID, err)
		}
		if survey.Deleted() {
			return fault.NotFound(itoa(surveyID), "Survey %d not found", surveyID)
		}
		if survey.LatestPublishedVersionID == nil {
			return fault.NotFound(itoa(surveyID), "Survey %d has no published version", surveyID)
		}

		versionID := *survey.LatestPublishedVersionID
		version, err := s.stores.Versions.Get(ctx, versionID)
		if err != nil {
			return versionNotFound(versionID, err)
		}
		if version.Status != models.StatusPublished {
			return fault.InvalidTransition(itoa(versionID), "Version %d is not in PUBLISHED status (current: %s)", versionID, version.Status)
		}

		session, err = s.stores.Sessions.Create(ctx, &models.SurveySession{
			ID:              s.newID(),
			UserID:          userID,
			SurveyID:        surveyID,
			SurveyVersionID: version.ID,
			Status:          models.SessionInProgress,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SessionStarted()
	s.log.Info("session started",
		"session_id", session.ID,
		"survey_id", surveyID,
		"version_id", session.SurveyVersionID,
	)
	return session, nil
}

func (s *sessionServiceImpl) ResolveSessionVersion(ctx context.Context, sessionID string) (version *models.SurveyVersion, err error) {
	ctx, finish := observe(ctx, s.metrics, "resolve_session_version", attribute.String("session.id", sessionID))
	defer func() { finish(err) }()

	session, err := s.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, fault.ErrNotFound) {
			return nil, fault.NotFound(sessionID, "Session %s not found", sessionID)
		}
		return nil, err
	}

	version, err = s.stores.Versions.Get(ctx, session.SurveyVersionID)
	if err != nil {
		return nil, versionNotFound(session.SurveyVersionID, err)
	}
	return version, nil
}
