package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paulexconde/bizassess/internal/logger"
	"github.com/paulexconde/bizassess/internal/metrics"
	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/pkg/fault"
	"go.opentelemetry.io/otel/attribute"
)

// Creates and retires the surveys and admins versions hang off.
type CatalogService interface {
	CreateSurvey(ctx context.Context, surveyType models.SurveyType, name string) (*models.Survey, error)
	GetSurvey(ctx context.Context, surveyID int64) (*models.Survey, error)
	ListSurveys(ctx context.Context) ([]models.Survey, error)
	// Soft deletes the survey. Its versions and sessions are kept.
	DeleteSurvey(ctx context.Context, surveyID int64) error
	RegisterAdmin(ctx context.Context, telegramUsername string) (*models.Admin, error)
}

type catalogServiceImpl struct {
	stores  Stores
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewCatalogService(stores Stores, log *logger.Logger, m *metrics.Metrics) CatalogService {
	return &catalogServiceImpl{stores: stores, log: log, metrics: m}
}

func (s *catalogServiceImpl) CreateSurvey(ctx context.Context, surveyType models.SurveyType, name string) (survey *models.Survey, err error) {
	ctx, finish := observe(ctx, s.metrics, "create_survey")
	defer func() { finish(err) }()

	surveyType = models.SurveyType(strings.ToUpper(string(surveyType)))
	if !surveyType.Valid() {
		return nil, fault.InvalidStructure(string(surveyType), fmt.Sprintf("Unknown survey type %q", surveyType))
	}
	if strings.TrimSpace(name) == "" {
		return nil, fault.InvalidStructure("name", "Survey name must not be empty")
	}

	survey, err = s.stores.Surveys.Create(ctx, &models.Survey{Type: surveyType, Name: name})
	if err != nil {
		return nil, err
	}

	s.log.Info("survey created", "survey_id", survey.ID, "type", survey.Type)
	return survey, nil
}

func (s *catalogServiceImpl) GetSurvey(ctx context.Context, surveyID int64) (survey *models.Survey, err error) {
	ctx, finish := observe(ctx, s.metrics, "get_survey", attribute.Int64("survey.id", surveyID))
	defer func() { finish(err) }()

	survey, err = s.stores.Pointers.Get(ctx, surveyID)
	if err != nil {
		return nil, surveyNotFound(surveyID, err)
	}
	return survey, nil
}

func (s *catalogServiceImpl) ListSurveys(ctx context.Context) (surveys []models.Survey, err error) {
	ctx, finish := observe(ctx, s.metrics, "list_surveys")
	defer func() { finish(err) }()

	return s.stores.Pointers.List(ctx)
}

func (s *catalogServiceImpl) DeleteSurvey(ctx context.Context, surveyID int64) (err error) {
	ctx, finish := observe(ctx, s.metrics, "delete_survey", attribute.Int64("survey.id", surveyID))
	defer func() { finish(err) }()

	if err := s.stores.Surveys.SoftDelete(ctx, surveyID); err != nil {
		return surveyNotFound(surveyID, err)
	}

	s.log.Info("survey deleted", "survey_id", surveyID)
	return nil
}

func (s *catalogServiceImpl) RegisterAdmin(ctx context.Context, telegramUsername string) (admin *models.Admin, err error) {
	ctx, finish := observe(ctx, s.metrics, "register_admin")
	defer func() { finish(err) }()

	telegramUsername = strings.TrimPrefix(strings.TrimSpace(telegramUsername), "@")
	if telegramUsername == "" {
		return nil, fault.NewClientError("Telegram username must not be empty", nil)
	}

	admin, err = s.stores.Admins.Create(ctx, &models.Admin{TelegramUsername: telegramUsername})
	if errors.Is(err, fault.ErrUniqueViolation) {
		return nil, fault.NewClientError(fmt.Sprintf("Admin %s already exists", telegramUsername), err)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("admin registered", "admin_id", admin.ID, "username", admin.TelegramUsername)
	return admin, nil
}
