package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulexconde/bizassess/internal/logger"
	"github.com/paulexconde/bizassess/internal/metrics"
	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/internal/pkg/workerpool"
	"github.com/paulexconde/bizassess/pkg/fault"
	"go.opentelemetry.io/otel/attribute"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding codes.
const (
	FindingMultiplePublished  = "multiple_published"
	FindingPointerMissing     = "pointer_missing"
	FindingPointerDangling    = "pointer_dangling"
	FindingPointerMismatch    = "pointer_mismatch"
	FindingPointerForeign     = "pointer_foreign_survey"
	FindingPointerArchived    = "pointer_archived"
	FindingInvalidPublication = "invalid_published_structure"
)

type Finding struct {
	SurveyID  int64    `json:"surveyId"`
	VersionID int64    `json:"versionId,omitempty"`
	Code      string   `json:"code"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
}

type AuditReport struct {
	Surveys  int       `json:"surveys"`
	Findings []Finding `json:"findings"`
}

// Errors counts findings of error severity.
func (r *AuditReport) Errors() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Checks the pointer and status invariants of every survey.
type IntegrityService interface {
	Audit(ctx context.Context) (*AuditReport, error)
}

type IntegrityOptions struct {
	Workers   int
	QueueSize int
}

type integrityServiceImpl struct {
	stores    Stores
	validator StructureValidator
	log       *logger.Logger
	metrics   *metrics.Metrics
	opts      IntegrityOptions
}

func NewIntegrityService(stores Stores, validator StructureValidator, log *logger.Logger, m *metrics.Metrics, opts IntegrityOptions) IntegrityService {
	return &integrityServiceImpl{
		stores:    stores,
		validator: validator,
		log:       log,
		metrics:   m,
		opts:      opts,
	}
}

func (s *integrityServiceImpl) Audit(ctx context.Context) (report *AuditReport, err error) {
	ctx, finish := observe(ctx, s.metrics, "audit", s.opts.attrs()...)
	defer func() { finish(err) }()

	surveys, err := s.stores.Pointers.List(ctx)
	if err != nil {
		return nil, err
	}

	pool := workerpool.NewWorkerPool(ctx, s.log, s.opts.Workers, s.opts.QueueSize)

	var (
		mu       sync.Mutex
		findings []Finding
		errs     []error
	)

	for _, survey := range surveys {
		submitErr := pool.SubmitWait(ctx, func(ctx context.Context) {
			found, err := s.auditSurvey(ctx, survey)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("survey %d: %w", survey.ID, err))
				return
			}
			findings = append(findings, found...)
		})
		if submitErr != nil {
			mu.Lock()
			errs = append(errs, submitErr)
			mu.Unlock()
			break
		}
	}

	shutdownErr := pool.Shutdown(ctx)

	mu.Lock()
	defer mu.Unlock()

	if shutdownErr != nil {
		errs = append(errs, shutdownErr)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].SurveyID != findings[j].SurveyID {
			return findings[i].SurveyID < findings[j].SurveyID
		}
		return findings[i].Code < findings[j].Code
	})

	for _, f := range findings {
		s.metrics.AuditFinding(f.Code)
	}

	report = &AuditReport{Surveys: len(surveys), Findings: findings}
	if report.Findings == nil {
		report.Findings = []Finding{}
	}

	s.log.Info("integrity audit finished", "surveys", report.Surveys, "findings", len(report.Findings), "errors", report.Errors())
	return report, nil
}

func (s *integrityServiceImpl) auditSurvey(ctx context.Context, survey models.Survey) ([]Finding, error) {
	var findings []Finding
	add := func(versionID int64, code string, severity Severity, format string, args ...any) {
		findings = append(findings, Finding{
			SurveyID:  survey.ID,
			VersionID: versionID,
			Code:      code,
			Severity:  severity,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	published, err := s.stores.Versions.ListByStatus(ctx, survey.ID, models.StatusPublished)
	if err != nil {
		return nil, err
	}

	if len(published) > 1 {
		add(0, FindingMultiplePublished, SeverityError, "Survey %d has %d published versions", survey.ID, len(published))
	}

	for i := range published {
		violations := s.validator.Violations(published[i].Structure)
		if len(violations) > 0 {
			add(published[i].ID, FindingInvalidPublication, SeverityError,
				"Published version %d has %d structure violations, first: %s", published[i].ID, len(violations), violations[0].Message)
		}
	}

	if survey.LatestPublishedVersionID == nil {
		if len(published) > 0 {
			add(published[0].ID, FindingPointerMissing, SeverityError, "Survey %d has a published version but no pointer", survey.ID)
		}
		return findings, nil
	}

	pointerID := *survey.LatestPublishedVersionID
	pointed, err := s.stores.Versions.Get(ctx, pointerID)
	if errors.Is(err, fault.ErrNotFound) {
		add(pointerID, FindingPointerDangling, SeverityError, "Survey %d points at missing version %d", survey.ID, pointerID)
		return findings, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case pointed.SurveyID != survey.ID:
		add(pointerID, FindingPointerForeign, SeverityError, "Survey %d points at version %d of survey %d", survey.ID, pointerID, pointed.SurveyID)
	case pointed.Status == models.StatusArchived:
		add(pointerID, FindingPointerArchived, SeverityWarning, "Survey %d points at archived version %d", survey.ID, pointerID)
	case pointed.Status != models.StatusPublished:
		add(pointerID, FindingPointerMismatch, SeverityError, "Survey %d points at version %d in %s status", survey.ID, pointerID, pointed.Status)
	}

	if len(published) == 1 && published[0].ID != pointerID {
		add(published[0].ID, FindingPointerMismatch, SeverityError, "Survey %d points at version %d but version %d is published", survey.ID, pointerID, published[0].ID)
	}

	return findings, nil
}

func (o IntegrityOptions) attrs() []attribute.KeyValue {
	return []attribute.KeyValue{attribute.Int("audit.workers", o.Workers), attribute.Int("audit.queue_size", o.QueueSize)}
}
