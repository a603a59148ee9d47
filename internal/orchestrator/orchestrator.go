package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/repofleet/internal/discovery"
	"github.com/temirov/repofleet/internal/gitflow"
	"github.com/temirov/repofleet/internal/localsync"
	"github.com/temirov/repofleet/internal/mutation"
	"github.com/temirov/repofleet/internal/shared"
	"github.com/temirov/repofleet/internal/skiplist"
	"github.com/temirov/repofleet/internal/utils"
)

const (
	loggerMissingMessageConstant        = "orchestrator logger not configured"
	walkerMissingMessageConstant        = "repository walker not configured"
	skipEvaluatorMissingMessageConstant = "skip evaluator not configured"
	synchronizerMissingMessageConstant  = "synchronizer not configured"
	publisherMissingMessageConstant     = "publisher not configured"
	startURLMissingMessageConstant      = "listing url not configured"

	runStartedLogMessageConstant          = "Fleet run started"
	runFinishedLogMessageConstant         = "Fleet run finished"
	runInterruptedLogMessageConstant      = "Fleet run interrupted"
	repositoryProcessedLogMessageConstant = "Repository processed"
	logFieldRunIdentifierConstant         = "run_id"
	logFieldRepositoryConstant            = "repository"
	logFieldOutcomeConstant               = "outcome"
	logFieldStageConstant                 = "stage"
	logFieldReasonConstant                = "reason"
	logFieldPullRequestURLConstant        = "pull_request_url"
	logFieldBranchPushedConstant          = "branch_pushed"
	logFieldListingURLConstant            = "listing_url"
	logFieldRepositoryCountConstant       = "repositories"
	logFieldFailureCountConstant          = "failed"

	reasonMarkerMissingConstant      = "marker file missing"
	reasonNotApplicableConstant      = "handler not applicable"
	reasonEmptyChangeSetConstant     = "handler produced no changes"
	reasonPullRequestOpenedConstant  = "pull request opened"
	reasonPullRequestReusedConstant  = "existing pull request reused"
	reasonBranchPushedSuffixConstant = " (branch pushed, no rollback)"
)

var (
	// ErrLoggerNotConfigured indicates missing logger dependency.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrWalkerNotConfigured indicates missing repository walker.
	ErrWalkerNotConfigured = errors.New(walkerMissingMessageConstant)
	// ErrSkipEvaluatorNotConfigured indicates missing skip evaluator.
	ErrSkipEvaluatorNotConfigured = errors.New(skipEvaluatorMissingMessageConstant)
	// ErrSynchronizerNotConfigured indicates missing synchronizer.
	ErrSynchronizerNotConfigured = errors.New(synchronizerMissingMessageConstant)
	// ErrPublisherNotConfigured indicates missing publisher.
	ErrPublisherNotConfigured = errors.New(publisherMissingMessageConstant)
	// ErrStartURLNotConfigured indicates an empty listing URL.
	ErrStartURLNotConfigured = errors.New(startURLMissingMessageConstant)
)

// RepositoryWalker enumerates repositories lazily.
type RepositoryWalker interface {
	Walk(executionContext context.Context, startURL string, visit discovery.RepositoryVisitor) error
}

// SkipEvaluator decides whether a repository is excluded from the run.
type SkipEvaluator interface {
	Evaluate(name string) skiplist.Decision
}

// Synchronizer prepares a clean working copy.
type Synchronizer interface {
	Sync(executionContext context.Context, descriptor shared.RepositoryDescriptor) (shared.WorkingCopy, error)
}

// Publisher files changes as a pull request.
type Publisher interface {
	Publish(executionContext context.Context, request gitflow.Request) (gitflow.Result, error)
}

// IdentifierGenerator produces run identifiers.
type IdentifierGenerator func() string

// Dependencies enumerates collaborators required by Orchestrator.
type Dependencies struct {
	Logger              *zap.Logger
	Walker              RepositoryWalker
	SkipEvaluator       SkipEvaluator
	Synchronizer        Synchronizer
	Publisher           Publisher
	StartURL            string
	Clock               shared.Clock
	IdentifierGenerator IdentifierGenerator
}

// Orchestrator processes repositories sequentially.
type Orchestrator struct {
	logger              *zap.Logger
	walker              RepositoryWalker
	skipEvaluator       SkipEvaluator
	synchronizer        Synchronizer
	publisher           Publisher
	startURL            string
	clock               shared.Clock
	identifierGenerator IdentifierGenerator
	contextAccessor     utils.CommandContextAccessor
}

// NewOrchestrator validates dependencies and constructs an Orchestrator.
func NewOrchestrator(dependencies Dependencies) (*Orchestrator, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Walker == nil {
		return nil, ErrWalkerNotConfigured
	}
	if dependencies.SkipEvaluator == nil {
		return nil, ErrSkipEvaluatorNotConfigured
	}
	if dependencies.Synchronizer == nil {
		return nil, ErrSynchronizerNotConfigured
	}
	if dependencies.Publisher == nil {
		return nil, ErrPublisherNotConfigured
	}
	startURL := strings.TrimSpace(dependencies.StartURL)
	if len(startURL) == 0 {
		return nil, ErrStartURLNotConfigured
	}

	clock := dependencies.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	identifierGenerator := dependencies.IdentifierGenerator
	if identifierGenerator == nil {
		identifierGenerator = uuid.NewString
	}

	return &Orchestrator{
		logger:              dependencies.Logger,
		walker:              dependencies.Walker,
		skipEvaluator:       dependencies.SkipEvaluator,
		synchronizer:        dependencies.Synchronizer,
		publisher:           dependencies.Publisher,
		startURL:            startURL,
		clock:               clock,
		identifierGenerator: identifierGenerator,
		contextAccessor:     utils.NewCommandContextAccessor(),
	}, nil
}

// Run processes every discovered repository with handler and aggregates the
// outcomes. The returned error is non-nil only when discovery failed or the
// context was cancelled between repositories; the Report then holds the
// outcomes gathered so far.
func (orchestrator *Orchestrator) Run(executionContext context.Context, handler mutation.Handler) (Report, error) {
	if handler == nil {
		return Report{}, ErrHandlerNotConfigured
	}
	if executionContext == nil {
		executionContext = context.Background()
	}

	runIdentifier := orchestrator.identifierGenerator()
	runContext := orchestrator.contextAccessor.WithRunIdentifier(executionContext, runIdentifier)
	runLogger := orchestrator.logger.With(zap.String(logFieldRunIdentifierConstant, runIdentifier))

	report := Report{RunIdentifier: runIdentifier, StartedAt: orchestrator.clock.Now()}
	runLogger.Info(runStartedLogMessageConstant, zap.String(logFieldListingURLConstant, orchestrator.startURL))

	walkError := orchestrator.walker.Walk(runContext, orchestrator.startURL, func(descriptor shared.RepositoryDescriptor) error {
		if contextError := runContext.Err(); contextError != nil {
			return contextError
		}
		outcome := orchestrator.processRepository(runContext, runLogger, descriptor, handler)
		report.Outcomes = append(report.Outcomes, outcome)
		return nil
	})
	report.FinishedAt = orchestrator.clock.Now()

	summary := report.Summary()
	if walkError != nil {
		runLogger.Error(runInterruptedLogMessageConstant,
			zap.Int(logFieldRepositoryCountConstant, summary.Total),
			zap.Int(logFieldFailureCountConstant, summary.Failed),
			zap.Error(walkError),
		)
		return report, walkError
	}

	runLogger.Info(runFinishedLogMessageConstant,
		zap.Int(logFieldRepositoryCountConstant, summary.Total),
		zap.Int(logFieldFailureCountConstant, summary.Failed),
	)
	return report, nil
}

// ProcessRepository carries one repository to a terminal Outcome. It never
// panics and never returns an error: every failure is part of the Outcome.
func (orchestrator *Orchestrator) ProcessRepository(executionContext context.Context, descriptor shared.RepositoryDescriptor, handler mutation.Handler) Outcome {
	if executionContext == nil {
		executionContext = context.Background()
	}
	return orchestrator.processRepository(executionContext, orchestrator.logger, descriptor, handler)
}

func (orchestrator *Orchestrator) processRepository(executionContext context.Context, logger *zap.Logger, descriptor shared.RepositoryDescriptor, handler mutation.Handler) Outcome {
	outcome := orchestrator.evaluate(executionContext, descriptor, handler)
	logOutcome(logger, outcome)
	return outcome
}

func (orchestrator *Orchestrator) evaluate(executionContext context.Context, descriptor shared.RepositoryDescriptor, handler mutation.Handler) Outcome {
	repositoryName := descriptor.FullName()

	if handler == nil {
		return failedOutcome(repositoryName, StageApplicability, ErrHandlerNotConfigured)
	}

	if decision := orchestrator.skipEvaluator.Evaluate(descriptor.Name); decision.Skip {
		return Outcome{Repository: repositoryName, Kind: OutcomeSkipped, Reason: decision.Describe()}
	}

	workingCopy, syncError := orchestrator.synchronizer.Sync(executionContext, descriptor)
	if syncError != nil {
		if errors.Is(syncError, localsync.ErrMarkerMissing) {
			return Outcome{Repository: repositoryName, Kind: OutcomeSkipped, Reason: reasonMarkerMissingConstant}
		}
		return failedOutcome(repositoryName, StageSync, syncError)
	}

	applicable, applicabilityError := checkApplicability(executionContext, handler, workingCopy)
	if applicabilityError != nil {
		return failedOutcome(repositoryName, StageApplicability, HandlerError{Repository: repositoryName, Stage: StageApplicability, Cause: applicabilityError})
	}
	if !applicable {
		return Outcome{Repository: repositoryName, Kind: OutcomeNoOp, Reason: reasonNotApplicableConstant}
	}

	changeSet, applyError := applyHandler(executionContext, handler, workingCopy)
	if applyError != nil {
		return failedOutcome(repositoryName, StageApply, HandlerError{Repository: repositoryName, Stage: StageApply, Cause: applyError})
	}
	if changeSet.IsEmpty() {
		return Outcome{Repository: repositoryName, Kind: OutcomeNoOp, Reason: reasonEmptyChangeSetConstant}
	}

	metadata := handler.Metadata()
	stagePatterns := handler.StagePatterns()
	if len(stagePatterns) == 0 {
		stagePatterns = changeSet.Paths()
	}

	result, publishError := orchestrator.publisher.Publish(executionContext, gitflow.Request{
		WorkingCopy:      workingCopy,
		BranchName:       metadata.BranchName,
		StagePatterns:    stagePatterns,
		CommitMessage:    metadata.CommitMessage,
		PullRequestTitle: metadata.Title(),
		PullRequestBody:  metadata.PullRequestBody,
		Reviewer:         metadata.Reviewer,
	})
	branchPushed := result.Stage == gitflow.StagePushed || result.Stage == gitflow.StagePROpened
	if publishError != nil {
		failure := failedOutcome(repositoryName, publicationStage(publishError), publishError)
		failure.BranchPushed = branchPushed
		if branchPushed {
			failure.Reason += reasonBranchPushedSuffixConstant
		}
		return failure
	}

	reason := reasonPullRequestOpenedConstant
	if result.PullRequest.Reused {
		reason = reasonPullRequestReusedConstant
	}
	return Outcome{
		Repository:     repositoryName,
		Kind:           OutcomeSucceeded,
		Reason:         reason,
		PullRequestURL: result.PullRequest.URL,
		BranchPushed:   branchPushed,
	}
}

func checkApplicability(executionContext context.Context, handler mutation.Handler, workingCopy shared.WorkingCopy) (applicable bool, failure error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			applicable = false
			failure = fmt.Errorf(handlerPanicTemplateConstant, ErrHandlerPanicked, recovered)
		}
	}()
	return handler.IsApplicable(executionContext, workingCopy)
}

func applyHandler(executionContext context.Context, handler mutation.Handler, workingCopy shared.WorkingCopy) (changeSet mutation.ChangeSet, failure error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			changeSet = mutation.ChangeSet{}
			failure = fmt.Errorf(handlerPanicTemplateConstant, ErrHandlerPanicked, recovered)
		}
	}()
	return handler.Apply(executionContext, workingCopy)
}

func publicationStage(publishError error) Stage {
	var workflowError gitflow.WorkflowError
	if !errors.As(publishError, &workflowError) {
		return StageBranch
	}
	switch workflowError.Stage {
	case gitflow.FailureStage:
		return StageStage
	case gitflow.FailureCommit:
		return StageCommit
	case gitflow.FailurePush:
		return StagePush
	case gitflow.FailurePullRequest:
		return StagePullRequest
	default:
		return StageBranch
	}
}

func failedOutcome(repositoryName string, stage Stage, failure error) Outcome {
	return Outcome{Repository: repositoryName, Kind: OutcomeFailed, Stage: stage, Reason: failure.Error(), Error: failure}
}

func logOutcome(logger *zap.Logger, outcome Outcome) {
	level := zapcore.InfoLevel
	if outcome.Failed() {
		level = zapcore.WarnLevel
	}
	fields := []zap.Field{
		zap.String(logFieldRepositoryConstant, outcome.Repository),
		zap.String(logFieldOutcomeConstant, string(outcome.Kind)),
		zap.String(logFieldStageConstant, string(outcome.Stage)),
		zap.String(logFieldReasonConstant, outcome.Reason),
	}
	if len(outcome.PullRequestURL) > 0 {
		fields = append(fields, zap.String(logFieldPullRequestURLConstant, outcome.PullRequestURL))
	}
	if outcome.Failed() {
		fields = append(fields, zap.Bool(logFieldBranchPushedConstant, outcome.BranchPushed))
	}
	if checkedEntry := logger.Check(level, repositoryProcessedLogMessageConstant); checkedEntry != nil {
		checkedEntry.Write(fields...)
	}
}
