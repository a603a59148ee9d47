package orchestrator_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/repofleet/internal/discovery"
	"github.com/temirov/repofleet/internal/gitflow"
	"github.com/temirov/repofleet/internal/localsync"
	"github.com/temirov/repofleet/internal/mutation"
	"github.com/temirov/repofleet/internal/orchestrator"
	"github.com/temirov/repofleet/internal/shared"
	"github.com/temirov/repofleet/internal/skiplist"
)

const (
	testStartURLConstant      = "orgs/acme/repos?per_page=100"
	testRunIdentifierConstant = "run-0001"
	testBranchConstant        = "DEVOPS-1299/ignore-excel-files"
	testReviewerConstant      = "acme/devops"
	testPullRequestURLPrefix  = "https://github.com/acme/"
)

type stubWalker struct {
	descriptors []shared.RepositoryDescriptor
	failure     error
	visited     int
}

func (walker *stubWalker) Walk(executionContext context.Context, startURL string, visit discovery.RepositoryVisitor) error {
	for _, descriptor := range walker.descriptors {
		if visitError := visit(descriptor); visitError != nil {
			return visitError
		}
		walker.visited++
	}
	return walker.failure
}

type stubSynchronizer struct {
	failures map[string]error
	synced   []string
}

func (synchronizer *stubSynchronizer) Sync(executionContext context.Context, descriptor shared.RepositoryDescriptor) (shared.WorkingCopy, error) {
	if failure, exists := synchronizer.failures[descriptor.Name]; exists {
		return shared.WorkingCopy{}, failure
	}
	synchronizer.synced = append(synchronizer.synced, descriptor.Name)
	return shared.WorkingCopy{Descriptor: descriptor, Path: "/workspace/" + descriptor.Name, DefaultBranch: descriptor.DefaultBranch}, nil
}

type publishFailure struct {
	stage  gitflow.Stage
	result gitflow.Stage
}

type stubPublisher struct {
	failures map[string]publishFailure
	requests []gitflow.Request
}

func (publisher *stubPublisher) Publish(executionContext context.Context, request gitflow.Request) (gitflow.Result, error) {
	publisher.requests = append(publisher.requests, request)
	name := request.WorkingCopy.Descriptor.Name
	if failure, exists := publisher.failures[name]; exists {
		return gitflow.Result{Stage: failure.result}, gitflow.WorkflowError{Stage: failure.stage, Cause: errors.New("remote rejected")}
	}
	return gitflow.Result{
		Stage:       gitflow.StagePROpened,
		PullRequest: shared.PullRequest{Number: 1, URL: testPullRequestURLPrefix + name + "/pull/1"},
	}, nil
}

type scriptedHandler struct {
	notApplicable  map[string]bool
	noChanges      map[string]bool
	applyFailures  map[string]error
	panicOnApply   map[string]bool
	panicOnCheck   map[string]bool
	stagePatterns  []string
	appliedToPaths []string
}

func (handler *scriptedHandler) IsApplicable(executionContext context.Context, workingCopy shared.WorkingCopy) (bool, error) {
	if handler.panicOnCheck[workingCopy.Descriptor.Name] {
		panic("inspection exploded")
	}
	return !handler.notApplicable[workingCopy.Descriptor.Name], nil
}

func (handler *scriptedHandler) Apply(executionContext context.Context, workingCopy shared.WorkingCopy) (mutation.ChangeSet, error) {
	name := workingCopy.Descriptor.Name
	handler.appliedToPaths = append(handler.appliedToPaths, workingCopy.Path)
	if handler.panicOnApply[name] {
		panic("apply exploded")
	}
	if failure, exists := handler.applyFailures[name]; exists {
		return mutation.ChangeSet{}, failure
	}
	if handler.noChanges[name] {
		return mutation.NewChangeSet(), nil
	}
	return mutation.NewChangeSet(".gitignore", "legacy/report.xlsx"), nil
}

func (handler *scriptedHandler) Metadata() mutation.Metadata {
	return mutation.Metadata{BranchName: testBranchConstant, CommitMessage: "Ignore Excel files", Reviewer: testReviewerConstant}
}

func (handler *scriptedHandler) StagePatterns() []string {
	return handler.stagePatterns
}

type fixedClock struct {
	instants []time.Time
	calls    int
}

func (clock *fixedClock) Now() time.Time {
	instant := clock.instants[clock.calls%len(clock.instants)]
	clock.calls++
	return instant
}

func descriptors(names ...string) []shared.RepositoryDescriptor {
	result := make([]shared.RepositoryDescriptor, 0, len(names))
	for _, name := range names {
		result = append(result, shared.RepositoryDescriptor{Owner: "acme", Name: name, DefaultBranch: "main"})
	}
	return result
}

func newSkipRegistry(testInstance *testing.T, skipFileNames ...string) *skiplist.Registry {
	testInstance.Helper()
	fileSystem := afero.NewMemMapFs()
	contents := ""
	for _, name := range skipFileNames {
		contents += name + "\n"
	}
	require.NoError(testInstance, afero.WriteFile(fileSystem, skiplist.DefaultSkipFileNameConstant, []byte(contents), 0o644))
	registry, registryError := skiplist.NewRegistry(fileSystem, skiplist.DefaultSkipFileNameConstant, skiplist.DefaultSkipPatterns, zap.NewNop())
	require.NoError(testInstance, registryError)
	registry.Load()
	return registry
}

type orchestratorFixture struct {
	walker       *stubWalker
	synchronizer *stubSynchronizer
	publisher    *stubPublisher
	logs         *observer.ObservedLogs
	orchestrator *orchestrator.Orchestrator
}

func newFixture(testInstance *testing.T, walker *stubWalker, synchronizer *stubSynchronizer, publisher *stubPublisher, skipEvaluator orchestrator.SkipEvaluator) orchestratorFixture {
	testInstance.Helper()
	observerCore, observedLogs := observer.New(zapcore.DebugLevel)
	startedAt := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
	instance, creationError := orchestrator.NewOrchestrator(orchestrator.Dependencies{
		Logger:              zap.New(observerCore),
		Walker:              walker,
		SkipEvaluator:       skipEvaluator,
		Synchronizer:        synchronizer,
		Publisher:           publisher,
		StartURL:            testStartURLConstant,
		Clock:               &fixedClock{instants: []time.Time{startedAt, startedAt.Add(90 * time.Second)}},
		IdentifierGenerator: func() string { return testRunIdentifierConstant },
	})
	require.NoError(testInstance, creationError)
	return orchestratorFixture{walker: walker, synchronizer: synchronizer, publisher: publisher, logs: observedLogs, orchestrator: instance}
}

func outcomesByName(report orchestrator.Report) map[string]orchestrator.Outcome {
	outcomes := make(map[string]orchestrator.Outcome, len(report.Outcomes))
	for _, outcome := range report.Outcomes {
		outcomes[outcome.Repository] = outcome
	}
	return outcomes
}

func TestRunScenarios(testInstance *testing.T) {
	walker := &stubWalker{descriptors: descriptors("no-marker", "not-applicable", "ready", "pr-broken")}
	synchronizer := &stubSynchronizer{failures: map[string]error{"no-marker": localsync.ErrMarkerMissing}}
	publisher := &stubPublisher{failures: map[string]publishFailure{"pr-broken": {stage: gitflow.FailurePullRequest, result: gitflow.StagePushed}}}
	fixture := newFixture(testInstance, walker, synchronizer, publisher, newSkipRegistry(testInstance))
	handler := &scriptedHandler{notApplicable: map[string]bool{"not-applicable": true}, stagePatterns: []string{".gitignore", "*.xlsx"}}

	report, runError := fixture.orchestrator.Run(context.Background(), handler)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, testRunIdentifierConstant, report.RunIdentifier)
	require.Len(testInstance, report.Outcomes, 4)
	outcomes := outcomesByName(report)

	require.Equal(testInstance, orchestrator.OutcomeSkipped, outcomes["acme/no-marker"].Kind)
	require.NotContains(testInstance, synchronizer.synced, "no-marker")

	require.Equal(testInstance, orchestrator.OutcomeNoOp, outcomes["acme/not-applicable"].Kind)
	require.NotContains(testInstance, handler.appliedToPaths, "/workspace/not-applicable")

	require.Equal(testInstance, orchestrator.OutcomeSucceeded, outcomes["acme/ready"].Kind)
	require.Equal(testInstance, testPullRequestURLPrefix+"ready/pull/1", outcomes["acme/ready"].PullRequestURL)

	require.Equal(testInstance, orchestrator.OutcomeFailed, outcomes["acme/pr-broken"].Kind)
	require.Equal(testInstance, orchestrator.StagePullRequest, outcomes["acme/pr-broken"].Stage)
	require.True(testInstance, outcomes["acme/pr-broken"].BranchPushed)
	require.Contains(testInstance, outcomes["acme/pr-broken"].Reason, "branch pushed")

	require.Len(testInstance, publisher.requests, 2)
	readyRequest := publisher.requests[0]
	require.Equal(testInstance, testBranchConstant, readyRequest.BranchName)
	require.Equal(testInstance, testReviewerConstant, readyRequest.Reviewer)
	require.Equal(testInstance, "Ignore Excel files", readyRequest.PullRequestTitle)
	require.Equal(testInstance, []string{".gitignore", "*.xlsx"}, readyRequest.StagePatterns)
	require.Equal(testInstance, "main", readyRequest.WorkingCopy.DefaultBranch)

	require.Equal(testInstance, orchestrator.Summary{Total: 4, Skipped: 1, NoOp: 1, Succeeded: 1, Failed: 1}, report.Summary())
	require.Equal(testInstance, 90*time.Second, report.Duration())

	processedEntries := fixture.logs.FilterMessage("Repository processed").All()
	require.Len(testInstance, processedEntries, 4)
	for _, entry := range processedEntries {
		require.Equal(testInstance, testRunIdentifierConstant, entry.ContextMap()["run_id"])
	}
	require.Equal(testInstance, zapcore.WarnLevel, processedEntries[3].Level)
}

func TestRunIsolatesFailures(testInstance *testing.T) {
	syncFailure := localsync.SyncError{Repository: "acme/broken", Step: localsync.StepPull, Cause: errors.New("not possible to fast-forward")}
	walker := &stubWalker{descriptors: descriptors("alpha", "broken", "gamma", "panicking", "failing", "inspecting", "empty")}
	synchronizer := &stubSynchronizer{failures: map[string]error{"broken": syncFailure}}
	fixture := newFixture(testInstance, walker, synchronizer, &stubPublisher{}, newSkipRegistry(testInstance))
	handler := &scriptedHandler{
		panicOnApply:  map[string]bool{"panicking": true},
		panicOnCheck:  map[string]bool{"inspecting": true},
		applyFailures: map[string]error{"failing": errors.New("template missing")},
		noChanges:     map[string]bool{"empty": true},
	}

	report, runError := fixture.orchestrator.Run(context.Background(), handler)
	require.NoError(testInstance, runError)
	require.Len(testInstance, report.Outcomes, 7)
	outcomes := outcomesByName(report)

	require.Equal(testInstance, orchestrator.OutcomeSucceeded, outcomes["acme/alpha"].Kind)
	require.Equal(testInstance, orchestrator.OutcomeSucceeded, outcomes["acme/gamma"].Kind)

	require.Equal(testInstance, orchestrator.OutcomeFailed, outcomes["acme/broken"].Kind)
	require.Equal(testInstance, orchestrator.StageSync, outcomes["acme/broken"].Stage)
	require.False(testInstance, outcomes["acme/broken"].BranchPushed)
	require.ErrorIs(testInstance, outcomes["acme/broken"].Error, syncFailure)

	var handlerError orchestrator.HandlerError
	require.ErrorAs(testInstance, outcomes["acme/panicking"].Error, &handlerError)
	require.Equal(testInstance, orchestrator.StageApply, outcomes["acme/panicking"].Stage)
	require.ErrorIs(testInstance, outcomes["acme/panicking"].Error, orchestrator.ErrHandlerPanicked)

	require.Equal(testInstance, orchestrator.StageApplicability, outcomes["acme/inspecting"].Stage)
	require.ErrorIs(testInstance, outcomes["acme/inspecting"].Error, orchestrator.ErrHandlerPanicked)

	require.Equal(testInstance, orchestrator.StageApply, outcomes["acme/failing"].Stage)
	require.Contains(testInstance, outcomes["acme/failing"].Reason, "template missing")

	require.Equal(testInstance, orchestrator.OutcomeNoOp, outcomes["acme/empty"].Kind)

	failedNames := make([]string, 0)
	for _, failure := range report.Failures() {
		failedNames = append(failedNames, failure.Repository)
	}
	require.Equal(testInstance, []string{"acme/broken", "acme/panicking", "acme/failing", "acme/inspecting"}, failedNames)
	require.Equal(testInstance, "sync of acme/broken failed during pull: not possible to fast-forward", outcomes["acme/broken"].Reason)
	require.True(testInstance, report.HasFailures())
}

func TestRunFallsBackToChangeSetPaths(testInstance *testing.T) {
	publisher := &stubPublisher{}
	fixture := newFixture(testInstance, &stubWalker{descriptors: descriptors("alpha")}, &stubSynchronizer{}, publisher, newSkipRegistry(testInstance))

	_, runError := fixture.orchestrator.Run(context.Background(), &scriptedHandler{})
	require.NoError(testInstance, runError)
	require.Len(testInstance, publisher.requests, 1)
	require.Equal(testInstance, []string{".gitignore", "legacy/report.xlsx"}, publisher.requests[0].StagePatterns)
}

func TestRunHonorsSkipRegistry(testInstance *testing.T) {
	walker := &stubWalker{descriptors: descriptors("golden-path-service", "infra-global", "noisy", "api")}
	synchronizer := &stubSynchronizer{}
	fixture := newFixture(testInstance, walker, synchronizer, &stubPublisher{}, newSkipRegistry(testInstance, "noisy"))

	report, runError := fixture.orchestrator.Run(context.Background(), &scriptedHandler{})
	require.NoError(testInstance, runError)
	outcomes := outcomesByName(report)

	require.Equal(testInstance, orchestrator.OutcomeSkipped, outcomes["acme/golden-path-service"].Kind)
	require.Equal(testInstance, "name matches pattern gold.*path", outcomes["acme/golden-path-service"].Reason)
	require.Equal(testInstance, orchestrator.OutcomeSkipped, outcomes["acme/infra-global"].Kind)
	require.Equal(testInstance, "listed in skip file", outcomes["acme/noisy"].Reason)
	require.Equal(testInstance, []string{"api"}, synchronizer.synced)
}

func TestRunMapsWorkflowStages(testInstance *testing.T) {
	testCases := []struct {
		name          string
		failure       publishFailure
		expectedStage orchestrator.Stage
		expectPushed  bool
	}{
		{name: "branch", failure: publishFailure{stage: gitflow.FailureBranch, result: gitflow.StageStart}, expectedStage: orchestrator.StageBranch},
		{name: "stage", failure: publishFailure{stage: gitflow.FailureStage, result: gitflow.StageBranchCreated}, expectedStage: orchestrator.StageStage},
		{name: "commit", failure: publishFailure{stage: gitflow.FailureCommit, result: gitflow.StageFilesStaged}, expectedStage: orchestrator.StageCommit},
		{name: "push", failure: publishFailure{stage: gitflow.FailurePush, result: gitflow.StageCommitted}, expectedStage: orchestrator.StagePush},
		{name: "pull_request", failure: publishFailure{stage: gitflow.FailurePullRequest, result: gitflow.StagePushed}, expectedStage: orchestrator.StagePullRequest, expectPushed: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			publisher := &stubPublisher{failures: map[string]publishFailure{"alpha": testCase.failure}}
			fixture := newFixture(testInstance, &stubWalker{}, &stubSynchronizer{}, publisher, newSkipRegistry(testInstance))

			outcome := fixture.orchestrator.ProcessRepository(context.Background(), descriptors("alpha")[0], &scriptedHandler{})
			require.Equal(testInstance, orchestrator.OutcomeFailed, outcome.Kind)
			require.Equal(testInstance, testCase.expectedStage, outcome.Stage)
			require.Equal(testInstance, testCase.expectPushed, outcome.BranchPushed)
			var workflowError gitflow.WorkflowError
			require.ErrorAs(testInstance, outcome.Error, &workflowError)
		})
	}
}

func TestRunReturnsPartialReportOnDiscoveryFailure(testInstance *testing.T) {
	discoveryFailure := discovery.DiscoveryError{PageURL: "orgs/acme/repos?page=2", Cause: errors.New("bad gateway")}
	walker := &stubWalker{descriptors: descriptors("alpha", "beta"), failure: discoveryFailure}
	fixture := newFixture(testInstance, walker, &stubSynchronizer{}, &stubPublisher{}, newSkipRegistry(testInstance))

	report, runError := fixture.orchestrator.Run(context.Background(), &scriptedHandler{})
	var discoveryError discovery.DiscoveryError
	require.ErrorAs(testInstance, runError, &discoveryError)
	require.Len(testInstance, report.Outcomes, 2)
	require.Equal(testInstance, 1, fixture.logs.FilterMessage("Fleet run interrupted").Len())
}

func TestRunStopsBetweenRepositoriesWhenCancelled(testInstance *testing.T) {
	cancellableContext, cancel := context.WithCancel(context.Background())
	walker := &stubWalker{descriptors: descriptors("alpha", "beta", "gamma")}
	fixture := newFixture(testInstance, walker, &stubSynchronizer{}, &stubPublisher{}, newSkipRegistry(testInstance))
	handler := &cancellingHandler{cancel: cancel}

	report, runError := fixture.orchestrator.Run(cancellableContext, handler)
	require.ErrorIs(testInstance, runError, context.Canceled)
	require.Len(testInstance, report.Outcomes, 1)
	require.Equal(testInstance, orchestrator.OutcomeNoOp, report.Outcomes[0].Kind)
}

type cancellingHandler struct {
	cancel context.CancelFunc
}

func (handler *cancellingHandler) IsApplicable(context.Context, shared.WorkingCopy) (bool, error) {
	handler.cancel()
	return false, nil
}

func (handler *cancellingHandler) Apply(context.Context, shared.WorkingCopy) (mutation.ChangeSet, error) {
	return mutation.ChangeSet{}, nil
}

func (handler *cancellingHandler) Metadata() mutation.Metadata {
	return mutation.Metadata{BranchName: testBranchConstant, CommitMessage: "m"}
}

func (handler *cancellingHandler) StagePatterns() []string {
	return nil
}

func TestNewOrchestratorValidation(testInstance *testing.T) {
	complete := orchestrator.Dependencies{
		Logger:        zap.NewNop(),
		Walker:        &stubWalker{},
		SkipEvaluator: newSkipRegistry(testInstance),
		Synchronizer:  &stubSynchronizer{},
		Publisher:     &stubPublisher{},
		StartURL:      testStartURLConstant,
	}

	testCases := []struct {
		name          string
		mutate        func(dependencies *orchestrator.Dependencies)
		expectedError error
	}{
		{name: "logger", mutate: func(dependencies *orchestrator.Dependencies) { dependencies.Logger = nil }, expectedError: orchestrator.ErrLoggerNotConfigured},
		{name: "walker", mutate: func(dependencies *orchestrator.Dependencies) { dependencies.Walker = nil }, expectedError: orchestrator.ErrWalkerNotConfigured},
		{name: "skip", mutate: func(dependencies *orchestrator.Dependencies) { dependencies.SkipEvaluator = nil }, expectedError: orchestrator.ErrSkipEvaluatorNotConfigured},
		{name: "sync", mutate: func(dependencies *orchestrator.Dependencies) { dependencies.Synchronizer = nil }, expectedError: orchestrator.ErrSynchronizerNotConfigured},
		{name: "publisher", mutate: func(dependencies *orchestrator.Dependencies) { dependencies.Publisher = nil }, expectedError: orchestrator.ErrPublisherNotConfigured},
		{name: "start_url", mutate: func(dependencies *orchestrator.Dependencies) { dependencies.StartURL = " " }, expectedError: orchestrator.ErrStartURLNotConfigured},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			dependencies := complete
			testCase.mutate(&dependencies)
			_, creationError := orchestrator.NewOrchestrator(dependencies)
			require.ErrorIs(testInstance, creationError, testCase.expectedError)
		})
	}

	instance, creationError := orchestrator.NewOrchestrator(complete)
	require.NoError(testInstance, creationError)
	_, runError := instance.Run(context.Background(), nil)
	require.ErrorIs(testInstance, runError, orchestrator.ErrHandlerNotConfigured)
}

func TestRenderReport(testInstance *testing.T) {
	startedAt := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
	report := orchestrator.Report{
		RunIdentifier: testRunIdentifierConstant,
		StartedAt:     startedAt,
		FinishedAt:    startedAt.Add(2 * time.Second),
		Outcomes: []orchestrator.Outcome{
			{Repository: "acme/api", Kind: orchestrator.OutcomeSucceeded, Reason: "pull request opened", PullRequestURL: "https://github.com/acme/api/pull/7"},
			{Repository: "acme/infra-global", Kind: orchestrator.OutcomeSkipped, Reason: "name matches pattern infra-global"},
			{Repository: "acme/web", Kind: orchestrator.OutcomeFailed, Stage: orchestrator.StagePush, Reason: "push rejected"},
		},
	}

	output := &bytes.Buffer{}
	require.NoError(testInstance, orchestrator.RenderReport(output, report, false))
	require.Equal(testInstance, "Run run-0001 finished in 2s\n"+
		"succeeded acme/api: pull request opened https://github.com/acme/api/pull/7\n"+
		"skipped   acme/infra-global: name matches pattern infra-global\n"+
		"failed    acme/web: push rejected\n"+
		"3 repositories: 1 succeeded, 0 no-op, 1 skipped, 1 failed\n"+
		"Failed repositories:\n"+
		"  acme/web [push] push rejected\n", output.String())

	colored := &bytes.Buffer{}
	require.NoError(testInstance, orchestrator.RenderReport(colored, report, true))
	require.Contains(testInstance, colored.String(), "\x1b[31;1mfailed   ")
	require.Contains(testInstance, colored.String(), "\x1b[32msucceeded")
}
