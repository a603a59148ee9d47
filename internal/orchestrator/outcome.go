package orchestrator

import (
	"errors"
	"fmt"
)

// OutcomeKind classifies the terminal state of one repository.
type OutcomeKind string

// Outcome kinds.
const (
	OutcomeSkipped   OutcomeKind = "skipped"
	OutcomeNoOp      OutcomeKind = "no-op"
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeFailed    OutcomeKind = "failed"
)

// Stage names where a repository failed.
type Stage string

// Failure stages.
const (
	StageNone          Stage = ""
	StageSync          Stage = "sync"
	StageApplicability Stage = "applicability"
	StageApply         Stage = "apply"
	StageBranch        Stage = "branch"
	StageStage         Stage = "stage"
	StageCommit        Stage = "commit"
	StagePush          Stage = "push"
	StagePullRequest   Stage = "pull_request"
)

const (
	handlerErrorTemplateConstant  = "handler %s failed for %s: %v"
	handlerPanicTemplateConstant  = "%w: %v"
	handlerPanicMessageConstant   = "handler panicked"
	handlerMissingMessageConstant = "mutation handler not configured"
)

var (
	// ErrHandlerPanicked marks a HandlerError produced by a recovered panic.
	ErrHandlerPanicked = errors.New(handlerPanicMessageConstant)
	// ErrHandlerNotConfigured indicates Run was called without a handler.
	ErrHandlerNotConfigured = errors.New(handlerMissingMessageConstant)
)

// HandlerError reports a failing applicability check or apply call.
type HandlerError struct {
	Repository string
	Stage      Stage
	Cause      error
}

// Error describes the failure.
func (handlerError HandlerError) Error() string {
	return fmt.Sprintf(handlerErrorTemplateConstant, handlerError.Stage, handlerError.Repository, handlerError.Cause)
}

// Unwrap exposes the underlying cause.
func (handlerError HandlerError) Unwrap() error {
	return handlerError.Cause
}

// Outcome is the terminal result for one repository.
type Outcome struct {
	Repository     string
	Kind           OutcomeKind
	Stage          Stage
	Reason         string
	PullRequestURL string
	// BranchPushed is set when the change branch reached the remote, including
	// runs that failed afterwards while opening the pull request.
	BranchPushed bool
	Error        error
}

// Failed reports whether the outcome needs operator attention.
func (outcome Outcome) Failed() bool {
	return outcome.Kind == OutcomeFailed
}
