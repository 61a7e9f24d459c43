// Package pipeline implements the WorkflowService pipeline runner: it
// sequences the fixed step kinds of a workflow.pipeline run across the
// peer services fronted by JobService, tracking overall progress as a
// RunRecord.
package pipeline

import (
	"fmt"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
)

// StepKind names one stage of a pipeline run. Each maps to a job_type the
// JobRegistry recognizes (internal/jobsvc/domain.KnownJobTypes); the peer
// dispatcher translates between the two.
type StepKind string

const (
	StepProjectCreate         StepKind = "project.create"
	StepProjectOpen           StepKind = "project.open"
	StepToolchainVerify       StepKind = "toolchain.verify"
	StepBuildRun              StepKind = "build.run"
	StepTargetsInstall        StepKind = "targets.install"
	StepTargetsLaunch         StepKind = "targets.launch"
	StepObserveSupportBundle  StepKind = "observe.support_bundle"
	StepObserveEvidenceBundle StepKind = "observe.evidence_bundle"
)

// KnownSteps is the ordered set of step kinds RunPipeline accepts by name.
var KnownSteps = []StepKind{
	StepProjectCreate,
	StepProjectOpen,
	StepToolchainVerify,
	StepBuildRun,
	StepTargetsInstall,
	StepTargetsLaunch,
	StepObserveSupportBundle,
	StepObserveEvidenceBundle,
}

func isKnownStep(k StepKind) bool {
	for _, s := range KnownSteps {
		if s == k {
			return true
		}
	}
	return false
}

// Step is one stage of a pipeline run: a kind plus the inputs its peer
// needs (project_id, target_id, toolchain_set_id, project_name,...).
type Step struct {
	Kind   StepKind
	Inputs map[string]string
}

// ParseSteps converts the caller-supplied step names of a RunPipelineRequest
// into Steps, carrying req's identifiers through as Inputs. It rejects any
// name outside KnownSteps rather than silently dropping it.
func ParseSteps(names []string, req Request) ([]Step, error) {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		kind := StepKind(name)
		if !isKnownStep(kind) {
			return nil, fmt.Errorf("pipeline: unknown step %q", name)
		}
		steps = append(steps, Step{Kind: kind, Inputs: inputsFor(kind, req)})
	}
	return steps, nil
}

// InferSteps builds a step list from req's identifiers when the caller
// supplies no explicit step list: presence of a project name or project id
// selects project.create or project.open, and a target id adds the
// install/launch pair. A request with none of project name, project id,
// target id or toolchain set id yields no steps.
func InferSteps(req Request) []Step {
	if req.ProjectName == "" && req.ProjectID == "" && req.TargetID == "" && req.ToolchainSetID == "" {
		return nil
	}
	var steps []Step
	switch {
	case req.ProjectName != "":
		steps = append(steps, Step{Kind: StepProjectCreate, Inputs: inputsFor(StepProjectCreate, req)})
	case req.ProjectID != "":
		steps = append(steps, Step{Kind: StepProjectOpen, Inputs: inputsFor(StepProjectOpen, req)})
	}
	steps = append(steps, Step{Kind: StepToolchainVerify, Inputs: inputsFor(StepToolchainVerify, req)})
	steps = append(steps, Step{Kind: StepBuildRun, Inputs: inputsFor(StepBuildRun, req)})
	if req.TargetID != "" {
		steps = append(steps, Step{Kind: StepTargetsInstall, Inputs: inputsFor(StepTargetsInstall, req)})
		steps = append(steps, Step{Kind: StepTargetsLaunch, Inputs: inputsFor(StepTargetsLaunch, req)})
	}
	return steps
}

func inputsFor(kind StepKind, req Request) map[string]string {
	in := map[string]string{}
	if req.ProjectID != "" {
		in["project_id"] = req.ProjectID
	}
	if req.TargetID != "" {
		in["target_id"] = req.TargetID
	}
	if req.ToolchainSetID != "" {
		in["toolchain_set_id"] = req.ToolchainSetID
	}
	if kind == StepProjectCreate && req.ProjectName != "" {
		in["project_name"] = req.ProjectName
	}
	return in
}

// Request carries the identifiers a RunPipeline call supplies, independent
// of the api wire type so this package stays importable by tests without
// pulling in api's grpc plumbing.
type Request struct {
	RunID          domain.RunID
	CorrelationID  domain.CorrelationID
	ProjectID      string
	TargetID       string
	ToolchainSetID string
	ProjectName    string
}
