package phases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aks-migrator/engine/pkg/agent"
)

// AnalysisOutputFile names one artifact the analysis phase produced, e.g.
// a source-platform inventory or a detected-resources report.
type AnalysisOutputFile struct {
	File        string `json:"file"`
	Description string `json:"description"`
}

// AnalysisOutput is the structured result the analysis roster's manager
// reports on successful completion: the detected source platform plus the
// inventory of Kubernetes resources found under the source folder.
type AnalysisOutput struct {
	Result               string                `json:"result"`
	Summary              string                `json:"summary"`
	PlatformDetected      string                `json:"platform_detected"`
	DetectedResources    []string              `json:"detected_resources"`
	AnalyzedFiles        []string              `json:"analyzed_files"`
	Outputs              []AnalysisOutputFile  `json:"outputs"`
	IncompleteReason     *string               `json:"incomplete_reason,omitempty"`
	MissingInformation   []string              `json:"missing_information,omitempty"`
}

// ParseAnalysisOutput decodes the analysis phase's final message content.
func ParseAnalysisOutput(content string) (AnalysisOutput, error) {
	var out AnalysisOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return AnalysisOutput{}, fmt.Errorf("phases: decoding analysis output: %w", err)
	}
	return out, nil
}

// AnalysisInput is the source context the analysis phase reasons over: a
// folder of Kubernetes manifests to inventory and classify by platform.
type AnalysisInput struct {
	ProcessID        string
	SourceFileFolder string
	Files            []string
}

// RunAnalysis drives the analysis roster's group chat over in.Files and
// returns the step result. The seed system message carries the source
// folder and file listing; the roster's experts (platform detectors,
// EKS/GKE/Azure specialists) inspect them via blob/file tools outside this
// package's concern.
func RunAnalysis(ctx context.Context, step StepInput, in AnalysisInput) (*StepResult, error) {
	task := fmt.Sprintf(
		"Analyze the Kubernetes source material under %q (%d files) and determine the "+
			"originating platform (EKS, GKE, or generic Kubernetes) plus a full inventory of "+
			"the resources found, so the design phase can plan an AKS-equivalent architecture. "+
			"Report your final result as JSON matching the AnalysisOutput schema: "+
			"result, summary, platform_detected, detected_resources, analyzed_files, outputs, "+
			"incomplete_reason, missing_information.",
		in.SourceFileFolder, len(in.Files),
	)
	seed := systemSeed(task)
	seed = append(seed, agent.Message{Role: agent.RoleUser, Content: fmt.Sprintf("Files to analyze: %v", in.Files)})

	return runStep(ctx, step, seed, in.Files)
}
