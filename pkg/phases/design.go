package phases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aks-migrator/engine/pkg/agent"
)

// DesignOutputFile names a generated design document or architecture diagram.
type DesignOutputFile struct {
	File        string `json:"file"`
	Description string `json:"description"`
}

// DesignOutput is the structured result the design roster's manager
// reports on successful completion.
type DesignOutput struct {
	Result                 string              `json:"result"`
	Summary                string              `json:"summary"`
	AzureServices          []string            `json:"azure_services"`
	ArchitectureDecisions  []string            `json:"architecture_decisions"`
	Outputs                []DesignOutputFile  `json:"outputs"`
	IncompleteReason       *string             `json:"incomplete_reason,omitempty"`
	MissingInformation     []string            `json:"missing_information,omitempty"`
}

// ParseDesignOutput decodes the design phase's final message content.
func ParseDesignOutput(content string) (DesignOutput, error) {
	var out DesignOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return DesignOutput{}, fmt.Errorf("phases: decoding design output: %w", err)
	}
	return out, nil
}

// DesignInput carries the prior phase's analysis result forward into the
// design roster's group chat.
type DesignInput struct {
	ProcessID string
	Analysis  AnalysisOutput
}

// RunDesign drives the design roster's group chat, seeded with the
// analysis phase's platform detection and resource inventory so the
// architecture, networking, and security experts design an AKS-equivalent
// target without re-discovering the source material.
func RunDesign(ctx context.Context, step StepInput, in DesignInput) (*StepResult, error) {
	analysisJSON, err := json.Marshal(in.Analysis)
	if err != nil {
		return nil, fmt.Errorf("phases: encoding analysis result for design phase: %w", err)
	}

	task := fmt.Sprintf(
		"Design the target AKS architecture for the platform detected by the analysis phase. "+
			"Recommend Azure services, document architecture decisions, and account for "+
			"networking and security equivalents of every resource the analysis phase found. "+
			"Report your final result as JSON matching the DesignOutput schema: "+
			"result, summary, azure_services, architecture_decisions, outputs, "+
			"incomplete_reason, missing_information.",
	)
	seed := systemSeed(task)
	seed = append(seed, agent.Message{Role: agent.RoleUser, Content: "Analysis phase result: " + string(analysisJSON)})

	return runStep(ctx, step, seed, in.Analysis.AnalyzedFiles)
}
