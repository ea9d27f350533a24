package phases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aks-migrator/engine/pkg/agent"
)

// DocumentationOutputFile names a generated runbook or migration summary document.
type DocumentationOutputFile struct {
	File        string `json:"file"`
	Description string `json:"description"`
}

// DocumentationOutput is the structured result the documentation roster's
// manager reports on successful completion, following the same
// result/summary/outputs shape as the earlier phases.
type DocumentationOutput struct {
	Result              string                    `json:"result"`
	Summary             string                    `json:"summary"`
	Outputs             []DocumentationOutputFile `json:"outputs"`
	IncompleteReason    *string                   `json:"incomplete_reason,omitempty"`
	MissingInformation  []string                  `json:"missing_information,omitempty"`
}

// ParseDocumentationOutput decodes the documentation phase's final message content.
func ParseDocumentationOutput(content string) (DocumentationOutput, error) {
	var out DocumentationOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return DocumentationOutput{}, fmt.Errorf("phases: decoding documentation output: %w", err)
	}
	return out, nil
}

// DocumentationInput carries the prior phases' results forward so the
// technical writer and runbook author can describe what actually happened
// rather than re-deriving it.
type DocumentationInput struct {
	ProcessID string
	Design    DesignOutput
	Yaml      YamlOutput
}

// RunDocumentation drives the documentation roster's group chat, producing
// the migration runbook and summary documents from the design and YAML
// generation phases' results. This is the final phase: on success the
// process as a whole completes.
func RunDocumentation(ctx context.Context, step StepInput, in DocumentationInput) (*StepResult, error) {
	designJSON, err := json.Marshal(in.Design)
	if err != nil {
		return nil, fmt.Errorf("phases: encoding design result for documentation phase: %w", err)
	}
	yamlJSON, err := json.Marshal(in.Yaml)
	if err != nil {
		return nil, fmt.Errorf("phases: encoding yaml result for documentation phase: %w", err)
	}

	task := "Produce migration documentation and an operational runbook covering the design " +
		"decisions and the generated manifests, written for the team that will operate the " +
		"AKS cluster. Report your final result as JSON matching the DocumentationOutput schema: " +
		"result, summary, outputs, incomplete_reason, missing_information."
	seed := systemSeed(task)
	seed = append(seed,
		agent.Message{Role: agent.RoleUser, Content: "Design phase result: " + string(designJSON)},
		agent.Message{Role: agent.RoleUser, Content: "YAML generation phase result: " + string(yamlJSON)},
	)

	inputFiles := make([]string, 0, len(in.Design.Outputs)+len(in.Yaml.ConvertedFiles))
	for _, f := range in.Design.Outputs {
		inputFiles = append(inputFiles, f.File)
	}
	for _, f := range in.Yaml.ConvertedFiles {
		inputFiles = append(inputFiles, f.ConvertedFile)
	}

	return runStep(ctx, step, seed, inputFiles)
}
