package phases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aks-migrator/engine/pkg/agent"
)

// ConvertedFile describes one source manifest's conversion to an
// Azure-compatible equivalent.
type ConvertedFile struct {
	SourceFile        string   `json:"source_file"`
	ConvertedFile     string   `json:"converted_file"`
	ConversionStatus  string   `json:"conversion_status"`
	AccuracyRating    string   `json:"accuracy_rating"`
	Concerns          []string `json:"concerns"`
	AzureEnhancements []string `json:"azure_enhancements"`
}

// DimensionalAnalysis scores one conversion dimension (network, security,
// storage, or compute) against the source material.
type DimensionalAnalysis struct {
	Complexity          string   `json:"complexity"`
	ConvertedComponents []string `json:"converted_components"`
	AzureOptimizations  string   `json:"azure_optimizations"`
	Concerns            []string `json:"concerns"`
	SuccessRate         string   `json:"success_rate"`
}

// MultiDimensionalAnalysis is the YAML phase's per-dimension conversion
// assessment across the four areas the validator and helm experts check.
type MultiDimensionalAnalysis struct {
	NetworkAnalysis  DimensionalAnalysis `json:"network_analysis"`
	SecurityAnalysis DimensionalAnalysis `json:"security_analysis"`
	StorageAnalysis  DimensionalAnalysis `json:"storage_analysis"`
	ComputeAnalysis  DimensionalAnalysis `json:"compute_analysis"`
}

// ConversionMetrics summarizes how many manifests converted cleanly.
type ConversionMetrics struct {
	TotalFiles             int    `json:"total_files"`
	SuccessfulConversions  int    `json:"successful_conversions"`
	FailedConversions      int    `json:"failed_conversions"`
	OverallAccuracy        string `json:"overall_accuracy"`
	AzureCompatibility     string `json:"azure_compatibility"`
}

// ConversionQuality is the validator's qualitative assessment of the
// generated manifests.
type ConversionQuality struct {
	AzureBestPractices      string `json:"azure_best_practices"`
	SecurityHardening       string `json:"security_hardening"`
	PerformanceOptimization string `json:"performance_optimization"`
	ProductionReadiness     string `json:"production_readiness"`
}

// YamlOutput is the structured result the YAML generation roster's manager
// reports on successful completion.
type YamlOutput struct {
	ConvertedFiles           []ConvertedFile          `json:"converted_files"`
	MultiDimensionalAnalysis MultiDimensionalAnalysis `json:"multi_dimensional_analysis"`
	OverallConversionMetrics ConversionMetrics        `json:"overall_conversion_metrics"`
	ConversionQuality        ConversionQuality        `json:"conversion_quality"`
	Summary                  string                   `json:"summary"`
	ExpertInsights            []string                 `json:"expert_insights"`
	ConversionReportFile      string                   `json:"conversion_report_file"`
}

// ParseYamlOutput decodes the YAML generation phase's final message content.
func ParseYamlOutput(content string) (YamlOutput, error) {
	var out YamlOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return YamlOutput{}, fmt.Errorf("phases: decoding yaml output: %w", err)
	}
	return out, nil
}

// YamlGenerationInput carries the prior phase's design result forward into
// the YAML generation roster's group chat.
type YamlGenerationInput struct {
	ProcessID string
	Design    DesignOutput
}

// RunYamlGeneration drives the YAML generation roster's group chat,
// converting the design phase's architecture decisions into Azure-ready
// manifests and validating them across network, security, storage, and
// compute dimensions.
func RunYamlGeneration(ctx context.Context, step StepInput, in YamlGenerationInput) (*StepResult, error) {
	designJSON, err := json.Marshal(in.Design)
	if err != nil {
		return nil, fmt.Errorf("phases: encoding design result for yaml phase: %w", err)
	}

	task := "Convert every source manifest implied by the design phase's architecture decisions " +
		"into Azure-compatible YAML, then validate the result across network, security, storage, " +
		"and compute dimensions. Report your final result as JSON matching the YamlOutput schema: " +
		"converted_files, multi_dimensional_analysis, overall_conversion_metrics, conversion_quality, " +
		"summary, expert_insights, conversion_report_file."
	seed := systemSeed(task)
	seed = append(seed, agent.Message{Role: agent.RoleUser, Content: "Design phase result: " + string(designJSON)})

	inputFiles := make([]string, 0, len(in.Design.Outputs))
	for _, f := range in.Design.Outputs {
		inputFiles = append(inputFiles, f.File)
	}

	return runStep(ctx, step, seed, inputFiles)
}
