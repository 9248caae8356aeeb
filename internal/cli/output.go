package cli

import (
	"encoding/json"
	"fmt"

	"github.com/primezdev/ovnode-setup/internal/config"
	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/venv"
)

// formatError renders an error for stderr. The JSON shape is
// {"error": {"message": ..., "detail": ...}}.
func formatError(message string, underlying error, asJSON bool) string {
	if asJSON {
		errMap := map[string]interface{}{
			"message": message,
		}
		if underlying != nil {
			errMap["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]interface{}{"error": errMap}, "", "  ")
		return string(data)
	}

	if underlying != nil {
		return fmt.Sprintf("Error: %s: %v", message, underlying)
	}
	return fmt.Sprintf("Error: %s", message)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

// stepsResult is the JSON document printed by bootstrap --json.
type stepsResult struct {
	InstallDir   string              `json:"installDir"`
	Source       model.SourceMode    `json:"source"`
	Success      bool                `json:"success"`
	Steps        []model.StepReport  `json:"steps"`
	Dependencies *venv.InstallResult `json:"dependencies,omitempty"`
}

// newStepsResult builds the bootstrap document. Dependencies is only set
// when the dependency step actually installed something.
func newStepsResult(cfg *config.Config, reports []model.StepReport, installed venv.InstallResult, success bool) stepsResult {
	res := stepsResult{
		InstallDir: cfg.InstallDir,
		Source:     cfg.Source,
		Success:    success,
		Steps:      reports,
	}
	if installed.Source != "" {
		res.Dependencies = &installed
	}
	return res
}
