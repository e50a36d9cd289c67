package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/models"
)

// ScriptedEngine is a deterministic automation engine for development
// and tests: no browser, no network. Outcomes are driven by the entity
// payload — entities carrying expect_failures report that many failed
// units, everything else succeeds.
type ScriptedEngine struct {
	logger arbor.ILogger
}

// NewScriptedEngine creates a scripted engine
func NewScriptedEngine(logger arbor.ILogger) *ScriptedEngine {
	return &ScriptedEngine{logger: logger}
}

// Execute reports a scripted outcome for the entity
func (e *ScriptedEngine) Execute(ctx context.Context, item *models.EntityWorkItem, payload map[string]interface{}) (int, int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, "", err
	}

	flow, _ := payload["flow"].(string)
	if flow == "" {
		return 0, 0, "", fmt.Errorf("payload missing flow for entity %s", item.EntityID)
	}

	units := flowUnits(flow, item)

	expectFailures := 0
	if raw, ok := item.Payload["expect_failures"]; ok {
		switch v := raw.(type) {
		case int:
			expectFailures = v
		case float64: // JSON-decoded payloads carry numbers as float64
			expectFailures = int(v)
		}
	}
	if expectFailures > len(units) {
		expectFailures = len(units)
	}

	success := len(units) - expectFailures
	var lines []string
	for i, unit := range units {
		if i < success {
			lines = append(lines, fmt.Sprintf("%s: done", unit))
		} else {
			lines = append(lines, fmt.Sprintf("%s: scripted failure", unit))
		}
	}

	e.logger.Debug().
		Str("entity_id", item.EntityID).
		Str("flow", flow).
		Int("success", success).
		Int("failure", expectFailures).
		Msg("Scripted flow finished")

	return success, expectFailures, strings.Join(lines, "\n"), nil
}
