package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/models"
)

func TestScriptedEngineSingleUnitFlow(t *testing.T) {
	engine := NewScriptedEngine(arbor.NewLogger())

	item := &models.EntityWorkItem{EntityID: "acct_1", Payload: map[string]interface{}{}}
	success, failure, logText, err := engine.Execute(context.Background(), item,
		map[string]interface{}{"flow": "warmup"})

	require.NoError(t, err)
	assert.Equal(t, 1, success)
	assert.Equal(t, 0, failure)
	assert.Contains(t, logText, "warmup: done")
}

func TestScriptedEngineUploadCountsPerMediaFile(t *testing.T) {
	engine := NewScriptedEngine(arbor.NewLogger())

	item := &models.EntityWorkItem{
		EntityID: "acct_2",
		Payload: map[string]interface{}{
			"media_refs": []string{"m_1", "m_2", "m_3"},
		},
	}
	success, failure, _, err := engine.Execute(context.Background(), item,
		map[string]interface{}{"flow": "bulk_upload_browser"})

	require.NoError(t, err)
	assert.Equal(t, 3, success)
	assert.Equal(t, 0, failure)
}

func TestScriptedEngineExpectedFailures(t *testing.T) {
	engine := NewScriptedEngine(arbor.NewLogger())

	item := &models.EntityWorkItem{
		EntityID: "acct_3",
		Payload: map[string]interface{}{
			"media_refs":      []string{"m_1", "m_2"},
			"expect_failures": float64(1), // as a JSON decode would deliver it
		},
	}
	success, failure, logText, err := engine.Execute(context.Background(), item,
		map[string]interface{}{"flow": "bulk_upload_api"})

	require.NoError(t, err)
	assert.Equal(t, 1, success)
	assert.Equal(t, 1, failure)
	assert.Contains(t, logText, "scripted failure")
}

func TestScriptedEngineMissingFlowIsContractError(t *testing.T) {
	engine := NewScriptedEngine(arbor.NewLogger())

	_, _, _, err := engine.Execute(context.Background(),
		&models.EntityWorkItem{EntityID: "acct_4"}, map[string]interface{}{})
	assert.Error(t, err)
}

func TestScriptedEngineHonorsCancelledContext(t *testing.T) {
	engine := NewScriptedEngine(arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := engine.Execute(ctx,
		&models.EntityWorkItem{EntityID: "acct_5"}, map[string]interface{}{"flow": "warmup"})
	assert.ErrorIs(t, err, context.Canceled)
}
