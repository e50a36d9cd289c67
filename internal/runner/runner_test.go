package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/models"
)

func warmupItem() *models.EntityWorkItem {
	return &models.EntityWorkItem{
		EntityID:     "acct_1",
		EntityTaskID: 101,
		Payload:      map[string]interface{}{"username": "u1"},
	}
}

func TestFlowRunnerFoldsExpectedFailuresIntoOutcome(t *testing.T) {
	engine := &fakeEngine{success: 2, failure: 1, logText: "captcha on step 3"}
	r := &flowRunner{taskType: models.TaskTypeWarmup, flow: "warmup", engine: engine, logger: arbor.NewLogger()}

	outcome, err := r.Execute(context.Background(), warmupItem(), models.RunOptions{Headless: true})
	require.NoError(t, err, "expected automation failures must not surface as errors")
	assert.Equal(t, 2, outcome.Success)
	assert.Equal(t, 1, outcome.Failure)
	assert.Equal(t, "captcha on step 3", outcome.LogText)

	assert.Equal(t, "warmup", engine.lastPayload["flow"])
	assert.Equal(t, true, engine.lastPayload["headless"])
	assert.Equal(t, "u1", engine.lastPayload["username"])
}

func TestFlowRunnerContractViolation(t *testing.T) {
	r := &flowRunner{taskType: models.TaskTypeFollow, flow: "follow", engine: &fakeEngine{}, logger: arbor.NewLogger()}

	_, err := r.Execute(context.Background(), &models.EntityWorkItem{}, models.RunOptions{})
	assert.Error(t, err, "missing entity_id is a contract violation")
}

func TestFlowRunnerPropagatesEngineError(t *testing.T) {
	engineErr := errors.New("browser crashed")
	r := &flowRunner{taskType: models.TaskTypeBio, flow: "bio_change", engine: &fakeEngine{err: engineErr}, logger: arbor.NewLogger()}

	_, err := r.Execute(context.Background(), warmupItem(), models.RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engineErr))
}

func TestBulkUploadSelectsFlowByUploadMethod(t *testing.T) {
	item := &models.EntityWorkItem{
		EntityID: "acct_2",
		Payload: map[string]interface{}{
			"media_refs": []string{"m_1", "m_2"},
		},
	}
	engine := &fakeEngine{success: 2}
	r := &bulkUploadRunner{engine: engine, logger: arbor.NewLogger()}

	_, err := r.Execute(context.Background(), item, models.RunOptions{UploadMethod: models.UploadMethodBrowser})
	require.NoError(t, err)
	assert.Equal(t, "bulk_upload_browser", engine.lastPayload["flow"])

	_, err = r.Execute(context.Background(), item, models.RunOptions{UploadMethod: models.UploadMethodAPI})
	require.NoError(t, err)
	assert.Equal(t, "bulk_upload_api", engine.lastPayload["flow"])
}

func TestBulkUploadRequiresMediaRefs(t *testing.T) {
	r := &bulkUploadRunner{engine: &fakeEngine{}, logger: arbor.NewLogger()}

	_, err := r.Execute(context.Background(), warmupItem(), models.RunOptions{})
	assert.Error(t, err, "bulk_upload without media_refs is malformed")
}

func TestProxyDiagRequiresProxyURL(t *testing.T) {
	r := &proxyDiagRunner{engine: &fakeEngine{}, logger: arbor.NewLogger()}

	_, err := r.Execute(context.Background(), warmupItem(), models.RunOptions{})
	assert.Error(t, err)
}

func TestProxyDiagRunsEngineFlow(t *testing.T) {
	item := &models.EntityWorkItem{
		EntityID: "acct_3",
		Payload:  map[string]interface{}{"proxy_url": "socks5://10.0.0.1:1080"},
	}
	engine := &fakeEngine{success: 1, logText: "exit ip 203.0.113.9"}
	r := &proxyDiagRunner{engine: engine, logger: arbor.NewLogger()}

	outcome, err := r.Execute(context.Background(), item, models.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Success)
	assert.Equal(t, "proxy_diag", engine.lastPayload["flow"])
	assert.Equal(t, "socks5://10.0.0.1:1080", engine.lastPayload["proxy_url"])
}

func TestMediaUniqCountsPerFileOutcomes(t *testing.T) {
	item := &models.EntityWorkItem{
		EntityID: "acct_4",
		Payload: map[string]interface{}{
			"media_refs": []string{"m_1", "m_2", "m_3"},
		},
	}
	r := &mediaUniqRunner{
		uniquifier: &fakeUniquifier{},
		aggregate:  &fakeAggregate{},
		logger:     arbor.NewLogger(),
	}

	outcome, err := r.Execute(context.Background(), item, models.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Success)
	assert.Equal(t, 0, outcome.Failure)
}

func TestMediaUniqStripsPathComponentsFromRefs(t *testing.T) {
	item := &models.EntityWorkItem{
		EntityID: "acct_6",
		Payload: map[string]interface{}{
			"media_refs": []string{"../../etc/m_1", "nested/dir/m_2"},
		},
	}
	uniquifier := &fakeUniquifier{}
	r := &mediaUniqRunner{
		uniquifier: uniquifier,
		aggregate:  &fakeAggregate{},
		logger:     arbor.NewLogger(),
	}

	outcome, err := r.Execute(context.Background(), item, models.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Success)

	require.Len(t, uniquifier.paths, 2)
	for _, path := range uniquifier.paths {
		assert.NotContains(t, path, "..", "refs must not escape the work dir")
	}
	assert.Equal(t, "m_1", filepath.Base(uniquifier.paths[0]))
	assert.Equal(t, "m_2", filepath.Base(uniquifier.paths[1]))
}

func TestMediaUniqDownloadFailureIsExpectedOutcome(t *testing.T) {
	item := &models.EntityWorkItem{
		EntityID: "acct_5",
		Payload: map[string]interface{}{
			"media_refs": []string{"m_1"},
		},
	}
	r := &mediaUniqRunner{
		uniquifier: &fakeUniquifier{},
		aggregate:  &fakeAggregate{mediaErr: errors.New("media gone")},
		logger:     arbor.NewLogger(),
	}

	outcome, err := r.Execute(context.Background(), item, models.RunOptions{})
	require.NoError(t, err, "per-file failures are outcomes, not errors")
	assert.Equal(t, 0, outcome.Success)
	assert.Equal(t, 1, outcome.Failure)
	assert.Contains(t, outcome.LogText, "media gone")
}
