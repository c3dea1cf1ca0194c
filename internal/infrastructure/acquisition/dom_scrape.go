package acquisition

import (
	"context"
	"time"

	domainacq "github.com/ngoclaw/ngoclaw/gateway/internal/domain/acquisition"
	domainbrowser "github.com/ngoclaw/ngoclaw/gateway/internal/domain/browser"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/pkg/clock"
)

// DOMScraper is Layer 3, the fallback of last resort: poll the page's own
// DOM for stop-button/run-button state until the response container is
// stable for DefaultFinalStateCheckWindow, then read the final text once.
// It never streams true deltas — SubmitPrompt already happened before
// Acquire is called, so this layer reports pseudo-streaming progress only
// by polling interval, matching the pseudo-streaming fallback contract.
type DOMScraper struct {
	session domainbrowser.Session
	clock clock.Clock
	pollInterval time.Duration
	stableWindow time.Duration
}

// NewDOMScraper wraps a browser.Session as the final acquisition layer.
func NewDOMScraper(session domainbrowser.Session, clk clock.Clock, pollInterval time.Duration) *DOMScraper {
	if pollInterval <= 0 {
		pollInterval = 300 * time.Millisecond
	}
	return &DOMScraper{
		session: session,
		clock: clk,
		pollInterval: pollInterval,
		stableWindow: domainbrowser.DefaultFinalStateCheckWindow,
	}
}

var _ domainacq.EligibilityChecker = (*DOMScraper)(nil)
var _ domainacq.Acquirer = (*DOMScraper)(nil)

func (d *DOMScraper) Layer() domainacq.Layer { return domainacq.LayerDOMScrape }

// CheckEligible is always true when the session itself is connected and
// ready: DOM scraping works against any functioning page, which is why it
// is positioned as the fallback of last resort rather than ever being
// unavailable.
func (d *DOMScraper) CheckEligible(ctx context.Context) domainacq.Eligibility {
	if !d.session.Connected(ctx) || !d.session.PageReady(ctx) {
		return domainacq.Eligibility{Layer: domainacq.LayerDOMScrape, Eligible: false, Reason: "browser session not connected/ready"}
	}
	return domainacq.Eligibility{Layer: domainacq.LayerDOMScrape, Eligible: true}
}

// Acquire polls PollResponseState until the container looks stable for a
// full stableWindow, then reads the final text.
func (d *DOMScraper) Acquire(ctx context.Context, req *entity.RequestContext, deltas chan<- struct{}) (*entity.InternalResponse, error) {
	var stableSince time.Time

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		state, err := d.session.PollResponseState(ctx)
		if err != nil {
			return nil, err
		}

		active := state.StopButtonVisible || state.RunButtonDisabled || state.PendingNetwork
		now := d.clock.Now()
		if active {
			stableSince = time.Time{}
			select {
			case deltas <- struct{}{}:
			default:
			}
		} else {
			if stableSince.IsZero() {
				stableSince = now
			} else if now.Sub(stableSince) >= d.stableWindow {
				text, reasoning, calls, err := d.session.ReadFinalText(ctx)
				if err != nil {
					return nil, err
				}
				if qerr := detectQuotaOrRateLimit(text + " " + reasoning); qerr != nil {
					return nil, qerr
				}
				resp := &entity.InternalResponse{
					Content: text,
					HasContent: text != "",
					Reasoning: reasoning,
					HasReasoning: reasoning != "",
					FinishReason: entity.FinishStop,
				}
				for _, c := range calls {
					resp.ToolCalls = append(resp.ToolCalls, entity.ToolCall{Name: c.Name, Arguments: c.ArgsJSON})
				}
				if len(resp.ToolCalls) > 0 {
					resp.FinishReason = entity.FinishToolCalls
				}
				return resp, nil
			}
		}

		timer := d.clock.NewTimer(d.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C():
		}
	}
}
