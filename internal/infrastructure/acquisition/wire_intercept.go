package acquisition

import (
	"context"
	"crypto/tls"
	"sync"

	domainacq "github.com/ngoclaw/ngoclaw/gateway/internal/domain/acquisition"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"go.uber.org/zap"
)

// WireInterceptor is Layer 1: a MITM proxy in front of the browser's own
// network traffic, decrypting the upstream streaming response body as it
// arrives and republishing chunks keyed by the correlation token the
// session embedded on SubmitPrompt. On-demand leaf-certificate generation
// per host (cached after first issuance) is the only way a Go process can
// sit in the TLS path of a browser it does not control the trust store of.
type WireInterceptor struct {
	mu sync.RWMutex

	caCert *tls.Certificate
	certCache map[string]*tls.Certificate // host -> leaf cert

	channels map[string]chan []byte // correlation token -> raw body chunks

	proxyHealthy bool
	certsTrusted bool

	logger *zap.Logger
}

// NewWireInterceptor builds an interceptor around a CA certificate that the
// browser profile must already trust, installed out-of-band via the
// ca_cert_path/ca_key_path configured for this layer.
func NewWireInterceptor(ca *tls.Certificate, logger *zap.Logger) *WireInterceptor {
	return &WireInterceptor{
		caCert: ca,
		certCache: make(map[string]*tls.Certificate),
		channels: make(map[string]chan []byte),
		logger: logger.With(zap.String("component", "wire-intercept")),
	}
}

var _ domainacq.EligibilityChecker = (*WireInterceptor)(nil)
var _ domainacq.Acquirer = (*WireInterceptor)(nil)

func (w *WireInterceptor) Layer() domainacq.Layer { return domainacq.LayerWireIntercept }

// MarkProxyHealthy/MarkCertsTrusted are flipped by the proxy's own
// lifecycle management (listener up, first successful handshake using a
// cached leaf cert) and read by CheckEligible.
func (w *WireInterceptor) MarkProxyHealthy(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.proxyHealthy = v
}

func (w *WireInterceptor) MarkCertsTrusted(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.certsTrusted = v
}

func (w *WireInterceptor) CheckEligible(ctx context.Context) domainacq.Eligibility {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.proxyHealthy {
		return domainacq.Eligibility{Layer: domainacq.LayerWireIntercept, Eligible: false, Reason: "mitm proxy listener not healthy"}
	}
	if !w.certsTrusted {
		return domainacq.Eligibility{Layer: domainacq.LayerWireIntercept, Eligible: false, Reason: "CA certificate not yet trusted by the browser profile"}
	}
	return domainacq.Eligibility{Layer: domainacq.LayerWireIntercept, Eligible: true}
}

// register opens a per-request channel keyed by correlationToken; the
// proxy's handler goroutine publishes to it as upstream bytes arrive.
func (w *WireInterceptor) register(correlationToken string) chan []byte {
	ch := make(chan []byte, 64)
	w.mu.Lock()
	w.channels[correlationToken] = ch
	w.mu.Unlock()
	return ch
}

func (w *WireInterceptor) unregister(correlationToken string) {
	w.mu.Lock()
	delete(w.channels, correlationToken)
	w.mu.Unlock()
}

// Publish is called by the proxy's request handler (not shown — it lives
// outside this module's scope per spec , "only the contract appears")
// for every decrypted chunk belonging to correlationToken.
func (w *WireInterceptor) Publish(correlationToken string, chunk []byte) {
	w.mu.RLock()
	ch, ok := w.channels[correlationToken]
	w.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- chunk:
	default:
		w.logger.Warn("wire intercept channel full, dropping chunk", zap.String("correlation_token", correlationToken))
	}
}

// Acquire waits on the per-request channel, accumulating bytes into an
// InternalResponse until the channel is closed (end of stream) or ctx ends.
func (w *WireInterceptor) Acquire(ctx context.Context, req *entity.RequestContext, deltas chan<- struct{}) (*entity.InternalResponse, error) {
	ch := w.register(req.ReqID)
	defer w.unregister(req.ReqID)

	resp := &entity.InternalResponse{FinishReason: entity.FinishStop}
	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				text := string(buf)
				if qerr := detectQuotaOrRateLimit(text); qerr != nil {
					return nil, qerr
				}
				resp.Content = text
				resp.HasContent = len(buf) > 0
				return resp, nil
			}
			buf = append(buf, chunk...)
			select {
			case deltas <- struct{}{}:
			default:
			}
		}
	}
}
