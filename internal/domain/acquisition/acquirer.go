package acquisition

import (
	"context"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// Acquirer is the narrow contract each layer implements to actually pull a
// response once Selector has chosen it. deltas receives a signal (not the
// text itself — the caller gets the assembled response from Acquire's
// return value) each time new content is available, so the
// streaming.Lifecycle can reset its silence
// timer without the acquisition layer knowing anything about timeouts.
type Acquirer interface {
	Layer() Layer

	// Acquire drives the layer until the response is complete or ctx is
	// done, publishing a signal on deltas after every incremental update
	// and returning the final assembled response.
	Acquire(ctx context.Context, req *entity.RequestContext, deltas chan<- struct{}) (*entity.InternalResponse, error)
}
