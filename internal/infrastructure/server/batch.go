package server

import (
	"context"

	"github.com/memvault/memvault/internal/domain"
)

// ExecuteBatch fans an ordered sequence of envelopes out to the processor and
// reassembles the responses in the relative order of the request-type inputs.
// Notification elements contribute no output, so a batch of only
// notifications yields an empty slice, a valid outcome distinct from the
// empty-batch protocol error. A failing element produces an error response in
// its position without aborting the rest of the batch.
func (p *Processor) ExecuteBatch(ctx context.Context, sess *Session, reqs []domain.Request) ([]domain.Response, error) {
	if len(reqs) == 0 {
		return nil, domain.NewError(domain.CodeInvalidRequest, "empty batch")
	}

	responses := make([]domain.Response, 0, len(reqs))
	for _, req := range reqs {
		if resp := p.Execute(ctx, sess, req); resp != nil {
			responses = append(responses, *resp)
		}
	}
	return responses, nil
}
