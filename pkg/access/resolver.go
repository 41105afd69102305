package access

import "context"

// CompanyResolver looks up the company a client belongs to. It is an
// external collaborator; implementations typically call the product API.
//
// The engine invokes it off the reconciliation loop and joins the result
// back in as a single synchronous store mutation, so implementations may
// block. They should honor ctx: once the session is torn down the result is
// discarded.
type CompanyResolver interface {
	CompanyOf(ctx context.Context, clientID string) (string, error)
}

// CompanyResolverFunc adapts a function to the CompanyResolver interface.
type CompanyResolverFunc func(ctx context.Context, clientID string) (string, error)

func (f CompanyResolverFunc) CompanyOf(ctx context.Context, clientID string) (string, error) {
	return f(ctx, clientID)
}
