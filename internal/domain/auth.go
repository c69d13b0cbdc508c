package domain

import "context"

// Principal is the authenticated caller as reported by the identity provider.
type Principal struct {
	Subject   string
	Roles     []string
	Scopes    []string
	RawClaims map[string]any
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}

type Authorizer interface {
	Require(principal Principal, permission string) error
}
