package identity

import (
	"context"
	"time"
)

// ResolutionMethod indicates how an identity was resolved
type ResolutionMethod string

const (
	MethodCache ResolutionMethod = "cache"
	MethodXRPC  ResolutionMethod = "xrpc"
)

// Identity is a resolved account: handle, DID and, once discovered, the
// PDS endpoint hosting its repo
type Identity struct {
	DID        string
	Handle     string
	PDSURL     string
	ResolvedAt time.Time
	Method     ResolutionMethod
}

// DIDDocument holds the parts of a DID document used for PDS discovery.
// Some documents publish the service list under "services".
type DIDDocument struct {
	ID          string    `json:"id"`
	AlsoKnownAs []string  `json:"alsoKnownAs,omitempty"`
	Service     []Service `json:"service,omitempty"`
	Services    []Service `json:"services,omitempty"`
}

// Service is a service entry in a DID document. ServiceEndpoint is usually
// a string but DID documents may also carry maps and lists.
type Service struct {
	ID              string      `json:"id"`
	Type            string      `json:"type"`
	ServiceEndpoint interface{} `json:"serviceEndpoint"`
}

// HandleResolver resolves a handle to a DID over the network
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (string, error)
}

// DocumentFetcher fetches and decodes a JSON document from an absolute URL
type DocumentFetcher interface {
	GetJSON(ctx context.Context, url string, target interface{}) error
}

// Cache stores resolved identities keyed by handle. GetIdentity returns
// nil without error on a miss or an expired entry.
type Cache interface {
	GetIdentity(ctx context.Context, handle string, maxAge time.Duration) (*Identity, error)
	PutIdentity(ctx context.Context, id *Identity) error
	PurgeIdentity(ctx context.Context, handle string) error
}
