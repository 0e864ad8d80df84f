package identity

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/symmetricalboy/bsky-to-gem/pkg/errors"
	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
)

const (
	// DefaultPLCDirectory hosts did:plc documents
	DefaultPLCDirectory = "https://plc.directory"

	// DefaultDiscoveryTimeout bounds each DID document fetch
	DefaultDiscoveryTimeout = 10 * time.Second

	// PDSServiceSuffix marks the PDS entry by id
	PDSServiceSuffix = "#atproto_pds"

	// PDSServiceType marks the PDS entry by type
	PDSServiceType = "AtprotoPersonalDataServer"

	// WellKnownDIDPath is where did:web documents live
	WellKnownDIDPath = "/.well-known/did.json"

	plcPrefix = "did:plc:"
	webPrefix = "did:web:"
)

// Outcome tells why discovery did or did not produce an endpoint
type Outcome string

const (
	OutcomeFound             Outcome = "found"
	OutcomeUnsupportedMethod Outcome = "unsupported_method"
	OutcomeFetchFailed       Outcome = "fetch_failed"
	OutcomeNoService         Outcome = "no_service"
)

// Discovery is the result of looking up the PDS for a DID. Endpoint is set
// only when Outcome is OutcomeFound; Err is set only for OutcomeFetchFailed.
type Discovery struct {
	Endpoint string
	Outcome  Outcome
	Err      error
}

// Found reports whether a PDS endpoint was discovered
func (d Discovery) Found() bool {
	return d.Outcome == OutcomeFound
}

// Discoverer finds the PDS hosting a DID's repo from its DID document
type Discoverer struct {
	fetcher      DocumentFetcher
	plcDirectory string
	timeout      time.Duration
	logger       logger.Logger
}

// NewDiscoverer creates a discoverer. An empty plcDirectory or zero timeout
// uses the defaults.
func NewDiscoverer(fetcher DocumentFetcher, plcDirectory string, timeout time.Duration, log logger.Logger) *Discoverer {
	if plcDirectory == "" {
		plcDirectory = DefaultPLCDirectory
	}
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Discoverer{
		fetcher:      fetcher,
		plcDirectory: strings.TrimRight(plcDirectory, "/"),
		timeout:      timeout,
		logger:       log,
	}
}

// Discover fetches the DID document for did and extracts its PDS endpoint.
// It never fails: every problem is reported through the Outcome.
func (d *Discoverer) Discover(ctx context.Context, did string) Discovery {
	docURL, ok := DocumentURL(d.plcDirectory, did)
	if !ok {
		d.logger.InfoWithFields("DID method not supported for discovery", map[string]interface{}{
			"did": did,
		})
		return Discovery{Outcome: OutcomeUnsupportedMethod}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var doc DIDDocument
	if err := d.fetcher.GetJSON(fetchCtx, docURL, &doc); err != nil {
		d.logger.WithError(err).WarnWithFields("could not fetch DID document", map[string]interface{}{
			"did": did,
			"url": docURL,
		})
		return Discovery{Outcome: OutcomeFetchFailed, Err: errors.Discovery(did, err)}
	}

	endpoint := FindPDSEndpoint(&doc)
	if endpoint == "" {
		d.logger.WarnWithFields("DID document has no PDS service entry", map[string]interface{}{
			"did": did,
			"url": docURL,
		})
		return Discovery{Outcome: OutcomeNoService}
	}

	d.logger.InfoWithFields("PDS endpoint discovered", map[string]interface{}{
		"did":      did,
		"endpoint": endpoint,
	})
	return Discovery{Endpoint: endpoint, Outcome: OutcomeFound}
}

// DocumentURL returns where the DID document of did is published, or false
// for DID methods other than plc and web
func DocumentURL(plcDirectory, did string) (string, bool) {
	switch {
	case strings.HasPrefix(did, plcPrefix):
		if plcDirectory == "" {
			plcDirectory = DefaultPLCDirectory
		}
		return fmt.Sprintf("%s/%s", strings.TrimRight(plcDirectory, "/"), did), true
	case strings.HasPrefix(did, webPrefix):
		u := WebDocumentURL(did)
		return u, u != ""
	default:
		return "", false
	}
}

// WebDocumentURL converts a did:web identifier to its well-known HTTPS URL.
// Colons separate path segments and each segment is percent-decoded, so
// did:web:example.com%3A8443:users:alice maps to
// https://example.com:8443/users/alice/.well-known/did.json.
func WebDocumentURL(did string) string {
	rest := strings.TrimPrefix(did, webPrefix)
	if rest == "" || rest == did {
		return ""
	}

	segments := strings.Split(rest, ":")
	for i, seg := range segments {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return ""
		}
		segments[i] = decoded
	}
	if segments[0] == "" {
		return ""
	}

	return "https://" + strings.Join(segments, "/") + WellKnownDIDPath
}

// FindPDSEndpoint returns the endpoint of the first PDS service entry with
// a non-empty string endpoint, trailing slashes removed. It returns an
// empty string when no entry matches.
func FindPDSEndpoint(doc *DIDDocument) string {
	if doc == nil {
		return ""
	}

	services := doc.Service
	if len(services) == 0 {
		services = doc.Services
	}

	for _, svc := range services {
		if !strings.HasSuffix(svc.ID, PDSServiceSuffix) && svc.Type != PDSServiceType {
			continue
		}
		endpoint, ok := svc.ServiceEndpoint.(string)
		if !ok || endpoint == "" {
			continue
		}
		if trimmed := strings.TrimRight(endpoint, "/"); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
