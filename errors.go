package cfddns

import (
	"errors"
	"fmt"
)

// Startup errors. All of them are fatal.
var (
	ErrMissingKey      = errors.New("missing required configuration key")
	ErrInvalidValue    = errors.New("invalid configuration value")
	ErrCountMismatch   = errors.New("RECORDS and DOMAINS have a different number of entries")
	ErrConfigFile      = errors.New("configuration file is not accessible")
	ErrListingRejected = errors.New("cloudflare rejected the DNS record listing request")
	ErrUnmatchedDomain = errors.New("domain does not match any DNS record in the zone")
	ErrTokenInactive   = errors.New("cloudflare API token is not active")
)

// Cycle errors. They end the current cycle only.
var (
	ErrNoIPInTrace  = errors.New("trace response has no ip= line")
	ErrUpdateFailed = errors.New("DNS record update failed")
)

// CountMismatchError reports how many RECORDS and DOMAINS entries were configured.
type CountMismatchError struct {
	Domains int
	Records int
}

func (e *CountMismatchError) Error() string {
	if e.Records > e.Domains {
		return fmt.Sprintf("%s: %d records for %d domains (too many records)", ErrCountMismatch, e.Records, e.Domains)
	}
	return fmt.Sprintf("%s: %d records for %d domains (too few records)", ErrCountMismatch, e.Records, e.Domains)
}

func (e *CountMismatchError) Is(target error) bool { return target == ErrCountMismatch }

// UnmatchedDomainError names the configured domain that has no record in the zone.
type UnmatchedDomainError struct {
	Domain string
	Zone   string
}

func (e *UnmatchedDomainError) Error() string {
	return fmt.Sprintf("the domain %s doesn't match any of the DNS records returned from cloudflare for zone %s", e.Domain, e.Zone)
}

func (e *UnmatchedDomainError) Is(target error) bool { return target == ErrUnmatchedDomain }
