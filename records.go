package cfddns

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"
)

// BindRecords pairs domains with explicitly configured record IDs by position.
func BindRecords(domains, recordIDs []string) ([]Binding, error) {
	if len(domains) != len(recordIDs) {
		return nil, &CountMismatchError{Domains: len(domains), Records: len(recordIDs)}
	}
	bindings := make([]Binding, len(domains))
	for i := range domains {
		bindings[i] = Binding{Domain: domains[i], RecordID: recordIDs[i]}
	}
	return bindings, nil
}

// ResolveBindings lists the zone once and looks up the record ID of every domain by exact name.
//
// The result follows the order of domains, not the order of the listing.
// When a zone has several records with the same name, the first one listed wins.
// A domain without a record is an *UnmatchedDomainError, and no bindings are returned.
func ResolveBindings(ctx context.Context, p Provider, zone string, domains []string) ([]Binding, error) {
	records, err := p.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't read DNS record ids: %w", err)
	}

	byName := make(map[string]string, len(records))
	for _, r := range records {
		if _, seen := byName[r.Name]; !seen {
			byName[r.Name] = r.ID
		}
	}

	bindings := make([]Binding, 0, len(domains))
	for _, domain := range domains {
		id, ok := byName[domain]
		if !ok {
			return nil, &UnmatchedDomainError{Domain: domain, Zone: zone}
		}
		bindings = append(bindings, Binding{Domain: domain, RecordID: id})
	}
	return bindings, nil
}

// UpdateRecords points every binding at addr, one request per binding, in order.
//
// A failed update does not stop the remaining ones and nothing is rolled back.
// It returns how many records were updated and every failure joined into one error.
func UpdateRecords(ctx context.Context, p Provider, bindings []Binding, addr netip.Addr, logger logrus.FieldLogger) (int, error) {
	if logger == nil {
		logger = discard
	}
	var (
		updated int
		errs    []error
	)
	for _, b := range bindings {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrUpdateFailed, b.Domain, err))
			continue
		}
		if err := p.UpdateRecord(ctx, b, addr); err != nil {
			logger.WithError(err).WithField("domain", b.Domain).Warn("record update failed")
			errs = append(errs, err)
			continue
		}
		logger.WithFields(logrus.Fields{"domain": b.Domain, "ip": addr.String()}).Debug("record updated")
		updated++
	}
	return updated, errors.Join(errs...)
}
