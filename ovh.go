package ddns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/ovh/go-ovh/ovh"
)

func newOVHProvider(endpoint, appKey, appSecret, consumerKey string) (*ovhProvider, error) {
	if endpoint == "" {
		endpoint = ovh.OvhEU
	}
	api, err := ovh.NewClient(endpoint, appKey, appSecret, consumerKey)
	if err != nil {
		return nil, fmt.Errorf("error creating OVH api client: %w", err)
	}
	return &ovhProvider{api: api, logger: logr.Discard()}, nil
}

// ovhProvider implements ddns.Provider on top of the OVH /domain/zone API.
type ovhProvider struct {
	api    *ovh.Client
	logger logr.Logger
}

func (p *ovhProvider) SetLogger(logger logr.Logger) { p.logger = logger }

// SetHTTPClient gives go-ovh its own copy of c, since the library overwrites the Timeout of the client it holds.
func (p *ovhProvider) SetHTTPClient(c *http.Client) {
	cp := *c
	p.api.Client = &cp
}

func (p *ovhProvider) SetTimeout(d time.Duration) { p.api.Timeout = d }

// ovhRecord is the body of GET /domain/zone/{zone}/record/{id}.
type ovhRecord struct {
	ID        int64  `json:"id"`
	Zone      string `json:"zone"`
	SubDomain string `json:"subDomain"`
	FieldType string `json:"fieldType"`
	Target    string `json:"target"`
	TTL       int    `json:"ttl"`
}

// ovhRecordUpdate is the body of PUT /domain/zone/{zone}/record/{id}.
type ovhRecordUpdate struct {
	SubDomain string `json:"subDomain"`
	Target    string `json:"target"`
	TTL       int    `json:"ttl"`
}

func zonePath(domain string, elem ...string) string {
	p := "/domain/zone/" + url.PathEscape(domain)
	for _, e := range elem {
		p += "/" + url.PathEscape(e)
	}
	return p
}

func (p *ovhProvider) ZoneExists(ctx context.Context, domain string) (bool, error) {
	var zones []string
	if err := p.api.GetWithContext(ctx, "/domain/zone", &zones); err != nil {
		return false, fmt.Errorf("error listing zones: %w", err)
	}
	p.logger.V(1).Info("listed zones", "count", len(zones))
	return slices.Contains(zones, domain), nil
}

func (p *ovhProvider) ListRecordIDs(ctx context.Context, domain string) ([]string, error) {
	var ids []int64
	if err := p.api.GetWithContext(ctx, zonePath(domain, "record")+"?fieldType=A", &ids); err != nil {
		return nil, fmt.Errorf("error listing records: %w", err)
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.FormatInt(id, 10))
	}
	p.logger.V(1).Info("listed A records", "zone", domain, "ids", out)
	return out, nil
}

func (p *ovhProvider) GetRecord(ctx context.Context, domain, id string) (Record, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return Record{}, fmt.Errorf("invalid OVH record id %q", id)
	}
	var r ovhRecord
	if err := p.api.GetWithContext(ctx, zonePath(domain, "record", id), &r); err != nil {
		var apiErr *ovh.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return Record{}, fmt.Errorf("record %s does not exist in %s: %w", id, domain, err)
		}
		return Record{}, fmt.Errorf("error getting record %s: %w", id, err)
	}
	return Record{
		ID:        strconv.FormatInt(r.ID, 10),
		SubDomain: r.SubDomain,
		Target:    r.Target,
		TTL:       r.TTL,
	}, nil
}

// UpdateRecord changes the record and then refreshes the zone, which is what makes OVH publish the change.
func (p *ovhProvider) UpdateRecord(ctx context.Context, domain string, record Record) error {
	if _, err := strconv.ParseInt(record.ID, 10, 64); err != nil {
		return fmt.Errorf("invalid OVH record id %q", record.ID)
	}
	p.logger.Info("updating DNS record", "zone", domain, "id", record.ID, "subdomain", record.SubDomain, "target", record.Target, "ttl", record.TTL)
	body := ovhRecordUpdate{SubDomain: record.SubDomain, Target: record.Target, TTL: record.TTL}
	if err := p.api.PutWithContext(ctx, zonePath(domain, "record", record.ID), body, nil); err != nil {
		return fmt.Errorf("error updating record %s: %w", record.ID, err)
	}
	if err := p.api.PostWithContext(ctx, zonePath(domain, "refresh"), nil, nil); err != nil {
		return fmt.Errorf("record %s updated but zone refresh failed: %w", record.ID, err)
	}
	return nil
}
