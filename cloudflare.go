package ddns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudflare/cloudflare-go"
	"github.com/go-logr/logr"
)

func newCloudflareProvider(token string) (cf *cloudflareProvider, err error) {
	cf = new(cloudflareProvider)
	cf.api, err = cloudflare.NewWithAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.logger = logr.Discard()
	cf.zoneIDs = map[string]string{}
	return cf, nil
}

// cloudflareProvider implements ddns.Provider.
//
// Cloudflare names records by FQDN; they are converted to and from subdomains relative to the zone.
type cloudflareProvider struct {
	api    *cloudflare.API
	logger logr.Logger

	mu      sync.Mutex
	zoneIDs map[string]string // zone name -> zone id
}

func (cf *cloudflareProvider) SetLogger(logger logr.Logger) { cf.logger = logger }

func (cf *cloudflareProvider) ZoneExists(ctx context.Context, domain string) (bool, error) {
	_, err := cf.zoneID(ctx, domain)
	if errors.Is(err, errZoneNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (cf *cloudflareProvider) ListRecordIDs(ctx context.Context, domain string) ([]string, error) {
	zid, err := cf.zoneID(ctx, domain)
	if err != nil {
		return nil, err
	}
	cf.logger.V(1).Info("looking up A records", "zone", zid)
	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.ListDNSRecordsParams{
		Type: "A",
	})
	if err != nil {
		return nil, fmt.Errorf("error listing DNS records: %w", err)
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	cf.logger.V(1).Info("found existing records", "count", len(ids))
	return ids, nil
}

func (cf *cloudflareProvider) GetRecord(ctx context.Context, domain, id string) (Record, error) {
	zid, err := cf.zoneID(ctx, domain)
	if err != nil {
		return Record{}, err
	}
	r, err := cf.api.GetDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), id)
	if err != nil {
		return Record{}, fmt.Errorf("error getting DNS record %s: %w", id, err)
	}
	return Record{
		ID:        r.ID,
		SubDomain: relativeName(r.Name, domain),
		Target:    r.Content,
		TTL:       r.TTL,
	}, nil
}

func (cf *cloudflareProvider) UpdateRecord(ctx context.Context, domain string, record Record) error {
	zid, err := cf.zoneID(ctx, domain)
	if err != nil {
		return err
	}
	name := absoluteName(record.SubDomain, domain)
	cf.logger.Info("updating DNS record", "zone", zid, "id", record.ID, "name", name, "content", record.Target, "ttl", record.TTL)
	_, err = cf.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.UpdateDNSRecordParams{
		ID:      record.ID,
		Type:    "A",
		Name:    name,
		Content: record.Target,
		TTL:     record.TTL,
	})
	if err != nil {
		return fmt.Errorf("error updating DNS record %s: %w", record.ID, err)
	}
	return nil
}

var errZoneNotFound = errors.New("zone not found")

// zoneID looks up the id of the zone named exactly domain and caches it.
func (cf *cloudflareProvider) zoneID(ctx context.Context, domain string) (string, error) {
	cf.mu.Lock()
	zid, ok := cf.zoneIDs[domain]
	cf.mu.Unlock()
	if ok {
		return zid, nil
	}

	zones, err := cf.api.ListZones(ctx, domain)
	if err != nil {
		return "", fmt.Errorf("error listing zones: %w", err)
	}
	for _, z := range zones {
		if strings.EqualFold(z.Name, domain) {
			zid = z.ID
			break
		}
	}
	if zid == "" {
		return "", fmt.Errorf("%w: %q", errZoneNotFound, domain)
	}
	cf.logger.V(1).Info("got zone ID", "zone", domain, "id", zid)

	cf.mu.Lock()
	cf.zoneIDs[domain] = zid
	cf.mu.Unlock()
	return zid, nil
}

// relativeName turns "home.example.com" into "home" for zone "example.com".
// The zone apex becomes the empty string.
func relativeName(fqdn, zone string) string {
	fqdn = strings.TrimSuffix(fqdn, ".")
	zone = strings.TrimSuffix(zone, ".")
	if strings.EqualFold(fqdn, zone) {
		return ""
	}
	if n := len(fqdn) - len(zone) - 1; n > 0 && fqdn[n] == '.' && strings.EqualFold(fqdn[n+1:], zone) {
		return fqdn[:n]
	}
	return fqdn
}

// absoluteName is the inverse of relativeName.
func absoluteName(sub, zone string) string {
	if sub == "" {
		return zone
	}
	return sub + "." + zone
}
