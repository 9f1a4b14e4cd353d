package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/observability"
	"solana-trade-feed/internal/ratelimit"
)

const (
	ipfsGateway       = "https://ipfs.io/ipfs/"
	metadataCacheTTL  = time.Hour
	metadataSizeLimit = 1 << 20 // 1 MiB
)

// Enricher fetches off-chain token metadata documents. Fetches are
// bounded by a per-host token bucket and results are cached per URI;
// a denied or failed fetch degrades to no enrichment rather than an
// error, missing metadata never blocks trade persistence.
type Enricher struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cache      *ttlCache[*domain.TokenMetadata]
	logger     *log.Logger
}

// NewEnricher creates an Enricher. limiter may be nil to disable
// rate limiting.
func NewEnricher(httpClient *http.Client, limiter *ratelimit.Limiter, logger *log.Logger) *Enricher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if limiter == nil {
		limiter = ratelimit.New(0, 1)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Enricher{
		httpClient: httpClient,
		limiter:    limiter,
		cache:      newTTLCache[*domain.TokenMetadata](metadataCacheTTL),
		logger:     logger,
	}
}

// Fetch returns the metadata document behind uri, or (nil, nil) when
// enrichment is unavailable right now.
func (e *Enricher) Fetch(ctx context.Context, uri string) (*domain.TokenMetadata, error) {
	if uri == "" {
		return nil, nil
	}
	if meta, ok := e.cache.get(uri); ok {
		observability.RecordMetadataFetch("cached")
		return meta, nil
	}

	fetchURL := rewriteIPFS(uri)
	parsed, err := url.Parse(fetchURL)
	if err != nil || parsed.Host == "" {
		observability.RecordMetadataFetch("bad_uri")
		return nil, nil
	}

	if !e.limiter.Allow(parsed.Host) {
		observability.RecordRateLimitedFetch()
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		observability.RecordMetadataFetch("error")
		e.logger.Printf("Metadata fetch failed for %s: %v", fetchURL, err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observability.RecordMetadataFetch("http_error")
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, metadataSizeLimit))
	if err != nil {
		observability.RecordMetadataFetch("error")
		return nil, nil
	}

	var meta domain.TokenMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		observability.RecordMetadataFetch("bad_json")
		return nil, nil
	}
	meta.Image = rewriteIPFS(meta.Image)

	e.cache.set(uri, &meta)
	observability.RecordMetadataFetch("ok")
	return &meta, nil
}

// rewriteIPFS maps ipfs:// URIs onto a public HTTP gateway.
func rewriteIPFS(uri string) string {
	if cid, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return ipfsGateway + cid
	}
	return uri
}

// SolPrice supplies the SOL/USD conversion rate. The rate is fetched
// over HTTP and cached for a TTL; when a refresh fails the last known
// rate keeps being served so USD pricing degrades to slightly stale
// instead of absent.
type SolPrice struct {
	url        string
	httpClient *http.Client
	logger     *log.Logger
	ttl        time.Duration
	now        func() time.Time

	mu        sync.Mutex
	rate      decimal.Decimal
	fetchedAt time.Time
	known     bool
}

// NewSolPrice creates a SolPrice fetching from url with the given TTL.
func NewSolPrice(url string, ttl time.Duration, httpClient *http.Client, logger *log.Logger) *SolPrice {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SolPrice{
		url:        url,
		httpClient: httpClient,
		logger:     logger,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Rate returns the current SOL/USD rate. ok is false only when no rate
// has ever been fetched.
func (p *SolPrice) Rate(ctx context.Context) (decimal.Decimal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.known && p.now().Sub(p.fetchedAt) < p.ttl {
		return p.rate, true
	}

	rate, err := p.fetch(ctx)
	if err != nil {
		observability.RecordSolPriceRefresh("error")
		p.logger.Printf("SOL price refresh failed: %v", err)
		// Serve the stale rate if we have one.
		return p.rate, p.known
	}

	observability.RecordSolPriceRefresh("ok")
	p.rate = rate
	p.fetchedAt = p.now()
	p.known = true
	return p.rate, true
}

func (p *SolPrice) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build price request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch price: status %d", resp.StatusCode)
	}

	var doc struct {
		SolPrice decimal.Decimal `json:"solPrice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return decimal.Zero, fmt.Errorf("parse price response: %w", err)
	}
	if doc.SolPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("non-positive price %s", doc.SolPrice)
	}
	return doc.SolPrice, nil
}
