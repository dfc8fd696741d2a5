// Package pubchem looks up chemical metadata from the public PubChem
// PUG-REST and PUG-View APIs: common name, CAS number, molecular formula,
// GHS hazard phrases, and an SDS reference link.
package pubchem

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"labstock/pkg/domain"
)

const defaultBaseURL = "https://pubchem.ncbi.nlm.nih.gov"

// maxHazardPhrases caps the GHS phrases carried into the hazards field.
const maxHazardPhrases = 20

// Details is the metadata assembled for one lookup.
type Details struct {
	Name    string `json:"name"`
	CAS     string `json:"cas"`
	Formula string `json:"formula"`
	Carbons *int   `json:"carbons,omitempty"`
	Hazards string `json:"hazards"`
	SDSLink string `json:"sds_link"`
}

// Cache stores lookup results keyed by normalized query.
type Cache interface {
	Get(ctx context.Context, query string) (Details, bool)
	Put(ctx context.Context, query string, d Details) error
}

// Client queries PubChem. The zero value is not usable; use NewClient.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      Cache
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the PubChem endpoint (tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// WithCache attaches a lookup cache. Cache failures degrade to a direct
// lookup; they never fail the call.
func WithCache(cache Cache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// NewClient constructs a PubChem client with a 10 second request timeout.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsCAS reports whether the query looks like a CAS registry number.
func IsCAS(s string) bool { return domain.ValidCAS(s) }

// Fallback builds the stub details used when a lookup fails: the query is
// echoed as the name and the SDS link points at a web search.
func Fallback(query string) Details {
	return Details{Name: query, SDSLink: searchSDSLink(query)}
}

func searchSDSLink(name string) string {
	return "https://www.google.com/search?q=" + url.QueryEscape(name+" SDS")
}

// Lookup resolves the query (a chemical name or CAS number) to a compound
// and assembles its details. The caller decides the fallback on error.
func (c *Client) Lookup(ctx context.Context, query string) (Details, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Details{}, fmt.Errorf("empty query")
	}
	if c.cache != nil {
		if d, ok := c.cache.Get(ctx, cacheKey(query)); ok {
			return d, nil
		}
	}

	cid, err := c.resolveCID(ctx, query)
	if err != nil {
		return Details{}, err
	}
	rec, err := c.fetchView(ctx, cid)
	if err != nil {
		return Details{}, err
	}
	d := assembleDetails(query, rec)

	if c.cache != nil {
		_ = c.cache.Put(ctx, cacheKey(query), d)
	}
	return d, nil
}

func cacheKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

type cidResponse struct {
	IdentifierList struct {
		CID []int64 `json:"CID"`
	} `json:"IdentifierList"`
}

// resolveCID maps a CAS number or chemical name to the first matching
// compound identifier.
func (c *Client) resolveCID(ctx context.Context, query string) (int64, error) {
	var path string
	if IsCAS(query) {
		path = "/rest/pug/compound/xref/RN/" + url.PathEscape(query) + "/cids/JSON"
	} else {
		path = "/rest/pug/compound/name/" + url.PathEscape(query) + "/cids/JSON"
	}
	var resp cidResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return 0, err
	}
	if len(resp.IdentifierList.CID) == 0 {
		return 0, fmt.Errorf("no compound found for %q", query)
	}
	return resp.IdentifierList.CID[0], nil
}

func (c *Client) fetchView(ctx context.Context, cid int64) (*viewRecord, error) {
	path := "/rest/pug_view/data/compound/" + strconv.FormatInt(cid, 10) + "/JSON"
	var resp viewResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp.Record, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pubchem: %s returned %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pubchem: decode %s: %w", path, err)
	}
	return nil
}

var carbonPattern = regexp.MustCompile(`C(\d+)`)

// carbonsFromFormula extracts the carbon count from a molecular formula.
func carbonsFromFormula(formula string) *int {
	m := carbonPattern.FindStringSubmatch(formula)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// priorityWords rank synonyms that read like common chemical names above
// depositor catalog codes.
var priorityWords = []string{
	"acid", "alcohol", "oxide", "chloride", "hydroxide", "benzene", "acetone",
	"toluene", "ethyl", "methyl", "propyl", "butyl", "hexane", "heptane",
	"octane", "polymer",
}

// pickCommonName chooses a display name from the synonym list. An exact
// case-insensitive match of a non-CAS query wins outright; otherwise synonyms
// containing a priority chemistry word rank first, shorter names break ties.
func pickCommonName(query string, syns []string) string {
	if len(syns) == 0 {
		return query
	}
	ql := strings.ToLower(strings.TrimSpace(query))
	if !IsCAS(query) {
		for _, s := range syns {
			if strings.ToLower(s) == ql {
				return s
			}
		}
	}
	ranked := append([]string(nil), syns...)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := synonymRank(ranked[i]), synonymRank(ranked[j])
		if pi != pj {
			return pi < pj
		}
		return len(ranked[i]) < len(ranked[j])
	})
	for _, s := range ranked {
		if strings.Contains(strings.ToLower(s), "hydrochloric acid") {
			return s
		}
	}
	return ranked[0]
}

func synonymRank(s string) int {
	ls := strings.ToLower(s)
	for _, w := range priorityWords {
		if strings.Contains(ls, w) {
			return 0
		}
	}
	return 1
}

// assembleDetails combines the walked record fields into the final result.
func assembleDetails(query string, rec *viewRecord) Details {
	var w walker
	w.walk(rec.Section)

	name := query
	if len(w.synonyms) > 0 {
		name = pickCommonName(query, w.synonyms)
	}
	cas := w.cas
	if IsCAS(query) && cas == "" {
		cas = query
	}
	sds := w.sdsLink
	if sds == "" {
		sds = searchSDSLink(name)
	}
	hazards := w.hazards
	if len(hazards) > maxHazardPhrases {
		hazards = hazards[:maxHazardPhrases]
	}
	return Details{
		Name:    name,
		CAS:     cas,
		Formula: w.formula,
		Carbons: carbonsFromFormula(w.formula),
		Hazards: strings.Join(hazards, "\n"),
		SDSLink: sds,
	}
}
