package pubchem

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const acetoneView = `{"Record":{"Section":[
  {"TOCHeading":"Names and Identifiers","Section":[
    {"TOCHeading":"Molecular Formula","Information":[{"StringValue":"C3H6O"}]},
    {"TOCHeading":"Synonyms","Section":[
      {"TOCHeading":"Depositor-Supplied Synonyms","Information":[
        {"StringList":{"String":["67-64-1","ACETONE","2-Propanone","DSSTox_CID_3002"]}}
      ]}
    ]},
    {"TOCHeading":"Other Identifiers","Section":[
      {"TOCHeading":"CAS","Information":[{"StringValue":"67-64-1"}]}
    ]}
  ]},
  {"TOCHeading":"Safety and Hazards","Section":[
    {"TOCHeading":"Hazards Identification","Section":[
      {"TOCHeading":"GHS Classification","Information":[
        {"StringWithMarkup":[
          {"String":"H225: Highly flammable liquid and vapour"},
          {"String":"H319: Causes serious eye irritation"},
          {"String":"H225: Highly flammable liquid and vapour"}
        ]}
      ]}
    ]},
    {"TOCHeading":"Safety Sources","Information":[
      {"Reference":[{"URL":"https://example.com/acetone-sds"}]}
    ]}
  ]}
]}}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/pug/compound/name/acetone/cids/JSON", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"IdentifierList":{"CID":[180]}}`))
	})
	mux.HandleFunc("/rest/pug/compound/xref/RN/67-64-1/cids/JSON", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"IdentifierList":{"CID":[180]}}`))
	})
	mux.HandleFunc("/rest/pug_view/data/compound/180/JSON", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(acetoneView))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLookupByName(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(WithBaseURL(srv.URL))

	d, err := client.Lookup(context.Background(), "acetone")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if d.Name != "ACETONE" {
		t.Fatalf("name = %q, want exact synonym match", d.Name)
	}
	if d.CAS != "67-64-1" {
		t.Fatalf("cas = %q", d.CAS)
	}
	if d.Formula != "C3H6O" {
		t.Fatalf("formula = %q", d.Formula)
	}
	if d.Carbons == nil || *d.Carbons != 3 {
		t.Fatalf("carbons = %v, want 3", d.Carbons)
	}
	lines := strings.Split(d.Hazards, "\n")
	if len(lines) != 2 {
		t.Fatalf("hazards = %q, want 2 deduplicated phrases", d.Hazards)
	}
	if d.SDSLink != "https://example.com/acetone-sds" {
		t.Fatalf("sds link = %q", d.SDSLink)
	}
}

func TestLookupByCAS(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(WithBaseURL(srv.URL))

	d, err := client.Lookup(context.Background(), "67-64-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if d.CAS != "67-64-1" {
		t.Fatalf("cas = %q", d.CAS)
	}
	// A CAS query must not win the exact-synonym match even though the
	// registry number appears in the synonym list.
	if d.Name == "67-64-1" {
		t.Fatalf("name = %q, want a readable synonym", d.Name)
	}
}

func TestLookupNoCompound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"IdentifierList":{"CID":[]}}`))
	}))
	defer srv.Close()
	client := NewClient(WithBaseURL(srv.URL))
	if _, err := client.Lookup(context.Background(), "unobtainium"); err == nil {
		t.Fatal("expected error for unknown compound")
	}
}

func TestLookupServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	client := NewClient(WithBaseURL(srv.URL))
	if _, err := client.Lookup(context.Background(), "acetone"); err == nil {
		t.Fatal("expected error on upstream failure")
	}
}

func TestLookupEmptyQuery(t *testing.T) {
	client := NewClient()
	if _, err := client.Lookup(context.Background(), "   "); err == nil {
		t.Fatal("blank query accepted")
	}
}

func TestFallback(t *testing.T) {
	d := Fallback("sulfuric acid")
	if d.Name != "sulfuric acid" {
		t.Fatalf("name = %q", d.Name)
	}
	if !strings.Contains(d.SDSLink, "sulfuric+acid+SDS") {
		t.Fatalf("sds link = %q, want a web search", d.SDSLink)
	}
}

func TestPickCommonName(t *testing.T) {
	syns := []string{"DSSTox_CID_1432", "HCl", "Hydrochloric acid"}
	if got := pickCommonName("7647-01-0", syns); got != "Hydrochloric acid" {
		t.Fatalf("got %q, want the hydrochloric acid synonym", got)
	}

	syns = []string{"ZINC000000895218", "Toluene"}
	if got := pickCommonName("108-88-3", syns); got != "Toluene" {
		t.Fatalf("got %q, want priority word ranking to win", got)
	}

	if got := pickCommonName("benzene", []string{"Cyclohexatriene", "BENZENE"}); got != "BENZENE" {
		t.Fatalf("got %q, want exact query match", got)
	}

	if got := pickCommonName("anything", nil); got != "anything" {
		t.Fatalf("got %q, want query echoed for empty synonyms", got)
	}
}

func TestCarbonsFromFormula(t *testing.T) {
	if c := carbonsFromFormula("C6H6"); c == nil || *c != 6 {
		t.Fatalf("C6H6 -> %v", c)
	}
	if c := carbonsFromFormula("H2O"); c != nil {
		t.Fatalf("H2O -> %v, want nil", c)
	}
	if c := carbonsFromFormula("C12H22O11"); c == nil || *c != 12 {
		t.Fatalf("C12H22O11 -> %v", c)
	}
}

type countingCache struct {
	entries map[string]Details
	puts    int
}

func (c *countingCache) Get(_ context.Context, q string) (Details, bool) {
	d, ok := c.entries[q]
	return d, ok
}

func (c *countingCache) Put(_ context.Context, q string, d Details) error {
	c.entries[q] = d
	c.puts++
	return nil
}

func TestLookupUsesCache(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/pug/compound/name/acetone/cids/JSON", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"IdentifierList":{"CID":[180]}}`))
	})
	mux.HandleFunc("/rest/pug_view/data/compound/180/JSON", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(acetoneView))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := &countingCache{entries: make(map[string]Details)}
	client := NewClient(WithBaseURL(srv.URL), WithCache(cache))

	ctx := context.Background()
	if _, err := client.Lookup(ctx, "acetone"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if _, err := client.Lookup(ctx, "  Acetone "); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if calls != 1 {
		t.Fatalf("upstream called %d times, want 1", calls)
	}
	if cache.puts != 1 {
		t.Fatalf("cache puts = %d, want 1", cache.puts)
	}
}
