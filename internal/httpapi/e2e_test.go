//go:build integration

package httpapi_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThorfinnThor/radar/internal/config"
	"github.com/ThorfinnThor/radar/internal/httpapi"
	"github.com/ThorfinnThor/radar/internal/pipeline"
	"github.com/ThorfinnThor/radar/internal/store"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// upstream fakes the registry and a Greenhouse board on one host.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/boards/kite/jobs":
			writeJSON(w, map[string]any{"jobs": []any{
				map[string]any{"id": 11, "title": "Associate Director, Bioassay", "absolute_url": "https://boards.greenhouse.io/kite/jobs/11", "updated_at": "2026-02-26T09:00:00Z", "content": "potency assays"},
			}})
		default:
			writeJSON(w, map[string]any{"studies": []any{
				map[string]any{"protocolSection": map[string]any{
					"identificationModule": map[string]any{"nctId": "NCT30000001", "briefTitle": "Phase 1 Study of an Autologous CAR-T"},
					"statusModule": map[string]any{
						"overallStatus":            "RECRUITING",
						"lastUpdatePostDateStruct": map[string]any{"date": "2026-02-10"},
					},
					"designModule":               map[string]any{"phases": []any{"PHASE1"}},
					"sponsorCollaboratorsModule": map[string]any{"leadSponsor": map[string]any{"name": "Kite, a Gilead Company", "class": "INDUSTRY"}},
				}},
				map[string]any{"protocolSection": map[string]any{
					"identificationModule": map[string]any{"nctId": "NCT30000002", "briefTitle": "CD3 Bispecific in Myeloma"},
					"statusModule":         map[string]any{"overallStatus": "ACTIVE_NOT_RECRUITING"},
					"designModule":         map[string]any{"phases": []any{"PHASE2"}},
					"sponsorCollaboratorsModule": map[string]any{
						"leadSponsor":   map[string]any{"name": "Memorial Hospital", "class": "OTHER"},
						"collaborators": []any{map[string]any{"name": "Helix Bio", "class": "INDUSTRY"}},
					},
				}},
			}})
		}
	}))
}

func TestE2ERunThenServe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	up := upstream(t)
	defer up.Close()

	// --- 1. Batch run against the fakes ---
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.CTG.BaseURL = up.URL
	cfg.CTG.Queries = []string{"CAR-T"}
	cfg.HTTP.RequestDelayMS = 0
	cfg.SEC.Enabled = false
	cfg.Patents.Enabled = false
	cfg.Jobs.GreenhouseBaseURL = up.URL
	cfg.Normalization.Aliases = map[string]string{"Kite, a Gilead Company": "Kite Pharma"}
	cfg.Companies = []config.Company{{Name: "Kite Pharma", ATS: "greenhouse", BoardToken: "kite"}}
	cfg.Exports.Dir = t.TempDir()
	cfg.Exports.ReportPDF = ""

	st, err := store.Open(filepath.Join(t.TempDir(), "radar.db"), store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	sum, err := pipeline.FromConfig(cfg, st, nil).Run(ctx, pipeline.ModeFull)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	t.Logf("run %s scored %d accounts", sum.RunID, sum.AccountsScored)
	if sum.AccountsScored != 2 || sum.SourceErrors != 0 {
		t.Fatalf("summary %+v", sum)
	}

	// --- 2. Serve the result ---
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: httpapi.NewServer(st, pipeline.NewScorer(cfg, st, nil), nil)}
	go srv.Serve(ln)
	defer srv.Close()
	base := "http://" + ln.Addr().String()

	// --- 3. Query it ---
	var list struct {
		OK       bool `json:"ok"`
		Accounts []struct {
			Rank        int     `json:"rank"`
			AccountName string  `json:"account_name"`
			Total       float64 `json:"total"`
			OnWatchlist bool    `json:"on_watchlist"`
		} `json:"accounts"`
	}
	getJSON(t, ctx, base+"/api/accounts", &list)
	if !list.OK || len(list.Accounts) != 2 {
		t.Fatalf("accounts %+v", list)
	}
	top := list.Accounts[0]
	if top.AccountName != "Kite Pharma" || !top.OnWatchlist || top.Rank != 1 {
		t.Fatalf("top account %+v", top)
	}

	var detail struct {
		Signals []struct {
			Type string `json:"signal_type"`
		} `json:"signals"`
		Studies []struct {
			ID        string `json:"id"`
			Synthetic bool   `json:"synthetic"`
		} `json:"studies"`
	}
	getJSON(t, ctx, base+"/api/accounts/Helix%20Bio", &detail)
	if len(detail.Signals) != 1 || detail.Signals[0].Type != "trial_collaborator" {
		t.Fatalf("collaborator signals %+v", detail.Signals)
	}
	if len(detail.Studies) != 1 || !detail.Studies[0].Synthetic {
		t.Fatalf("collaborator studies %+v", detail.Studies)
	}
}

func getJSON(t *testing.T, ctx context.Context, url string, out any) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}
