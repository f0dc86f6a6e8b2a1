package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/refdata/validate-service/internal/domain"
	"github.com/refdata/validate-service/internal/engine"
	"github.com/refdata/validate-service/internal/expectation"
	"github.com/refdata/validate-service/internal/lookup"
	"github.com/refdata/validate-service/internal/ruleset"
	"gopkg.in/yaml.v3"
)

// inlineRuleValidator checks struct tags on caller-supplied inline rules
// (POST .../validate bodies) before they ever reach the expectation
// compiler, so a malformed inline rule surfaces as InvalidRule rather than
// a confusing compiler error.
var inlineRuleValidator = validator.New()

// Handler holds the dependencies every HTTP route needs: the Data Loader,
// the Rule Loader, the Validation Engine, and the persistence Repository.
type Handler struct {
	loader      domain.DataLoader
	rules       *ruleset.Loader
	engine      *engine.Engine
	repo        domain.Repository
	exchangeMap map[string][]string // productType -> []exchangeCode
	version     string
}

// NewHandler wires a Handler from its component dependencies.
func NewHandler(loader domain.DataLoader, rules *ruleset.Loader, eng *engine.Engine, repo domain.Repository, exchangeMap map[string][]string, version string) *Handler {
	return &Handler{loader: loader, rules: rules, engine: eng, repo: repo, exchangeMap: exchangeMap, version: version}
}

// Health handles GET /health: a bare liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

// HealthDetailed handles GET /health/detailed: dataset cache and
// persistence pool stats.
func (h *Handler) HealthDetailed(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":      "ok",
		"version":     h.version,
		"cache_stats": h.loader.Stats(),
	}
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			body["repository"] = "unreachable"
		} else {
			body["repository"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// FindByRIC handles GET /api/v1/instruments/ric/{ric}.
func (h *Handler) FindByRIC(w http.ResponseWriter, r *http.Request) {
	ric := chi.URLParam(r, "ric")
	product := r.URL.Query().Get("product_type")
	exchange := r.URL.Query().Get("exchange")

	l := lookup.New(h.loader, h.exchangeMap, ruleset.NormalizeProduct(product))
	rec, err := l.FindByRIC(r.Context(), ric, strings.ToUpper(exchange))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// FindByMasterID handles GET /api/v1/instruments/id/{id}.
func (h *Handler) FindByMasterID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	product := r.URL.Query().Get("product_type")
	exchange := r.URL.Query().Get("exchange")

	l := lookup.New(h.loader, h.exchangeMap, ruleset.NormalizeProduct(product))
	rec, err := l.FindByMasterID(r.Context(), id, strings.ToUpper(exchange))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListExchanges handles GET /api/v1/instruments/exchanges.
func (h *Handler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	product := ruleset.NormalizeProduct(r.URL.Query().Get("product_type"))
	writeJSON(w, http.StatusOK, map[string]any{"product_type": product, "exchanges": h.exchangeMap[product]})
}

// ExchangesByRegion handles GET /api/v1/instruments/exchanges-by-region:
// a region -> product -> exchange tree. Region grouping is not tracked
// separately from the exchange map in this implementation, so every
// product's exchanges are reported under a single "default" region.
func (h *Handler) ExchangesByRegion(w http.ResponseWriter, r *http.Request) {
	product := r.URL.Query().Get("product_type")
	tree := map[string]map[string][]string{"default": {}}
	if product != "" {
		tree["default"][ruleset.NormalizeProduct(product)] = h.exchangeMap[ruleset.NormalizeProduct(product)]
	} else {
		for p, exchanges := range h.exchangeMap {
			tree["default"][p] = exchanges
		}
	}
	writeJSON(w, http.StatusOK, tree)
}

// GetByExchange handles GET /api/v1/instruments/exchange/{ex}.
func (h *Handler) GetByExchange(w http.ResponseWriter, r *http.Request) {
	exchange := strings.ToUpper(chi.URLParam(r, "ex"))
	product := ruleset.NormalizeProduct(r.URL.Query().Get("product_type"))
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	l := lookup.New(h.loader, h.exchangeMap, product)
	recs, err := l.GetByExchange(r.Context(), exchange, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// FilterByExchange handles GET /api/v1/instruments/exchange/{ex}/filter.
func (h *Handler) FilterByExchange(w http.ResponseWriter, r *http.Request) {
	exchange := strings.ToUpper(chi.URLParam(r, "ex"))
	product := ruleset.NormalizeProduct(r.URL.Query().Get("product_type"))
	column := r.URL.Query().Get("column")
	includeMissing := r.URL.Query().Get("missing") == "true"

	var values []string
	if raw := r.URL.Query().Get("values"); raw != "" {
		values = strings.Split(raw, ",")
	}

	l := lookup.New(h.loader, h.exchangeMap, product)
	recs, err := l.FilterByColumnValues(r.Context(), exchange, column, values, includeMissing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// validateBody is the optional JSON body accepted alongside query
// parameters for the validate/validate-custom endpoints.
type validateBody struct {
	CustomRuleNames []string      `json:"custom_rule_names,omitempty"`
	CustomRules     []domain.Rule `json:"custom_rules,omitempty"`
}

func (h *Handler) parseValidateInput(r *http.Request) (customNames []string, inline []domain.Rule, err error) {
	if raw := r.URL.Query().Get("custom_rule_names"); raw != "" {
		customNames = strings.Split(raw, ",")
	}
	if r.Body != nil {
		var body validateBody
		if json.NewDecoder(r.Body).Decode(&body) == nil {
			if len(body.CustomRuleNames) > 0 {
				customNames = body.CustomRuleNames
			}
			inline = body.CustomRules
		}
	}
	for i := range inline {
		if verr := inlineRuleValidator.Struct(inline[i]); verr != nil {
			return nil, nil, fmt.Errorf("custom_rules[%d]: %v", i, verr)
		}
	}
	return customNames, inline, nil
}

// Validate handles GET/POST /api/v1/rules/validate/{product}/{ex}: the
// full layered rule hierarchy applied to the dataset.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	h.runValidation(w, r, false)
}

// ValidateCustom handles GET/POST
// /api/v1/rules/validate-custom/{product}/{ex}: only named/inline rules,
// skipping the base/product/exchange layers.
func (h *Handler) ValidateCustom(w http.ResponseWriter, r *http.Request) {
	h.runValidation(w, r, true)
}

func (h *Handler) runValidation(w http.ResponseWriter, r *http.Request, customOnly bool) {
	product := chi.URLParam(r, "product")
	// Exchange directory lookup is case-insensitive, but the caller's
	// original case is preserved for provenance (RuleScope.Exchange,
	// ValidationReport.Region/Exchange) — see ruleset.lookupChain.
	exchange := chi.URLParam(r, "ex")
	region := r.URL.Query().Get("region")
	customNames, inline, err := h.parseValidateInput(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), ErrorType: "InvalidRule"})
		return
	}

	var loaded *ruleset.LoadResult
	if customOnly {
		loaded, err = h.rules.LoadCustomOnly(product, exchange, customNames, inline)
	} else {
		loaded, err = h.rules.LoadCombined(product, exchange, customNames, inline)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	loaded.Rules = ruleset.ExpandColumns(loaded.Rules)

	ds, err := h.loader.Load(r.Context(), product, exchange)
	if err != nil {
		writeError(w, err)
		return
	}

	compiled := make([]*expectation.Compiled, 0, len(loaded.Rules))
	for _, rule := range loaded.Rules {
		c, err := expectation.Compile(rule, ds.Columns)
		if err != nil {
			writeError(w, err)
			return
		}
		compiled = append(compiled, c)
	}

	report, err := h.engine.EvaluateAll(r.Context(), ds, compiled)
	if err != nil {
		writeError(w, err)
		return
	}
	report.RunID = uuid.New().String()
	report.Region = region
	report.RulesAppliedLabel = ruleset.RulesAppliedLabel(loaded.Sources)
	report.CustomRuleNames = strings.Join(customNames, ",")
	report.APIURL = r.URL.RequestURI()

	run := &domain.Run{
		RunID: report.RunID, Region: report.Region, ProductType: report.ProductType, Exchange: report.Exchange,
		Success: report.Success, ElementCount: report.ElementCount, Total: report.Total, Successful: report.Successful,
		Failed: report.Failed, RulesAppliedLabel: report.RulesAppliedLabel, CustomRuleNames: report.CustomRuleNames,
		APIURL: report.APIURL, StartedAt: report.StartedAt, CompletedAt: report.CompletedAt, DurationMs: report.DurationMs,
	}
	if h.repo != nil {
		if saved, err := h.repo.SaveRun(r.Context(), report); err == nil {
			run = saved
		}
		// A persistence failure never masks the validation result: run.Persisted
		// stays false and the report is still returned to the caller.
	}

	writeJSON(w, http.StatusOK, map[string]any{"report": report, "run": run})
}

// RulesApplied handles GET /api/v1/rules/rules/{product}/{ex}: the rules
// that would be applied, without running the engine.
func (h *Handler) RulesApplied(w http.ResponseWriter, r *http.Request) {
	product := chi.URLParam(r, "product")
	exchange := chi.URLParam(r, "ex")
	var customNames []string
	if raw := r.URL.Query().Get("custom_rule_names"); raw != "" {
		customNames = strings.Split(raw, ",")
	}

	loaded, err := h.rules.LoadCombined(product, exchange, customNames, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleset.ExpandColumns(loaded.Rules))
}

// RulesAppliedYAML handles GET /api/v1/rules/rules-yaml/{product}/{ex}.
func (h *Handler) RulesAppliedYAML(w http.ResponseWriter, r *http.Request) {
	product := chi.URLParam(r, "product")
	exchange := chi.URLParam(r, "ex")

	loaded, err := h.rules.LoadCombined(product, exchange, nil, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := yaml.Marshal(ruleset.ExpandColumns(loaded.Rules))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// CombinedRules handles GET /api/v1/rules/combined-rules/{product}/{ex}:
// the names of discoverable combined/custom sets.
func (h *Handler) CombinedRules(w http.ResponseWriter, r *http.Request) {
	product := chi.URLParam(r, "product")
	exchange := chi.URLParam(r, "ex")

	names, err := h.rules.Catalog(product, exchange)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// CombinedRuleDetails handles
// GET /api/v1/rules/combined-rules-details/{product}/{ex}?rule_name.
func (h *Handler) CombinedRuleDetails(w http.ResponseWriter, r *http.Request) {
	product := chi.URLParam(r, "product")
	exchange := chi.URLParam(r, "ex")
	name := r.URL.Query().Get("rule_name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "rule_name is required", ErrorType: "InvalidRule"})
		return
	}

	loaded, err := h.rules.LoadCombined(product, exchange, []string{name}, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleset.ExpandColumns(loaded.Rules))
}

// ValidateByMasterID handles
// GET /api/v1/rules/validate-by-masterid/{id}/{combined_rule}: validates a
// single instrument record against one named combined rule set.
func (h *Handler) ValidateByMasterID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	combinedRule := chi.URLParam(r, "combined_rule")
	product := ruleset.NormalizeProduct(r.URL.Query().Get("product_type"))

	l := lookup.New(h.loader, h.exchangeMap, product)
	var record lookup.Record
	var found bool
	for _, ex := range h.exchangeMap[product] {
		rec, err := l.FindByMasterID(r.Context(), id, ex)
		if err == nil {
			record = rec
			found = true
			break
		}
	}
	if !found {
		writeError(w, domain.ErrInstrumentNotFound)
		return
	}

	loaded, err := h.rules.LoadCombined(product, "", []string{combinedRule}, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	loaded.Rules = ruleset.ExpandColumns(loaded.Rules)

	columns := make([]string, 0, len(record))
	for col := range record {
		columns = append(columns, col)
	}
	row := make([]any, len(columns))
	for i, col := range columns {
		row[i] = record[col]
	}
	ds := &domain.Dataset{ProductType: product, Columns: columns, Rows: [][]any{row}}

	compiled := make([]*expectation.Compiled, 0, len(loaded.Rules))
	for _, rule := range loaded.Rules {
		c, err := expectation.Compile(rule, ds.Columns)
		if err != nil {
			writeError(w, err)
			return
		}
		compiled = append(compiled, c)
	}

	report, err := h.engine.EvaluateAll(r.Context(), ds, compiled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
