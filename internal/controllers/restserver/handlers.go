package restserver

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/chrissnell/traitlag/internal/analysis"
	"github.com/chrissnell/traitlag/internal/series"
	"github.com/chrissnell/traitlag/pkg/responseformat"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	analyzer  *analysis.Analyzer
	results   *analysis.Results
	formatter *responseformat.Formatter
	logger    *zap.SugaredLogger
}

// ScenarioSummary is one entry of the scenario listing.
type ScenarioSummary struct {
	Name      string         `json:"name"`
	Records   map[string]int `json:"records"`
	Missing   []string       `json:"missing,omitempty"`
	Truncated []string       `json:"truncated,omitempty"`
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, data any) {
	headers := map[string]string{"X-Run-ID": h.results.Report.RunID}
	if err := h.formatter.WriteResponse(w, req, data, headers); err != nil {
		h.logger.Errorw("error encoding response", "path", req.URL.Path, "error", err)
	}
}

func (h *Handlers) fail(w http.ResponseWriter, status int, msg string) {
	if err := h.formatter.WriteError(w, status, msg); err != nil {
		h.logger.Errorw("error encoding error response", "status", status, "error", err)
	}
}

// writeError maps analysis errors onto HTTP status codes.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, analysis.ErrNoTrace):
		status = http.StatusNotFound
	case errors.Is(err, series.ErrStepOutOfRange):
		status = http.StatusBadRequest
	default:
		h.logger.Errorw("request failed", "error", err)
	}
	h.fail(w, status, err.Error())
}

// scenario looks up the scenario named in the route, writing a 404 when it
// is unknown.
func (h *Handlers) scenario(w http.ResponseWriter, req *http.Request) (string, *analysis.Traces, bool) {
	name := mux.Vars(req)["name"]
	tr, ok := h.results.Traces[name]
	if !ok {
		h.fail(w, http.StatusNotFound, fmt.Sprintf("scenario not found: %s", name))
		return name, nil, false
	}
	return name, tr, true
}

// GetReport returns the full analysis report
func (h *Handlers) GetReport(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, h.results.Report)
}

// ListScenarios returns the analysed scenarios in name order
func (h *Handlers) ListScenarios(w http.ResponseWriter, req *http.Request) {
	out := make([]ScenarioSummary, 0, len(h.results.Report.Scenarios))
	for _, s := range h.results.Report.Scenarios {
		out = append(out, ScenarioSummary{
			Name:      s.Name,
			Records:   s.Records,
			Missing:   s.Missing,
			Truncated: s.Truncated,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	h.write(w, req, out)
}

func (h *Handlers) GetScenario(w http.ResponseWriter, req *http.Request) {
	name, _, ok := h.scenario(w, req)
	if !ok {
		return
	}
	rep, ok := h.results.Report.Scenario(name)
	if !ok {
		h.fail(w, http.StatusNotFound, fmt.Sprintf("scenario not found: %s", name))
		return
	}
	h.write(w, req, rep)
}

func (h *Handlers) GetMeanSeries(w http.ResponseWriter, req *http.Request) {
	_, tr, ok := h.scenario(w, req)
	if !ok {
		return
	}
	ms, err := h.analyzer.MeanSeries(tr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, req, ms)
}

// GetSnapshot returns the moments of one distribution record. Negative steps
// count from the end; ?fit=true adds a Gaussian fit.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, req *http.Request) {
	_, tr, ok := h.scenario(w, req)
	if !ok {
		return
	}

	step, err := strconv.Atoi(mux.Vars(req)["step"])
	if err != nil {
		h.fail(w, http.StatusBadRequest, "invalid step: "+mux.Vars(req)["step"])
		return
	}

	withFit := false
	if v := req.URL.Query().Get("fit"); v != "" {
		withFit, err = strconv.ParseBool(v)
		if err != nil {
			h.fail(w, http.StatusBadRequest, "invalid fit flag: "+v)
			return
		}
	}

	snap, err := h.analyzer.Snapshot(tr, step, withFit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, req, snap)
}

func (h *Handlers) GetDensity(w http.ResponseWriter, req *http.Request) {
	_, tr, ok := h.scenario(w, req)
	if !ok {
		return
	}
	d, err := h.analyzer.Density(tr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, req, d)
}

// GetComparison returns the evolving versus static comparison, if configured
func (h *Handlers) GetComparison(w http.ResponseWriter, req *http.Request) {
	if h.results.Report.Comparison == nil {
		h.fail(w, http.StatusNotFound, "no comparison configured")
		return
	}
	h.write(w, req, h.results.Report.Comparison)
}
