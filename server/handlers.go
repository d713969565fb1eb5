package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/aluiziolira/resale-scout/analyzer"
	"github.com/aluiziolira/resale-scout/lookup"
	"github.com/aluiziolira/resale-scout/models"
	"github.com/aluiziolira/resale-scout/parser"
)

// flexPrice accepts a JSON number, a numeric string such as "$12.50", an
// empty string or null.
type flexPrice struct {
	value *float64
}

func (p *flexPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		p.value = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			p.value = nil
			return nil
		}
		v := parser.FirstAmount(s)
		if math.IsNaN(v) {
			return fmt.Errorf("manualPrice %q is not a number", s)
		}
		p.value = &v
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("manualPrice: %w", err)
	}
	p.value = &v
	return nil
}

type analyzeBody struct {
	URL         string    `json:"url"`
	Cost        float64   `json:"cost"`
	FeesPct     float64   `json:"feesPct"`
	Shipping    float64   `json:"shipping"`
	Other       float64   `json:"other"`
	ManualPrice flexPrice `json:"manualPrice"`
}

func (b analyzeBody) request() models.AnalyzeRequest {
	return models.AnalyzeRequest{
		URL: strings.TrimSpace(b.URL),
		Costs: models.CostInputs{
			Cost:     b.Cost,
			FeesPct:  b.FeesPct,
			Shipping: b.Shipping,
			Other:    b.Other,
		},
		ManualPrice: b.ManualPrice.value,
	}
}

type lookupBody struct {
	Code string `json:"code"`
}

type healthBody struct {
	Status       string `json:"status"`
	CacheEntries int    `json:"cacheEntries"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, healthBody{Status: "ok", CacheEntries: s.analyzer.CacheLen()})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeBody
	if err := decodeBody(w, r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req := body.request()
	if req.URL == "" {
		s.respondError(w, http.StatusBadRequest, "Missing URL", "")
		return
	}

	report, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.respondAnalysisError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) respondAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		s.respondError(w, http.StatusGatewayTimeout, "request timed out", "")
		return
	}

	reason := err.Error()
	var ae *analyzer.AnalysisError
	if errors.As(err, &ae) {
		reason = ae.Reason
	}

	switch analyzer.KindOf(err) {
	case analyzer.KindValidation:
		s.respondError(w, http.StatusBadRequest, reason, "")
	case analyzer.KindEmptyContent:
		s.respondError(w, http.StatusBadGateway, "Empty response from target (or proxy)", "")
	case analyzer.KindFetch:
		s.respondError(w, http.StatusBadGateway, "Fetch failed", err.Error())
	default:
		s.logger.Error("analysis failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		s.respondError(w, http.StatusInternalServerError, "Analysis failed", err.Error())
	}
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var body lookupBody
	if err := decodeBody(w, r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	res, err := s.lookup.Lookup(r.Context(), body.Code)
	switch {
	case errors.Is(err, lookup.ErrInvalidCode):
		s.respondError(w, http.StatusBadRequest, "Invalid or missing barcode", "")
	case err != nil:
		s.logger.Error("lookup failed", slog.String("code", body.Code), slog.Any("error", err))
		s.respondError(w, http.StatusInternalServerError, "Lookup failed", err.Error())
	default:
		s.respondJSON(w, http.StatusOK, res)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}
