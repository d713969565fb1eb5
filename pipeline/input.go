package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aluiziolira/resale-scout/models"
)

// ReadRequests parses listings, one per line, as
// url[,cost[,feesPct[,shipping[,other[,manualPrice]]]]]. Blank fields take the
// value from defaults. Lines starting with # are ignored.
func ReadRequests(r io.Reader, defaults models.CostInputs) ([]models.AnalyzeRequest, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var reqs []models.AnalyzeRequest
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return reqs, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		req, err := parseRecord(record, defaults)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if req.URL == "" {
			continue
		}
		reqs = append(reqs, req)
	}
}

func parseRecord(record []string, defaults models.CostInputs) (models.AnalyzeRequest, error) {
	if len(record) > 6 {
		return models.AnalyzeRequest{}, fmt.Errorf("expected at most 6 fields, got %d", len(record))
	}
	req := models.AnalyzeRequest{Costs: defaults}
	targets := []*float64{&req.Costs.Cost, &req.Costs.FeesPct, &req.Costs.Shipping, &req.Costs.Other}
	names := []string{"cost", "feesPct", "shipping", "other", "manualPrice"}

	for i, field := range record {
		field = strings.TrimSpace(field)
		if i == 0 {
			req.URL = field
			continue
		}
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return models.AnalyzeRequest{}, fmt.Errorf("%s: %w", names[i-1], err)
		}
		if i == 5 {
			req.ManualPrice = &v
			continue
		}
		*targets[i-1] = v
	}
	return req, nil
}
