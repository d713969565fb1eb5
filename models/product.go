// Package models defines data structures shared by the extraction pipeline.
package models

import "math"

// NoTitle is reported when no title could be extracted.
const NoTitle = "No title found"

// PriceSource names the extraction step that produced a price.
type PriceSource string

const (
	PriceFromMeta             PriceSource = "meta"
	PriceFromJSONLD           PriceSource = "json-ld"
	PriceFromSelector         PriceSource = "selector"
	PriceFromPageText         PriceSource = "page-text"
	PriceFromIdentifierSearch PriceSource = "identifier-search"
	PriceFromManual           PriceSource = "manual"
)

// LowConfidence reports whether the price came from a free-text heuristic
// rather than structured data or a dedicated price container.
func (s PriceSource) LowConfidence() bool {
	return s == PriceFromPageText || s == PriceFromIdentifierSearch
}

// ProductExtraction is what a site scraper pulls out of a product page.
// Fields that could not be determined are left empty or nil.
type ProductExtraction struct {
	Title       string
	Image       string
	Price       *float64
	PriceSource PriceSource
	Identifier  string
	Source      string
}

// SetPrice stores v when it is a finite, non-negative number and reports
// whether it was accepted.
func (e *ProductExtraction) SetPrice(v float64, src PriceSource) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return false
	}
	e.Price = &v
	e.PriceSource = src
	return true
}

// CostInputs are the seller's costs. FeesPct is a percentage of the sale price.
type CostInputs struct {
	Cost     float64 `json:"cost"`
	FeesPct  float64 `json:"feesPct"`
	Shipping float64 `json:"shipping"`
	Other    float64 `json:"other"`
}

// AnalyzeRequest is a validated request to analyze one listing.
type AnalyzeRequest struct {
	URL   string
	Costs CostInputs
	// ManualPrice is used only when no price can be extracted.
	ManualPrice *float64
}

// ProfitReport is the response for one analyzed listing. NetProfit,
// MarginPct and a non-zero Score are either all computed or all absent.
type ProfitReport struct {
	URL             string      `json:"url"`
	Site            string      `json:"site"`
	Title           string      `json:"title"`
	Image           string      `json:"image,omitempty"`
	Price           string      `json:"price"`
	PriceNum        *float64    `json:"priceNum,omitempty"`
	NetProfit       *float64    `json:"netProfit,omitempty"`
	MarginPct       *float64    `json:"marginPct,omitempty"`
	Score           int         `json:"score"`
	Identifier      string      `json:"identifier,omitempty"`
	Source          string      `json:"source"`
	PriceSource     PriceSource `json:"priceSource,omitempty"`
	LowConfidence   bool        `json:"lowConfidence,omitempty"`
	ManualPriceUsed bool        `json:"manualPriceUsed,omitempty"`
}

// Clone returns a copy of r that shares no pointers with it.
func (r ProfitReport) Clone() ProfitReport {
	r.PriceNum = cloneFloat(r.PriceNum)
	r.NetProfit = cloneFloat(r.NetProfit)
	r.MarginPct = cloneFloat(r.MarginPct)
	return r
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
