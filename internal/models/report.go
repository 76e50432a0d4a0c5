package models

import (
	"fmt"
	"strings"
)

// RiskLevel is the weekly fatigue risk category.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
)

// ParseRiskLevel accepts the three levels case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow, nil
	case RiskModerate:
		return RiskModerate, nil
	case RiskHigh:
		return RiskHigh, nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

// Break is one recommended rest break, shift-relative wall-clock times.
type Break struct {
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Report is the weekly manager report document.
type Report struct {
	WorkerID                    string    `json:"worker_id"`
	RiskLevel                   RiskLevel `json:"risk_level"`
	PredictedFatigueDay8Minutes float64   `json:"predicted_fatigue_day8_minutes"`
	RecommendedShift            string    `json:"recommended_shift"`
	RecommendedBreaks           []Break   `json:"recommended_breaks"`
	Text                        string    `json:"report_text"`
}

// ReportPayload is the wire shape returned by the weekly report endpoint.
type ReportPayload struct {
	WorkerID             string  `json:"worker_id"`
	RiskLevel            string  `json:"risk_level"`
	PredictedFatigueDay8 float64 `json:"predicted_fatigue_day8"`
	RecommendedShift     string  `json:"recommended_shift"`
	RecommendedBreaks    []struct {
		Start       string `json:"start"`
		End         string `json:"end"`
		DurationMin int    `json:"duration_min"`
	} `json:"recommended_breaks"`
	WeeklyReport string `json:"weekly_report"`
}

// Report converts the wire payload, rejecting unknown risk levels.
func (p ReportPayload) Report() (Report, error) {
	risk, err := ParseRiskLevel(p.RiskLevel)
	if err != nil {
		return Report{}, err
	}
	r := Report{
		WorkerID:                    p.WorkerID,
		RiskLevel:                   risk,
		PredictedFatigueDay8Minutes: p.PredictedFatigueDay8,
		RecommendedShift:            p.RecommendedShift,
		RecommendedBreaks:           make([]Break, 0, len(p.RecommendedBreaks)),
		Text:                        p.WeeklyReport,
	}
	for _, b := range p.RecommendedBreaks {
		r.RecommendedBreaks = append(r.RecommendedBreaks, Break{
			Start:           b.Start,
			End:             b.End,
			DurationMinutes: b.DurationMin,
		})
	}
	return r, nil
}
