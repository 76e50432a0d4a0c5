// Package client talks to the two prediction service endpoints: the live
// prediction snapshot and the weekly report. Requests are never retried
// here; for the live feed the next poll tick is the retry.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/spyhelmet/helmetmon/internal/config"
	"github.com/spyhelmet/helmetmon/internal/models"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Endpoint, e.StatusCode)
}

// Client is a thin resty wrapper bound to one prediction service.
type Client struct {
	http        *resty.Client
	predictPath string
	reportPath  string
	logger      *zap.Logger
}

// New creates a client from the server and poll configuration.
func New(cfg *config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(cfg.Server.URL).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{
		http:        httpClient,
		predictPath: cfg.Server.PredictPath,
		reportPath:  cfg.Server.ReportPath,
		logger:      logger,
	}
}

// FetchPrediction returns the raw body of the live prediction endpoint.
// The caller bounds the request through ctx.
func (c *Client) FetchPrediction(ctx context.Context) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.predictPath)
	if err != nil {
		return nil, fmt.Errorf("fetch prediction: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{Endpoint: c.predictPath, StatusCode: resp.StatusCode()}
	}
	return resp.Body(), nil
}

// FetchReport fetches and decodes the weekly report. The caller bounds
// the request through ctx.
func (c *Client) FetchReport(ctx context.Context) (models.Report, error) {
	c.logger.Info("Fetching weekly report", zap.String("path", c.reportPath))

	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.reportPath)
	if err != nil {
		return models.Report{}, fmt.Errorf("fetch report: %w", err)
	}
	if !resp.IsSuccess() {
		return models.Report{}, &StatusError{Endpoint: c.reportPath, StatusCode: resp.StatusCode()}
	}

	var payload models.ReportPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return models.Report{}, fmt.Errorf("decode report: %w", err)
	}
	report, err := payload.Report()
	if err != nil {
		return models.Report{}, fmt.Errorf("decode report: %w", err)
	}

	c.logger.Info("Weekly report retrieved",
		zap.String("worker_id", report.WorkerID),
		zap.String("risk_level", string(report.RiskLevel)))
	return report, nil
}
