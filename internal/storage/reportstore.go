package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/interfaces"
	"github.com/finlens/finlens/internal/models"
)

// ReportStore persists report documents as one JSON file per report ID.
type ReportStore struct {
	blobs  BlobStore
	logger *common.Logger
}

// NewReportStore creates a report store over the given blob store.
func NewReportStore(logger *common.Logger, blobs BlobStore) *ReportStore {
	return &ReportStore{blobs: blobs, logger: logger}
}

func reportKey(id string) string {
	return id + ".json"
}

// SaveReport persists a report document under its identifier.
func (rs *ReportStore) SaveReport(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		return &models.StorageError{Op: "write", Key: "report", Err: fmt.Errorf("report ID is empty")}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return &models.StorageError{Op: "write", Key: report.ID, Err: err}
	}
	data = append(data, '\n')

	if err := rs.blobs.Put(ctx, reportKey(report.ID), data); err != nil {
		return &models.StorageError{Op: "write", Key: report.ID, Err: err}
	}

	rs.logger.Debug().Str("report_id", report.ID).Msg("Report saved")
	return nil
}

// GetReport loads a report by identifier.
func (rs *ReportStore) GetReport(ctx context.Context, id string) (*models.Report, error) {
	data, err := rs.blobs.Get(ctx, reportKey(id))
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, &models.StorageError{Op: "read", Key: id, Err: fmt.Errorf("report '%s' not found", id)}
		}
		return nil, &models.StorageError{Op: "read", Key: id, Err: err}
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, &models.StorageError{Op: "read", Key: id, Err: fmt.Errorf("corrupt report document: %w", err)}
	}
	return &report, nil
}

// HasReport checks whether a report document exists for the identifier.
func (rs *ReportStore) HasReport(ctx context.Context, id string) (bool, error) {
	ok, err := rs.blobs.Exists(ctx, reportKey(id))
	if err != nil {
		return false, &models.StorageError{Op: "stat", Key: id, Err: err}
	}
	return ok, nil
}

// ListReports returns the identifiers of all stored reports.
func (rs *ReportStore) ListReports(ctx context.Context) ([]string, error) {
	blobs, err := rs.blobs.List(ctx, "")
	if err != nil {
		return nil, &models.StorageError{Op: "list", Key: "reports", Err: err}
	}

	ids := make([]string, 0, len(blobs))
	for _, b := range blobs {
		if strings.HasSuffix(b.Key, ".json") {
			ids = append(ids, strings.TrimSuffix(b.Key, ".json"))
		}
	}
	return ids, nil
}

var _ interfaces.ReportStore = (*ReportStore)(nil)
