package vista

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/workbook"
)

// ImportRequest is one uploaded workbook.
type ImportRequest struct {
	TenantID uuid.UUID
	UserID   *uuid.UUID
	FileName string
	Data     []byte
}

// SheetSummary reports one processed sheet.
type SheetSummary struct {
	Sheet       string       `json:"sheet"`
	EntityType  EntityType   `json:"entity_type"`
	BatchID     uuid.UUID    `json:"batch_id"`
	Total       int          `json:"total"`
	New         int          `json:"new"`
	Updated     int          `json:"updated"`
	Skipped     int          `json:"skipped"`
	Failed      int          `json:"failed"`
	AutoMatched int          `json:"auto_matched"`
	Failures    []RowFailure `json:"failures,omitempty"`
	Error       string       `json:"error,omitempty"`
}

func (s *SheetSummary) counts() BatchCounts {
	return BatchCounts{
		Total:       s.Total,
		New:         s.New,
		Updated:     s.Updated,
		AutoMatched: s.AutoMatched,
		Skipped:     s.Skipped,
		Failed:      s.Failed,
	}
}

// ImportSummary reports a whole upload.
type ImportSummary struct {
	FileName        string         `json:"file_name"`
	SheetsFound     []string       `json:"sheets_found"`
	SheetsProcessed []string       `json:"sheets_processed"`
	Sheets          []SheetSummary `json:"sheets"`
	Error           string         `json:"error,omitempty"`
}

// Importer runs workbook uploads through batches, upserts and optional
// auto-matching.
type Importer struct {
	layout    *Layout
	batches   *BatchManager
	upserter  *Upserter
	matcher   *AutoMatcher
	autoMatch bool
}

// NewImporter creates an Importer. matcher may be nil when autoMatch is off.
func NewImporter(layout *Layout, batches *BatchManager, upserter *Upserter, matcher *AutoMatcher, autoMatch bool) *Importer {
	return &Importer{layout: layout, batches: batches, upserter: upserter, matcher: matcher, autoMatch: autoMatch && matcher != nil}
}

// Import processes every recognized sheet of the workbook, one batch per
// sheet. It returns a *SheetError when no sheet is recognized. When the
// database fails mid-sheet the partial summary is returned with the error.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (*ImportSummary, error) {
	wb, err := workbook.OpenBytes(req.Data)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidWorkbook, "vista: %s: %v", req.FileName, err)
	}

	sum := &ImportSummary{
		FileName:        req.FileName,
		SheetsFound:     wb.SheetNames(),
		SheetsProcessed: []string{},
		Sheets:          []SheetSummary{},
	}

	type target struct {
		sheet string
		t     EntityType
	}
	var targets []target
	for _, name := range sum.SheetsFound {
		if t, ok := im.layout.Recognize(name); ok {
			targets = append(targets, target{sheet: name, t: t})
		}
	}
	if len(targets) == 0 {
		return nil, &SheetError{Found: sum.SheetsFound}
	}

	for _, tg := range targets {
		ss, err := im.importSheet(ctx, wb, req, tg.sheet, tg.t)
		if ss != nil {
			sum.Sheets = append(sum.Sheets, *ss)
			sum.SheetsProcessed = append(sum.SheetsProcessed, tg.sheet)
		}
		if err != nil {
			sum.Error = fmt.Sprintf("sheet %q aborted: %s", tg.sheet, rootMessage(err))
			return sum, err
		}
	}
	return sum, nil
}

func (im *Importer) importSheet(ctx context.Context, wb *workbook.Workbook, req ImportRequest, sheet string, t EntityType) (*SheetSummary, error) {
	d, err := Describe(t)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("entity_type", string(t)),
		zap.String("sheet", sheet),
	)

	sh, err := wb.Read(sheet, im.layout.HeaderMatcher(t))
	if err != nil {
		return nil, err
	}

	batch, err := im.batches.Create(ctx, BatchMeta{
		TenantID:   req.TenantID,
		FileName:   req.FileName,
		SheetName:  sheet,
		EntityType: t,
		UploadedBy: req.UserID,
	})
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("batch_id", batch.ID.String()))

	mapped := im.layout.Map(d, sh, wb.Date1904())
	ss := &SheetSummary{
		Sheet:      sheet,
		EntityType: t,
		BatchID:    batch.ID,
		Total:      mapped.Total,
		Skipped:    mapped.Skipped,
	}

	res, upErr := im.upserter.Upsert(ctx, d, req.TenantID, batch.ID, mapped.Rows)
	ss.New, ss.Updated, ss.Failed, ss.Failures = res.New, res.Updated, res.Failed, res.Failures
	if upErr != nil {
		ss.Error = rootMessage(upErr)
		log.Error("vista: sheet aborted", zap.Error(upErr))
		if err := im.batches.Fail(ctx, batch.ID, ss.counts(), ss.Error); err != nil {
			log.Error("vista: failed to record batch failure", zap.Error(err))
		}
		return ss, upErr
	}

	if im.autoMatch && ss.New+ss.Updated > 0 {
		mc, err := im.matcher.Run(ctx, req.TenantID, t, &batch.ID)
		ss.AutoMatched = mc.Matched
		if err != nil {
			ss.Error = "auto-match: " + rootMessage(err)
			log.Error("vista: auto-match after upload failed", zap.Error(err))
			if ferr := im.batches.Fail(ctx, batch.ID, ss.counts(), ss.Error); ferr != nil {
				log.Error("vista: failed to record batch failure", zap.Error(ferr))
			}
			return ss, err
		}
	}

	if err := im.batches.Complete(ctx, batch.ID, ss.counts()); err != nil {
		log.Error("vista: failed to complete batch", zap.Error(err))
	}
	log.Info("vista: sheet imported",
		zap.Int("total", ss.Total), zap.Int("new", ss.New), zap.Int("updated", ss.Updated),
		zap.Int("skipped", ss.Skipped), zap.Int("failed", ss.Failed), zap.Int("auto_matched", ss.AutoMatched))
	return ss, nil
}
