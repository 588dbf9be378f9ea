package server

import (
	"context"
	"fmt"
	"time"

	"docvet/internal/logging"
	"docvet/internal/store"
	"docvet/internal/types"
)

// reviewValidations moves the requested records to approved or rejected in
// one transaction. Found records update; missing ids become per-id error
// strings. A database failure rolls the whole batch back, leaving the
// success count at zero.
func (s *Server) reviewValidations(ctx context.Context, ids []string, target types.ValidationStatus, reason string) (int, []string, error) {
	errs := []string{}
	if len(ids) == 0 {
		return 0, errs, nil
	}

	updated := 0
	err := s.store.WithSession(ctx, func(sess *store.Session) error {
		records, err := sess.GetValidationsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[string]*types.ValidationRecord, len(records))
		for _, r := range records {
			byID[r.ID] = r
		}
		for _, id := range ids {
			rec, ok := byID[id]
			if !ok {
				errs = append(errs, fmt.Sprintf("Validation %s not found", id))
				continue
			}
			rec.Status = target
			if target == types.StatusRejected && reason != "" {
				rec.AppendNote("Rejected: " + reason)
			}
			rec.UpdatedAt = types.Now()
			if err := sess.UpdateValidation(ctx, rec); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return updated, errs, nil
}

func (s *Server) handleApprove(ctx context.Context, params map[string]any) (any, error) {
	ids, err := idList(params, "ids")
	if err != nil {
		return nil, err
	}
	approved, errs, err := s.reviewValidations(ctx, ids, types.StatusApproved, "")
	if err != nil {
		return nil, err
	}
	logging.Server("approve: %d approved, %d failed", approved, len(errs))
	return map[string]any{
		"success":        true,
		"approved_count": approved,
		"failed_count":   len(errs),
		"errors":         errs,
	}, nil
}

func (s *Server) handleReject(ctx context.Context, params map[string]any) (any, error) {
	ids, err := idList(params, "ids")
	if err != nil {
		return nil, err
	}
	reason := stringOr(params, "reason", "")
	rejected, errs, err := s.reviewValidations(ctx, ids, types.StatusRejected, reason)
	if err != nil {
		return nil, err
	}
	logging.Server("reject: %d rejected, %d failed", rejected, len(errs))
	return map[string]any{
		"success":        true,
		"rejected_count": rejected,
		"failed_count":   len(errs),
		"errors":         errs,
	}, nil
}

// bulkReview runs the same review contract over explicit batches to bound
// transaction size.
func (s *Server) bulkReview(ctx context.Context, params map[string]any, target types.ValidationStatus) (any, error) {
	ids, err := idList(params, "ids")
	if err != nil {
		return nil, err
	}
	batchSize := intOr(params, "batch_size", 100)
	if batchSize <= 0 {
		return nil, types.NewInvalidParams("Parameter batch_size must be positive")
	}
	reason := stringOr(params, "reason", "")

	start := time.Now()
	updated := 0
	errs := []string{}
	for begin := 0; begin < len(ids); begin += batchSize {
		end := begin + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		n, batchErrs, err := s.reviewValidations(ctx, ids[begin:end], target, reason)
		if err != nil {
			return nil, err
		}
		updated += n
		errs = append(errs, batchErrs...)
	}

	countKey := "approved_count"
	if target == types.StatusRejected {
		countKey = "rejected_count"
	}
	return map[string]any{
		"success":            true,
		countKey:             updated,
		"failed_count":       len(errs),
		"errors":             errs,
		"total":              len(ids),
		"processing_time_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

func (s *Server) handleBulkApprove(ctx context.Context, params map[string]any) (any, error) {
	return s.bulkReview(ctx, params, types.StatusApproved)
}

func (s *Server) handleBulkReject(ctx context.Context, params map[string]any) (any, error) {
	return s.bulkReview(ctx, params, types.StatusRejected)
}
