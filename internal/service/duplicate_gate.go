package service

import (
	"context"
	"sort"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/fingerprint"
	"earnings-service/internal/models"
	"earnings-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultDuplicateThreshold is the similarity above which two designs count as the same
const DefaultDuplicateThreshold = 0.85

// DuplicateGateConfig tunes the gate
type DuplicateGateConfig struct {
	Threshold float64
	// FailOpen accepts submissions while the fingerprint index is unavailable
	FailOpen bool
	Retry    RetryPolicy
}

// Match is an existing product whose fingerprint is too close to a submission
type Match struct {
	ProductID  int64   `json:"product_id"`
	Similarity float64 `json:"similarity"`
}

// DuplicateCheckResult is the gate's verdict
type DuplicateCheckResult struct {
	IsDuplicate bool    `json:"is_duplicate"`
	Matches     []Match `json:"matches"`
	Fingerprint string  `json:"fingerprint"`
	// FailedOpen is set when the index could not be read and the gate let the image through
	FailedOpen bool `json:"failed_open,omitempty"`
}

// DuplicateGate compares submitted images with every accepted design
type DuplicateGate struct {
	index    SubmissionStore
	images   ImageFetcher
	notifier Notifier
	cfg      DuplicateGateConfig
	logger   *zap.Logger
}

// NewDuplicateGate creates a duplicate gate
func NewDuplicateGate(index SubmissionStore, images ImageFetcher, notifier Notifier, cfg DuplicateGateConfig) *DuplicateGate {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultDuplicateThreshold
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	return &DuplicateGate{
		index:    index,
		images:   images,
		notifier: notifier,
		cfg:      cfg,
		logger:   util.Named("duplicate-gate"),
	}
}

// CheckDuplicate fingerprints imageBytes and compares it with the index.
// excludeProductID skips that product's own entry. When the image is not a
// duplicate and targetProductID is set, its fingerprint is stored under that product.
func (g *DuplicateGate) CheckDuplicate(ctx context.Context, imageBytes []byte, excludeProductID, targetProductID *int64) (*DuplicateCheckResult, error) {
	const op = "service.CheckDuplicate"

	ctx, span := util.StartSpan(ctx, "DuplicateGate.CheckDuplicate")
	defer span.End()

	if len(imageBytes) == 0 {
		return nil, apperr.Validation(op, "image is empty")
	}
	hash, err := fingerprint.Compute(imageBytes)
	if err != nil {
		util.DuplicateChecksTotal.WithLabelValues("invalid").Inc()
		return nil, apperr.Wrap(apperr.KindValidation, op, err)
	}
	span.SetAttributes(attribute.String("fingerprint", hash.String()))

	return g.checkHash(ctx, hash, excludeProductID, targetProductID)
}

// CheckImageReference fetches the referenced image and runs CheckDuplicate on it
func (g *DuplicateGate) CheckImageReference(ctx context.Context, reference string, excludeProductID, targetProductID *int64) (*DuplicateCheckResult, error) {
	data, err := g.fetch(ctx, reference)
	if err != nil {
		return nil, err
	}
	return g.CheckDuplicate(ctx, data, excludeProductID, targetProductID)
}

func (g *DuplicateGate) fetch(ctx context.Context, reference string) ([]byte, error) {
	const op = "service.FetchImage"
	if reference == "" {
		return nil, apperr.Validation(op, "image reference is required")
	}
	if g.images == nil {
		return nil, apperr.Configuration(op, "no image store configured")
	}
	return g.images.FetchImageBytes(ctx, reference)
}

func (g *DuplicateGate) checkHash(ctx context.Context, hash fingerprint.Hash, excludeProductID, targetProductID *int64) (*DuplicateCheckResult, error) {
	result := &DuplicateCheckResult{Fingerprint: hash.String(), Matches: []Match{}}

	start := time.Now()
	var entries []models.FingerprintEntry
	err := retry(ctx, g.cfg.Retry, g.logger, "list_fingerprints", func(ctx context.Context) error {
		var err error
		entries, err = g.index.ListFingerprints(ctx)
		return err
	})
	if err != nil {
		return g.indexUnavailable(result, err)
	}

	for _, e := range entries {
		if excludeProductID != nil && e.ProductID == *excludeProductID {
			continue
		}
		sim := fingerprint.Similarity(hash, fingerprint.FromInt64(e.Fingerprint))
		if sim > g.cfg.Threshold {
			result.Matches = append(result.Matches, Match{ProductID: e.ProductID, Similarity: sim})
		}
	}
	util.DuplicateCheckLatency.Observe(time.Since(start).Seconds())

	sort.Slice(result.Matches, func(i, j int) bool {
		if result.Matches[i].Similarity != result.Matches[j].Similarity {
			return result.Matches[i].Similarity > result.Matches[j].Similarity
		}
		return result.Matches[i].ProductID < result.Matches[j].ProductID
	})
	result.IsDuplicate = len(result.Matches) > 0

	if result.IsDuplicate {
		util.DuplicateChecksTotal.WithLabelValues("duplicate").Inc()
		g.logger.Info("Duplicate design detected",
			zap.String("fingerprint", result.Fingerprint),
			zap.Int64("best_match", result.Matches[0].ProductID),
			zap.Float64("similarity", result.Matches[0].Similarity))
		return result, nil
	}
	util.DuplicateChecksTotal.WithLabelValues("unique").Inc()

	if targetProductID != nil {
		err := retry(ctx, g.cfg.Retry, g.logger, "upsert_fingerprint", func(ctx context.Context) error {
			return g.index.UpsertFingerprint(ctx, *targetProductID, hash.Int64())
		})
		if err != nil {
			return g.indexUnavailable(result, err)
		}
	}
	return result, nil
}

// indexUnavailable applies the failure policy when the index cannot be used
func (g *DuplicateGate) indexUnavailable(result *DuplicateCheckResult, err error) (*DuplicateCheckResult, error) {
	if !apperr.Is(err, apperr.KindStorage) || !g.cfg.FailOpen {
		util.DuplicateChecksTotal.WithLabelValues("error").Inc()
		g.logger.Error("Fingerprint index unavailable, rejecting check", zap.Error(err))
		return nil, err
	}

	util.DuplicateGateFailOpenTotal.Inc()
	g.logger.Warn("Fingerprint index unavailable, letting submission through",
		zap.String("fingerprint", result.Fingerprint),
		zap.Error(err))
	result.IsDuplicate = false
	result.Matches = []Match{}
	result.FailedOpen = true
	return result, nil
}

// SubmitDesignRequest is a designer's upload for an existing product listing.
// ProductID is required: an accepted design is indexed under it.
type SubmitDesignRequest struct {
	DesignerID     int64  `json:"designer_id" binding:"required,gt=0"`
	ProductID      *int64 `json:"product_id" binding:"required,gt=0"`
	ImageReference string `json:"image_reference"`
	// ImageBytes, when set, is used instead of fetching ImageReference
	ImageBytes []byte `json:"-"`
}

// SubmitDesignResponse carries the stored submission and the gate's verdict
type SubmitDesignResponse struct {
	Submission *models.DesignSubmission `json:"submission"`
	Check      *DuplicateCheckResult    `json:"check"`
}

// SubmitDesign runs a design through the gate and records the submission
// with its final status. Nothing is written when the gate cannot decide. A
// duplicate is stored as rejected_duplicate and reported as a ConflictError
// whose details hold the response.
func (g *DuplicateGate) SubmitDesign(ctx context.Context, req *SubmitDesignRequest) (*SubmitDesignResponse, error) {
	const op = "service.SubmitDesign"

	ctx, span := util.StartSpan(ctx, "DuplicateGate.SubmitDesign",
		attribute.Int64("designer_id", req.DesignerID))
	defer span.End()

	if req.DesignerID <= 0 {
		return nil, apperr.Validation(op, "designer id must be positive")
	}
	if req.ProductID == nil || *req.ProductID <= 0 {
		return nil, apperr.Validation(op, "product id is required")
	}

	data := req.ImageBytes
	if len(data) == 0 {
		var err error
		if data, err = g.fetch(ctx, req.ImageReference); err != nil {
			return nil, err
		}
	}
	hash, err := fingerprint.Compute(data)
	if err != nil {
		util.DuplicateChecksTotal.WithLabelValues("invalid").Inc()
		return nil, apperr.Wrap(apperr.KindValidation, op, err)
	}

	// the fingerprint upsert is keyed by product, so a retry after a failed
	// insert below sees its own entry excluded and reaches the same verdict
	check, err := g.checkHash(ctx, hash, req.ProductID, req.ProductID)
	if err != nil {
		return nil, err
	}

	status := models.SubmissionStatusAccepted
	if check.IsDuplicate {
		status = models.SubmissionStatusRejectedDuplicate
	}
	sub := &models.DesignSubmission{
		DesignerID:     req.DesignerID,
		ProductID:      req.ProductID,
		ImageReference: req.ImageReference,
		Fingerprint:    hash.Int64(),
		Status:         status,
	}
	err = retry(ctx, g.cfg.Retry, g.logger, "create_submission", func(ctx context.Context) error {
		return g.index.CreateSubmission(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	resp := &SubmitDesignResponse{Submission: sub, Check: check}
	if !check.IsDuplicate {
		g.logger.Info("Design accepted",
			zap.Int64("submission_id", sub.ID),
			zap.Int64("designer_id", sub.DesignerID),
			zap.Int64("product_id", *sub.ProductID))
		return resp, nil
	}

	matched := make([]int64, len(check.Matches))
	for i, m := range check.Matches {
		matched[i] = m.ProductID
	}
	event := &models.DesignRejectedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeDesignRejected,
			Timestamp: time.Now(),
		},
		SubmissionID: sub.ID,
		DesignerID:   sub.DesignerID,
		MatchedIDs:   matched,
	}
	if g.notifier != nil {
		if err := g.notifier.PublishDesignRejected(ctx, event); err != nil {
			g.logger.Error("Failed to publish DesignRejected event", zap.Error(err))
		}
	}

	return resp, apperr.Conflict(op, "design matches %d existing product(s)", len(check.Matches)).WithDetails(resp)
}
