package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"docgate/internal/activity"
	"docgate/internal/core"
	"docgate/internal/entitlement"
	"docgate/internal/external"
	"docgate/internal/types"
)

// sizeLookupConcurrency bounds parallel HeadObject calls for merge.
const sizeLookupConcurrency = 4

// Entitlements admits feature requests and meters successful ones.
type Entitlements interface {
	Admit(ctx context.Context, p types.Principal, f types.Feature, fileBytes int64) (entitlement.Admission, error)
	RecordUse(ctx context.Context, p types.Principal, f types.Feature, metadata map[string]any) error
}

// FileSizer reports the stored size of an uploaded file.
type FileSizer interface {
	ObjectSize(ctx context.Context, key string) (int64, error)
}

// featureRequest is implemented by every feature DTO.
type featureRequest interface {
	inputFileIDs() []string
	// normalize applies defaults and sanitizes output names in place.
	normalize()
	outputName() string
}

type RedactionArea struct {
	Page   int     `json:"page" validate:"gte=1"`
	X      float64 `json:"x" validate:"gte=0"`
	Y      float64 `json:"y" validate:"gte=0"`
	Width  float64 `json:"width" validate:"gt=0"`
	Height float64 `json:"height" validate:"gt=0"`
}

type RedactionRequest struct {
	FileID     string          `json:"fileId" validate:"required,max=200"`
	OutputName string          `json:"outputName,omitempty"`
	Areas      []RedactionArea `json:"areas" validate:"required,min=1,max=1000,dive"`
	Settings   map[string]any  `json:"settings,omitempty"`
}

func (q *RedactionRequest) inputFileIDs() []string { return []string{q.FileID} }
func (q *RedactionRequest) normalize() { q.OutputName = SanitizeOutputName(q.OutputName, "redacted.pdf") }
func (q *RedactionRequest) outputName() string { return q.OutputName }

type DetectPIIRequest struct {
	FileID              string   `json:"fileId" validate:"required,max=200"`
	Categories          []string `json:"categories" validate:"required,min=1,max=20,dive,required,max=50"`
	ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty" validate:"omitempty,gte=0,lte=1"`
}

func (q *DetectPIIRequest) inputFileIDs() []string { return []string{q.FileID} }
func (q *DetectPIIRequest) outputName() string { return "" }

func (q *DetectPIIRequest) normalize() {
	if q.ConfidenceThreshold == nil {
		def := 0.7
		q.ConfidenceThreshold = &def
	}
}

type MergeRequest struct {
	FileIDs    []string `json:"fileIds" validate:"required,min=2,max=50,dive,required,max=200"`
	OutputName string   `json:"outputName,omitempty"`
}

func (q *MergeRequest) inputFileIDs() []string { return q.FileIDs }
func (q *MergeRequest) normalize() { q.OutputName = SanitizeOutputName(q.OutputName, "merged.pdf") }
func (q *MergeRequest) outputName() string { return q.OutputName }

type ConvertRequest struct {
	FileID     string `json:"fileId" validate:"required,max=200"`
	OutputName string `json:"outputName,omitempty"`
	defaultOut string
}

func (q *ConvertRequest) inputFileIDs() []string { return []string{q.FileID} }
func (q *ConvertRequest) normalize() { q.OutputName = SanitizeOutputName(q.OutputName, q.defaultOut) }
func (q *ConvertRequest) outputName() string { return q.OutputName }

type CompressRequest struct {
	FileID           string `json:"fileId" validate:"required,max=200"`
	CompressionLevel string `json:"compressionLevel" validate:"required,oneof=low medium high"`
	OutputName       string `json:"outputName,omitempty"`
}

func (q *CompressRequest) inputFileIDs() []string { return []string{q.FileID} }
func (q *CompressRequest) normalize() { q.OutputName = SanitizeOutputName(q.OutputName, "compressed.pdf") }
func (q *CompressRequest) outputName() string { return q.OutputName }

// SplitRequest covers the four split modes; exactly the field for the
// chosen mode is required.
type SplitRequest struct {
	FileID         string `json:"fileId" validate:"required,max=200"`
	SplitByPattern string `json:"splitByPattern,omitempty" validate:"omitempty,max=50"`
	SplitByRange   string `json:"splitByRange,omitempty" validate:"omitempty,max=500"`
	ExtractPages   string `json:"extractPages,omitempty" validate:"omitempty,max=500"`
	MaxSizeKB      int    `json:"maxSizeKB,omitempty" validate:"omitempty,gt=0"`
	OutputName     string `json:"outputName,omitempty"`
}

func (q *SplitRequest) inputFileIDs() []string { return []string{q.FileID} }
func (q *SplitRequest) normalize() { q.OutputName = SanitizeOutputName(q.OutputName, "split") }
func (q *SplitRequest) outputName() string { return q.OutputName }

// modeSet reports whether the field for op is populated.
func (q *SplitRequest) modeSet(op external.EngineOperation) bool {
	switch op {
	case external.EngineSplitPattern:
		return q.SplitByPattern != ""
	case external.EngineSplitRange:
		return q.SplitByRange != ""
	case external.EngineSplitExtract:
		return q.ExtractPages != ""
	case external.EngineSplitSize:
		return q.MaxSizeKB > 0
	}
	return false
}

// featureRoute binds an endpoint to its feature and engine operation.
type featureRoute struct {
	path    string
	feature types.Feature
	op      external.EngineOperation
	action  string
	newReq  func() featureRequest
}

func featureRoutes() []featureRoute {
	split := func() featureRequest { return &SplitRequest{} }
	return []featureRoute{
		{"/redaction", types.FeatureRedaction, external.EngineRedact, "redact", func() featureRequest { return &RedactionRequest{} }},
		{"/redaction/detect-pii", types.FeatureAutoDetectPII, external.EngineDetectPII, "detect_pii", func() featureRequest { return &DetectPIIRequest{} }},
		{"/merge", types.FeatureMerge, external.EngineMerge, "merge", func() featureRequest { return &MergeRequest{} }},
		{"/convert/pdf-to-word", types.FeatureConvert, external.EnginePDFToWord, "pdf_to_word", func() featureRequest { return &ConvertRequest{defaultOut: "converted.docx"} }},
		{"/convert/pdf-to-powerpoint", types.FeatureConvert, external.EnginePDFToPowerPoint, "pdf_to_powerpoint", func() featureRequest { return &ConvertRequest{defaultOut: "converted.pptx"} }},
		{"/compress", types.FeatureCompress, external.EngineCompress, "compress", func() featureRequest { return &CompressRequest{} }},
		{"/split/pattern", types.FeatureSplit, external.EngineSplitPattern, "split_pattern", split},
		{"/split/range", types.FeatureSplit, external.EngineSplitRange, "split_range", split},
		{"/split/extract", types.FeatureSplit, external.EngineSplitExtract, "split_extract", split},
		{"/split/size", types.FeatureSplit, external.EngineSplitSize, "split_size", split},
	}
}

// FeatureHandler is the feature gateway: it sizes the input files, admits
// the request, forwards it to the PDF engine and meters the result.
type FeatureHandler struct {
	entitlements Entitlements
	engine       external.PDFEngine
	files        FileSizer
	activity     activity.Recorder
	cookies      CookieConfig
	validator    *core.Validator
	clock        types.Clock
	logger       *slog.Logger
}

// FeatureHandlerConfig holds the dependencies of a FeatureHandler.
type FeatureHandlerConfig struct {
	Entitlements Entitlements
	Engine       external.PDFEngine
	Files        FileSizer
	Activity     activity.Recorder
	Cookies      CookieConfig
	Validator    *core.Validator
	Clock        types.Clock
	Logger       *slog.Logger
}

func NewFeatureHandler(cfg FeatureHandlerConfig) *FeatureHandler {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &FeatureHandler{
		entitlements: cfg.Entitlements,
		engine:       cfg.Engine,
		files:        cfg.Files,
		activity:     cfg.Activity,
		cookies:      cfg.Cookies,
		validator:    cfg.Validator,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
}

func (h *FeatureHandler) RegisterRoutes(r chi.Router) {
	for _, route := range featureRoutes() {
		r.Post(route.path, h.serve(route))
	}
}

func (h *FeatureHandler) serve(route featureRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p, err := principal(r)
		if err != nil {
			core.Error(w, r, err)
			return
		}

		req := route.newReq()
		if err := core.DecodeJSON(w, r, req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
		if s, ok := req.(*SplitRequest); ok && !s.modeSet(route.op) {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "split mode parameter is required", nil))
			return
		}
		req.normalize()

		largest, err := h.largestInput(ctx, req.inputFileIDs())
		if err != nil {
			core.Error(w, r, err)
			return
		}

		adm, err := h.entitlements.Admit(ctx, p, route.feature, largest)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		if adm.Guest != nil && adm.Guest.ID != p.GuestSessionID {
			h.cookies.set(w, core.GuestCookieName, adm.Guest.ID, adm.Guest.ExpiresAt.Sub(h.clock.Now()))
		}
		if !adm.Decision.Allowed {
			core.Error(w, r, adm.Decision.Err())
			return
		}
		if adm.Guest != nil {
			p.GuestSessionID = adm.Guest.ID
		}

		start := h.clock.Now()
		result, err := h.engine.Process(ctx, route.op, req)
		elapsed := h.clock.Now().Sub(start)

		entry := &types.Activity{
			UserID:         p.UserID,
			GuestSessionID: p.GuestSessionID,
			Type:           route.feature,
			Action:         route.action,
			FileName:       req.outputName(),
			DurationMs:     elapsed.Milliseconds(),
			Metadata:       map[string]any{"fileIds": req.inputFileIDs(), "inputBytes": largest},
		}
		if err != nil {
			entry.Status = types.ActivityFailed
			entry.ErrorMessage = err.Error()
			h.recordActivity(ctx, entry)
			core.Error(w, r, err)
			return
		}

		if err := h.entitlements.RecordUse(ctx, p, route.feature, map[string]any{"action": route.action}); err != nil {
			types.LoggerFromContext(ctx).ErrorContext(ctx, "failed to record usage",
				"feature", string(route.feature),
				"error", err,
			)
		}
		entry.Status = types.ActivitySuccess
		h.recordActivity(ctx, entry)

		core.JSON(w, r, http.StatusOK, result)
	}
}

// largestInput returns the size of the biggest input file. Missing files
// fail the request with not_found_file.
func (h *FeatureHandler) largestInput(ctx context.Context, fileIDs []string) (int64, error) {
	sizes := make([]int64, len(fileIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sizeLookupConcurrency)
	for i, id := range fileIDs {
		g.Go(func() error {
			n, err := h.files.ObjectSize(gctx, external.UploadKey(id))
			if err != nil {
				return err
			}
			sizes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	var largest int64
	for _, n := range sizes {
		largest = max(largest, n)
	}
	return largest, nil
}

func (h *FeatureHandler) recordActivity(ctx context.Context, a *types.Activity) {
	if h.activity == nil {
		return
	}
	if err := h.activity.Record(ctx, a); err != nil {
		types.LoggerFromContext(ctx).WarnContext(ctx, "failed to record activity",
			"action", a.Action,
			"error", err,
		)
	}
}
