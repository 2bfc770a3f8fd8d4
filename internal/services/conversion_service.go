package services

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dae2blend/internal/conversion"
	"dae2blend/internal/inspect"
	"dae2blend/internal/metrics"
	"dae2blend/internal/models"
	"dae2blend/internal/resolve"
)

type Resolver interface {
	Resolve(ctx context.Context, input string) (resolve.Result, error)
}

type Inspector interface {
	Inspect(ctx context.Context, scenePath string) (*inspect.Summary, error)
}

type Ledger interface {
	Create(ctx context.Context, c *models.Conversion) error
}

type Publisher interface {
	Publish(ctx context.Context, conversionID, file string) (string, error)
}

// ConversionService runs one conversion from input resolution to the saved
// project file. Inspector, Ledger, Publisher and Metrics are optional.
type ConversionService struct {
	resolver Resolver
	host     conversion.Host

	Inspector Inspector
	Ledger    Ledger
	Publisher Publisher
	Metrics   *metrics.Collector

	logger *zap.Logger
}

func NewConversionService(resolver Resolver, host conversion.Host, logger *zap.Logger) *ConversionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversionService{
		resolver: resolver,
		host:     host,
		logger:   logger.With(zap.String("component", "pipeline")),
	}
}

// Convert runs job and returns its ledger record. The scratch directory of an
// archive input is removed before Convert returns, whatever the outcome.
func (s *ConversionService) Convert(ctx context.Context, job models.Job) (rec *models.Conversion, err error) {
	rec = models.NewConversion(job)
	timings := metrics.NewStageTimings(rec.ID.String())
	defer func() {
		rec.Finish(err)
		timings.Finalize()
		s.record(ctx, rec, timings)
	}()

	timings.Start(metrics.StageResolve)
	res, err := s.resolver.Resolve(ctx, job.Input)
	timings.End(metrics.StageResolve)
	if err != nil {
		return rec, err
	}
	defer s.cleanup(res)

	rec.SceneFile = res.ScenePath
	if s.Metrics != nil {
		s.Metrics.AddExtractedBytes(res.Extracted.Bytes)
	}

	if s.Inspector != nil {
		timings.Start(metrics.StageInspect)
		s.inspect(ctx, rec)
		timings.End(metrics.StageInspect)
	}

	timings.Start(metrics.StageHost)
	err = s.drive(ctx, res.ScenePath, job)
	timings.End(metrics.StageHost)
	if err != nil {
		return rec, err
	}

	if s.Publisher != nil {
		timings.Start(metrics.StagePublish)
		key, perr := s.Publisher.Publish(ctx, rec.ID.String(), job.Output)
		timings.End(metrics.StagePublish)
		if perr != nil {
			return rec, errors.Wrapf(perr, "could not publish %s", job.Output)
		}
		rec.ObjectKey = key
	}
	return rec, nil
}

// drive runs the host operations in order.
func (s *ConversionService) drive(ctx context.Context, scene string, job models.Job) error {
	if err := s.host.ResetWorkspace(ctx); err != nil {
		return err
	}
	if err := s.host.ImportScene(ctx, scene); err != nil {
		return err
	}
	if job.HasRescale() {
		if err := s.host.Rescale(ctx, job.Rescale); err != nil {
			return err
		}
	}
	if err := s.host.PackImages(ctx); err != nil {
		return err
	}
	return s.host.SaveProject(ctx, job.Output)
}

func (s *ConversionService) inspect(ctx context.Context, rec *models.Conversion) {
	sum, err := s.Inspector.Inspect(ctx, rec.SceneFile)
	if err != nil {
		s.logger.Warn("scene inspection failed", zap.String("scene", rec.SceneFile), zap.Error(err))
		return
	}
	rec.Images = len(sum.Images)
	rec.MissingImages = sum.MissingImages()
	if s.Metrics != nil {
		s.Metrics.SetSceneImages(rec.Images-rec.MissingImages, rec.MissingImages)
	}
}

func (s *ConversionService) cleanup(res resolve.Result) {
	if res.ScratchDir == "" {
		return
	}
	if err := res.Cleanup(); err != nil {
		s.logger.Warn("could not remove scratch directory", zap.String("dir", res.ScratchDir), zap.Error(err))
		return
	}
	s.logger.Debug("scratch directory removed", zap.String("dir", res.ScratchDir))
}

func (s *ConversionService) record(ctx context.Context, rec *models.Conversion, timings *metrics.StageTimings) {
	if s.Metrics != nil {
		s.Metrics.RecordConversion(rec.Status)
		s.Metrics.ObserveTimings(timings)
	}
	if s.Ledger != nil {
		// the run may have been interrupted; the record is still written
		if err := s.Ledger.Create(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Warn("could not write ledger record", zap.String("conversion_id", rec.ID.String()), zap.Error(err))
		}
	}

	fields := append(timings.Fields(), zap.String("status", rec.Status), zap.String("input", rec.Input))
	if rec.Error != "" {
		fields = append(fields, zap.String("error", rec.Error))
	}
	s.logger.Info("conversion finished", fields...)
	s.logger.Debug("stage timings", zap.String("summary", timings.Summary()))
}
