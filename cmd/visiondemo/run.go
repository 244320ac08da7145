package main

import (
	"context"
	"reflect"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/components/camera/fake"
	"github.com/teamcode/robotcv/config"
	"github.com/teamcode/robotcv/dashboard"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/pipeline"
	"github.com/teamcode/robotcv/preview"
	"github.com/teamcode/robotcv/resource"
	"github.com/teamcode/robotcv/services/mlmodel"
	"github.com/teamcode/robotcv/vision"
	"github.com/teamcode/robotcv/vision/colordetection"
	"github.com/teamcode/robotcv/vision/debugview"
	"github.com/teamcode/robotcv/vision/fiducial"
	"github.com/teamcode/robotcv/vision/objectdetection"
)

const defaultPollInterval = 2 * time.Second

type runOptions struct {
	ConfigPath   string
	Debug        bool
	Duration     time.Duration
	PollInterval time.Duration
	Watch        bool
	Cycle        time.Duration
}

// handle is the part of a CameraPipeline the demo drives, whatever its stage.
type handle interface {
	State() pipeline.State
	Config() pipeline.Config
	FramesDelivered() uint64
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Destroy(ctx context.Context) error
	Rebuild(ctx context.Context) error
}

type running struct {
	handle
	summary func() []interface{}
}

type demo struct {
	logger         logging.Logger
	cfg            *config.Config
	hw             *resource.HardwareMap
	dash           *dashboard.Server
	restorePreview func()
	opts           []pipeline.Option
	pipelines      map[string]*running
}

func run(ctx context.Context, opts runOptions, logger logging.Logger) (err error) {
	cfg, err := config.Read(ctx, opts.ConfigPath, logger.Sublogger("config"))
	if err != nil {
		return err
	}
	if cfg.Debug {
		logger.SetLevel(logging.DEBUG)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	d, err := newDemo(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, d.close(context.Background()))
	}()

	if opts.Duration > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	var changes chan *config.Config
	if opts.Watch {
		changes = make(chan *config.Config, 1)
		watchCtx, cancelWatch := context.WithCancel(ctx)
		var watchers errgroup.Group
		watchers.Go(func() error {
			err := config.Watch(watchCtx, opts.ConfigPath, logger.Sublogger("config"), func(newCfg *config.Config) {
				select {
				case changes <- newCfg:
				case <-watchCtx.Done():
				}
			})
			if err != nil {
				logger.Errorw("cannot watch config", "error", err)
			}
			return err
		})
		defer func() {
			cancelWatch()
			err = multierr.Combine(err, watchers.Wait())
		}()
	}

	poll := time.NewTicker(opts.PollInterval)
	defer poll.Stop()
	var cycle <-chan time.Time
	if opts.Cycle > 0 {
		cycleTicker := time.NewTicker(opts.Cycle)
		defer cycleTicker.Stop()
		cycle = cycleTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			d.report()
		case <-cycle:
			d.cycle(ctx)
		case newCfg := <-changes:
			d.apply(ctx, newCfg)
		}
	}
}

func newDemo(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *demo, err error) {
	d := &demo{
		logger:    logger,
		cfg:       cfg,
		hw:        resource.NewHardwareMap(),
		opts:      []pipeline.Option{pipeline.WithLogger(logger.Sublogger("pipeline"))},
		pipelines: map[string]*running{},
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, d.close(ctx))
		}
	}()

	for _, conf := range cfg.Cameras {
		cam, err := d.newCamera(conf)
		if err != nil {
			return nil, err
		}
		if err := d.hw.Add(cam); err != nil {
			return nil, multierr.Combine(err, cam.Close(ctx))
		}
	}

	d.dash = dashboard.NewServer(dashboard.Config{
		Address:     cfg.Dashboard.Address,
		MaxFPS:      cfg.Dashboard.MaxFPS,
		JPEGQuality: cfg.Dashboard.JPEGQuality,
	}, logger.Sublogger("dashboard"))
	if err := d.dash.Start(ctx); err != nil {
		return nil, err
	}
	d.restorePreview = preview.ReplaceGlobal(d.dash)

	for _, conf := range cfg.Pipelines {
		if err := d.startPipeline(ctx, conf); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *demo) newCamera(conf config.Camera) (camera.Camera, error) {
	logger := d.logger.Sublogger(conf.Name)
	switch conf.Model {
	case fake.ModelName:
		attrs, err := conf.FakeAttributes()
		if err != nil {
			return nil, err
		}
		return fake.NewCamera(camera.Named(conf.Name), attrs, logger)
	case fake.FileModelName:
		attrs, err := conf.FileAttributes()
		if err != nil {
			return nil, err
		}
		return fake.NewFileCamera(camera.Named(conf.Name), attrs, logger)
	default:
		return nil, errors.Errorf("unknown camera model %q", conf.Model)
	}
}

func (d *demo) startPipeline(ctx context.Context, conf config.Pipeline) error {
	var (
		r   *running
		err error
	)
	logger := d.logger.Sublogger(conf.Name)
	switch conf.Type {
	case config.PipelineTypeDebug:
		r, err = build(ctx, d, conf, pipeline.NewDebugPipeline,
			func() (*debugview.Processor, error) {
				return debugview.NewProcessor(), nil
			},
			func(p *debugview.Processor) []interface{} {
				stats := p.Stats()
				return []interface{}{"sequence", stats.LastSequence, "fps", stats.FPS}
			})
	case config.PipelineTypeAprilTag:
		r, err = build(ctx, d, conf, pipeline.NewAprilTagPipeline,
			func() (*fiducial.Processor, error) {
				opts, err := conf.AprilTagOptions()
				if err != nil {
					return nil, err
				}
				detector, err := fiducial.FromProvider(d.hw, fiducial.DefaultDetectorName)
				if err != nil {
					logger.Debugw("no tag detector backend", "error", err)
				}
				return fiducial.NewProcessor(opts, detector, logger), nil
			},
			func(p *fiducial.Processor) []interface{} {
				ids := lo.Map(p.Detections(), func(det fiducial.TagDetection, _ int) int { return det.ID })
				return []interface{}{"tags", ids}
			})
	case config.PipelineTypeColorDetection:
		r, err = build(ctx, d, conf, pipeline.NewColorDetectionPipeline,
			func() (*colordetection.Processor, error) {
				opts, err := conf.ColorOptions()
				if err != nil {
					return nil, err
				}
				return colordetection.NewProcessor(opts), nil
			},
			func(p *colordetection.Processor) []interface{} {
				return []interface{}{"detections", detectionStrings(p.Detections())}
			})
	case config.PipelineTypeObjectDetection:
		r, err = build(ctx, d, conf, pipeline.NewObjectDetectionPipeline,
			func() (*objectdetection.Processor, error) {
				opts, err := conf.ObjectDetectionOptions()
				if err != nil {
					return nil, err
				}
				model, err := mlmodel.FromProvider(d.hw, objectdetection.DefaultModelName)
				if err != nil {
					logger.Debugw("no detection model", "error", err)
				}
				return objectdetection.NewProcessor(opts, model, logger), nil
			},
			func(p *objectdetection.Processor) []interface{} {
				return []interface{}{"detections", detectionStrings(p.Recognitions())}
			})
	default:
		err = errors.Errorf("unknown pipeline type %q", conf.Type)
	}
	if err != nil {
		return errors.Wrapf(err, "cannot start pipeline %q", conf.Name)
	}
	d.pipelines[conf.Name] = r
	return nil
}

// build starts conf from its recipe, or from a custom stage when conf overrides the recipe.
func build[T vision.Processor](
	ctx context.Context,
	d *demo,
	conf config.Pipeline,
	recipe func(context.Context, resource.Provider, bool, ...pipeline.Option) (*pipeline.CameraPipeline[T], error),
	newStage func() (T, error),
	summarize func(T) []interface{},
) (*running, error) {
	var (
		p   *pipeline.CameraPipeline[T]
		err error
	)
	if conf.UsesRecipe() {
		p, err = recipe(ctx, d.hw, conf.Preview, d.opts...)
	} else {
		var stage T
		stage, err = newStage()
		if err != nil {
			return nil, err
		}
		res := conf.Resolution()
		var pcfg pipeline.Config
		pcfg, err = pipeline.NewConfig(conf.CameraName(), res.Width, res.Height, conf.Preview)
		if err != nil {
			return nil, err
		}
		p, err = pipeline.NewFromConfig(ctx, stage, d.hw, pcfg, d.opts...)
	}
	if err != nil {
		return nil, err
	}
	return &running{
		handle:  p,
		summary: func() []interface{} { return summarize(p.Processor()) },
	}, nil
}

func detectionStrings(dets []vision.Detection) []string {
	return lo.Map(dets, func(det vision.Detection, _ int) string { return det.String() })
}

func (d *demo) names() []string {
	names := lo.Keys(d.pipelines)
	sort.Strings(names)
	return names
}

func (d *demo) report() {
	for _, name := range d.names() {
		r := d.pipelines[name]
		fields := []interface{}{"name", name, "state", r.State().String(), "frames", r.FramesDelivered()}
		d.logger.Infow("pipeline status", append(fields, r.summary()...)...)
	}
}

// cycle pauses running pipelines and resumes paused ones.
func (d *demo) cycle(ctx context.Context) {
	for _, name := range d.names() {
		r := d.pipelines[name]
		var err error
		switch r.State() {
		case pipeline.Running:
			err = r.Pause(ctx)
		case pipeline.Paused:
			err = r.Resume(ctx)
		default:
			continue
		}
		if err != nil {
			d.logger.Warnw("cannot cycle pipeline", "name", name, "error", err)
			continue
		}
		d.logger.Debugw("cycled pipeline", "name", name, "state", r.State().String())
	}
}

func (d *demo) stopPipeline(ctx context.Context, name string) error {
	r, ok := d.pipelines[name]
	if !ok {
		return nil
	}
	delete(d.pipelines, name)
	return r.Destroy(ctx)
}

// apply moves the demo to newCfg, rebuilding only the pipelines and cameras that changed. A
// pipeline whose camera alone changed keeps its stage and reattaches to the new camera.
func (d *demo) apply(ctx context.Context, newCfg *config.Config) {
	diff := config.DiffConfigs(*d.cfg, *newCfg)
	for _, conf := range append(diff.Removed, diff.Modified...) {
		if err := d.stopPipeline(ctx, conf.Name); err != nil {
			d.logger.Warnw("error stopping pipeline", "name", conf.Name, "error", err)
		}
	}
	replaced := d.applyCameras(ctx, newCfg)
	for _, conf := range append(diff.Added, diff.Modified...) {
		if err := d.startPipeline(ctx, conf); err != nil {
			d.logger.Errorw("cannot start pipeline", "name", conf.Name, "error", err)
		}
	}
	for _, conf := range diff.Rebound {
		r, ok := d.pipelines[conf.Name]
		if !ok {
			continue
		}
		if err := r.Rebuild(ctx); err != nil {
			d.logger.Errorw("cannot rebuild pipeline on new camera", "name", conf.Name, "error", err)
			delete(d.pipelines, conf.Name)
		}
	}
	for _, prev := range replaced {
		if err := prev.Close(ctx); err != nil {
			d.logger.Warnw("error closing replaced camera", "name", prev.Name().Name, "error", err)
		}
	}
	if !diff.DashboardEqual {
		d.logger.Warn("dashboard changes take effect on restart")
	}
	d.cfg = newCfg
	d.logger.Infow("config applied",
		"added", len(diff.Added), "modified", len(diff.Modified), "rebound", len(diff.Rebound), "removed", len(diff.Removed))
}

// applyCameras binds the cameras of newCfg and unbinds the ones it dropped. Replaced cameras are
// returned unclosed so pipelines can move off them first.
func (d *demo) applyCameras(ctx context.Context, newCfg *config.Config) []resource.Resource {
	var replaced []resource.Resource
	for _, conf := range newCfg.Cameras {
		old := d.cfg.FindCamera(conf.Name)
		if old != nil && reflect.DeepEqual(*old, conf) {
			continue
		}
		cam, err := d.newCamera(conf)
		if err != nil {
			d.logger.Errorw("cannot build camera", "name", conf.Name, "error", err)
			continue
		}
		if old == nil {
			err = d.hw.Add(cam)
		} else {
			var prev resource.Resource
			if prev, err = d.hw.ReplaceOne(cam); err == nil {
				replaced = append(replaced, prev)
			}
		}
		if err != nil {
			d.logger.Errorw("cannot bind camera", "name", conf.Name, "error", err)
		}
	}
	for _, conf := range d.cfg.Cameras {
		if newCfg.FindCamera(conf.Name) != nil {
			continue
		}
		name := camera.Named(conf.Name)
		res, err := d.hw.Resource(name)
		if err != nil {
			continue
		}
		if err := multierr.Combine(d.hw.Remove(name), res.Close(ctx)); err != nil {
			d.logger.Warnw("error removing camera", "name", conf.Name, "error", err)
		}
	}
	return replaced
}

func (d *demo) close(ctx context.Context) error {
	var errs error
	for _, name := range d.names() {
		errs = multierr.Combine(errs, d.stopPipeline(ctx, name))
	}
	if d.dash != nil {
		errs = multierr.Combine(errs, d.dash.Close(ctx))
	}
	if d.restorePreview != nil {
		d.restorePreview()
		d.restorePreview = nil
	}
	return multierr.Combine(errs, d.hw.Close(ctx))
}
