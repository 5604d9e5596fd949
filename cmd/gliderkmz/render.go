package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gliderkmz/internal/config"
	"gliderkmz/internal/gliderapi"
	"gliderkmz/internal/kml"
	"gliderkmz/internal/telemetry"
	"gliderkmz/internal/web"
)

// renderer runs one fetch/build/write pass per call to Pass.
type renderer struct {
	cfg        config.Config
	client     *gliderapi.Client
	thresholds telemetry.Thresholds
	status     *web.Status
	kml        *kml.Renderer
	now        func() time.Time
}

func newRenderer(cfg config.Config, client *gliderapi.Client, thresholds telemetry.Thresholds, status *web.Status) (*renderer, error) {
	var overrides fs.FS
	if cfg.KML.TemplatesDir != "" {
		overrides = os.DirFS(cfg.KML.TemplatesDir)
	}
	kr, err := kml.NewRenderer(overrides)
	if err != nil {
		return nil, err
	}
	if status == nil {
		status = web.NewStatus()
	}
	status.SetStatic(cfg.KML.Output, cfg.KML.Type, nil)
	return &renderer{
		cfg:        cfg,
		client:     client,
		thresholds: thresholds,
		status:     status,
		kml:        kr,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *renderer) builder() kml.Builder {
	return kml.Builder{
		Sensors:      r.cfg.Sensors,
		Thresholds:   r.thresholds,
		KMLType:      r.cfg.KML.Type,
		GliderTails:  r.cfg.KML.GliderTails,
		Colors:       r.cfg.KML.Colors,
		RecentWindow: r.cfg.KML.RecentWindow,
		Logf:         log.Printf,
	}
}

func (r *renderer) Pass(ctx context.Context, runID string) error {
	now := r.now()
	data, skipped, err := r.fetch(ctx)
	if err != nil {
		return err
	}

	doc, err := r.builder().Build(now, data)
	if err != nil {
		return err
	}
	doc.SkippedRecords += skipped
	if err := r.kml.WriteFile(r.cfg.KML.Output, doc); err != nil {
		return err
	}

	var size int64
	if st, err := os.Stat(r.cfg.KML.Output); err == nil {
		size = st.Size()
	}
	r.status.MarkWritten(now, runID, len(doc.Deployments), doc.SkippedRecords, size)
	log.Printf("render run=%s deployments=%d skipped=%d bytes=%d output=%s",
		runID, len(doc.Deployments), doc.SkippedRecords, size, r.cfg.KML.Output)
	return nil
}

// fetch pulls every active deployment (filtered by cfg.Gliders) and its
// sensors, track and surfacings. Deployments are fetched in parallel, up to
// api.max_concurrent at a time; order matches the API listing. skipped counts
// malformed listing entries.
func (r *renderer) fetch(ctx context.Context) ([]kml.DeploymentData, int, error) {
	deps, skipped, err := r.client.ActiveDeployments(ctx)
	if err != nil {
		return nil, 0, err
	}
	deps = filterGliders(deps, r.cfg.Gliders)

	out := make([]kml.DeploymentData, len(deps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.API.MaxConcurrent)
	for i, d := range deps {
		i, d := i, d
		g.Go(func() error {
			dd, err := r.fetchDeployment(gctx, d)
			if err != nil {
				return fmt.Errorf("deployment %s: %w", d.DeploymentName, err)
			}
			out[i] = dd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return out, skipped, nil
}

func (r *renderer) fetchDeployment(ctx context.Context, d gliderapi.Deployment) (kml.DeploymentData, error) {
	dd := kml.DeploymentData{
		Deployment: d,
		Sensors:    make(map[string][]telemetry.SensorSample, len(r.cfg.Sensors)),
	}
	for _, name := range r.cfg.Sensors {
		samples, err := r.client.Sensor(ctx, d.DeploymentName, name)
		if err != nil {
			return kml.DeploymentData{}, err
		}
		dd.Sensors[name] = samples
	}

	var err error
	if dd.Track, err = r.client.Track(ctx, d.DeploymentName); err != nil {
		return kml.DeploymentData{}, err
	}
	if dd.Surfacings, err = r.client.Surfacings(ctx, d.DeploymentName); err != nil {
		return kml.DeploymentData{}, err
	}
	return dd, nil
}

// filterGliders keeps deployments whose glider is listed. An empty list keeps
// everything.
func filterGliders(deps []gliderapi.Deployment, gliders []string) []gliderapi.Deployment {
	if len(gliders) == 0 {
		return deps
	}
	want := make(map[string]struct{}, len(gliders))
	for _, g := range gliders {
		want[g] = struct{}{}
	}
	out := deps[:0:0]
	for _, d := range deps {
		if _, ok := want[d.GliderName]; ok {
			out = append(out, d)
		}
	}
	return out
}
