package registry

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"leasing/risk-engine/internal/scoring"
)

// Activate loads the published version into e. An empty registry is seeded
// with e's current calibration, which is then published as by.
func Activate(ctx context.Context, r Registry, e *scoring.Engine, by string) (*Version, error) {
	v, err := r.Published(ctx)
	switch {
	case err == nil:
		if err := e.Publish(v.Calibration); err != nil {
			return nil, eris.Wrapf(err, "registry: activate %s", v.VersionID)
		}
		return v, nil
	case !errors.Is(err, ErrNotFound):
		return nil, eris.Wrap(err, "registry: load published version")
	}

	cal := e.Calibration()
	if _, err := r.Create(ctx, cal, "initial calibration", by); err != nil && !errors.Is(err, ErrDuplicateVersion) {
		return nil, eris.Wrapf(err, "registry: record %s", cal.Version)
	}
	v, err = r.Publish(ctx, cal.Version, by)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: publish %s", cal.Version)
	}
	return v, nil
}
