package engine

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
	"github.com/d28khalil/Bidnology-sub001/internal/store"
)

// ErrUnknownSource is returned when a trigger names a source that is not
// registered. Unresolvable triggers are rejected immediately so a typo in a
// webhook configuration surfaces as a 4xx rather than a silent no-op.
var ErrUnknownSource = eris.New("engine: unknown source")

// Resolver maps inbound trigger names like "RealForeclose | Essex" onto
// registered sources.
type Resolver struct {
	store store.Store
}

// NewResolver wires a source resolver.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// ParseTriggerName splits a trigger name into its platform and source
// parts. The separator is a pipe with optional surrounding whitespace.
func ParseTriggerName(trigger string) (platform, name string, err error) {
	parts := strings.SplitN(trigger, "|", 2)
	if len(parts) != 2 {
		return "", "", eris.Errorf("engine: malformed trigger name %q, want \"Platform | Source\"", trigger)
	}
	platform = strings.TrimSpace(parts[0])
	name = strings.TrimSpace(parts[1])
	if platform == "" || name == "" {
		return "", "", eris.Errorf("engine: malformed trigger name %q, empty platform or source", trigger)
	}
	return platform, name, nil
}

// Resolve looks up the source a trigger names.
func (r *Resolver) Resolve(ctx context.Context, trigger string) (*model.Source, error) {
	platform, name, err := ParseTriggerName(trigger)
	if err != nil {
		return nil, err
	}
	src, err := r.store.GetSourceByName(ctx, platform, name)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: resolve source %q", trigger)
	}
	if src == nil {
		return nil, eris.Wrapf(ErrUnknownSource, "%q", trigger)
	}
	return src, nil
}
