// Package profile holds game profiles: the templates, triggers, rules,
// aliases and extra detectors that teach the engine and brain one game.
package profile

import (
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/andresmejia3/rashplayer/internal/brain"
	"github.com/andresmejia3/rashplayer/internal/types"
	"github.com/andresmejia3/rashplayer/internal/utils"
	"github.com/andresmejia3/rashplayer/internal/vision"
)

var (
	ErrUnknownProfile   = errors.New("unknown profile")
	ErrDuplicateProfile = errors.New("profile already registered")
	ErrBadTemplateRef   = errors.New("trigger references a missing template")
)

// TemplateIDBase is the first trigger id given to templates passed through
// Options.Templates.
const TemplateIDBase = 100

// DefaultTemplateThreshold applies to option templates.
const DefaultTemplateThreshold = 0.8

// Asset is a template shipped with a profile, either in memory or on disk.
type Asset struct {
	Name      string
	Path      string
	Image     *image.RGBA
	Threshold float32
	Region    types.Rect
}

// Profile is everything needed to play one game. Template triggers refer to
// Templates by their index in this profile; Apply rewrites them to engine ids.
type Profile struct {
	Name        string
	Description string
	Templates   []Asset
	Triggers    []types.Trigger
	Rules       []types.Rule
	Aliases     map[string]uint32
	Detectors   []vision.Detector
}

// Options tune a profile at build time.
type Options struct {
	TapPoint  types.Point // where taps land, zero selects the profile default
	Templates []string    // extra template image paths, one trigger each
}

// Factory builds a profile from options.
type Factory func(Options) (*Profile, error)

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

// Register makes a profile available by name. Built-in profiles register in init.
func Register(name string, f Factory) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProfile, name)
	}
	registry[name] = f
	return nil
}

// Names lists registered profiles in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Build looks up name and constructs the profile. Option templates are
// appended as template triggers with ids from TemplateIDBase upward.
func Build(name string, opts Options) (*Profile, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownProfile, name, Names())
	}
	p, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("build profile %s: %w", name, err)
	}
	for i, path := range opts.Templates {
		p.Templates = append(p.Templates, Asset{Name: path, Path: path, Threshold: DefaultTemplateThreshold})
		p.Triggers = append(p.Triggers, types.Trigger{
			ID:     uint32(TemplateIDBase + i),
			Name:   path,
			Params: types.TemplateParams{TemplateID: uint32(len(p.Templates) - 1)},
			Active: true,
		})
	}
	return p, nil
}

// Apply loads p into the engine and brain: templates first, then triggers
// with template ids remapped, then detectors, rules and aliases.
func Apply(p *Profile, eng *vision.Engine, br *brain.Brain) error {
	// 1. Templates
	ids := make([]uint32, len(p.Templates))
	for i, a := range p.Templates {
		img := a.Image
		if img == nil {
			var err error
			if img, err = utils.LoadRGBA(a.Path); err != nil {
				return fmt.Errorf("template %s: %w", a.Name, err)
			}
		}
		id, err := eng.LoadTemplate(types.Template{
			Name:         a.Name,
			Image:        img,
			Threshold:    a.Threshold,
			SearchRegion: a.Region,
		})
		if err != nil {
			return err
		}
		ids[i] = id
	}

	// 2. Triggers
	for _, t := range p.Triggers {
		if tp, ok := t.Params.(types.TemplateParams); ok {
			if int(tp.TemplateID) >= len(ids) {
				return fmt.Errorf("%w: trigger %d wants template %d", ErrBadTemplateRef, t.ID, tp.TemplateID)
			}
			t.Params = types.TemplateParams{TemplateID: ids[tp.TemplateID]}
		}
		if _, err := eng.AddTrigger(t); err != nil {
			return err
		}
	}

	// 3. Detectors
	for _, d := range p.Detectors {
		eng.RegisterDetector(d)
	}

	// 4. Brain
	if err := br.LoadRules(p.Rules); err != nil {
		return err
	}
	return br.Bind(p.Aliases)
}
