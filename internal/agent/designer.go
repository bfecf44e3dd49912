package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"adflow/internal/artifact"
	"adflow/internal/llm"
	"adflow/internal/render"
)

// Renderer turns a banner spec into an image URL.
type Renderer interface {
	Render(ctx context.Context, spec artifact.BannerSpec) (string, error)
}

const renderConcurrency = 4

// Designer briefs and renders banners for the visual creatives.
type Designer struct {
	llm      llm.LLMClient
	prompts  *PromptTable
	renderer Renderer
	log      *zap.Logger
	now      func() time.Time
}

func NewDesigner(cli llm.LLMClient, prompts *PromptTable, renderer Renderer, log *zap.Logger) *Designer {
	if prompts == nil {
		prompts = mustDefaultPrompts()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Designer{llm: cli, prompts: prompts, renderer: renderer, log: log, now: time.Now}
}

func (a *Designer) Name() string { return RoleDesigner }

func (a *Designer) Execute(ctx context.Context, req Request) Result {
	switch r := req.(type) {
	case CreateRequest:
		if r.Target != artifact.TypeBanners {
			return unsupported(a.Name(), r, r.Target)
		}
		return guard(a.Name(), func() (any, error) { return a.create(ctx, r.Input) })
	case ReviseRequest:
		if r.Target != artifact.TypeBanners {
			return unsupported(a.Name(), r, r.Target)
		}
		return guard(a.Name(), func() (any, error) { return a.revise(ctx, r) })
	case AnalyzeRequest:
		return unsupported(a.Name(), r, "")
	case ReviewRequest:
		return unsupported(a.Name(), r, r.Target)
	}
	return unsupported(a.Name(), req, "")
}

// VisualCreatives returns the creatives that need a banner: those on a visual
// platform that the strategy (when given) has enabled.
func VisualCreatives(set *artifact.CreativeSet, strategy *artifact.Strategy) []artifact.Creative {
	if set == nil {
		return nil
	}
	var enabled map[artifact.Platform]bool
	if strategy != nil && len(strategy.Platforms) > 0 {
		enabled = make(map[artifact.Platform]bool)
		for _, p := range strategy.EnabledPlatforms() {
			enabled[p] = true
		}
	}
	var out []artifact.Creative
	for _, c := range set.Creatives {
		if !c.Platform.Visual() {
			continue
		}
		if enabled != nil && !enabled[c.Platform] {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (a *Designer) create(ctx context.Context, in StageInput) (artifact.BannerSet, error) {
	visual := VisualCreatives(in.Creatives, in.Strategy)
	if len(visual) == 0 {
		return artifact.NewBannerSet(nil), nil
	}
	specs, err := a.specs(ctx, "specs", map[string]any{
		"brief":     in.Brief,
		"strategy":  in.Strategy,
		"creatives": visual,
	})
	if err != nil {
		return artifact.BannerSet{}, err
	}
	return a.render(ctx, filterSpecs(specs, visual))
}

func (a *Designer) revise(ctx context.Context, r ReviseRequest) (artifact.BannerSet, error) {
	var prev artifact.BannerSet
	if err := json.Unmarshal(r.Previous, &prev); err != nil {
		return artifact.BannerSet{}, fmt.Errorf("previous banners: %w", err)
	}
	if len(prev.Banners) == 0 {
		return artifact.NewBannerSet(nil), nil
	}
	current := make([]artifact.BannerSpec, 0, len(prev.Banners))
	for _, b := range prev.Banners {
		current = append(current, b.Spec)
	}
	specs, err := a.specs(ctx, "revise", map[string]any{
		"specs":    current,
		"feedback": r.Feedback,
		"brief":    r.Input.Brief,
	})
	if err != nil {
		return artifact.BannerSet{}, err
	}
	return a.render(ctx, specs)
}

func (a *Designer) specs(ctx context.Context, task string, input any) ([]artifact.BannerSpec, error) {
	ctx = llm.WithPhase(ctx, llm.PhaseDesign)
	out, err := llm.GenerateStructured[artifact.BannerSpecList](ctx, a.llm, a.prompts.Prompt(RoleDesigner, task), input)
	if err != nil {
		return nil, err
	}
	for i := range out.Specs {
		if _, _, err := out.Specs[i].Dimensions(); err != nil {
			out.Specs[i].Size = out.Specs[i].Platform.Spec().BannerSize
		}
	}
	return out.Specs, nil
}

// filterSpecs keeps one spec per visual creative, in creative order.
func filterSpecs(specs []artifact.BannerSpec, visual []artifact.Creative) []artifact.BannerSpec {
	byCreative := make(map[string]artifact.BannerSpec, len(specs))
	for _, s := range specs {
		if _, seen := byCreative[s.CreativeID]; !seen {
			byCreative[s.CreativeID] = s
		}
	}
	out := make([]artifact.BannerSpec, 0, len(visual))
	for _, c := range visual {
		if s, ok := byCreative[c.ID]; ok {
			if s.Platform == "" {
				s.Platform = c.Platform
			}
			out = append(out, s)
		}
	}
	return out
}

// render draws every spec concurrently. A failed render degrades to a
// placeholder image and never fails the set.
func (a *Designer) render(ctx context.Context, specs []artifact.BannerSpec) (artifact.BannerSet, error) {
	banners := make([]artifact.Banner, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(renderConcurrency)
	for i, spec := range specs {
		g.Go(func() error {
			b := artifact.Banner{
				ID:          uuid.Must(uuid.NewV7()).String(),
				CreativeID:  spec.CreativeID,
				Spec:        spec,
				GeneratedAt: a.now().UTC(),
			}
			var url string
			var err error
			if a.renderer != nil {
				url, err = a.renderer.Render(gctx, spec)
			}
			if a.renderer == nil || err != nil {
				if err != nil {
					a.log.Warn("banner render failed, using placeholder",
						zap.String("creative_id", spec.CreativeID), zap.Error(err))
				}
				url = render.Placeholder(spec)
				b.Placeholder = true
			}
			b.ImageURL = url
			banners[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return artifact.BannerSet{}, err
	}
	if err := ctx.Err(); err != nil {
		return artifact.BannerSet{}, err
	}
	return artifact.NewBannerSet(banners), nil
}
