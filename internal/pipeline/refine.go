package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"adflow/internal/agent"
	"adflow/internal/artifact"
	artifactrepo "adflow/internal/gateway/repository/artifact"
	"adflow/internal/types"
	"adflow/internal/utils"
)

var (
	ErrNotCompleted = errors.New("project is not completed")
	ErrItemNotFound = errors.New("creative not found")
	// ErrInvalidRefinement rejects an unknown variation kind or a bad count.
	ErrInvalidRefinement = errors.New("invalid refinement request")
)

// VariationKind is the axis a variation differs on.
type VariationKind string

const (
	VariationTone   VariationKind = "tone"
	VariationLength VariationKind = "length"
	VariationAngle  VariationKind = "angle"
	VariationCTA    VariationKind = "cta"
)

var variationInstructions = map[VariationKind]string{
	VariationTone:   "Write one variation of the creative with a different tone of voice. Keep the offer and platform limits.",
	VariationLength: "Write one variation of the creative with noticeably shorter or longer text within the platform limits.",
	VariationAngle:  "Write one variation of the creative that sells the same offer from a different angle.",
	VariationCTA:    "Write one variation of the creative with a different call to action.",
}

func ParseVariationKind(raw string) (VariationKind, error) {
	k := VariationKind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := variationInstructions[k]; !ok {
		return "", fmt.Errorf("%w: variation kind %q", ErrInvalidRefinement, raw)
	}
	return k, nil
}

const maxGenerateMore = 10

// refinement is a finished project's accepted context plus its current
// creative set.
type refinement struct {
	project types.Project
	input   agent.StageInput
	set     artifact.CreativeSet
}

// loadRefinement must be called with the project lock held.
func (p *Pipeline) loadRefinement(ctx context.Context, projectID string) (refinement, error) {
	proj, err := p.projects.Get(ctx, projectID)
	if err != nil {
		return refinement{}, err
	}
	if proj.Status != types.StatusCompleted {
		return refinement{}, fmt.Errorf("%w: %s is %s", ErrNotCompleted, projectID, proj.Status)
	}
	in, err := p.completedInput(ctx, proj)
	if err != nil {
		return refinement{}, err
	}
	copyArt, err := p.artifacts.Latest(ctx, projectID, artifact.TypeCopy)
	if err != nil {
		return refinement{}, fmt.Errorf("latest copy: %w", err)
	}
	var set artifact.CreativeSet
	if err := copyArt.Decode(&set); err != nil {
		return refinement{}, err
	}
	return refinement{project: proj, input: in, set: set.Clone()}, nil
}

// completedInput rebuilds the accepted stage context from the store.
func (p *Pipeline) completedInput(ctx context.Context, proj types.Project) (agent.StageInput, error) {
	in := agent.StageInput{
		ProjectID: proj.ID,
		URL:       proj.URL,
		Brief:     proj.Brief,
		Interview: proj.Interview,
		Settings:  proj.Settings,
	}
	var strategy artifact.Strategy
	if ok, err := p.latestContent(ctx, proj.ID, artifact.TypeStrategy, &strategy); err != nil {
		return in, err
	} else if ok {
		in.Strategy = &strategy
	}
	var hypotheses artifact.Hypotheses
	if ok, err := p.latestContent(ctx, proj.ID, artifact.TypeHypotheses, &hypotheses); err != nil {
		return in, err
	} else if ok {
		in.Hypotheses = &hypotheses
	}
	return in, nil
}

func (p *Pipeline) latestContent(ctx context.Context, projectID string, t artifact.Type, v any) (bool, error) {
	a, err := p.artifacts.Latest(ctx, projectID, t)
	if errors.Is(err, artifactrepo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, a.Decode(v)
}

// writeCreatives asks the copywriter for new creatives based on seed.
func (p *Pipeline) writeCreatives(ctx context.Context, in agent.StageInput, seed []artifact.Creative, instruction string, extra map[string]any) ([]artifact.Creative, error) {
	in.Creatives = &artifact.CreativeSet{Creatives: seed}
	in.Instruction = instruction
	in.Extra = extra
	res := p.team.Copywriter.Execute(ctx, agent.CreateRequest{Target: artifact.TypeCopy, Input: in})
	var out artifact.CreativeSet
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Creatives) == 0 {
		return nil, fmt.Errorf("copywriter returned no creatives")
	}
	return out.Creatives, nil
}

// commit stores set as the next approved copy version.
func (p *Pipeline) commit(ctx context.Context, projectID string, set artifact.CreativeSet, data map[string]any) (artifact.Artifact, error) {
	set.Normalize()
	saved, err := p.save(ctx, projectID, artifact.TypeCopy, artifact.StatusApproved, p.team.Copywriter.Name(), set)
	if err != nil {
		return artifact.Artifact{}, err
	}
	data["type"] = artifact.TypeCopy
	data["version"] = saved.Version
	p.emit(projectID, EventArtifactApproved, data)
	p.log.Info("copy refined", zap.String("project_id", projectID), zap.Int("version", saved.Version), zap.Any("refinement", data["refinement"]))
	return saved, nil
}

// RegenerateItem rewrites one creative of a completed project.
func (p *Pipeline) RegenerateItem(ctx context.Context, projectID, itemID, feedback string) (artifact.Artifact, error) {
	ctx = p.traced(ctx, projectID)
	unlock := p.locks.Lock(projectID)
	defer unlock()

	r, err := p.loadRefinement(ctx, projectID)
	if err != nil {
		return artifact.Artifact{}, err
	}
	idx := r.set.Find(itemID)
	if idx < 0 {
		return artifact.Artifact{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	item := r.set.Creatives[idx]
	instruction := "Rewrite this creative. Keep its platform and hypothesis."
	extra := map[string]any{}
	if fb := strings.TrimSpace(feedback); fb != "" {
		instruction += " Address the client's feedback."
		extra["feedback"] = fb
	}
	out, err := p.writeCreatives(ctx, r.input, []artifact.Creative{item}, instruction, extra)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("regenerate %s: %w", itemID, err)
	}

	next := out[0]
	next.ID = item.ID
	next.HypothesisID = item.HypothesisID
	next.Platform = item.Platform
	next.Variant = item.Variant
	r.set.Creatives[idx] = next
	return p.commit(ctx, projectID, r.set, map[string]any{"refinement": "regenerate", "item_id": itemID})
}

// CreateVariation appends a variant of one creative under the next free
// variant letter of its hypothesis.
func (p *Pipeline) CreateVariation(ctx context.Context, projectID, itemID string, kind VariationKind) (artifact.Artifact, error) {
	ctx = p.traced(ctx, projectID)
	instruction, ok := variationInstructions[kind]
	if !ok {
		return artifact.Artifact{}, fmt.Errorf("%w: variation kind %q", ErrInvalidRefinement, kind)
	}
	unlock := p.locks.Lock(projectID)
	defer unlock()

	r, err := p.loadRefinement(ctx, projectID)
	if err != nil {
		return artifact.Artifact{}, err
	}
	idx := r.set.Find(itemID)
	if idx < 0 {
		return artifact.Artifact{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	item := r.set.Creatives[idx]
	out, err := p.writeCreatives(ctx, r.input, []artifact.Creative{item}, instruction, map[string]any{"variation": string(kind)})
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("variation of %s: %w", itemID, err)
	}

	next := out[0]
	next.HypothesisID = item.HypothesisID
	next.Platform = item.Platform
	next.Variant = r.set.NextVariant(item.HypothesisID)
	next.ID = uniqueCreativeID(r.set, item.ID+"-"+strings.ToLower(next.Variant))
	r.set.Creatives = append(r.set.Creatives, next)
	return p.commit(ctx, projectID, r.set, map[string]any{
		"refinement": "variation",
		"item_id":    itemID,
		"new_id":     next.ID,
		"variation":  string(kind),
	})
}

// GenerateMore appends up to count new creatives for platform.
func (p *Pipeline) GenerateMore(ctx context.Context, projectID string, platform artifact.Platform, count int) (artifact.Artifact, error) {
	ctx = p.traced(ctx, projectID)
	if count < 1 || count > maxGenerateMore {
		return artifact.Artifact{}, fmt.Errorf("%w: count %d not in 1..%d", ErrInvalidRefinement, count, maxGenerateMore)
	}
	if _, err := artifact.ParsePlatform(string(platform)); err != nil {
		return artifact.Artifact{}, fmt.Errorf("%w: %v", ErrInvalidRefinement, err)
	}
	unlock := p.locks.Lock(projectID)
	defer unlock()

	r, err := p.loadRefinement(ctx, projectID)
	if err != nil {
		return artifact.Artifact{}, err
	}
	var seed []artifact.Creative
	for _, c := range r.set.Creatives {
		if c.Platform == platform {
			seed = append(seed, c)
		}
	}
	instruction := fmt.Sprintf("Write %d new creatives for %s that differ from the existing ones.", count, platform)
	out, err := p.writeCreatives(ctx, r.input, seed, instruction, map[string]any{"platform": string(platform), "count": count})
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("generate more for %s: %w", platform, err)
	}
	if len(out) > count {
		out = out[:count]
	}

	added := make([]string, 0, len(out))
	for _, c := range out {
		c.Platform = platform
		if c.HypothesisID == "" && len(seed) > 0 {
			c.HypothesisID = seed[0].HypothesisID
		}
		c.Variant = r.set.NextVariant(c.HypothesisID)
		c.ID = uniqueCreativeID(r.set, c.ID)
		r.set.Creatives = append(r.set.Creatives, c)
		added = append(added, c.ID)
	}
	return p.commit(ctx, projectID, r.set, map[string]any{
		"refinement": "generate_more",
		"platform":   string(platform),
		"added":      added,
	})
}

// uniqueCreativeID keeps want when it is free and falls back to a fresh id.
func uniqueCreativeID(set artifact.CreativeSet, want string) string {
	if want != "" && set.Find(want) < 0 {
		return want
	}
	return utils.NewID()
}

// Summary asks the manager for a client-facing summary of a completed
// project.
func (p *Pipeline) Summary(ctx context.Context, projectID string) (string, error) {
	ctx = p.traced(ctx, projectID)
	proj, err := p.projects.Get(ctx, projectID)
	if err != nil {
		return "", err
	}
	if proj.Status != types.StatusCompleted {
		return "", fmt.Errorf("%w: %s is %s", ErrNotCompleted, projectID, proj.Status)
	}
	in, err := p.completedInput(ctx, proj)
	if err != nil {
		return "", err
	}
	var set artifact.CreativeSet
	if ok, err := p.latestContent(ctx, projectID, artifact.TypeCopy, &set); err != nil {
		return "", err
	} else if ok {
		in.Creatives = &set
	}
	var banners artifact.BannerSet
	ok, err := p.latestContent(ctx, projectID, artifact.TypeBanners, &banners)
	if err != nil {
		return "", err
	}
	if !ok {
		return p.team.Manager.Summarize(ctx, in, nil)
	}
	return p.team.Manager.Summarize(ctx, in, &banners)
}
