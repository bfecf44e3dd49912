package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"adflow/internal/artifact"
	"adflow/internal/gateway/app"
	"adflow/internal/pipeline"
	"adflow/internal/types"
)

type runOptions struct {
	url         string
	name        string
	owner       string
	answersFile string
	outDir      string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once for a URL and write the artifacts",
		Example: `  adflow run --url https://coffee.example --answers answers.yaml --out out
  adflow run --url https://t.me/coffee_channel`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(o.url) == "" {
				return errors.New("--url is required")
			}
			answers, err := readAnswers(o.answersFile)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), root.cfg, root.log)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.Background())
			return runOnce(cmd.Context(), a, o, answers, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.url, "url", "", "website or Telegram channel to advertise")
	cmd.Flags().StringVar(&o.name, "name", "", "project name (default: taken from the brief)")
	cmd.Flags().StringVar(&o.owner, "owner", "cli", "project owner id")
	cmd.Flags().StringVar(&o.answersFile, "answers", "", "YAML or JSON file with interview answers")
	cmd.Flags().StringVar(&o.outDir, "out", "", "directory to write the latest artifacts to")
	return cmd
}

// readAnswers accepts YAML or JSON; JSON is valid YAML.
func readAnswers(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	var answers map[string]any
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("parse answers %s: %w", path, err)
	}
	return answers, nil
}

func runOnce(ctx context.Context, a *app.App, o runOptions, answers map[string]any, out io.Writer) error {
	svc := a.Service()
	p, err := svc.CreateProject(ctx, o.owner, o.url, o.name)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "project %s\n", p.ID)

	streamCtx, cancel := context.WithCancel(ctx)
	events, err := svc.StreamEvents(streamCtx, p.ID, false)
	if err != nil {
		cancel()
		return err
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			printEvent(out, ev)
		}
	}()
	stopStream := func() {
		cancel()
		wg.Wait()
	}

	run, err := a.Runner().Start(ctx, p.ID)
	if err != nil {
		stopStream()
		return err
	}
	if err := run.Wait(ctx); err != nil {
		stopStream()
		return fmt.Errorf("pipeline failed: %w", err)
	}

	st, err := svc.GetStatus(ctx, p.ID)
	if err != nil {
		stopStream()
		return err
	}
	if st.Project.Status == types.StatusQuestions {
		if answers == nil {
			stopStream()
			fmt.Fprintf(out, "project %s is waiting for answers; rerun with --answers\n", p.ID)
			return printQuestions(ctx, a, p.ID, out)
		}
		run, err = a.Runner().Submit(ctx, p.ID, answers)
		if err != nil {
			stopStream()
			return err
		}
		if err := run.Wait(ctx); err != nil {
			stopStream()
			return fmt.Errorf("pipeline failed: %w", err)
		}
	}
	// The stream closes by itself on pipeline_complete.
	wg.Wait()
	cancel()

	if o.outDir != "" {
		if err := writeArtifacts(ctx, a, p.ID, o.outDir); err != nil {
			return err
		}
		fmt.Fprintf(out, "artifacts written to %s\n", o.outDir)
	}
	return nil
}

func printEvent(out io.Writer, ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventStageStart:
		fmt.Fprintf(out, "stage %v: %v\n", ev.Data["stage"], ev.Data["name"])
	case pipeline.EventArtifactRevision:
		fmt.Fprintf(out, "  %v revision %v (score %v)\n", ev.Data["type"], ev.Data["revision"], ev.Data["score"])
	case pipeline.EventArtifactApproved:
		fmt.Fprintf(out, "  %v v%v approved\n", ev.Data["type"], ev.Data["version"])
	case pipeline.EventQuestionsReady:
		fmt.Fprintln(out, "questions ready")
	case pipeline.EventPipelineComplete:
		fmt.Fprintln(out, "pipeline complete")
	case pipeline.EventPipelineError:
		fmt.Fprintf(out, "pipeline error: %v\n", ev.Data["error"])
	}
}

func printQuestions(ctx context.Context, a *app.App, projectID string, out io.Writer) error {
	latest, err := a.Service().LatestArtifact(ctx, projectID, string(artifact.TypeQuestions))
	if err != nil {
		return err
	}
	var q artifact.Questions
	if err := latest.Decode(&q); err != nil {
		return err
	}
	for _, item := range q.Questions {
		fmt.Fprintf(out, "  %s: %s\n", item.ID, item.Question)
	}
	return nil
}

func writeArtifacts(ctx context.Context, a *app.App, projectID, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	all, err := a.Service().ListArtifacts(ctx, projectID)
	if err != nil {
		return err
	}
	latest := map[artifact.Type]artifact.Artifact{}
	for _, art := range all {
		if cur, ok := latest[art.Type]; !ok || art.Version > cur.Version {
			latest[art.Type] = art
		}
	}
	for t, art := range latest {
		if err := writeJSON(dir, string(t)+".json", art.Content); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(dir, name string, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), b, 0o644)
}
