// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v62/github"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/github-badges/internal/domain"
	"github.com/naka-gawa/github-badges/internal/metrics"
	"github.com/naka-gawa/github-badges/internal/render"
)

// HistoryRepository loads and saves the persisted per-repository history.
type HistoryRepository interface {
	Load() (domain.StatsHistory, error)
	Save(history domain.StatsHistory) error
}

// Generator is the use case for generating all badges.
// It orchestrates fetching, merging the repository history and rendering.
type Generator struct {
	source      StatsSource
	renderer    *render.Renderer
	history     HistoryRepository
	metrics     *metrics.Recorder
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

// NewGenerator creates a new Generator instance. concurrency bounds the number of
// repositories whose traffic is fetched at the same time.
func NewGenerator(source StatsSource, renderer *render.Renderer, history HistoryRepository, recorder *metrics.Recorder, concurrency int, logger *zap.Logger) *Generator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Generator{
		source:      source,
		renderer:    renderer,
		history:     history,
		metrics:     recorder,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Run renders the overview, languages and per-repository badges concurrently and saves the
// updated history once every task has succeeded. On failure the persisted history is left as
// it was.
func (g *Generator) Run(ctx context.Context) (err error) {
	started := g.now()
	defer func() {
		g.metrics.ObserveRun(started, g.now(), err == nil)
	}()

	history, err := g.history.Load()
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.generateOverview(egCtx)
	})
	eg.Go(func() error {
		return g.generateLanguages(egCtx)
	})
	eg.Go(func() error {
		return g.updateRepoStats(egCtx, history)
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	if err := g.history.Save(history); err != nil {
		return err
	}
	g.metrics.TrackedRepos.Set(float64(len(history)))
	g.logger.Info("generation complete", zap.Int("tracked_repos", len(history)))
	return nil
}

func (g *Generator) generateOverview(ctx context.Context) error {
	var (
		data render.OverviewData
		err  error
	)
	if data.Name, err = g.source.Name(ctx); err != nil {
		return fmt.Errorf("failed to fetch name: %w", err)
	}
	if data.Stars, err = g.source.Stargazers(ctx); err != nil {
		return fmt.Errorf("failed to fetch stargazers: %w", err)
	}
	if data.Forks, err = g.source.Forks(ctx); err != nil {
		return fmt.Errorf("failed to fetch forks: %w", err)
	}
	if data.Contributions, err = g.source.TotalContributions(ctx); err != nil {
		return fmt.Errorf("failed to fetch contributions: %w", err)
	}
	if data.Additions, data.Deletions, err = g.source.LinesChanged(ctx); err != nil {
		return fmt.Errorf("failed to fetch lines changed: %w", err)
	}
	if data.Views, err = g.source.Views(ctx); err != nil {
		return fmt.Errorf("failed to fetch views: %w", err)
	}
	repos, err := g.source.Repos(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch repositories: %w", err)
	}
	data.Repos = len(repos)

	if err := g.renderer.Overview(data); err != nil {
		return err
	}
	g.metrics.BadgesRendered.WithLabelValues("overview").Inc()
	g.logger.Info("overview badge generated")
	return nil
}

func (g *Generator) generateLanguages(ctx context.Context) error {
	languages, err := g.source.Languages(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch languages: %w", err)
	}
	if err := g.renderer.Languages(languages); err != nil {
		return err
	}
	g.metrics.BadgesRendered.WithLabelValues("languages").Inc()
	g.logger.Info("languages badge generated", zap.Int("languages", len(languages)))
	return nil
}

type snapshotResult struct {
	snapshot domain.Snapshot
	err      error
}

// updateRepoStats fetches every repository's snapshot on a bounded pool, then merges them
// into history one by one. history is only touched from this goroutine.
func (g *Generator) updateRepoStats(ctx context.Context, history domain.StatsHistory) error {
	repos, err := g.source.Repos(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch repositories: %w", err)
	}
	if len(repos) == 0 {
		g.logger.Warn("no repositories found for the user; check the token permissions and exclusion settings")
		return nil
	}
	g.logger.Info("repositories to be processed", zap.Int("count", len(repos)), zap.Strings("repos", repos))

	results, err := g.fetchSnapshots(ctx, repos)
	if err != nil {
		return err
	}

	today := g.now()
	for i, repo := range repos {
		if results[i].err != nil {
			g.metrics.RepoFetchFailures.Inc()
			g.logger.Warn("keeping previous stats for repository",
				zap.String("repo", repo), zap.Error(results[i].err))
		} else {
			history[repo] = domain.MergeSnapshot(history[repo], results[i].snapshot, today)
			g.metrics.ReposMerged.Inc()
		}

		record, ok := history[repo]
		if !ok {
			continue
		}
		if _, err := g.renderer.RepoStatus(repo, record); err != nil {
			return err
		}
		g.metrics.BadgesRendered.WithLabelValues("repo").Inc()
	}
	return nil
}

func (g *Generator) fetchSnapshots(ctx context.Context, repos []string) ([]snapshotResult, error) {
	results := make([]snapshotResult, len(repos))
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, repo := range repos {
		i, repo := i, repo
		eg.Go(func() error {
			snap, err := g.fetchSnapshot(ctx, repo)
			results[i] = snapshotResult{snapshot: snap, err: err}
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// fetchSnapshot reads the current star count and the traffic totals of the last 14 days.
func (g *Generator) fetchSnapshot(ctx context.Context, repo string) (domain.Snapshot, error) {
	var info github.Repository
	if err := g.source.QueryREST(ctx, fmt.Sprintf("/repos/%s", repo), &info); err != nil {
		return domain.Snapshot{}, err
	}
	var clones github.TrafficClones
	if err := g.source.QueryREST(ctx, fmt.Sprintf("/repos/%s/traffic/clones", repo), &clones); err != nil {
		return domain.Snapshot{}, err
	}
	var views github.TrafficViews
	if err := g.source.QueryREST(ctx, fmt.Sprintf("/repos/%s/traffic/views", repo), &views); err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		Stars:  info.GetStargazersCount(),
		Clones: sumTrafficClones(&clones),
		Views:  sumTrafficViews(&views),
	}, nil
}
