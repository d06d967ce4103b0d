package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/go-github/v62/github"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/naka-gawa/github-badges/internal/domain"
	"github.com/naka-gawa/github-badges/internal/gateway"
)

// StatsSource supplies account-level statistics on demand.
type StatsSource interface {
	Name(ctx context.Context) (string, error)
	Stargazers(ctx context.Context) (int, error)
	Forks(ctx context.Context) (int, error)
	TotalContributions(ctx context.Context) (int, error)
	LinesChanged(ctx context.Context) (additions, deletions int, err error)
	Views(ctx context.Context) (int, error)
	Repos(ctx context.Context) ([]string, error)
	Languages(ctx context.Context) (map[string]domain.LanguageStat, error)
	QueryREST(ctx context.Context, path string, v any) error
}

// Filter selects which repositories and languages are counted.
type Filter struct {
	ExcludedRepos      []string
	ExcludedLangs      []string
	ExcludeForkedRepos bool
}

// Stats is the StatsSource backed by a gateway.Fetcher. Every figure is fetched at most once
// and is safe to request from concurrent goroutines.
type Stats struct {
	fetcher gateway.Fetcher
	logger  *zap.Logger

	excludedRepos map[string]struct{}
	excludedLangs map[string]struct{}
	excludeForks  bool

	account       lazy[*accountSummary]
	contributions lazy[int]
	lines         lazy[[2]int]
	views         lazy[int]
}

type accountSummary struct {
	login      string
	name       string
	repos      []string
	stargazers int
	forks      int
	languages  map[string]domain.LanguageStat
}

// NewStats creates a new Stats instance.
func NewStats(fetcher gateway.Fetcher, filter Filter, logger *zap.Logger) *Stats {
	s := &Stats{
		fetcher:       fetcher,
		logger:        logger,
		excludedRepos: make(map[string]struct{}, len(filter.ExcludedRepos)),
		excludedLangs: make(map[string]struct{}, len(filter.ExcludedLangs)),
		excludeForks:  filter.ExcludeForkedRepos,
	}
	for _, repo := range filter.ExcludedRepos {
		s.excludedRepos[repo] = struct{}{}
	}
	for _, lang := range filter.ExcludedLangs {
		s.excludedLangs[strings.ToLower(lang)] = struct{}{}
	}
	return s
}

// lazy caches the first successful result of a load. Failed loads are retried on the next call.
type lazy[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
}

func (l *lazy[T]) get(load func() (T, error)) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return l.val, nil
	}
	val, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	l.val, l.done = val, true
	return val, nil
}

func (s *Stats) summary(ctx context.Context) (*accountSummary, error) {
	return s.account.get(func() (*accountSummary, error) {
		account, err := s.fetcher.FetchAccount(ctx, !s.excludeForks)
		if err != nil {
			return nil, err
		}
		return s.summarize(account), nil
	})
}

func (s *Stats) summarize(account *gateway.Account) *accountSummary {
	sum := &accountSummary{
		login:     account.Login,
		name:      account.Name,
		languages: map[string]domain.LanguageStat{},
	}
	if sum.name == "" {
		sum.name = account.Login
	}

	seen := make(map[string]struct{}, len(account.Repositories))
	for _, repo := range account.Repositories {
		if _, dup := seen[repo.NameWithOwner]; dup || repo.NameWithOwner == "" {
			continue
		}
		if _, excluded := s.excludedRepos[repo.NameWithOwner]; excluded {
			continue
		}
		if s.excludeForks && (repo.IsFork || !repo.Owned) {
			continue
		}
		seen[repo.NameWithOwner] = struct{}{}
		sum.repos = append(sum.repos, repo.NameWithOwner)
		sum.stargazers += repo.Stargazers
		sum.forks += repo.Forks

		for _, edge := range repo.Languages {
			if _, excluded := s.excludedLangs[strings.ToLower(edge.Name)]; excluded {
				continue
			}
			lang, ok := sum.languages[edge.Name]
			if !ok {
				lang = domain.LanguageStat{Name: edge.Name, Color: edge.Color}
			}
			lang.Size += edge.Size
			lang.Occurrences++
			sum.languages[edge.Name] = lang
		}
	}

	applyProportions(sum.languages)
	return sum
}

func applyProportions(languages map[string]domain.LanguageStat) {
	sizes := make(stats.Float64Data, 0, len(languages))
	for _, lang := range languages {
		sizes = append(sizes, float64(lang.Size))
	}
	total, err := stats.Sum(sizes)
	if err != nil || total == 0 {
		return
	}
	for name, lang := range languages {
		lang.Proportion = 100 * float64(lang.Size) / total
		languages[name] = lang
	}
}

// Name returns the display name of the account, or its login when no name is set.
func (s *Stats) Name(ctx context.Context) (string, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return "", err
	}
	return sum.name, nil
}

// Stargazers returns the total number of stars across the counted repositories.
func (s *Stats) Stargazers(ctx context.Context) (int, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return 0, err
	}
	return sum.stargazers, nil
}

// Forks returns the total number of forks across the counted repositories.
func (s *Stats) Forks(ctx context.Context) (int, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return 0, err
	}
	return sum.forks, nil
}

// Repos returns the counted repositories in discovery order.
func (s *Stats) Repos(ctx context.Context) ([]string, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), sum.repos...), nil
}

// Languages returns the language breakdown of the counted repositories.
func (s *Stats) Languages(ctx context.Context) (map[string]domain.LanguageStat, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.LanguageStat, len(sum.languages))
	for name, lang := range sum.languages {
		out[name] = lang
	}
	return out, nil
}

// TotalContributions returns the all-time contribution count of the account.
func (s *Stats) TotalContributions(ctx context.Context) (int, error) {
	return s.contributions.get(func() (int, error) {
		return s.fetcher.FetchTotalContributions(ctx)
	})
}

// LinesChanged sums the account's weekly additions and deletions over the counted repositories.
// Repositories whose contributor statistics cannot be fetched count as zero.
func (s *Stats) LinesChanged(ctx context.Context) (int, int, error) {
	lines, err := s.lines.get(func() ([2]int, error) {
		sum, err := s.summary(ctx)
		if err != nil {
			return [2]int{}, err
		}
		var additions, deletions int
		for _, repo := range sum.repos {
			var contributors []*github.ContributorStats
			if err := s.fetcher.QueryREST(ctx, fmt.Sprintf("/repos/%s/stats/contributors", repo), &contributors); err != nil {
				if ctx.Err() != nil {
					return [2]int{}, ctx.Err()
				}
				s.logger.Warn("skipping contributor stats", zap.String("repo", repo), zap.Error(err))
				continue
			}
			for _, c := range contributors {
				if c.GetAuthor().GetLogin() != sum.login {
					continue
				}
				for _, week := range c.Weeks {
					additions += week.GetAdditions()
					deletions += week.GetDeletions()
				}
			}
		}
		return [2]int{additions, deletions}, nil
	})
	return lines[0], lines[1], err
}

// Views sums the daily view counts reported by the traffic API over the counted repositories.
func (s *Stats) Views(ctx context.Context) (int, error) {
	return s.views.get(func() (int, error) {
		sum, err := s.summary(ctx)
		if err != nil {
			return 0, err
		}
		total := 0
		for _, repo := range sum.repos {
			var views github.TrafficViews
			if err := s.fetcher.QueryREST(ctx, fmt.Sprintf("/repos/%s/traffic/views", repo), &views); err != nil {
				if ctx.Err() != nil {
					return 0, ctx.Err()
				}
				s.logger.Warn("skipping traffic views", zap.String("repo", repo), zap.Error(err))
				continue
			}
			total += sumTrafficViews(&views)
		}
		return total, nil
	})
}

// QueryREST passes a request through to the underlying gateway.
func (s *Stats) QueryREST(ctx context.Context, path string, v any) error {
	return s.fetcher.QueryREST(ctx, path, v)
}

func sumTrafficViews(views *github.TrafficViews) int {
	total := 0
	for _, day := range views.Views {
		total += day.GetCount()
	}
	return total
}

func sumTrafficClones(clones *github.TrafficClones) int {
	total := 0
	for _, day := range clones.Clones {
		total += day.GetCount()
	}
	return total
}
