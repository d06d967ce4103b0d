// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/naka-gawa/github-badges/internal/domain"
)

const (
	defaultMaxAttempts = 60
	defaultRetryDelay  = 2 * time.Second
)

// ErrStatsPending is returned when GitHub keeps answering 202 Accepted, meaning the requested
// statistics are still being computed.
var ErrStatsPending = errors.New("statistics are still being computed by GitHub")

// Account is the viewer's profile together with every repository discovered for it.
type Account struct {
	Login        string
	Name         string
	Repositories []domain.Repository
}

// Fetcher defines the behavior of a gateway for fetching information from GitHub.
type Fetcher interface {
	FetchAccount(ctx context.Context, includeContributed bool) (*Account, error)
	FetchTotalContributions(ctx context.Context) (int, error)
	// QueryREST issues a GET for path and decodes the JSON response into v.
	QueryREST(ctx context.Context, path string, v any) error
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        *zap.Logger
	maxAttempts   int
	retryDelay    time.Duration
}

type pageInfo struct {
	HasNextPage bool
	EndCursor   githubv4.String
}

type repoNode struct {
	NameWithOwner string
	IsFork        bool
	ForkCount     int
	Stargazers    struct {
		TotalCount int
	}
	Languages struct {
		Edges []struct {
			Size int
			Node struct {
				Name  string
				Color string
			}
		}
	} `graphql:"languages(first: 10, orderBy: {field: SIZE, direction: DESC})"`
}

type repoConnection struct {
	PageInfo pageInfo
	Nodes    []repoNode
}

// accountQuery walks owned and contributed-to repositories side by side.
type accountQuery struct {
	Viewer struct {
		Login                     string
		Name                      string
		Repositories              repoConnection `graphql:"repositories(first: 100, ownerAffiliations: [OWNER], orderBy: {field: UPDATED_AT, direction: DESC}, after: $ownedCursor)"`
		RepositoriesContributedTo repoConnection `graphql:"repositoriesContributedTo(first: 100, includeUserRepositories: false, orderBy: {field: UPDATED_AT, direction: DESC}, contributionTypes: [COMMIT, PULL_REQUEST, REPOSITORY, PULL_REQUEST_REVIEW], after: $contribCursor)"`
	}
}

type contributionYearsQuery struct {
	Viewer struct {
		ContributionsCollection struct {
			ContributionYears []int
		}
	}
}

type yearContributionsQuery struct {
	Viewer struct {
		ContributionsCollection struct {
			ContributionCalendar struct {
				TotalContributions int
			}
		} `graphql:"contributionsCollection(from: $from, to: $to)"`
	}
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
func NewGitHubGateway(token string, logger *zap.Logger) (*GitHubGateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}
	return &GitHubGateway{
		restClient:    github.NewClient(httpClient),
		graphqlClient: githubv4.NewClient(httpClient),
		logger:        logger,
		maxAttempts:   defaultMaxAttempts,
		retryDelay:    defaultRetryDelay,
	}, nil
}

// FetchAccount pages through the viewer's repositories. Contributed-to repositories are only
// requested when includeContributed is set.
func (g *GitHubGateway) FetchAccount(ctx context.Context, includeContributed bool) (*Account, error) {
	g.logger.Debug("fetching account repositories", zap.Bool("include_contributed", includeContributed))
	variables := map[string]interface{}{
		"ownedCursor":   (*githubv4.String)(nil),
		"contribCursor": (*githubv4.String)(nil),
	}

	account := &Account{}
	for page := 1; ; page++ {
		var q accountQuery
		if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
			return nil, fmt.Errorf("failed to execute GraphQL query for repositories: %w", err)
		}
		account.Login = q.Viewer.Login
		account.Name = q.Viewer.Name

		for _, node := range q.Viewer.Repositories.Nodes {
			account.Repositories = append(account.Repositories, node.toDomain(true))
		}
		if includeContributed {
			for _, node := range q.Viewer.RepositoriesContributedTo.Nodes {
				account.Repositories = append(account.Repositories, node.toDomain(false))
			}
		}

		ownedMore := q.Viewer.Repositories.PageInfo.HasNextPage
		contribMore := includeContributed && q.Viewer.RepositoriesContributedTo.PageInfo.HasNextPage
		if !ownedMore && !contribMore {
			break
		}
		// An exhausted connection stays parked on its last cursor and returns no more nodes.
		advanceCursor(variables, "ownedCursor", q.Viewer.Repositories.PageInfo)
		advanceCursor(variables, "contribCursor", q.Viewer.RepositoriesContributedTo.PageInfo)
		g.logger.Debug("fetching next page of repositories", zap.Int("page", page+1))
	}
	g.logger.Debug("completed fetching repositories", zap.Int("count", len(account.Repositories)))
	return account, nil
}

func advanceCursor(variables map[string]interface{}, key string, info pageInfo) {
	if info.EndCursor == "" {
		return
	}
	variables[key] = githubv4.NewString(info.EndCursor)
}

func (n repoNode) toDomain(owned bool) domain.Repository {
	repo := domain.Repository{
		NameWithOwner: n.NameWithOwner,
		IsFork:        n.IsFork,
		Owned:         owned,
		Stargazers:    n.Stargazers.TotalCount,
		Forks:         n.ForkCount,
	}
	for _, edge := range n.Languages.Edges {
		repo.Languages = append(repo.Languages, domain.LanguageEdge{
			Name:  edge.Node.Name,
			Color: edge.Node.Color,
			Size:  edge.Size,
		})
	}
	return repo
}

// FetchTotalContributions sums the contribution calendar of every year the viewer was active.
func (g *GitHubGateway) FetchTotalContributions(ctx context.Context) (int, error) {
	var yq contributionYearsQuery
	if err := g.graphqlClient.Query(ctx, &yq, nil); err != nil {
		return 0, fmt.Errorf("failed to execute GraphQL query for contribution years: %w", err)
	}
	years := yq.Viewer.ContributionsCollection.ContributionYears
	g.logger.Debug("fetching contributions", zap.Ints("years", years))

	var (
		mu    sync.Mutex
		total int
	)
	eg, egCtx := errgroup.WithContext(ctx)
	for _, year := range years {
		year := year
		eg.Go(func() error {
			from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			variables := map[string]interface{}{
				"from": githubv4.DateTime{Time: from},
				"to":   githubv4.DateTime{Time: from.AddDate(1, 0, 0)},
			}
			var q yearContributionsQuery
			if err := g.graphqlClient.Query(egCtx, &q, variables); err != nil {
				return fmt.Errorf("failed to execute GraphQL query for %d contributions: %w", year, err)
			}
			mu.Lock()
			total += q.Viewer.ContributionsCollection.ContributionCalendar.TotalContributions
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	return total, nil
}

// QueryREST issues a GET through the REST client. A 202 Accepted answer is retried until the
// data is ready or the attempts run out, in which case ErrStatsPending is returned.
func (g *GitHubGateway) QueryREST(ctx context.Context, path string, v any) error {
	req, err := g.restClient.NewRequest(http.MethodGet, strings.TrimPrefix(path, "/"), nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		_, err = g.restClient.Do(ctx, req, v)
		var accepted *github.AcceptedError
		if !errors.As(err, &accepted) {
			if err != nil {
				return fmt.Errorf("failed to query %s: %w", path, err)
			}
			return nil
		}
		g.logger.Debug("statistics not ready, retrying",
			zap.String("path", path), zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.retryDelay):
		}
	}
	return fmt.Errorf("failed to query %s: %w", path, ErrStatsPending)
}
