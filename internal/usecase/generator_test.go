package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-badges/internal/domain"
	"github.com/naka-gawa/github-badges/internal/metrics"
	"github.com/naka-gawa/github-badges/internal/render"
	"github.com/naka-gawa/github-badges/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// mockSource is a mock implementation of the StatsSource interface.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) Name(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockSource) Stargazers(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockSource) Forks(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockSource) TotalContributions(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockSource) LinesChanged(ctx context.Context) (int, int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *mockSource) Views(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockSource) Repos(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockSource) Languages(ctx context.Context) (map[string]domain.LanguageStat, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.LanguageStat), args.Error(1)
}

func (m *mockSource) QueryREST(ctx context.Context, path string, v any) error {
	args := m.Called(ctx, path, v)
	if fill, ok := args.Get(0).(func(any)); ok {
		fill(v)
		return nil
	}
	return args.Error(0)
}

// traffic registers the REST responses of one repository.
func (m *mockSource) traffic(repo string, stars, clones, views int) {
	m.On("QueryREST", mock.Anything, fmt.Sprintf("/repos/%s", repo), mock.Anything).Return(func(v any) {
		*v.(*github.Repository) = github.Repository{StargazersCount: github.Int(stars)}
	})
	m.On("QueryREST", mock.Anything, fmt.Sprintf("/repos/%s/traffic/clones", repo), mock.Anything).Return(func(v any) {
		*v.(*github.TrafficClones) = github.TrafficClones{Clones: []*github.TrafficData{{Count: github.Int(clones)}}}
	})
	m.On("QueryREST", mock.Anything, fmt.Sprintf("/repos/%s/traffic/views", repo), mock.Anything).Return(func(v any) {
		*v.(*github.TrafficViews) = github.TrafficViews{Views: []*github.TrafficData{{Count: github.Int(views)}}}
	})
}

func (m *mockSource) account(repos []string) {
	m.On("Name", mock.Anything).Return("Octo Cat", nil)
	m.On("Stargazers", mock.Anything).Return(1234, nil)
	m.On("Forks", mock.Anything).Return(56, nil)
	m.On("TotalContributions", mock.Anything).Return(7890, nil)
	m.On("LinesChanged", mock.Anything).Return(1000, 500, nil)
	m.On("Views", mock.Anything).Return(42, nil)
	m.On("Repos", mock.Anything).Return(repos, nil)
	m.On("Languages", mock.Anything).Return(map[string]domain.LanguageStat{
		"Go": {Name: "Go", Color: "#00ADD8", Size: 10, Occurrences: 1, Proportion: 100},
	}, nil)
}

type fixture struct {
	templateDir string
	outputDir   string
	statsPath   string
	recorder    *metrics.Recorder
	store       *store.HistoryStore
}

func newFixture(t *testing.T, templates bool) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		templateDir: filepath.Join(root, "templates"),
		outputDir:   filepath.Join(root, "generated"),
		statsPath:   filepath.Join(root, "generated", "repo_stats.json"),
		recorder:    metrics.NewRecorder(),
	}
	f.store = store.NewHistoryStore(f.statsPath)
	require.NoError(t, os.MkdirAll(f.templateDir, 0o755))
	if templates {
		f.writeTemplate(t, render.OverviewTemplate, "{{ name }} {{ stars }} {{ lines_changed }} {{ repos }}")
		f.writeTemplate(t, render.LanguagesTemplate, "{{ progress }}")
		f.writeTemplate(t, render.RepoStatusTemplate, "{{ repo }} {{ stars }} {{ clones }} {{ views }}")
	}
	return f
}

func (f *fixture) writeTemplate(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.templateDir, name), []byte(content), 0o644))
}

func (f *fixture) generator(source StatsSource, today string) *Generator {
	g := NewGenerator(source, render.NewRenderer(f.templateDir, f.outputDir, zap.NewNop()), f.store, f.recorder, 2, zap.NewNop())
	d, _ := time.Parse(domain.DateLayout, today)
	g.now = func() time.Time { return d.Add(12 * time.Hour) }
	return g
}

func (f *fixture) output(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.outputDir, name))
	require.NoError(t, err)
	return string(data)
}

func TestGenerator_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, true)

	// First run: every repository is a first observation.
	source := new(mockSource)
	source.account([]string{"a/b", "c/d"})
	source.traffic("a/b", 10, 2, 5)
	source.traffic("c/d", 0, 0, 0)
	require.NoError(t, f.generator(source, "2024-01-01").Run(context.Background()))

	assert.Equal(t, "Octo Cat 1,234 1,500 2", f.output(t, render.OverviewOutput))
	assert.Contains(t, f.output(t, render.LanguagesOutput), "#00ADD8")
	assert.Equal(t, "a/b 10 2 5", f.output(t, "a__b_status.svg"))
	assert.Equal(t, "c/d 0 0 0", f.output(t, "c__d_status.svg"))

	// Second run: deltas are accumulated.
	source = new(mockSource)
	source.account([]string{"a/b", "c/d"})
	source.traffic("a/b", 15, 1, 9)
	source.traffic("c/d", 1, 3, 0)
	require.NoError(t, f.generator(source, "2024-01-02").Run(context.Background()))

	history, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, &domain.RepoStatRecord{
		Stars: 15, Clones: 2, Views: 9,
		LastStars: 15, LastClones: 1, LastViews: 9,
		History: map[string]domain.DayStats{
			"2024-01-01": {Stars: 10, Clones: 2, Views: 5},
			"2024-01-02": {Stars: 5, Clones: 0, Views: 4},
		},
	}, history["a/b"])
	assert.Equal(t, 3, history["c/d"].Clones)
	assert.Equal(t, "a/b 15 2 9", f.output(t, "a__b_status.svg"))

	assert.Equal(t, 4.0, testutil.ToFloat64(f.recorder.ReposMerged))
	assert.Equal(t, 4.0, testutil.ToFloat64(f.recorder.BadgesRendered.WithLabelValues("repo")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.recorder.TrackedRepos))
	source.AssertExpectations(t)
}

func TestGenerator_RunWithoutRepositories(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, true)
	source := new(mockSource)
	source.account([]string{})

	require.NoError(t, f.generator(source, "2024-01-01").Run(context.Background()))

	assert.Equal(t, "Octo Cat 1,234 1,500 0", f.output(t, render.OverviewOutput))
	history, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.FileExists(t, f.statsPath)
}

func TestGenerator_FailedRepositoryKeepsPreviousRecord(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, true)
	previous := &domain.RepoStatRecord{
		Stars: 3, Clones: 3, Views: 3, LastStars: 3, LastClones: 3, LastViews: 3,
		History: map[string]domain.DayStats{"2024-01-01": {Stars: 3, Clones: 3, Views: 3}},
	}
	require.NoError(t, f.store.Save(domain.StatsHistory{"a/b": previous}))

	source := new(mockSource)
	source.account([]string{"a/b", "new/repo"})
	source.On("QueryREST", mock.Anything, "/repos/a/b", mock.Anything).Return(errors.New("502 bad gateway"))
	source.On("QueryREST", mock.Anything, "/repos/new/repo", mock.Anything).Return(errors.New("502 bad gateway"))

	require.NoError(t, f.generator(source, "2024-01-02").Run(context.Background()))

	history, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, previous, history["a/b"])
	assert.NotContains(t, history, "new/repo")
	assert.Equal(t, "a/b 3 3 3", f.output(t, "a__b_status.svg"))
	assert.NoFileExists(t, filepath.Join(f.outputDir, "new__repo_status.svg"))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.recorder.RepoFetchFailures))
}

func TestGenerator_MissingTemplateDoesNotSave(t *testing.T) {
	testCases := []struct {
		name    string
		missing string
	}{
		{name: "overview", missing: render.OverviewTemplate},
		{name: "languages", missing: render.LanguagesTemplate},
		{name: "repo status", missing: render.RepoStatusTemplate},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			f := newFixture(t, true)
			require.NoError(t, os.Remove(filepath.Join(f.templateDir, tc.missing)))

			source := new(mockSource)
			source.account([]string{"a/b"})
			source.traffic("a/b", 1, 1, 1)

			err := f.generator(source, "2024-01-01").Run(context.Background())

			require.ErrorIs(t, err, render.ErrTemplateNotFound)
			assert.NoFileExists(t, f.statsPath)
			assert.Zero(t, testutil.ToFloat64(f.recorder.LastSuccess))
		})
	}
}

func TestGenerator_SourceErrorAborts(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, true)
	source := new(mockSource)
	source.On("Name", mock.Anything).Return("", errors.New("bad credentials"))
	source.On("Languages", mock.Anything).Return(nil, errors.New("bad credentials"))
	source.On("Repos", mock.Anything).Return(nil, errors.New("bad credentials"))

	err := f.generator(source, "2024-01-01").Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad credentials")
	assert.NoFileExists(t, f.statsPath)
}

func TestGenerator_CorruptHistoryAborts(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, os.MkdirAll(f.outputDir, 0o755))
	require.NoError(t, os.WriteFile(f.statsPath, []byte("{not json"), 0o644))

	err := f.generator(new(mockSource), "2024-01-01").Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode history")
}
