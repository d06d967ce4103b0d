// Package metrics records what a generation run did, in a form the node exporter's
// textfile collector can pick up after the process has exited.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "github_badges"

// Recorder holds the collectors of a single run.
type Recorder struct {
	registry *prometheus.Registry

	BadgesRendered    *prometheus.CounterVec
	ReposMerged       prometheus.Counter
	RepoFetchFailures prometheus.Counter
	TrackedRepos      prometheus.Gauge
	RunDuration       prometheus.Gauge
	LastSuccess       prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		BadgesRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badges_rendered_total",
			Help:      "Number of SVG badges written, by badge kind.",
		}, []string{"badge"}),
		ReposMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repos_merged_total",
			Help:      "Number of repository snapshots merged into the history.",
		}),
		RepoFetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repo_fetch_failures_total",
			Help:      "Number of repositories whose snapshot could not be fetched.",
		}),
		TrackedRepos: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_repos",
			Help:      "Number of repositories present in the persisted history.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last generation run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful generation run.",
		}),
	}
	r.registry.MustRegister(
		r.BadgesRendered,
		r.ReposMerged,
		r.RepoFetchFailures,
		r.TrackedRepos,
		r.RunDuration,
		r.LastSuccess,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records the duration of a run and, when it succeeded, its completion time.
func (r *Recorder) ObserveRun(started, finished time.Time, succeeded bool) {
	r.RunDuration.Set(finished.Sub(started).Seconds())
	if succeeded {
		r.LastSuccess.Set(float64(finished.Unix()))
	}
}

// WriteTextfile writes every collected metric to path in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
