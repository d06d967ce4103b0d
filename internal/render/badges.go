package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/naka-gawa/github-badges/internal/domain"
)

const (
	defaultLanguageColor = "#000000"
	// animationStepMillis staggers the fade-in of each language row.
	animationStepMillis = 150
)

// OverviewData holds the account-level numbers shown on the overview badge.
type OverviewData struct {
	Name          string
	Stars         int
	Forks         int
	Contributions int
	Additions     int
	Deletions     int
	Views         int
	Repos         int
}

// Overview renders overview.svg.
func (r *Renderer) Overview(data OverviewData) error {
	return r.renderTo(OverviewTemplate, OverviewOutput, map[string]string{
		"name":          data.Name,
		"stars":         humanize.Comma(int64(data.Stars)),
		"forks":         humanize.Comma(int64(data.Forks)),
		"contributions": humanize.Comma(int64(data.Contributions)),
		"lines_changed": humanize.Comma(int64(data.Additions + data.Deletions)),
		"views":         humanize.Comma(int64(data.Views)),
		"repos":         humanize.Comma(int64(data.Repos)),
	})
}

// Languages renders languages.svg, largest language first.
func (r *Renderer) Languages(languages map[string]domain.LanguageStat) error {
	sorted := SortLanguages(languages)

	var progress, list strings.Builder
	for i, lang := range sorted {
		color := lang.Color
		if color == "" {
			color = defaultLanguageColor
		}
		fmt.Fprintf(&progress,
			`<span style="background-color: %s;width: %0.3f%%;" class="progress-item"></span>`,
			color, lang.Proportion)
		fmt.Fprintf(&list, `
<li style="animation-delay: %dms;">
<svg xmlns="http://www.w3.org/2000/svg" class="octicon" style="fill:%s;"
viewBox="0 0 16 16" version="1.1" width="16" height="16"><path
fill-rule="evenodd" d="M8 4a4 4 0 100 8 4 4 0 000-8z"></path></svg>
<span class="lang">%s</span>
<span class="percent">%0.2f%%</span>
</li>

`, i*animationStepMillis, color, lang.Name, lang.Proportion)
	}

	return r.renderTo(LanguagesTemplate, LanguagesOutput, map[string]string{
		"progress":  progress.String(),
		"lang_list": list.String(),
	})
}

// SortLanguages orders languages by size descending, ties broken by name.
func SortLanguages(languages map[string]domain.LanguageStat) []domain.LanguageStat {
	sorted := make([]domain.LanguageStat, 0, len(languages))
	for name, lang := range languages {
		if lang.Name == "" {
			lang.Name = name
		}
		sorted = append(sorted, lang)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Size != sorted[j].Size {
			return sorted[i].Size > sorted[j].Size
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// RepoStatus renders the per-repository badge and returns the file name it was written to.
func (r *Renderer) RepoStatus(repo string, record *domain.RepoStatRecord) (string, error) {
	var stars, clones, views int
	if record != nil {
		stars, clones, views = record.Stars, record.Clones, record.Views
	}
	fileName := RepoStatusFileName(repo)
	err := r.renderTo(RepoStatusTemplate, fileName, map[string]string{
		"repo":   repo,
		"stars":  strconv.Itoa(stars),
		"clones": strconv.Itoa(clones),
		"views":  strconv.Itoa(views),
	})
	return fileName, err
}

var unsafeFileChars = strings.NewReplacer(
	"/", "__",
	`\`, "_",
	":", "_",
	"*", "_",
	"?", "_",
	`"`, "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "_",
)

// RepoStatusFileName derives a deterministic, path-safe badge file name for a repository.
func RepoStatusFileName(repo string) string {
	return unsafeFileChars.Replace(repo) + "_status.svg"
}
