// Package retrieve implements the read pipeline: fast-path category lookups,
// journal timeline reads, and hybrid vector+full-text search fused by
// reciprocal rank and ranked by salience under a token budget.
package retrieve

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/embed"
	"github.com/openclaw/openclaw-memory/internal/store"
)

// timelineMaxFiles bounds how many journal days a timeline query reads.
const timelineMaxFiles = 7

// Scope is one searchable memory root.
type Scope struct {
	Root  string
	Store *store.Store
}

// Result is one retrieved snippet.
type Result struct {
	ID            string
	URI           string
	Content       string
	Salience      float64
	Type          string
	Section       string
	Reinforcement int
	Tokens        int
}

// Response carries the results plus budget telemetry.
type Response struct {
	Results         []Result
	TotalTokens     int
	BudgetRemaining int
	FastPath        bool
	Partial         bool // true when embedding was unavailable and only FTS ran
	Query           string
}

// Retriever answers queries over the two scopes.
type Retriever struct {
	Global   *Scope
	Project  *Scope
	Embedder embed.Embedder
	Tokens   *chunk.TokenCounter
	Logger   *slog.Logger

	MaxTokens    int
	TopK         int
	HalfLifeDays float64
	Now          func() time.Time
}

// New creates a retriever with the configured search tuning.
func New(global, project *Scope, emb embed.Embedder, cfg config.SearchConfig, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		Global:       global,
		Project:      project,
		Embedder:     emb,
		Tokens:       chunk.DefaultCounter(),
		Logger:       logger,
		MaxTokens:    cfg.DefaultMaxTokens,
		TopK:         cfg.DefaultTopK,
		HalfLifeDays: cfg.RecencyHalfLifeDays,
		Now:          time.Now,
	}
}

// Search runs the three-stage read pipeline. scopeFilter narrows where to
// look: global, project, user, agent, journal, or empty for everywhere.
// maxTokens <= 0 uses the configured default budget.
func (r *Retriever) Search(ctx context.Context, query, scopeFilter string, maxTokens int) (*Response, error) {
	if maxTokens <= 0 {
		maxTokens = r.MaxTokens
	}
	resp := &Response{Query: query, BudgetRemaining: maxTokens}

	if scopeFilter != "journal" {
		if rule, ok := matchFastPath(query); ok {
			if done := r.fastPath(resp, rule, maxTokens); done {
				return resp, nil
			}
		}
	}

	if scopeFilter == "journal" || timelineRe.MatchString(query) {
		r.timeline(resp, maxTokens)
		return resp, nil
	}

	return r.hybrid(ctx, resp, query, scopeFilter, maxTokens)
}

// fastPath returns the whole category file when it exists. Access counters
// stay untouched; the index is bypassed entirely.
func (r *Retriever) fastPath(resp *Response, rule fastPathRule, maxTokens int) bool {
	scope := r.Project
	if rule.global {
		scope = r.Global
	}
	data, err := os.ReadFile(filepath.Join(scope.Root, filepath.FromSlash(rule.uri)))
	if err != nil {
		return false
	}

	content := string(data)
	tokens := r.Tokens.Count(content)
	resp.Results = []Result{{
		URI:      rule.uri,
		Content:  content,
		Salience: 1.0,
		Type:     rule.typ,
		Tokens:   tokens,
	}}
	resp.TotalTokens = tokens
	resp.BudgetRemaining = maxTokens - tokens
	resp.FastPath = true
	return true
}

// timeline reads journal files newest-first until the budget is met.
func (r *Retriever) timeline(resp *Response, maxTokens int) {
	dir := filepath.Join(r.Project.Root, "journal")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	// Journal files are named YYYY-MM-DD.md, so lexicographic descending
	// is newest-first.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) > timelineMaxFiles {
		names = names[:timelineMaxFiles]
	}

	total := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		content := string(data)
		tokens := r.Tokens.Count(content)
		if total+tokens > maxTokens {
			break
		}
		total += tokens
		resp.Results = append(resp.Results, Result{
			URI:      "journal/" + name,
			Content:  content,
			Salience: 1.0,
			Type:     "event",
			Tokens:   tokens,
		})
	}
	resp.TotalTokens = total
	resp.BudgetRemaining = maxTokens - total
}

// hybrid runs vector and full-text search over the selected scopes, fuses
// the lists, ranks by salience, and fills the budget greedily.
func (r *Retriever) hybrid(ctx context.Context, resp *Response, query, scopeFilter string, maxTokens int) (*Response, error) {
	scopes, parentDir := r.selectScopes(scopeFilter)
	fetch := 2 * r.TopK

	var vecList, ftsList rankedList
	vecList.src = make(map[string]*store.Store)
	ftsList.src = make(map[string]*store.Store)

	qv, embedErr := r.Embedder.Embed(ctx, query)
	if embedErr != nil {
		r.Logger.Warn("embedding unavailable, falling back to full-text only",
			slog.String("error", embedErr.Error()))
		resp.Partial = true
	}

	for _, scope := range scopes {
		if qv != nil {
			hits, err := scope.Store.VectorSearch(ctx, qv, fetch, parentDir)
			if err != nil {
				return nil, err
			}
			for _, h := range hits {
				vecList.hits = append(vecList.hits, h)
				vecList.src[h.ID] = scope.Store
			}
		}
		hits, err := scope.Store.FTSSearch(ctx, query, fetch, parentDir)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			ftsList.hits = append(ftsList.hits, h)
			ftsList.src[h.ID] = scope.Store
		}
	}

	// Per-scope lists are already ranked; re-sort the concatenation so
	// cross-scope ranks stay meaningful for fusion.
	sortHits(vecList.hits)
	sortHits(ftsList.hits)

	candidates := rrfFuse(vecList, ftsList)
	maxR, maxA := setMaxima(candidates)
	now := r.Now()

	type scored struct {
		fused
		salience float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, f := range candidates {
		ranked = append(ranked, scored{f, salience(f, maxR, maxA, r.HalfLifeDays, now)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].salience != ranked[j].salience {
			return ranked[i].salience > ranked[j].salience
		}
		return ranked[i].rec.ID < ranked[j].rec.ID
	})

	accessed := make(map[*store.Store][]string)
	total := 0
	for _, s := range ranked {
		if total+s.rec.TokenCount > maxTokens {
			break
		}
		total += s.rec.TokenCount
		resp.Results = append(resp.Results, Result{
			ID:            s.rec.ID,
			URI:           s.rec.URI,
			Content:       s.rec.Content,
			Salience:      s.salience,
			Type:          s.rec.Type,
			Section:       s.rec.Section,
			Reinforcement: s.rec.Reinforcement,
			Tokens:        s.rec.TokenCount,
		})
		accessed[s.src] = append(accessed[s.src], s.rec.ID)
	}
	resp.TotalTokens = total
	resp.BudgetRemaining = maxTokens - total

	// Best-effort: a failed counter bump never fails the search.
	for st, ids := range accessed {
		if err := st.IncrementAccessCounts(ctx, ids); err != nil {
			r.Logger.Warn("failed to bump access counts", slog.String("error", err.Error()))
		}
	}
	return resp, nil
}

// selectScopes maps a scope filter to the stores to query and an optional
// parent-dir restriction. Unknown filters fall back to searching everywhere.
func (r *Retriever) selectScopes(filter string) ([]*Scope, string) {
	switch filter {
	case "global":
		return []*Scope{r.Global}, ""
	case "user":
		return []*Scope{r.Global}, "user"
	case "project":
		return []*Scope{r.Project}, ""
	case "agent":
		return []*Scope{r.Project}, "agent"
	case "":
		return []*Scope{r.Global, r.Project}, ""
	default:
		r.Logger.Warn("unknown scope filter, searching all scopes", slog.String("filter", filter))
		return []*Scope{r.Global, r.Project}, ""
	}
}

func sortHits(hits []store.Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

// setMaxima returns the reinforcement and access maxima over the candidate
// set, for log normalization.
func setMaxima(candidates []fused) (maxR, maxA int) {
	for _, f := range candidates {
		if f.rec.Reinforcement > maxR {
			maxR = f.rec.Reinforcement
		}
		if f.rec.AccessCount > maxA {
			maxA = f.rec.AccessCount
		}
	}
	return maxR, maxA
}
