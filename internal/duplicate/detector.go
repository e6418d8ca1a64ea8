package duplicate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

// DefaultCandidateLimit bounds how many stored quotes one check compares against.
const DefaultCandidateLimit = 500

// CandidateSource returns stored quotes whose author key starts with prefix.
type CandidateSource interface {
	AuthorCandidates(ctx context.Context, prefix string, limit int) ([]*domain.Quote, error)
}

// Recorder receives the outcome of each check.
type Recorder interface {
	ObserveDuplicateCheck(rule string, candidates int)
}

// Match is a stored quote that the incoming quote duplicates.
type Match struct {
	Quote *domain.Quote
	Comparison
}

// Decision is the result of a duplicate check.
type Decision struct {
	Admitted   bool
	Candidates int
	Matches    []Match
}

// DomainCandidates converts the matches into their domain form.
func (d Decision) DomainCandidates() []domain.DuplicateCandidate {
	out := make([]domain.DuplicateCandidate, 0, len(d.Matches))
	for _, m := range d.Matches {
		out = append(out, domain.DuplicateCandidate{
			QuoteID:     m.Quote.ID,
			Text:        m.Quote.Text,
			Author:      m.Quote.Author,
			Rule:        int(m.Rule),
			TextScore:   m.TextScore,
			AuthorScore: m.AuthorScore,
		})
	}

	return out
}

// DetectorConfig holds dependencies for the detector.
type DetectorConfig struct {
	Source         CandidateSource
	CandidateLimit int
	Recorder       Recorder
	Logger         *slog.Logger
}

// Detector checks incoming quotes against the quotes stored under the same author.
type Detector struct {
	source   CandidateSource
	limit    int
	recorder Recorder
	logger   *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(cfg DetectorConfig) *Detector {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := cfg.CandidateLimit
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	return &Detector{
		source:   cfg.Source,
		limit:    limit,
		recorder: cfg.Recorder,
		logger:   logger.With(slog.String("component", "duplicate_detector")),
	}
}

// Check compares text and author with candidates from the author index.
// Matches are ordered best first.
func (d *Detector) Check(ctx context.Context, text, author string) (Decision, error) {
	candidates, err := d.source.AuthorCandidates(ctx, CandidatePrefix(author), d.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("loading duplicate candidates: %w", err)
	}

	nt, na := NormalizeText(text), NormalizeAuthor(author)

	decision := Decision{Admitted: true, Candidates: len(candidates)}
	for _, q := range candidates {
		c := compareNormalized(nt, na, NormalizeText(q.Text), NormalizeAuthor(q.Author))
		if !c.Duplicate() {
			continue
		}

		decision.Admitted = false
		decision.Matches = append(decision.Matches, Match{Quote: q, Comparison: c})
	}

	sort.SliceStable(decision.Matches, func(i, j int) bool {
		a, b := decision.Matches[i], decision.Matches[j]
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}

		return a.TextScore+a.AuthorScore > b.TextScore+b.AuthorScore
	})

	rule := RuleNone
	if !decision.Admitted {
		rule = decision.Matches[0].Rule
		d.logger.InfoContext(ctx, "duplicate quote rejected",
			slog.String("rule", rule.String()),
			slog.String("match_id", decision.Matches[0].Quote.ID),
			slog.Int("matches", len(decision.Matches)),
		)
	}

	if d.recorder != nil {
		d.recorder.ObserveDuplicateCheck(rule.String(), len(candidates))
	}

	return decision, nil
}

// CandidatePrefix is the author index prefix searched for a given author.
// Trailing periods are dropped so "Einstein." and "Einstein" share candidates.
func CandidatePrefix(author string) string {
	key := domain.NormalizeKey(author)
	if trimmed := strings.TrimRight(key, ". "); trimmed != "" {
		return trimmed
	}

	return key
}
