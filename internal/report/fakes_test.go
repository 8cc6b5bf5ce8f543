package report

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
	"github.com/lueurxax/insights-engine/internal/core/llm"
)

// memStore mirrors the write semantics of the Postgres store in memory.
type memStore struct {
	mu sync.Mutex

	seq   int
	clock time.Time

	subjects    map[string]*domain.Subject
	industries  map[string]*domain.Industry
	factors     map[domain.Category][]domain.FactorDefinition
	results     map[string]*domain.CategoryResult
	factorRows  map[string]*domain.FactorResult
	competitors map[string]map[string]*domain.CompetitionEntry
	investors   map[string]*domain.InvestorResult
	scores      map[string]domain.CategoryScore
	invocations map[string]*domain.Invocation

	persists int

	// beforePersist runs under no lock right before a write is applied.
	beforePersist func(w domain.ReportWrite)
}

func newMemStore() *memStore {
	return &memStore{
		clock:       time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		subjects:    map[string]*domain.Subject{},
		industries:  map[string]*domain.Industry{},
		factors:     map[domain.Category][]domain.FactorDefinition{},
		results:     map[string]*domain.CategoryResult{},
		factorRows:  map[string]*domain.FactorResult{},
		competitors: map[string]map[string]*domain.CompetitionEntry{},
		investors:   map[string]*domain.InvestorResult{},
		scores:      map[string]domain.CategoryScore{},
		invocations: map[string]*domain.Invocation{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++

	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)

	return m.clock
}

func (m *memStore) addSubject(key, industry string, financial []byte) *domain.Subject {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &domain.Subject{
		ID:            m.nextID("subject"),
		Key:           key,
		Kind:          domain.SubjectKindTicker,
		Name:          key + " Inc.",
		IndustryKey:   industry,
		FinancialData: financial,
	}
	m.subjects[key] = s

	if industry != "" {
		m.industries[industry] = &domain.Industry{Key: industry, Name: industry}
	}

	return s
}

func (m *memStore) addFactors(category domain.Category, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, key := range keys {
		m.factors[category] = append(m.factors[category], domain.FactorDefinition{
			ID:        m.nextID("factor"),
			Category:  category,
			Key:       key,
			Title:     key,
			SortOrder: i,
		})
	}
}

func resultKey(parts ...string) string {
	out := ""
	for _, p := range parts {
		out += p + "|"
	}

	return out
}

func (m *memStore) GetSubjectByKey(_ context.Context, key string) (*domain.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subjects[key]
	if !ok {
		return nil, fmt.Errorf("%w: subject %q", apperrors.ErrNotFound, key)
	}

	cp := *s

	return &cp, nil
}

func (m *memStore) GetIndustry(_ context.Context, key string) (*domain.Industry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ind, ok := m.industries[key]
	if !ok {
		return nil, fmt.Errorf("%w: industry %q", apperrors.ErrNotFound, key)
	}

	cp := *ind

	return &cp, nil
}

func (m *memStore) ListFactorDefinitions(_ context.Context, category domain.Category) ([]domain.FactorDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]domain.FactorDefinition(nil), m.factors[category]...), nil
}

func (m *memStore) GetCategoryResult(_ context.Context, subjectID string, category domain.Category) (*domain.CategoryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.results[resultKey(subjectID, string(category))]
	if !ok {
		return nil, fmt.Errorf("%w: %s result", apperrors.ErrNotFound, category)
	}

	cp := *res
	cp.Factors = m.factorResultsLocked(subjectID, category)

	return &cp, nil
}

func (m *memStore) factorResultsLocked(subjectID string, category domain.Category) []domain.FactorResult {
	var out []domain.FactorResult

	for _, def := range m.factors[category] {
		if row, ok := m.factorRows[resultKey(subjectID, def.ID)]; ok {
			out = append(out, *row)
		}
	}

	return out
}

func (m *memStore) ListCompetitionEntries(_ context.Context, subjectID string) ([]domain.CompetitionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.CompetitionEntry, 0, len(m.competitors[subjectID]))
	for _, e := range m.competitors[subjectID] {
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CompetitorKey < out[j].CompetitorKey })

	return out, nil
}

func (m *memStore) GetInvestorResult(_ context.Context, subjectID string, investor domain.InvestorKey) (*domain.InvestorResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.investors[resultKey(subjectID, string(investor))]
	if !ok {
		return nil, fmt.Errorf("%w: %s analysis", apperrors.ErrNotFound, investor)
	}

	cp := *res

	return &cp, nil
}

func (m *memStore) ListCategoryScores(_ context.Context, subjectID string) ([]domain.CategoryScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.scoresLocked(subjectID), nil
}

func (m *memStore) scoresLocked(subjectID string) []domain.CategoryScore {
	var out []domain.CategoryScore

	for _, c := range domain.FactorCategories() {
		if sc, ok := m.scores[resultKey(subjectID, string(c))]; ok {
			out = append(out, sc)
		}
	}

	return out
}

func (m *memStore) PersistReport(_ context.Context, w domain.ReportWrite) (*domain.PersistOutcome, error) {
	if err := w.Output.Validate(); err != nil {
		return nil, err
	}

	if m.beforePersist != nil {
		m.beforePersist(w)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		outcome *domain.PersistOutcome
		err     error
	)

	switch w.Output.Kind {
	case domain.OutputKindCategory:
		outcome, err = m.persistCategoryLocked(w)
	case domain.OutputKindCompetition:
		outcome, err = m.persistCompetitionLocked(w)
	case domain.OutputKindInvestor:
		outcome, err = m.persistInvestorLocked(w)
	}

	if err != nil {
		return nil, err
	}

	now := m.tick()
	subject := m.subjectByIDLocked(w.SubjectID)

	if avg, ok := domain.AverageScore(m.scoresLocked(w.SubjectID)); ok {
		subject.CachedScore = &avg
		outcome.CachedScore = &avg
	}

	subject.CacheInvalidatedAt = &now
	m.persists++

	return outcome, nil
}

func (m *memStore) subjectByIDLocked(id string) *domain.Subject {
	for _, s := range m.subjects {
		if s.ID == id {
			return s
		}
	}

	return nil
}

func (m *memStore) upsertResultLocked(w domain.ReportWrite, summary, details string) (*domain.CategoryResult, error) {
	key := resultKey(w.SubjectID, string(w.Category))
	now := m.tick()

	res, ok := m.results[key]
	if !ok {
		res = &domain.CategoryResult{
			ID:        m.nextID("result"),
			SubjectID: w.SubjectID,
			Category:  w.Category,
			Version:   1,
			CreatedAt: now,
		}
		m.results[key] = res
	} else {
		if res.Version != w.ExpectedVersion {
			return nil, fmt.Errorf("%w: %s result changed since version %d", apperrors.ErrConflict, w.Category, w.ExpectedVersion)
		}

		res.Version++
	}

	res.Summary = summary
	res.OverallAnalysisDetails = details
	res.UpdatedAt = now

	return res, nil
}

func (m *memStore) persistCategoryLocked(w domain.ReportWrite) (*domain.PersistOutcome, error) {
	out := w.Output.Category

	res, err := m.upsertResultLocked(w, out.OverallSummary, out.OverallAnalysisDetails)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]domain.FactorDefinition, len(w.Factors))
	for _, f := range w.Factors {
		byKey[f.Key] = f
	}

	outcome := &domain.PersistOutcome{ResultID: res.ID, Version: res.Version}

	for _, f := range out.Factors {
		def, ok := byKey[f.FactorAnalysisKey]
		if !ok {
			outcome.SkippedFactors = append(outcome.SkippedFactors, f.FactorAnalysisKey)

			continue
		}

		verdict, _ := domain.ParseVerdict(f.Result)
		key := resultKey(w.SubjectID, def.ID)

		row, ok := m.factorRows[key]
		if !ok {
			row = &domain.FactorResult{ID: m.nextID("factor-result"), SubjectID: w.SubjectID, FactorID: def.ID, FactorKey: def.Key}
			m.factorRows[key] = row
		}

		row.CategoryResultID = res.ID
		row.Result = verdict
		row.OneLineExplanation = f.OneLineExplanation
		row.DetailedExplanation = f.DetailedExplanation
		row.UpdatedAt = m.tick()
	}

	rows := m.factorResultsLocked(w.SubjectID, w.Category)
	score := domain.CategoryScore{
		SubjectID:   w.SubjectID,
		Category:    w.Category,
		Score:       domain.ScoreFromFactors(rows),
		FactorCount: len(rows),
		UpdatedAt:   m.tick(),
	}
	m.scores[resultKey(w.SubjectID, string(w.Category))] = score
	outcome.Score = &score

	return outcome, nil
}

func (m *memStore) persistCompetitionLocked(w domain.ReportWrite) (*domain.PersistOutcome, error) {
	out := w.Output.Competition

	res, err := m.upsertResultLocked(w, out.Summary, "")
	if err != nil {
		return nil, err
	}

	if m.competitors[w.SubjectID] == nil {
		m.competitors[w.SubjectID] = map[string]*domain.CompetitionEntry{}
	}

	for _, c := range out.CompetitionAnalysisArray {
		key := domain.CompetitorKey(c.CompanySymbol, c.CompanyName)

		entry, ok := m.competitors[w.SubjectID][key]
		if !ok {
			entry = &domain.CompetitionEntry{ID: m.nextID("competitor"), SubjectID: w.SubjectID, CompetitorKey: key}
			m.competitors[w.SubjectID][key] = entry
		}

		entry.CompanyName = c.CompanyName
		entry.CompanySymbol = c.CompanySymbol
		entry.DetailedComparison = c.DetailedComparison
		entry.UpdatedAt = m.tick()
	}

	return &domain.PersistOutcome{ResultID: res.ID, Version: res.Version}, nil
}

func (m *memStore) persistInvestorLocked(w domain.ReportWrite) (*domain.PersistOutcome, error) {
	out := w.Output.Investor
	key := resultKey(w.SubjectID, string(w.InvestorKey))

	res, ok := m.investors[key]
	if !ok {
		res = &domain.InvestorResult{ID: m.nextID("investor"), SubjectID: w.SubjectID, InvestorKey: w.InvestorKey, Version: 1}
		m.investors[key] = res
	} else {
		if res.Version != w.ExpectedVersion {
			return nil, fmt.Errorf("%w: %s analysis changed since version %d", apperrors.ErrConflict, w.InvestorKey, w.ExpectedVersion)
		}

		res.Version++
	}

	res.Summary = out.Summary
	res.DetailedAnalysis = out.DetailedAnalysis
	res.Verdict = out.Verdict
	res.UpdatedAt = m.tick()

	return &domain.PersistOutcome{ResultID: res.ID, Version: res.Version}, nil
}

// bumpVersion simulates a concurrent writer committing first.
func (m *memStore) bumpVersion(subjectID string, category domain.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res, ok := m.results[resultKey(subjectID, string(category))]; ok {
		res.Version++
	}
}

func (m *memStore) CreateInvocation(_ context.Context, inv *domain.Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv.CreatedAt = m.tick()
	cp := *inv
	m.invocations[inv.ID] = &cp

	return nil
}

func (m *memStore) UpdateInvocation(_ context.Context, inv *domain.Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invocations[inv.ID]; !ok {
		return fmt.Errorf("%w: invocation %s", apperrors.ErrNotFound, inv.ID)
	}

	cp := *inv
	m.invocations[inv.ID] = &cp

	return nil
}

func (m *memStore) GetInvocation(_ context.Context, id string) (*domain.Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invocations[id]
	if !ok {
		return nil, fmt.Errorf("%w: invocation %s", apperrors.ErrNotFound, id)
	}

	cp := *inv

	return &cp, nil
}

func (m *memStore) ListInvocations(_ context.Context, subjectID string, limit int) ([]domain.Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Invocation

	for _, inv := range m.invocations {
		if inv.SubjectID == subjectID {
			out = append(out, *inv)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (m *memStore) resultCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.results) + len(m.investors)
}

// fakeGenerator returns a fixed payload and records every request.
type fakeGenerator struct {
	mu       sync.Mutex
	raw      []byte
	err      error
	requests []llm.GenerationRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req llm.GenerationRequest) (llm.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)

	if g.err != nil {
		return llm.Generation{Attempts: 1}, g.err
	}

	return llm.Generation{Raw: g.raw, Provider: llm.ProviderMock, Model: "test-model", Attempts: 1}, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.requests)
}

// recordingInvalidator remembers invalidated tags.
type recordingInvalidator struct {
	mu   sync.Mutex
	tags []string
	err  error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, tags ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tags = append(r.tags, tags...)

	return r.err
}

// mapViews is an in-memory view cache.
type mapViews struct {
	mu    sync.Mutex
	items map[string][]byte
	tags  map[string][]string
}

func newMapViews() *mapViews {
	return &mapViews{items: map[string][]byte{}, tags: map[string][]string{}}
}

func (v *mapViews) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, ok := v.items[key]
	if !ok {
		return false, nil
	}

	return true, json.Unmarshal(raw, dst)
}

func (v *mapViews) Set(_ context.Context, key string, value interface{}, tags ...string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.items[key] = raw

	for _, t := range tags {
		v.tags[t] = append(v.tags[t], key)
	}

	return nil
}

func (v *mapViews) Invalidate(_ context.Context, tags ...string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, t := range tags {
		for _, key := range v.tags[t] {
			delete(v.items, key)
		}

		delete(v.tags, t)
	}

	return nil
}

func categoryPayload(summary string, results map[string]string, order ...string) []byte {
	out := domain.CategoryOutput{OverallSummary: summary, OverallAnalysisDetails: summary + " in detail."}

	for _, key := range order {
		out.Factors = append(out.Factors, domain.FactorOutput{
			FactorAnalysisKey:   key,
			OneLineExplanation:  key + " explained.",
			DetailedExplanation: key + " explained at length.",
			Result:              results[key],
		})
	}

	raw, err := json.Marshal(out)
	if err != nil {
		panic(err)
	}

	return raw
}
