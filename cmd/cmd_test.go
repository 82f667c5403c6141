package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/caseaudit/internal/compliance"
	"github.com/sells-group/caseaudit/internal/evidence"
	"github.com/sells-group/caseaudit/internal/lookup"
	"github.com/sells-group/caseaudit/internal/manifest"
	"github.com/sells-group/caseaudit/internal/model"
	"github.com/sells-group/caseaudit/internal/ocr"
	"github.com/sells-group/caseaudit/internal/report"
	"github.com/sells-group/caseaudit/internal/resilience"
	"github.com/sells-group/caseaudit/internal/store"
)

type mockPort struct {
	mock.Mock
}

func (m *mockPort) FindReference(ctx context.Context, code string) (string, bool, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockPort) SumDebt(ctx context.Context, ref, cnpj string) (lookup.DebtSum, error) {
	args := m.Called(ctx, ref, cnpj)
	return args.Get(0).(lookup.DebtSum), args.Error(1)
}

type testEnv struct {
	*auditEnv
	dir    string
	ledger string
	port   *mockPort
}

// newTestEnv wires a real engine over text evidence (Plain extractor), a
// mocked spreadsheet port, a temp ledger and a temp SQLite store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	port := new(mockPort)
	port.On("FindReference", mock.Anything, "CT-001").Return("1234", true, nil)
	port.On("FindReference", mock.Anything, mock.Anything).Return("", false, nil)
	port.On("SumDebt", mock.Anything, "1234", mock.Anything).Return(lookup.DebtSum{Total: 4846.53, Rows: 2}, nil)

	ext := ocr.NewCache(ocr.NewPlain(), 2)
	resilient := lookup.NewResilient(port, resilience.RetryConfig{Attempts: 1}, resilience.DefaultBreakerConfig())
	engine, err := compliance.NewEngine(resilient, ext, evidence.NewClassifier(evidence.DefaultTable(), ext), compliance.Options{})
	require.NoError(t, err)

	st, err := store.NewSQLite(filepath.Join(dir, "decisions.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))

	ledger := filepath.Join(dir, "case_report.csv")
	env := &auditEnv{
		Engine:    engine,
		Extractor: ext,
		Lookup:    resilient,
		Ledger:    report.NewCSVLedger(ledger),
		Store:     st,
	}
	t.Cleanup(env.Close)
	return &testEnv{auditEnv: env, dir: dir, ledger: ledger, port: port}
}

func (te *testEnv) doc(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(te.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

// completeManifest returns a case whose evidence satisfies every rule.
func (te *testEnv) completeManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m := &manifest.Manifest{
		CaseData: model.CaseData{
			CaseID:       "48500.000123/2024-11",
			ContractCode: "CT-001",
			CNPJ:         "12.345.678/0001-90",
			DebtAmount:   "R$ 4.846,53",
		},
		Evidence: []model.EvidenceItem{
			{DisplayName: "Relatorio ANEEL", FilePath: te.doc(t, "relatorio.txt", "relatório")},
			{DisplayName: "Comprovante de Protesto", FilePath: te.doc(t, "protesto.txt", "Protesto efetivado R$ 4.846,53")},
			{DisplayName: "Termo de Compromisso", FilePath: te.doc(t, "termo.txt", "assinado pelas partes")},
			{DisplayName: "Certidao CND", FilePath: te.doc(t, "cnd.txt", "certidão negativa")},
		},
	}
	return m
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"evaluate", "batch", "protest", "ledger", "decisions", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "caseaudit", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  string
		flag string
		def  string
	}{
		{"evaluate", "manifest", ""},
		{"evaluate", "json", "false"},
		{"batch", "dir", "."},
		{"batch", "limit", "0"},
		{"protest", "protest", ""},
		{"protest", "amount", ""},
		{"protest", "memo", ""},
		{"ledger", "path", ""},
		{"decisions", "limit", "20"},
		{"serve", "port", "0"},
	}
	for _, tt := range tests {
		c, _, err := rootCmd.Find([]string{tt.cmd})
		require.NoError(t, err)
		f := c.Flags().Lookup(tt.flag)
		require.NotNil(t, f, "%s --%s", tt.cmd, tt.flag)
		assert.Equal(t, tt.def, f.DefValue, "%s --%s", tt.cmd, tt.flag)
	}
}

func TestEvaluateCase_Approved(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()

	out, err := te.evaluateCase(ctx, te.completeManifest(t))
	require.NoError(t, err)

	assert.True(t, out.Decision.Approved)
	assert.Equal(t, compliance.ActionApprove, out.Plan.Action)
	require.NotNil(t, out.Ledger)
	assert.Equal(t, "Aprovar", out.Ledger.FinalAction)
	assert.Equal(t, "OK", out.Ledger.DocStatus)
	assert.NotEmpty(t, out.RecordID)

	rec, err := te.Store.LatestDecision(ctx, "48500.000123/2024-11")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, out.RecordID, rec.ID)

	totals, err := report.ReadTotals(ctx, te.ledger)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Aprovar": 1}, totals.ByAction)

	cache := te.Extractor.(*ocr.Cache)
	assert.Zero(t, cache.Len())
}

func TestEvaluateCase_Adjust(t *testing.T) {
	te := newTestEnv(t)
	m := te.completeManifest(t)
	m.Evidence = m.Evidence[:3]

	out, err := te.evaluateCase(context.Background(), m)
	require.NoError(t, err)

	assert.False(t, out.Decision.Approved)
	assert.Equal(t, compliance.ActionAdjust, out.Plan.Action)
	require.Len(t, out.Plan.Flags, 1)
	assert.Equal(t, "Regularidade do CNPJ", out.Plan.Flags[0].Label)
	assert.Contains(t, out.Ledger.DocStatus, "Rule 6.1")
}

func TestEvaluateCase_InputError(t *testing.T) {
	te := newTestEnv(t)
	m := te.completeManifest(t)
	m.Evidence = append(m.Evidence, model.EvidenceItem{DisplayName: "sem arquivo"})

	_, err := te.evaluateCase(context.Background(), m)
	require.Error(t, err)

	totals, err := report.ReadTotals(context.Background(), te.ledger)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Erro": 1}, totals.ByAction)

	rec, err := te.Store.LatestDecision(context.Background(), m.CaseID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEvaluateCase_CancelledIsNotADecision(t *testing.T) {
	te := newTestEnv(t)
	m := te.completeManifest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := te.evaluateCase(ctx, m)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)

	totals, err := report.ReadTotals(context.Background(), te.ledger)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Erro": 1}, totals.ByAction)

	rec, err := te.Store.LatestDecision(context.Background(), m.CaseID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

type stubEvaluator struct {
	approved map[string]bool
	fail     map[string]bool
	seen     []string
}

func (s *stubEvaluator) evaluateCase(_ context.Context, m *manifest.Manifest) (*caseOutcome, error) {
	s.seen = append(s.seen, m.CaseID)
	if s.fail[m.CaseID] {
		return nil, assert.AnError
	}
	return &caseOutcome{Case: m.CaseData, Decision: &model.DecisionResult{Approved: s.approved[m.CaseID]}}, nil
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"a.yaml": "case_id: A\n",
		"b.yaml": "case_id: B\n",
		"c.yaml": "case_id: C\n",
		"d.yaml": "case_id: [broken\n",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	paths, err := manifest.Glob(dir)
	require.NoError(t, err)

	ev := &stubEvaluator{approved: map[string]bool{"A": true}, fail: map[string]bool{"B": true}}
	sum := runBatch(context.Background(), ev, paths)

	assert.Equal(t, batchSummary{Processed: 4, Approved: 1, Adjust: 1, Failed: 2}, sum)
	assert.Equal(t, []string{"A", "B", "C"}, ev.seen)
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ev := &stubEvaluator{}
	sum := runBatch(ctx, ev, []string{"x.yaml"})
	assert.Zero(t, sum.Processed)
	assert.Empty(t, ev.seen)
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	d := &model.DecisionResult{
		Reasons:  []model.ValidationReason{{RuleID: model.RuleRegularityCert, Message: "Certidão de regularidade ausente (Rule 6.1)."}},
		Warnings: []string{"Benefício da dúvida"},
	}
	printOutcome(&buf, &caseOutcome{
		Case:     model.CaseData{CaseID: "C1", ContractCode: "CT-001"},
		Decision: d,
		Plan:     compliance.PlanSubmission(d),
	})
	out := buf.String()
	assert.Contains(t, out, "Case C1 (contract CT-001): Ajustar")
	assert.Contains(t, out, "[regularity_certificate]")
	assert.Contains(t, out, "warning: Benefício da dúvida")
}

func TestPrintTotals(t *testing.T) {
	var buf bytes.Buffer
	printTotals(&buf, "r.csv", &report.Totals{Rows: 3, ByAction: map[string]int{"Ajustar": 2, "Aprovar": 1}})
	assert.Equal(t, "r.csv: 3 cases\n  Ajustar      2\n  Aprovar      1\n", buf.String())
}

func TestPrintDecisions_Empty(t *testing.T) {
	var buf bytes.Buffer
	printDecisions(&buf, nil)
	assert.Equal(t, "no decisions\n", buf.String())
}
