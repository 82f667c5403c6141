package compliance

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/caseaudit/internal/money"
	"github.com/sells-group/caseaudit/internal/ocr"
)

// Where a protest amount was found.
const (
	SourceProtest = "protesto"
	SourceMemo    = "memoria"
)

const (
	labelProtest = "Protesto"
	labelMemo    = "Memória de Cálculo"
)

// ProtestCheck is the outcome of ValidateProtestAmount.
type ProtestCheck struct {
	OK      bool            `json:"ok"`
	Source  string          `json:"source,omitempty"`
	Match   money.MatchKind `json:"-"`
	Message string          `json:"message"`
}

// ValidateProtestAmount looks for the expected amount in the protest
// document. When it is not there and memoPath is set, the calculation memo
// is searched instead; a protest that aggregates several contracts will
// not show the single-contract amount. Unreadable documents count as
// "not found".
func ValidateProtestAmount(ctx context.Context, ext ocr.Extractor, protestPath, expected, memoPath string) ProtestCheck {
	if !exists(protestPath) {
		return ProtestCheck{Message: "Arquivo de Protesto não encontrado."}
	}
	target := strings.TrimSpace(expected)

	kind, msgProtest := searchAmount(ctx, ext, protestPath, labelProtest, target)
	if kind != money.NoMatch {
		return ProtestCheck{OK: true, Source: SourceProtest, Match: kind, Message: msgProtest}
	}

	if memoPath == "" {
		return ProtestCheck{Message: msgProtest}
	}

	kind, msgMemo := searchAmount(ctx, ext, memoPath, labelMemo, target)
	if kind != money.NoMatch {
		zap.L().Info("compliance: protest amount validated via memo",
			zap.String("protest", protestPath),
			zap.String("memo", memoPath),
			zap.String("amount", target),
		)
		return ProtestCheck{
			OK:      true,
			Source:  SourceMemo,
			Match:   kind,
			Message: fmt.Sprintf("VALIDADO VIA MEMÓRIA: %s (Protesto divergente aceito por compor múltiplos contratos)", msgMemo),
		}
	}
	return ProtestCheck{
		Message: fmt.Sprintf("Valor não encontrado no Protesto nem na Memória. (%s | %s)", msgProtest, msgMemo),
	}
}

func searchAmount(ctx context.Context, ext ocr.Extractor, path, label, target string) (money.MatchKind, string) {
	if !exists(path) {
		return money.NoMatch, label + ": Arquivo não acessível."
	}
	text, err := ext.ExtractText(ctx, path)
	if err != nil {
		return money.NoMatch, fmt.Sprintf("%s: Erro leitura PDF (%v)", label, err)
	}

	switch kind := money.Find(text, target); kind {
	case money.ExactMatch:
		return kind, fmt.Sprintf("Valor %s encontrado em %s (Match Exato).", target, label)
	case money.FlexibleMatch:
		return kind, fmt.Sprintf("Valor %s encontrado em %s (Regex Flexível).", target, label)
	default:
		return kind, fmt.Sprintf("Valor %s não encontrado em %s.", target, label)
	}
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
