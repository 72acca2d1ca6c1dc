package token

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/docforge/invoice-extract/internal/artifact"
)

const (
	NormalizeStageName    = "normalize_tokens"
	NormalizeStageVersion = "1.0.1"
)

// Lookalike punctuation and exotic spaces mapped to their ASCII equivalents.
// Applied after NFKC so compatibility forms are already folded.
var charReplacer = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"–", "-", // en dash
	"—", "-", // em dash
	"―", "-", // horizontal bar
	"−", "-", // minus sign
	"·", ".", // middle dot
	"•", ".", // bullet
	"⋅", ".", // dot operator
	" ", " ",
	" ", " ",
	" ", " ",
	"　", " ",
)

var zeroWidthReplacer = strings.NewReplacer(
	"\u200B", "",
	"\u200C", "",
	"\u200D", "",
	"\uFEFF", "",
)

// NormalizeText canonicalizes raw token text. The transform is pure and
// idempotent: normalizing already-normalized text is a no-op.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = zeroWidthReplacer.Replace(s)
	s = charReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Normalize is stage two: it returns a new Result with Norm computed for
// every token across all engine blocks (or the legacy single list), leaving
// ids, bboxes and ordering untouched.
func Normalize(in *Result) *Result {
	out := &Result{
		Envelope: artifact.NewEnvelope(in.DocID, NormalizeStageName, NormalizeStageVersion),
		Warnings: in.Warnings,
	}
	for _, block := range in.Engines {
		nb := block
		nb.Tokens = normalizeTokens(block.Tokens)
		out.Engines = append(out.Engines, nb)
	}
	if len(in.Engines) == 0 && len(in.Tokens) > 0 {
		out.Tokens = normalizeTokens(in.Tokens)
	}
	return out
}

func normalizeTokens(tokens []Token) []Token {
	out := make([]Token, len(tokens))
	copy(out, tokens)
	for i := range out {
		out[i].Norm = NormalizeText(out[i].Text)
	}
	return out
}
