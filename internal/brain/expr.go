package brain

import (
	"math"
	"strconv"
)

type tokenKind uint8

const (
	tokEnd tokenKind = iota
	tokNumber
	tokVariable
	tokGT
	tokLT
	tokGE
	tokLE
	tokEQ
	tokNE
	tokAdd
	tokSub
	tokAnd
	tokOr
)

type token struct {
	kind tokenKind
	num  int32
	name string
}

// Condition is a rule condition tokenized once at load time.
//
// Grammar, evaluated left to right over the token stream:
//
//	value     = primary [ ("+" | "-") value ]
//	condition = value [ cmp value ] [ ("&&" | "||") condition ]
//
// Arithmetic is right-recursive, so "10 - 3 - 2" is 10 - (3 - 2) = 9. A
// value followed by nothing, or directly by a logical operator, is tested
// for non-zero. Tokenizing stops at the first unrecognised character.
// Identifiers are read whole and then truncated to the name limit, so an
// over-long name never spills into a following token.
type Condition struct {
	src  string
	toks []token
}

func Compile(src string) Condition {
	return Condition{src: src, toks: tokenize(src)}
}

func (c Condition) String() string { return c.src }

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}
func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }

var twoCharOps = map[string]tokenKind{
	">=": tokGE, "<=": tokLE, "==": tokEQ, "!=": tokNE, "&&": tokAnd, "||": tokOr,
}

var oneCharOps = map[byte]tokenKind{
	'>': tokGT, '<': tokLT, '+': tokAdd, '-': tokSub,
}

func tokenize(s string) []token {
	var out []token
	i := 0
	for {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			return out
		}

		// numbers, with a unary minus glued to the digits
		if isDigit(s[i]) || (s[i] == '-' && i+1 < len(s) && isDigit(s[i+1])) {
			j := i + 1
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			out = append(out, token{kind: tokNumber, num: parseInt32(s[i:j])})
			i = j
			continue
		}

		if i+1 < len(s) {
			if k, ok := twoCharOps[s[i:i+2]]; ok {
				out = append(out, token{kind: k})
				i += 2
				continue
			}
		}
		if k, ok := oneCharOps[s[i]]; ok {
			out = append(out, token{kind: k})
			i++
			continue
		}

		if isAlpha(s[i]) || s[i] == '_' {
			j := i + 1
			for j < len(s) && (isAlpha(s[j]) || isDigit(s[j]) || s[j] == '_') {
				j++
			}
			out = append(out, token{kind: tokVariable, name: truncName(s[i:j])})
			i = j
			continue
		}

		return out
	}
}

// parseInt32 saturates on overflow.
func parseInt32(s string) int32 {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		if s[0] == '-' {
			return math.MinInt32
		}
		return math.MaxInt32
	}
	return int32(n)
}

type evaluator struct {
	toks []token
	pos  int
	vars *Variables
}

func (e *evaluator) next() token {
	if e.pos >= len(e.toks) {
		return token{kind: tokEnd}
	}
	t := e.toks[e.pos]
	e.pos++
	return t
}

func (e *evaluator) peek() tokenKind {
	if e.pos >= len(e.toks) {
		return tokEnd
	}
	return e.toks[e.pos].kind
}

func (e *evaluator) value() int32 {
	var v int32
	switch t := e.next(); t.kind {
	case tokNumber:
		v = t.num
	case tokVariable:
		v = e.vars.Get(t.name)
	}
	switch e.peek() {
	case tokAdd:
		e.pos++
		v += e.value()
	case tokSub:
		e.pos++
		v -= e.value()
	}
	return v
}

func (e *evaluator) condition() bool {
	left := e.value()
	op := e.next()

	var result bool
	switch op.kind {
	case tokEnd:
		return left != 0
	case tokAnd:
		return left != 0 && e.condition()
	case tokOr:
		return left != 0 || e.condition()
	default:
		right := e.value()
		switch op.kind {
		case tokGT:
			result = left > right
		case tokLT:
			result = left < right
		case tokGE:
			result = left >= right
		case tokLE:
			result = left <= right
		case tokEQ:
			result = left == right
		case tokNE:
			result = left != right
		}
	}

	switch e.peek() {
	case tokAnd:
		e.pos++
		return result && e.condition()
	case tokOr:
		e.pos++
		return result || e.condition()
	}
	return result
}

// Eval evaluates the condition against vars. Unknown variables read as zero.
func (c Condition) Eval(vars *Variables) bool {
	e := evaluator{toks: c.toks, vars: vars}
	return e.condition()
}
