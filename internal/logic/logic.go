// Package logic implements the Logic Module (spec.md §4.3, C3): a block of
// newline-separated assignment expressions evaluated once per scan cycle,
// with optional per-assignment delayed transitions.
//
// Expressions are compiled with github.com/expr-lang/expr (already part of
// the teacher's dependency set, where it backs computed/derived metrics)
// instead of a hand-rolled recursive-descent parser. Each line's RHS is
// compiled once, at load time, without a typed environment; the function
// set {sin, cos, tan, abs, shl, shr}, the True/False constants and every
// tag's current value are bound in the env map each run is given (see
// ScanInputs). expr natively supports '**' for exponentiation, so only
// '<<'/'>>' need a small source-level rewrite to shl()/shr() calls before
// compilation.
package logic

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/metrics"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
	"github.com/sandialabs/sceptre-bennu-sub000/pkg/log"
)

// line is one compiled, non-blank assignment.
type line struct {
	raw         string
	lhs         string
	delayCycles int
	program     *vm.Program
}

// Logic holds the compiled program for a logic block and the per-tag delay
// bookkeeping that persists across scan cycles.
type Logic struct {
	mgr     *tagmanager.Manager
	metrics *metrics.Registry

	lines []line

	mu         sync.Mutex
	delayRemMs map[string]int64 // lhs tag -> remaining ms, only while delayed
	currentEnv map[string]interface{}
}

var funcs = map[string]interface{}{
	"sin": func(x float64) float64 { return math.Sin(x) },
	"cos": func(x float64) float64 { return math.Cos(x) },
	"tan": func(x float64) float64 { return math.Tan(x) },
	"abs": func(x float64) float64 { return math.Abs(x) },
	"shl": func(a, b int) int { return a << uint(b) },
	"shr": func(a, b int) int { return a >> uint(b) },
}

// rewriteShifts rewrites "L << R" / "L >> R" into "shl(L, R)" / "shr(L, R)"
// calls, since expr has no native bit-shift operator. Shifts inside
// parenthesized groups are rewritten group by group. Chained shifts are
// rewritten right-associatively; this is a deliberate simplification for a
// DSL that rarely chains shifts.
func rewriteShifts(src string) string {
	idx := findTopLevelShift(src)
	if idx < 0 {
		open := strings.IndexByte(src, '(')
		if open < 0 {
			return src
		}
		for i, depth := open, 0; i < len(src); i++ {
			switch src[i] {
			case '(':
				depth++
			case ')':
				if depth--; depth == 0 {
					return src[:open+1] + rewriteShifts(src[open+1:i]) + ")" + rewriteShifts(src[i+1:])
				}
			}
		}
		return src
	}
	left := rewriteShifts(strings.TrimSpace(src[:idx]))
	op := src[idx : idx+2]
	right := strings.TrimSpace(src[idx+2:])
	right = rewriteShifts(right)
	fn := "shl"
	if op == ">>" {
		fn = "shr"
	}
	return fmt.Sprintf("%s(%s, %s)", fn, left, right)
}

func findTopLevelShift(src string) int {
	depth := 0
	for i := 0; i < len(src)-1; i++ {
		switch src[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && (src[i:i+2] == "<<" || src[i:i+2] == ">>") {
			return i
		}
	}
	return -1
}

// New compiles logicSource (the "logic" element of the config tree) against
// mgr. Parse errors on an individual line are logged and that line is
// skipped (spec.md §4.3 Failure); the rest of the block still loads.
func New(mgr *tagmanager.Manager, m *metrics.Registry, logicSource string) *Logic {
	l := &Logic{
		mgr:        mgr,
		metrics:    m,
		delayRemMs: make(map[string]int64),
	}
	for _, raw := range strings.Split(logicSource, "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		ln, err := compileLine(trimmed)
		if err != nil {
			log.Warnf("logic: skipping line %q: %v", trimmed, err)
			m.IncLogicLineError()
			continue
		}
		l.lines = append(l.lines, *ln)
	}
	return l
}

func compileLine(raw string) (*line, error) {
	eq := strings.Index(raw, "=")
	if eq < 0 {
		return nil, fmt.Errorf("missing '='")
	}
	lhs := strings.TrimSpace(raw[:eq])
	if lhs == "" {
		return nil, fmt.Errorf("empty lhs")
	}
	rest := raw[eq+1:]

	rhsExpr := rest
	delayCycles := 0
	if comma := strings.Index(rest, ","); comma >= 0 {
		rhsExpr = rest[:comma]
		delaySpec := strings.TrimSpace(rest[comma+1:])
		n, err := parseDelaySpec(delaySpec)
		if err != nil {
			log.Warnf("logic: malformed delay %q on line %q, using 0: %v", delaySpec, raw, err)
			n = 0
		}
		delayCycles = n
	}
	rhsExpr = rewriteShifts(strings.TrimSpace(rhsExpr))

	program, err := expr.Compile(rhsExpr)
	if err != nil {
		return nil, fmt.Errorf("compiling rhs %q: %w", rhsExpr, err)
	}
	return &line{raw: raw, lhs: lhs, delayCycles: delayCycles, program: program}, nil
}

func parseDelaySpec(spec string) (int, error) {
	const prefix = "delay:"
	if !strings.HasPrefix(spec, prefix) {
		return 0, fmt.Errorf("expected %q prefix", prefix)
	}
	n, err := strconv.Atoi(strings.TrimSpace(spec[len(prefix):]))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// ScanInputs takes a consistent snapshot of every classified tag's current
// value and binds it into the evaluation environment for the lines that
// will run in ScanLogic this cycle (spec.md §4.4 step 1).
//
// The original substitutes tags textually and sorts binary tags by
// descending name length to avoid one tag name being a prefix of another;
// since expr tokenizes identifiers instead of doing string replacement,
// that hazard does not exist here, but the tags are still gathered in the
// same descending-length order for behavioral fidelity with spec.md's
// documented scan order.
func (l *Logic) ScanInputs() {
	binary := l.mgr.BinaryTags()
	analog := l.mgr.AnalogTags()
	sort.Slice(binary, func(i, j int) bool { return len(binary[i]) > len(binary[j]) })
	sort.Slice(analog, func(i, j int) bool { return len(analog[i]) > len(analog[j]) })

	env := make(map[string]interface{}, len(binary)+len(analog)+len(funcs)+2)
	for k, v := range funcs {
		env[k] = v
	}
	env["True"] = true
	env["False"] = false
	for _, t := range binary {
		env[t] = l.mgr.GetByTag(t).AsBool()
	}
	for _, t := range analog {
		env[t] = l.mgr.GetByTag(t).AsFloat64()
	}

	l.mu.Lock()
	l.currentEnv = env
	l.mu.Unlock()
}

// ScanLogic evaluates every compiled line against the environment captured
// by the most recent ScanInputs, applying the delay/pending-enqueue rules
// of spec.md §4.3, and enqueues changed values into the tag manager's
// pending-update maps. cyclePeriodMs is the configured scan period.
func (l *Logic) ScanLogic(cyclePeriodMs int64) {
	l.mu.Lock()
	env := l.currentEnv
	l.mu.Unlock()
	if env == nil {
		return
	}

	for _, ln := range l.lines {
		result, err := expr.Run(ln.program, env)
		if err != nil {
			log.Warnf("logic: evaluating line %q: %v", ln.raw, err)
			if l.metrics != nil {
				l.metrics.IncLogicLineError()
			}
			continue
		}
		l.applyResult(ln, result, cyclePeriodMs)
	}
}

func (l *Logic) applyResult(ln line, result interface{}, cyclePeriodMs int64) {
	class, known := l.mgr.ClassOf(ln.lhs)
	if !known {
		// Tags not yet classified (e.g. output-only placeholders) default
		// to analog coercion; most configs classify every lhs explicitly.
		class = tagmanager.Analog
	}

	current := l.mgr.GetByTag(ln.lhs)
	var newVal tagvalue.Value
	var differs bool
	switch class {
	case tagmanager.Binary:
		b := toBool(result)
		newVal = tagvalue.Bool(b)
		differs = b != current.AsBool()
	default:
		f := toFloat64(result)
		newVal = tagvalue.Float64(f)
		differs = f != current.AsFloat64()
	}

	l.mu.Lock()
	remaining, isDelayed := l.delayRemMs[ln.lhs]
	l.mu.Unlock()

	if !differs {
		l.clearDelay(ln.lhs)
		return
	}

	var pending bool
	switch class {
	case tagmanager.Binary:
		pending = l.mgr.HasPendingBinary(ln.lhs)
	default:
		pending = l.mgr.HasPendingAnalog(ln.lhs)
	}
	if pending {
		return
	}

	if !isDelayed {
		if ln.delayCycles > 0 {
			l.mu.Lock()
			l.delayRemMs[ln.lhs] = int64(ln.delayCycles) * cyclePeriodMs
			l.mu.Unlock()
			return
		}
		l.enqueue(ln.lhs, class, newVal)
		return
	}

	remaining -= cyclePeriodMs
	if remaining <= 0 {
		l.clearDelay(ln.lhs)
		l.enqueue(ln.lhs, class, newVal)
		return
	}
	l.mu.Lock()
	l.delayRemMs[ln.lhs] = remaining
	l.mu.Unlock()
}

func (l *Logic) clearDelay(tag string) {
	l.mu.Lock()
	delete(l.delayRemMs, tag)
	l.mu.Unlock()
}

func (l *Logic) enqueue(tag string, class tagmanager.Class, v tagvalue.Value) {
	switch class {
	case tagmanager.Binary:
		l.mgr.AddUpdatedBinary(tag, v.AsBool())
	default:
		l.mgr.AddUpdatedAnalog(tag, v.AsFloat64())
	}
}

// DelayRemainingMs reports the remaining delay (ms) for tag, and whether it
// is currently delayed at all. Exposed for tests verifying spec.md §8's
// monotonic-decrease invariant.
func (l *Logic) DelayRemainingMs(tag string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.delayRemMs[tag]
	return v, ok
}

func toBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return false
	}
}

func toFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}
