package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func registerBuiltins(in *Interp) {
	for name, cmd := range map[string]Command{
		"set":      cmdSet,
		"unset":    cmdUnset,
		"incr":     cmdIncr,
		"append":   cmdAppend,
		"global":   cmdGlobal,
		"upvar":    cmdUpvar,
		"proc":     cmdProc,
		"return":   cmdReturn,
		"expr":     cmdExpr,
		"if":       cmdIf,
		"while":    cmdWhile,
		"for":      cmdFor,
		"foreach":  cmdForeach,
		"break":    cmdBreak,
		"continue": cmdContinue,
		"puts":     cmdPuts,
		"list":     cmdList,
		"llength":  cmdLlength,
		"lindex":   cmdLindex,
		"lappend":  cmdLappend,
		"lrange":   cmdLrange,
		"lsearch":  cmdLsearch,
		"lsort":    cmdLsort,
		"concat":   cmdConcat,
		"join":     cmdJoin,
		"split":    cmdSplit,
		"string":   cmdString,
		"info":     cmdInfo,
		"error":    cmdError,
		"catch":    cmdCatch,
		"eval":     cmdEval,
		"subst":    cmdSubst,
		"rename":   cmdRename,
		"format":   cmdFormat,
		"switch":   cmdSwitch,
	} {
		in.commands[name] = cmd
	}
}

func cmdSet(_ context.Context, in *Interp, args []string) (string, error) {
	switch len(args) {
	case 2:
		v, ok := in.Var(args[1])
		if !ok {
			return "", fmt.Errorf("can't read %q: no such variable", args[1])
		}
		return v, nil
	case 3:
		return in.SetVar(args[1], args[2]), nil
	}
	return "", wrongArgs("set varName ?newValue?")
}

func cmdUnset(_ context.Context, in *Interp, args []string) (string, error) {
	names := args[1:]
	strict := true
	if len(names) > 0 && names[0] == "-nocomplain" {
		strict, names = false, names[1:]
	}
	if len(names) > 0 && names[0] == "--" {
		names = names[1:]
	}
	for _, name := range names {
		if !in.UnsetVar(name) && strict {
			return "", fmt.Errorf("can't unset %q: no such variable", name)
		}
	}
	return "", nil
}

func cmdIncr(_ context.Context, in *Interp, args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", wrongArgs("incr varName ?increment?")
	}
	step := int64(1)
	if len(args) == 3 {
		n, err := parseInt(args[2])
		if err != nil {
			return "", err
		}
		step = n
	}
	cur := int64(0)
	if v, ok := in.Var(args[1]); ok {
		n, err := parseInt(v)
		if err != nil {
			return "", err
		}
		cur = n
	}
	return in.SetVar(args[1], strconv.FormatInt(cur+step, 10)), nil
}

func cmdAppend(_ context.Context, in *Interp, args []string) (string, error) {
	if len(args) < 2 {
		return "", wrongArgs("append varName ?value ...?")
	}
	v, _ := in.Var(args[1])
	return in.SetVar(args[1], v+strings.Join(args[2:], "")), nil
}

func cmdGlobal(_ context.Context, in *Interp, args []string) (string, error) {
	if len(args) < 2 {
		return "", wrongArgs("global varName ?varName ...?")
	}
	for _, name := range args[1:] {
		in.linkGlobal(strings.TrimPrefix(name, "::"))
	}
	return "", nil
}

func cmdUpvar(_ context.Context, in *Interp, args []string) (string, error) {
	rest := args[1:]
	target := len(in.frames) - 2
	if len(rest)%2 == 1 {
		level := rest[0]
		rest = rest[1:]
		switch {
		case strings.HasPrefix(level, "#"):
			n, err := strconv.Atoi(level[1:])
			if err != nil {
				return "", fmt.Errorf("bad level %q", level)
			}
			target = n
		default:
			n, err := strconv.Atoi(level)
			if err != nil {
				return "", fmt.Errorf("bad level %q", level)
			}
			target = len(in.frames) - 1 - n
		}
	}
	if len(rest) == 0 {
		return "", wrongArgs("upvar ?level? otherVar localVar ?otherVar localVar ...?")
	}
	if target < 0 || target >= len(in.frames) {
		return "", fmt.Errorf("bad level")
	}
	src := in.frames[target]
	for i := 0; i+1 < len(rest); i += 2 {
		other, local := rest[i], rest[i+1]
		v, ok := src.vars[other]
		if !ok {
			v = &variable{}
			src.vars[other] = v
		}
		in.current().vars[local] = v
	}
	return "", nil
}

// procedure is a user-defined command created by proc.
type procedure struct {
	name   string
	params []Param
	body   string
}

func (p *procedure) usage() string {
	parts := []string{p.name}
	for i, prm := range p.params {
		switch {
		case prm.Name == "args" && i == len(p.params)-1:
			parts = append(parts, "?arg ...?")
		case prm.HasDefault:
			parts = append(parts, "?"+prm.Name+"?")
		default:
			parts = append(parts, prm.Name)
		}
	}
	return strings.Join(parts, " ")
}

func (p *procedure) call(ctx context.Context, in *Interp, args []string) (string, error) {
	f := newFrame()
	actual := args[1:]
	for i, prm := range p.params {
		if prm.Name == "args" && i == len(p.params)-1 {
			f.vars["args"] = &variable{value: FormatList(actual[min(i, len(actual)):]), set: true}
			actual = actual[:min(i, len(actual))]
			break
		}
		switch {
		case i < len(actual):
			f.vars[prm.Name] = &variable{value: actual[i], set: true}
		case prm.HasDefault:
			f.vars[prm.Name] = &variable{value: prm.Default, set: true}
		default:
			return "", wrongArgs(p.usage())
		}
	}
	if len(actual) > len(p.params) {
		return "", wrongArgs(p.usage())
	}

	if err := in.pushFrame(f); err != nil {
		return "", err
	}
	defer in.popFrame()

	res, err := in.Eval(ctx, p.body)
	var ret *ReturnError
	if errors.As(err, &ret) {
		return ret.Value, nil
	}
	return res, err
}

// Proc returns the parameters and body of the procedure bound to name.
func (in *Interp) Proc(name string) (params []Param, body string, ok bool) {
	p, ok := in.procs[name]
	if !ok {
		return nil, "", false
	}
	return p.params, p.body, true
}

// DefineProc creates a procedure the way the proc command does.
func (in *Interp) DefineProc(name, params, body string) error {
	parsed, err := ParseParams(params)
	if err != nil {
		return err
	}
	p := &procedure{name: name, params: parsed, body: body}
	in.procs[name] = p
	in.commands[name] = p.call
	return nil
}

func cmdProc(_ context.Context, in *Interp, args []string) (string, error) {
	if len(args) != 4 {
		return "", wrongArgs("proc name args body")
	}
	return "", in.DefineProc(args[1], args[2], args[3])
}

func cmdReturn(_ context.Context, _ *Interp, args []string) (string, error) {
	rest := args[1:]
	for len(rest) >= 2 && strings.HasPrefix(rest[0], "-") {
		rest = rest[2:]
	}
	value := ""
	if len(rest) > 0 {
		value = rest[len(rest)-1]
	}
	return "", &ReturnError{Value: value}
}

func cmdExpr(ctx context.Context, in *Interp, args []string) (string, error) {
	if len(args) < 2 {
		return "", wrongArgs("expr arg ?arg ...?")
	}
	return in.Expr(ctx, strings.Join(args[1:], " "))
}

func cmdIf(ctx context.Context, in *Interp, args []string) (string, error) {
	i := 1
	for {
		if i >= len(args) {
			return "", wrongArgs("if expr1 ?then? body1 elseif expr2 ?then? body2 elseif ... ?else? ?bodyN?")
		}
		ok, err := in.ExprBool(ctx, args[i])
		if err != nil {
			return "", err
		}
		i++
		if i < len(args) && args[i] == "then" {
			i++
		}
		if i >= len(args) {
			return "", fmt.Errorf("wrong # args: no script following %q argument", args[i-1])
		}
		if ok {
			return in.Eval(ctx, args[i])
		}
		i++
		if i >= len(args) {
			return "", nil
		}
		switch args[i] {
		case "elseif":
			i++
		case "else":
			if i+1 >= len(args) {
				return "", fmt.Errorf("wrong # args: no script following \"else\" argument")
			}
			return in.Eval(ctx, args[i+1])
		default:
			return in.Eval(ctx, args[i])
		}
	}
}

// loopBody evaluates one iteration and reports whether the loop should stop.
func loopBody(ctx context.Context, in *Interp, body string) (stop bool, err error) {
	if err := in.step(); err != nil {
		return true, err
	}
	_, err = in.Eval(ctx, body)
	switch {
	case err == nil, errors.Is(err, ErrContinue):
		return false, nil
	case errors.Is(err, ErrBreak):
		return true, nil
	}
	return true, err
}

func cmdWhile(ctx context.Context, in *Interp, args []string) (string, error) {
	if len(args) != 3 {
		return "", wrongArgs("while test command")
	}
	for {
		ok, err := in.ExprBool(ctx, args[1])
		if err != nil || !ok {
			return "", err
		}
		if stop, err := loopBody(ctx, in, args[2]); stop {
			return "", err
		}
	}
}

func cmdFor(ctx context.Context, in *Interp, args []string) (string, error) {
	if len(args) != 5 {
		return "", wrongArgs("for start test next command")
	}
	if _, err := in.Eval(ctx, args[1]); err != nil {
		return "", err
	}
	for {
		ok, err := in.ExprBool(ctx, args[2])
		if err != nil || !ok {
			return "", err
		}
		if stop, err := loopBody(ctx, in, args[4]); stop {
			return "", err
		}
		if _, err := in.Eval(ctx, args[3]); err != nil {
			return "", err
		}
	}
}

func cmdForeach(ctx context.Context, in *Interp, args []string) (string, error) {
	if len(args) < 4 || len(args)%2 != 0 {
		return "", wrongArgs("foreach varList list ?varList list ...? command")
	}
	type pair struct {
		vars  []string
		items []string
	}
	var pairs []pair
	rounds := 0
	for i := 1; i+1 < len(args)-1; i += 2 {
		vars, err := SplitList(args[i])
		if err != nil {
			return "", err
		}
		if len(vars) == 0 {
			return "", fmt.Errorf("foreach varlist is empty")
		}
		items, err := SplitList(args[i+1])
		if err != nil {
			return "", err
		}
		pairs = append(pairs, pair{vars: vars, items: items})
		rounds = max(rounds, (len(items)+len(vars)-1)/len(vars))
	}
	body := args[len(args)-1]
	for r := range rounds {
		for _, p := range pairs {
			for j, name := range p.vars {
				value := ""
				if k := r*len(p.vars) + j; k < len(p.items) {
					value = p.items[k]
				}
				in.SetVar(name, value)
			}
		}
		if stop, err := loopBody(ctx, in, body); stop {
			return "", err
		}
	}
	return "", nil
}

func cmdBreak(context.Context, *Interp, []string) (string, error)    { return "", ErrBreak }
func cmdContinue(context.Context, *Interp, []string) (string, error) { return "", ErrContinue }

func cmdPuts(_ context.Context, in *Interp, args []string) (string, error) {
	rest := args[1:]
	newline := true
	if len(rest) > 0 && rest[0] == "-nonewline" {
		newline, rest = false, rest[1:]
	}
	switch len(rest) {
	case 1:
	case 2:
		rest = rest[1:]
	default:
		return "", wrongArgs("puts ?-nonewline? ?channelId? string")
	}
	text := rest[0]
	if newline {
		text += "\n"
	}
	_, err := fmt.Fprint(in.out, text)
	return "", err
}

func cmdList(_ context.Context, _ *Interp, args []string) (string, error) {
	return FormatList(args[1:]), nil
}

func cmdLlength(_ context.Context, _ *Interp, args []string) (string, error) {
	if len(args) != 2 {
		return "", wrongArgs("llength list")
	}
	elems, err := SplitList(args[1])
	if err != nil {
		return "", err
	}
	return strconv.Itoa(len(elems)), nil
}

// listIndex resolves an index such as 3, end or end-1 against a length.
func listIndex(s string, n int) (int, error) {
	if s == "end" {
		return n - 1, nil
	}
	if rest, ok := strings.CutPrefix(s, "end-"); ok {
		k, err := strconv.Atoi(rest)
		if err != nil {
			return 0, fmt.Errorf("bad index %q: must be integer?[+-]integer? or end?[+-]integer?", s)
		}
		return n - 1 - k, nil
	}
	k, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad index %q: must be integer?[+-]integer? or end?[+-]integer?", s)
	}
	return k, nil
}

func cmdLindex(_ context.Context, _ *Interp, args []string) (string, error) {
	if len(args) < 2 {
		return "", wrongArgs("lindex list ?index ...?")
	}
	cur := args[1]
	for _, idx := range args[2:] {
		elems, err := SplitList(cur)
		if err != nil {
			return "", err
		}
		k, err := listIndex(idx, len(elems))
		if err != nil {
			return "", err
		}
		if k < 0 || k >= len(elems) {
			return "", nil
		}
		cur = elems[k]
	}
	return cur, nil
}

func cmdLappend(_ context.Context, in *Interp, args []string) (string, error) {
	if len(args) < 2 {
		return "", wrongArgs("lappend varName ?value ...?")
	}
	v, _ := in.Var(args[1])
	elems, err := SplitList(v)
	if err != nil {
		return "", err
	}
	return in.SetVar(args[1], FormatList(append(elems, args[2:]...))), nil
}

func cmdLrange(_ context.Context, _ *Interp, args []string) (string, error) {
	if len(args) != 4 {
		return "", wrongArgs("lrange list first last")
	}
	elems, err := SplitList(args[1])
	if err != nil {
		return "", err
	}
	first, err := listIndex(args[2], len(elems))
	if err != nil {
		return "", err
	}
	last, err := listIndex(args[3], len(elems))
	if err != nil {
		return "", err
	}
	first, last = max(first, 0), min(last, len(elems)-1)
	if first > last {
		return "", nil
	}
	return FormatList(elems[first : last+1]), nil
}

func cmdLsearch(_ context.Context, _ *Interp, args []string) (string, error) {
	mode := "-glob"
	rest := args[1:]
	for len(rest) > 2 {
		mode, rest = rest[0], rest[1:]
	}
	if len(rest) != 2 {
		return "", wrongArgs("lsearch ?-exact|-glob? list pattern")
	}
	elems, err := SplitList(rest[0])
	if err != nil {
		return "", err
	}
	for i, e := range elems {
		if (mode == "-exact" && e == rest[1]) || (mode != "-exact" && globMatch(rest[1], e)) {
			return strconv.Itoa(i), nil
		}
	}
	return "-1", nil
}

func cmdLsort(_ context.Context, _ *Interp, args []string) (string, error) {
	if len(args) < 2 {
		return "", wrongArgs("lsort ?options? list")
	}
	integer, decreasing := false, false
	for _, opt := range args[1 : len(args)-1] {
		switch opt {
		case "-integer":
			integer = true
		case "-decreasing":
			decreasing = true
		case "-increasing", "-ascii":
		default:
			return "", fmt.Errorf("bad option %q: must be -ascii, -decreasing, -increasing, or -integer", opt)
		}
	}
	elems, err := SplitList(args[len(args)-1])
	if err != nil {
		return "", err
	}
	var sortErr error
	sort.SliceStable(elems, func(i, j int) bool {
		a, b := elems[i], elems[j]
		if decreasing {
			a, b = b, a
		}
		if integer {
			x, err1 := parseInt(a)
			y, err2 := parseInt(b)
			if err := errors.Join(err1, err2); err != nil && sortErr == nil {
				sortErr = err
			}
			return x < y
		}
		return a < b
	})
	if sortErr != nil {
		return "", sortErr
	}
	return FormatList(elems), nil
}

func cmdConcat(_ context.Context, _ *Interp, args []string) (string, error) {
	parts := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		if t := strings.TrimSpace(a); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

func cmdJoin(_ context.Context, _ *Interp, args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", wrongArgs("join list ?joinString?")
	}
	elems, err := SplitList(args[1])
	if err != nil {
		return "", err
	}
	sep := " "
	if len(args) == 3 {
		sep = args[2]
	}
	return strings.Join(elems, sep), nil
}

func cmdSplit(_ context.Context, _ *Interp, args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", wrongArgs("split string ?splitChars?")
	}
	chars := " \t\n\r"
	if len(args) == 3 {
		chars = args[2]
	}
	if chars == "" {
		var out []string
		for _, r := range args[1] {
			out = append(out, string(r))
		}
		return FormatList(out), nil
	}
	var parts []string
	start := 0
	for i, r := range args[1] {
		if strings.ContainsRune(chars, r) {
			parts = append(parts, args[1][start:i])
			start = i + len(string(r))
		}
	}
	parts = append(parts, args[1][start:])
	return FormatList(parts), nil
}

func cmdString(_ context.Context, _ *Interp, args []string) (string, error) {
	if len(args) < 3 {
		return "", wrongArgs("string subcommand ?arg ...?")
	}
	sub, s, rest := args[1], args[2], args[3:]
	switch sub {
	case "length":
		return strconv.Itoa(len([]rune(s))), nil
	case "tolower":
		return strings.ToLower(s), nil
	case "toupper":
		return strings.ToUpper(s), nil
	case "trim", "trimleft", "trimright":
		cut := " \t\n\r"
		if len(rest) > 0 {
			cut = rest[0]
		}
		switch sub {
		case "trimleft":
			return strings.TrimLeft(s, cut), nil
		case "trimright":
			return strings.TrimRight(s, cut), nil
		}
		return strings.Trim(s, cut), nil
	case "equal", "compare":
		if len(rest) < 1 {
			return "", wrongArgs("string " + sub + " string1 string2")
		}
		other := rest[len(rest)-1]
		if sub == "equal" {
			return boolString(s == other), nil
		}
		return strconv.Itoa(strings.Compare(s, other)), nil
	case "first", "last":
		if len(rest) < 1 {
			return "", wrongArgs("string " + sub + " needleString haystackString")
		}
		if sub == "first" {
			return strconv.Itoa(runeIndex(rest[0], strings.Index(rest[0], s))), nil
		}
		return strconv.Itoa(runeIndex(rest[0], strings.LastIndex(rest[0], s))), nil
	case "index":
		if len(rest) != 1 {
			return "", wrongArgs("string index string charIndex")
		}
		runes := []rune(s)
		k, err := listIndex(rest[0], len(runes))
		if err != nil || k < 0 || k >= len(runes) {
			return "", err
		}
		return string(runes[k]), nil
	case "range":
		if len(rest) != 2 {
			return "", wrongArgs("string range string first last")
		}
		runes := []rune(s)
		first, err := listIndex(rest[0], len(runes))
		if err != nil {
			return "", err
		}
		last, err := listIndex(rest[1], len(runes))
		if err != nil {
			return "", err
		}
		first, last = max(first, 0), min(last, len(runes)-1)
		if first > last {
			return "", nil
		}
		return string(runes[first : last+1]), nil
	case "match":
		if len(rest) < 1 {
			return "", wrongArgs("string match pattern string")
		}
		return boolString(globMatch(s, rest[len(rest)-1])), nil
	case "repeat":
		if len(rest) != 1 {
			return "", wrongArgs("string repeat string count")
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 0 {
			return "", fmt.Errorf("expected integer but got %q", rest[0])
		}
		return strings.Repeat(s, n), nil
	case "map":
		if len(rest) != 1 {
			return "", wrongArgs("string map mapping string")
		}
		pairs, err := SplitList(s)
		if err != nil {
			return "", err
		}
		if len(pairs)%2 != 0 {
			return "", fmt.Errorf("char map list unbalanced")
		}
		return strings.NewReplacer(pairs...).Replace(rest[0]), nil
	case "is":
		if len(rest) < 1 {
			return "", wrongArgs("string is class ?-strict? string")
		}
		value := rest[len(rest)-1]
		switch s {
		case "integer":
			_, err := parseInt(value)
			return boolString(err == nil || value == ""), nil
		case "double":
			_, err := strconv.ParseFloat(value, 64)
			return boolString(err == nil || value == ""), nil
		case "boolean":
			_, err := parseBool(value)
			return boolString(err == nil || value == ""), nil
		}
		return "", fmt.Errorf("bad class %q", s)
	}
	return "", fmt.Errorf("unknown or ambiguous subcommand %q", sub)
}

func runeIndex(s string, byteIdx int) int {
	if byteIdx < 0 {
		return -1
	}
	return len([]rune(s[:byteIdx]))
}

func cmdInfo(_ context.Context, in *Interp, args []string) (string, error) {
	if len(args) < 2 {
		return "", wrongArgs("info subcommand ?arg ...?")
	}
	pattern := "*"
	if len(args) > 2 {
		pattern = args[2]
	}
	filter := func(names []string) string {
		var out []string
		for _, n := range names {
			if globMatch(pattern, n) {
				out = append(out, n)
			}
		}
		return FormatList(out)
	}
	switch args[1] {
	case "exists":
		if len(args) != 3 {
			return "", wrongArgs("info exists varName")
		}
		_, ok := in.Var(args[2])
		return boolString(ok), nil
	case "commands":
		return filter(in.Commands()), nil
	case "procs":
		names := make([]string, 0, len(in.procs))
		for n := range in.procs {
			names = append(names, n)
		}
		sort.Strings(names)
		return filter(names), nil
	case "globals":
		return filter(in.Globals()), nil
	case "vars":
		var names []string
		for n, v := range in.current().vars {
			if v.set {
				names = append(names, n)
			}
		}
		sort.Strings(names)
		return filter(names), nil
	case "level":
		return strconv.Itoa(in.Level()), nil
	case "args", "body":
		if len(args) != 3 {
			return "", wrongArgs("info " + args[1] + " procname")
		}
		p, ok := in.procs[args[2]]
		if !ok {
			return "", fmt.Errorf("%q isn't a procedure", args[2])
		}
		if args[1] == "body" {
			return p.body, nil
		}
		names := make([]string, len(p.params))
		for i, prm := range p.params {
			names[i] = prm.Name
		}
		return FormatList(names), nil
	}
	return "", fmt.Errorf("unknown or ambiguous subcommand %q", args[1])
}

func cmdError(_ context.Context, _ *Interp, args []string) (string, error) {
	if len(args) < 2 || len(args) > 4 {
		return "", wrongArgs("error message ?errorInfo? ?errorCode?")
	}
	return "", &ScriptError{Message: args[1]}
}

// catch swallows every error, including the limit errors, so that a sourced
// file guarded by catch never aborts its caller.
func cmdCatch(ctx context.Context, in *Interp, args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", wrongArgs("catch script ?resultVarName?")
	}
	res, err := in.Eval(ctx, args[1])
	code := 0
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		res = err.Error()
		var ret *ReturnError
		switch {
		case errors.As(err, &ret):
			code, res = 2, ret.Value
		case errors.Is(err, ErrBreak):
			code, res = 3, ""
		case errors.Is(err, ErrContinue):
			code, res = 4, ""
		default:
			code = 1
		}
	}
	if len(args) == 3 {
		in.SetVar(args[2], res)
	}
	return strconv.Itoa(code), nil
}

func cmdEval(ctx context.Context, in *Interp, args []string) (string, error) {
	if len(args) < 2 {
		return "", wrongArgs("eval arg ?arg ...?")
	}
	script := args[1]
	if len(args) > 2 {
		script, _ = cmdConcat(ctx, in, args)
	}
	return in.Eval(ctx, script)
}

func cmdSubst(ctx context.Context, in *Interp, args []string) (string, error) {
	if len(args) != 2 {
		return "", wrongArgs("subst string")
	}
	return in.Subst(ctx, args[1])
}

func cmdRename(_ context.Context, in *Interp, args []string) (string, error) {
	if len(args) != 3 {
		return "", wrongArgs("rename oldName newName")
	}
	oldName, newName := args[1], args[2]
	cmd, ok := in.commands[oldName]
	if !ok {
		return "", fmt.Errorf("can't rename %q: command doesn't exist", oldName)
	}
	delete(in.commands, oldName)
	p, isProc := in.procs[oldName]
	delete(in.procs, oldName)
	if newName == "" {
		return "", nil
	}
	if _, exists := in.commands[newName]; exists {
		return "", fmt.Errorf("can't rename to %q: command already exists", newName)
	}
	in.commands[newName] = cmd
	if isProc {
		p.name = newName
		in.procs[newName] = p
	}
	return "", nil
}

func cmdFormat(_ context.Context, _ *Interp, args []string) (string, error) {
	if len(args) < 2 {
		return "", wrongArgs("format formatString ?arg ...?")
	}
	format, values := args[1], args[2:]
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		j := i + 1
		for j < len(format) && strings.IndexByte("-+ #0123456789.", format[j]) >= 0 {
			j++
		}
		if j >= len(format) {
			return "", fmt.Errorf("format string ended in middle of field specifier")
		}
		verb := format[j]
		spec := format[i : j+1]
		i = j
		if verb == '%' {
			b.WriteByte('%')
			continue
		}
		if len(values) == 0 {
			return "", fmt.Errorf("not enough arguments for all format specifiers")
		}
		v := values[0]
		values = values[1:]
		switch verb {
		case 's':
			fmt.Fprintf(&b, spec, v)
		case 'd', 'i', 'x', 'X', 'o', 'c':
			n, err := parseInt(v)
			if err != nil {
				return "", err
			}
			if verb == 'i' {
				spec = spec[:len(spec)-1] + "d"
			}
			if verb == 'c' {
				fmt.Fprintf(&b, spec, rune(n))
				continue
			}
			fmt.Fprintf(&b, spec, n)
		case 'f', 'e', 'E', 'g', 'G':
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return "", fmt.Errorf("expected floating-point number but got %q", v)
			}
			fmt.Fprintf(&b, spec, f)
		default:
			return "", fmt.Errorf("bad field specifier %q", string(verb))
		}
	}
	return b.String(), nil
}

func cmdSwitch(ctx context.Context, in *Interp, args []string) (string, error) {
	rest := args[1:]
	mode := "-exact"
	for len(rest) > 0 && strings.HasPrefix(rest[0], "-") {
		opt := rest[0]
		rest = rest[1:]
		if opt == "--" {
			break
		}
		switch opt {
		case "-exact", "-glob":
			mode = opt
		default:
			return "", fmt.Errorf("bad option %q: must be -exact, -glob, or --", opt)
		}
	}
	if len(rest) < 2 {
		return "", wrongArgs("switch ?options? string pattern body ?pattern body ...?")
	}
	value := rest[0]
	cases := rest[1:]
	if len(cases) == 1 {
		var err error
		cases, err = SplitList(cases[0])
		if err != nil {
			return "", err
		}
	}
	if len(cases)%2 != 0 {
		return "", fmt.Errorf("extra switch pattern with no body")
	}
	for i := 0; i < len(cases); i += 2 {
		pattern := cases[i]
		last := i == len(cases)-2
		matched := (last && pattern == "default") ||
			(mode == "-exact" && pattern == value) ||
			(mode == "-glob" && globMatch(pattern, value))
		if !matched {
			continue
		}
		for j := i + 1; j < len(cases); j += 2 {
			if cases[j] != "-" {
				return in.Eval(ctx, cases[j])
			}
		}
		return "", fmt.Errorf("no body specified for pattern %q", pattern)
	}
	return "", nil
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("expected integer but got %q", s)
	}
	return n, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f != 0, nil
	}
	return false, fmt.Errorf("expected boolean value but got %q", s)
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// globMatch reports whether s matches a Tcl glob pattern. Unlike path.Match,
// '*' also matches '/'.
func globMatch(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatch(pattern, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if s == "" {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		case '[':
			if s == "" {
				return false
			}
			end := strings.IndexByte(pattern, ']')
			if end < 0 {
				return false
			}
			if !classMatch(pattern[1:end], s[0]) {
				return false
			}
			pattern, s = pattern[end+1:], s[1:]
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			fallthrough
		default:
			if s == "" || s[0] != pattern[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return s == ""
}

func classMatch(class string, c byte) bool {
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				return true
			}
			i += 2
			continue
		}
		if class[i] == c {
			return true
		}
	}
	return false
}
