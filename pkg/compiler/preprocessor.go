package compiler

import (
	"strconv"
	"strings"
)

// MaxLineLength is the longest preprocessed line the compiler accepts.
const MaxLineLength = 500

// maxMacroDepth bounds nested macro expansion.
const maxMacroDepth = 32

// SourceLine is one preprocessed line together with where it came from.
type SourceLine struct {
	Unit string
	Line int
	Text string
}

// IncludeResolver supplies the text of a script named by #include.
type IncludeResolver interface {
	ResolveInclude(name string) (string, error)
}

type conditional struct {
	include      bool
	parentActive bool
	sawElse      bool
}

// Preprocessor strips comments, evaluates directives and expands macros,
// one line at a time. Macro definitions persist across calls so header
// scripts can be processed before the main script.
type Preprocessor struct {
	Macros     *MacroTable
	AppVersion string
	Resolver   IncludeResolver

	results    *Results
	conditions []conditional
	inComment  bool
	unit       string
	line       int
	includes   []string
	included   map[string]bool
}

func NewPreprocessor(appVersion string, resolver IncludeResolver) *Preprocessor {
	return &Preprocessor{
		Macros:     NewMacroTable(),
		AppVersion: appVersion,
		Resolver:   resolver,
		included:   make(map[string]bool),
	}
}

// DefineMacro adds a macro before any script is processed.
func (p *Preprocessor) DefineMacro(name, value string) error {
	return p.Macros.Add(name, value)
}

// Preprocess processes script as the unit named unit. Problems are
// recorded in results; processing always continues to the end of the text.
// Every input line yields exactly one output line, blank when the line was a
// directive or sits inside a false conditional block. Included scripts are
// spliced in at the directive with their own unit names.
func (p *Preprocessor) Preprocess(script, unit string, results *Results) []SourceLine {
	p.results = results
	var out []SourceLine
	p.process(script, unit, &out)
	return out
}

func (p *Preprocessor) process(script, unit string, out *[]SourceLine) {
	savedUnit, savedLine := p.unit, p.line
	savedConditions, savedComment := p.conditions, p.inComment
	p.unit, p.line = unit, 0
	p.conditions, p.inComment = nil, false

	lines := strings.Split(strings.ReplaceAll(script, "\r\n", "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for _, raw := range lines {
		p.line++
		text := p.removeComments(raw)
		if text != "" {
			if text[0] == '#' {
				text = p.directive(text, out)
			} else {
				text = p.processLine(text)
			}
		}
		if len(text) >= MaxLineLength {
			p.record(LineTooLong, "Line too long (max line length = %d)", MaxLineLength)
		}
		*out = append(*out, SourceLine{Unit: p.unit, Line: p.line, Text: text})
	}
	if len(p.conditions) > 0 {
		p.record(IfWithoutEndIf, "Missing #endif")
	}

	p.unit, p.line = savedUnit, savedLine
	p.conditions, p.inComment = savedConditions, savedComment
}

func (p *Preprocessor) record(code ErrorCode, format string, args ...any) {
	if p.results == nil {
		return
	}
	m := newError(code, format, args...)
	m.Line = p.line
	m.Unit = p.unit
	p.results.Add(m)
}

func (p *Preprocessor) deleting() bool {
	return len(p.conditions) > 0 && !p.conditions[len(p.conditions)-1].include
}

func (p *Preprocessor) processLine(line string) string {
	if p.deleting() {
		return ""
	}
	return p.expand(line, nil, 0)
}

// expand replaces macro references in line. Words inside string or char
// literals, and words directly after a '.', are left alone. active holds the
// macros currently being expanded, which are not expanded again.
func (p *Preprocessor) expand(line string, active map[string]bool, depth int) string {
	if p.Macros.Len() == 0 {
		return line
	}
	var sb strings.Builder
	n := len(line)
	i := 0
	for i < n {
		c := line[i]
		if c == '"' || c == '\'' {
			end := matchingQuote(line, i)
			if end < 0 {
				sb.WriteString(line[i:])
				break
			}
			sb.WriteString(line[i : end+1])
			i = end + 1
			continue
		}
		if !isIdentPart(rune(c)) {
			sb.WriteByte(c)
			i++
			continue
		}
		start := i
		for i < n && isIdentPart(rune(line[i])) {
			i++
		}
		word := line[start:i]
		precededByDot := start > 0 && line[start-1] == '.'
		value, err := p.Macros.Get(word)
		if err != nil || precededByDot || active[word] || depth >= maxMacroDepth {
			sb.WriteString(word)
			continue
		}
		nested := make(map[string]bool, len(active)+1)
		for k := range active {
			nested[k] = true
		}
		nested[word] = true
		sb.WriteString(p.expand(value, nested, depth+1))
	}
	return sb.String()
}

// nextWord splits the leading identifier-like word (letters, digits, '_',
// and '.' when dots is set) off text.
func nextWord(text string, dots bool) (word, rest string) {
	i := 0
	for i < len(text) && (isIdentPart(rune(text[i])) || (dots && text[i] == '.')) {
		i++
	}
	return text[:i], strings.TrimSpace(text[i:])
}

func (p *Preprocessor) directive(line string, out *[]SourceLine) string {
	directive, rest := nextWord(line[1:], false)

	switch directive {
	case "if", "ifdef", "ifndef", "ifver", "ifnver":
		p.conditional(directive, rest)
		return ""
	case "else":
		if len(p.conditions) == 0 {
			p.record(ElseWithoutIf, "#else has no matching #if")
			return ""
		}
		top := &p.conditions[len(p.conditions)-1]
		if top.sawElse {
			p.record(ElseWithoutIf, "#else already seen for this #if")
			return ""
		}
		top.sawElse = true
		top.include = top.parentActive && !top.include
		return ""
	case "endif":
		if len(p.conditions) == 0 {
			p.record(EndIfWithoutIf, "#endif has no matching #if")
			return ""
		}
		p.conditions = p.conditions[:len(p.conditions)-1]
		return ""
	}

	if p.deleting() {
		return ""
	}

	switch directive {
	case "define":
		name, value := nextWord(rest, false)
		switch {
		case name == "":
			p.record(MacroNameMissing, "Macro name expected")
		case name[0] >= '0' && name[0] <= '9':
			p.record(MacroNameInvalid, "Macro name '%s' cannot start with a digit", name)
		case p.Macros.Contains(name):
			p.record(MacroAlreadyExists, "Macro '%s' is already defined", name)
		default:
			_ = p.Macros.Add(name, value)
		}
	case "undef":
		name, _ := nextWord(rest, false)
		switch {
		case name == "":
			p.record(MacroNameMissing, "Macro name expected")
		case !p.Macros.Contains(name):
			p.record(MacroDoesNotExist, "Macro '%s' is not defined", name)
		default:
			_ = p.Macros.Remove(name)
		}
	case "error":
		p.record(UserDefinedError, "User error: %s", rest)
	case "include":
		p.include(rest, out)
	case "sectionstart", "sectionend":
	default:
		p.record(UnknownPreprocessorDirective, "Unknown preprocessor directive '%s'", directive)
	}
	return ""
}

func (p *Preprocessor) conditional(directive, rest string) {
	word, _ := nextWord(rest, true)
	if word == "" {
		p.record(MacroNameMissing, "Expected something after '%s'", directive)
		return
	}

	parentActive := !p.deleting()
	include := false
	if parentActive {
		switch directive {
		case "ifdef":
			include = p.Macros.Contains(word)
		case "ifndef":
			include = !p.Macros.Contains(word)
		case "if":
			include = p.truthy(word)
		default:
			if word[0] < '0' || word[0] > '9' {
				p.record(InvalidVersionNumber, "Expected version number")
				include = true
				break
			}
			appVer := p.AppVersion
			if len(appVer) > len(word) {
				appVer = appVer[:len(word)]
			}
			include = appVer >= word
			if directive == "ifnver" {
				include = !include
			}
		}
	}
	p.conditions = append(p.conditions, conditional{include: include, parentActive: parentActive})
}

// truthy evaluates the operand of #if: a number is true when non-zero, a
// name is true when it is a macro whose value is not empty or "0".
func (p *Preprocessor) truthy(word string) bool {
	if word[0] >= '0' && word[0] <= '9' {
		v, err := strconv.ParseFloat(word, 64)
		return err == nil && v != 0
	}
	v, err := p.Macros.Get(word)
	if err != nil {
		return false
	}
	v = strings.TrimSpace(v)
	return v != "" && v != "0"
}

func (p *Preprocessor) include(rest string, out *[]SourceLine) {
	parts := strings.SplitN(rest, "\"", 3)
	if len(parts) < 3 || parts[1] == "" {
		p.record(IncludeNotFound, "Invalid include directive: expected a quoted script name")
		return
	}
	name := parts[1]
	for _, open := range p.includes {
		if open == name {
			p.record(CircularInclude, "Circular include of '%s'", name)
			return
		}
	}
	if name == p.unit {
		p.record(CircularInclude, "Circular include of '%s'", name)
		return
	}
	if p.included[name] {
		return
	}
	if p.Resolver == nil {
		p.record(IncludeNotFound, "Cannot include '%s': no include resolver configured", name)
		return
	}
	text, err := p.Resolver.ResolveInclude(name)
	if err != nil {
		p.record(IncludeNotFound, "Cannot include '%s': %v", name, err)
		return
	}
	p.included[name] = true
	p.includes = append(p.includes, p.unit)
	p.process(text, name, out)
	p.includes = p.includes[:len(p.includes)-1]
}

func (p *Preprocessor) removeComments(text string) string {
	var sb strings.Builder
	n := len(text)
	for i := 0; i < n; i++ {
		if p.inComment {
			if i < n-1 && text[i] == '*' && text[i+1] == '/' {
				p.inComment = false
				i++
			}
			continue
		}
		c := text[i]
		switch {
		case c == '"' || c == '\'':
			end := matchingQuote(text, i)
			if end < 0 {
				sb.WriteString(text[i:])
				return strings.TrimSpace(sb.String())
			}
			sb.WriteString(text[i : end+1])
			i = end
		case c == '/' && i < n-1 && text[i+1] == '/':
			return strings.TrimSpace(sb.String())
		case c == '/' && i < n-1 && text[i+1] == '*':
			p.inComment = true
			i++
		default:
			sb.WriteByte(c)
		}
	}
	return strings.TrimSpace(sb.String())
}

// matchingQuote returns the index of the quote closing the literal that
// opens at start, honouring backslash escapes, or -1.
func matchingQuote(text string, start int) int {
	q := text[start]
	for i := start + 1; i < len(text); i++ {
		if text[i] == '\\' {
			i++
		} else if text[i] == q {
			return i
		}
	}
	return -1
}

func isIdentStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
