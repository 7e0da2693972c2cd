package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/glox/compiler"
	"github.com/chazu/glox/vm"
)

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

// diagnose compiles text in a throwaway heap and converts compile errors to
// LSP diagnostics. Columns are byte offsets; Lox source is ASCII in practice.
func diagnose(text string) []protocol.Diagnostic {
	heap := vm.NewHeap()
	defer heap.Free()

	_, err := compiler.Compile(text, heap)
	if err == nil {
		return []protocol.Diagnostic{}
	}

	var errs *compiler.Errors
	if !errors.As(err, &errs) {
		return []protocol.Diagnostic{newDiagnostic(protocol.Range{}, err.Error())}
	}

	diagnostics := make([]protocol.Diagnostic, 0, errs.Len())
	for _, ce := range errs.List {
		start := toLSPPosition(ce.Pos)
		end := start
		end.Character += protocol.UInteger(max(ce.Length, 1))
		msg := ce.Message
		if ce.Where != "" {
			msg = strings.TrimPrefix(ce.Where, " ") + ": " + msg
		}
		diagnostics = append(diagnostics, newDiagnostic(protocol.Range{Start: start, End: end}, msg))
	}
	return diagnostics
}

func newDiagnostic(r protocol.Range, msg string) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	return protocol.Diagnostic{
		Range:    r,
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}
}

func toLSPPosition(p compiler.Position) protocol.Position {
	line, col := p.Line-1, p.Column-1
	if line < 0 {
		line = 0
	}
	if col < 0 {
		col = 0
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

type declKind int

const (
	declVar declKind = iota
	declFun
)

// declaration is a var or fun name found in a document.
type declaration struct {
	name   string
	kind   declKind
	pos    compiler.Position
	params []string // for functions
	depth  int      // brace nesting; 0 is top level
}

// scanDeclarations finds every var and fun declaration by scanning tokens.
// It works on documents that do not compile.
func scanDeclarations(text string) []declaration {
	tokens := compiler.Tokenize(text)
	var decls []declaration
	depth := 0
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.Type {
		case compiler.TokenLeftBrace:
			depth++
		case compiler.TokenRightBrace:
			if depth > 0 {
				depth--
			}
		case compiler.TokenVar, compiler.TokenFun:
			if i+1 >= len(tokens) || tokens[i+1].Type != compiler.TokenIdentifier {
				continue
			}
			name := tokens[i+1]
			d := declaration{name: name.Literal, kind: declVar, pos: name.Pos, depth: depth}
			if tok.Type == compiler.TokenFun {
				d.kind = declFun
				d.params = scanParams(tokens[i+2:])
			}
			decls = append(decls, d)
			i++
		}
	}
	return decls
}

func scanParams(tokens []compiler.Token) []string {
	if len(tokens) == 0 || tokens[0].Type != compiler.TokenLeftParen {
		return nil
	}
	var params []string
	for _, tok := range tokens[1:] {
		switch tok.Type {
		case compiler.TokenIdentifier:
			params = append(params, tok.Literal)
		case compiler.TokenComma:
		default:
			return params
		}
	}
	return params
}

func (d declaration) signature() string {
	if d.kind == declFun {
		return fmt.Sprintf("fun %s(%s)", d.name, strings.Join(d.params, ", "))
	}
	return "var " + d.name
}

// ---------------------------------------------------------------------------
// Completion and hover
// ---------------------------------------------------------------------------

var keywordDocs = map[string]string{
	"and":    "Logical and. Evaluates the right operand only if the left is truthy.",
	"class":  "Reserved. Classes are not supported.",
	"else":   "Branch taken when an `if` condition is falsey.",
	"false":  "The boolean false.",
	"for":    "`for (init; condition; increment) body`",
	"fun":    "Declares a function: `fun name(params) { body }`",
	"if":     "`if (condition) statement else statement`",
	"nil":    "The absence of a value.",
	"or":     "Logical or. Evaluates the right operand only if the left is falsey.",
	"print":  "Writes the value of an expression followed by a newline.",
	"return": "Returns from the enclosing function, with nil if no value is given.",
	"super":  "Reserved. Classes are not supported.",
	"this":   "Reserved. Classes are not supported.",
	"true":   "The boolean true.",
	"var":    "Declares a variable: `var name = value;`",
	"while":  "`while (condition) body`",
}

const maxCompletionItems = 100

// complete returns completion items whose label starts with prefix:
// document declarations, built-in natives and keywords.
func complete(text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if seen[label] || !strings.HasPrefix(label, prefix) {
			return
		}
		seen[label] = true
		labelCopy := label
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &labelCopy,
		})
	}

	for _, d := range scanDeclarations(text) {
		if d.kind == declFun {
			add(d.name, protocol.CompletionItemKindFunction, d.signature())
		} else {
			add(d.name, protocol.CompletionItemKindVariable, d.signature())
		}
	}
	for _, b := range vm.Builtins() {
		add(b.Name, protocol.CompletionItemKindFunction, b.Signature)
	}
	keywords := compiler.Keywords()
	sort.Strings(keywords)
	for _, kw := range keywords {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}

	if len(items) > maxCompletionItems {
		items = items[:maxCompletionItems]
	}
	return items
}

// hover describes word: a built-in native, a declaration in the document,
// or a keyword. It returns nil for anything else.
func hover(text, word string) *protocol.Hover {
	var b strings.Builder
	if builtin, ok := vm.LookupBuiltin(word); ok {
		fmt.Fprintf(&b, "**%s** (native)\n\n%s", builtin.Signature, builtin.Doc)
	} else if doc, ok := keywordDocs[word]; ok {
		fmt.Fprintf(&b, "**%s** (keyword)\n\n%s", word, doc)
	} else {
		for _, d := range scanDeclarations(text) {
			if d.name == word {
				fmt.Fprintf(&b, "```lox\n%s\n```\n\nDeclared on line %d", d.signature(), d.pos.Line)
				break
			}
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// definitions returns the locations of declarations of word, outermost
// first.
func definitions(uri protocol.DocumentUri, text, word string) []protocol.Location {
	var decls []declaration
	for _, d := range scanDeclarations(text) {
		if d.name == word {
			decls = append(decls, d)
		}
	}
	sort.SliceStable(decls, func(i, j int) bool { return decls[i].depth < decls[j].depth })

	locations := make([]protocol.Location, 0, len(decls))
	for _, d := range decls {
		locations = append(locations, tokenLocation(uri, d.pos, len(d.name)))
	}
	return locations
}

// references returns every identifier token spelled word.
func references(uri protocol.DocumentUri, text, word string) []protocol.Location {
	var locations []protocol.Location
	for _, tok := range compiler.Tokenize(text) {
		if tok.Type == compiler.TokenIdentifier && tok.Literal == word {
			locations = append(locations, tokenLocation(uri, tok.Pos, len(tok.Literal)))
		}
	}
	return locations
}

func tokenLocation(uri protocol.DocumentUri, pos compiler.Position, length int) protocol.Location {
	start := toLSPPosition(pos)
	end := start
	end.Character += protocol.UInteger(length)
	return protocol.Location{URI: uri, Range: protocol.Range{Start: start, End: end}}
}

// ---------------------------------------------------------------------------
// Text extraction helpers
// ---------------------------------------------------------------------------

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentChar(rune(line[end])) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
