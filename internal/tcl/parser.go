package tcl

// Error messages reported for unterminated constructs.
const (
	MsgMissingQuote   = "Missing closing quote"
	MsgMissingBrace   = "Missing closing brace"
	MsgMissingBracket = "Missing closing bracket"
)

// wordCtx tells a normal word which characters end it besides whitespace.
type wordCtx uint8

const (
	ctxCommand wordCtx = iota // ';' ends the word
	ctxBracket                // ';' and ']' end the word
	ctxQuote                  // '"' ends the word
)

type parser struct {
	text  string
	pos   int
	nodes []Node
	errs  []Error

	// retry is the earliest offset in the current command, right after an
	// unescaped line break, whose character is a letter. On a syntax error
	// the parser resumes there. -1 when unset.
	retry int

	// orphans is set when error recovery detached nodes from the tree.
	orphans bool
}

// Parse parses text into a Tree. It never fails; callers must inspect
// Tree.Errors to learn whether the input was well formed.
func Parse(text string) *Tree {
	p := &parser{text: text, retry: -1}
	root := p.open(KindRoot, NoNode)

	p.skipWhitespace()
	for !p.eof() {
		if p.peek() == '#' {
			p.parseComment(root)
		} else if cmd := p.parseCommand(root); cmd != NoNode && p.nodes[cmd].Err != nil {
			// Resume at the end of the failed command, which is the
			// resync point when one was found.
			p.pos = p.nodes[cmd].End
		}
		p.skipWhitespace()
	}
	p.nodes[root].End = len(text)

	if p.orphans {
		p.compact()
	}
	return &Tree{text: text, nodes: p.nodes, errs: p.errs}
}

func (p *parser) eof() bool { return p.pos >= len(p.text) }

func (p *parser) peek() byte { return p.peekAt(0) }

func (p *parser) peekAt(n int) byte {
	i := p.pos + n
	if i < 0 || i >= len(p.text) {
		return 0
	}
	return p.text[i]
}

// advance consumes one byte and tracks the resync position.
func (p *parser) advance() {
	if p.eof() {
		return
	}
	c := p.text[p.pos]
	p.pos++
	if p.retry != -1 || (c != '\n' && c != '\r') {
		return
	}
	if c == '\r' && p.peek() == '\n' {
		return
	}
	if !isLetter(p.peek()) {
		return
	}
	brk := p.pos - 1
	if c == '\n' && brk > 0 && p.text[brk-1] == '\r' {
		brk--
	}
	if brk > 0 && p.text[brk-1] == '\\' {
		return
	}
	p.retry = p.pos
}

// errorEnd returns where an error for a node starting at start ends: the
// resync position when it lies beyond start, otherwise the cursor.
func (p *parser) errorEnd(start int) int {
	if p.retry > start {
		return p.retry
	}
	return p.pos
}

func (p *parser) open(kind Kind, parent NodeID) NodeID {
	id := NodeID(len(p.nodes))
	p.nodes = append(p.nodes, Node{Kind: kind, Start: p.pos, End: p.pos, Parent: parent})
	if parent != NoNode {
		p.nodes[parent].Children = append(p.nodes[parent].Children, id)
	}
	return id
}

func (p *parser) close(id NodeID) NodeID {
	p.nodes[id].End = p.pos
	return id
}

// fail records an unterminated construct on id.
func (p *parser) fail(id NodeID, msg string) NodeID {
	start := p.nodes[id].Start
	e := Error{Start: start, End: p.errorEnd(start), Message: msg}
	p.errs = append(p.errs, e)
	p.nodes[id].Err = &e
	p.nodes[id].End = e.End
	return id
}

// inherit propagates a child's error to its parent and reports whether
// there was one.
func (p *parser) inherit(parent, child NodeID) bool {
	err := p.nodes[child].Err
	if err == nil {
		return false
	}
	p.nodes[parent].Err = err
	p.nodes[parent].End = p.nodes[child].End
	return true
}

func (p *parser) skipWhitespace() {
	for !p.eof() {
		c := p.peek()
		if isSpace(c) {
			p.advance()
			continue
		}
		if c == '\\' && isSpace(p.peekAt(1)) {
			p.advance()
			p.advance()
			continue
		}
		if c == ';' {
			p.advance()
			continue
		}
		return
	}
}

func (p *parser) skipLine() {
	for !p.eof() {
		c := p.peek()
		if c == '\\' && isLineBreak(p.peekAt(1)) {
			p.advance()
			p.advance()
			continue
		}
		p.advance()
		if c == '\n' {
			return
		}
		if c == '\r' {
			if p.peek() == '\n' {
				p.advance()
			}
			return
		}
	}
}

// parseComment consumes a block of consecutive comment lines. The node ends
// after the newline of its last line.
func (p *parser) parseComment(parent NodeID) {
	id := p.open(KindComment, parent)
	for {
		p.skipLine()
		end := p.pos
		for p.peek() == ' ' || p.peek() == '\t' {
			p.advance()
		}
		if p.peek() != '#' {
			p.pos = end
			break
		}
	}
	p.close(id)
}

// endOfCommand consumes whitespace up to the next word and reports whether a
// command terminator (or the end of input) was reached first.
func (p *parser) endOfCommand() bool {
	for !p.eof() {
		c := p.peek()
		switch {
		case c == '\\' && isLineBreak(p.peekAt(1)):
			p.advance()
			if p.peek() == '\r' && p.peekAt(1) == '\n' {
				p.advance()
			}
			p.advance()
		case c == ';':
			p.advance()
			return true
		case c == '\n':
			p.advance()
			return true
		case c == '\r':
			p.advance()
			if p.peek() == '\n' {
				p.advance()
			}
			return true
		case isSpace(c):
			p.advance()
		default:
			return false
		}
	}
	return true
}

// parseCommand parses one command. It returns NoNode when only terminators
// were found.
func (p *parser) parseCommand(parent NodeID) NodeID {
	p.retry = -1
	id := p.open(KindCommand, parent)
	for !p.endOfCommand() {
		w := p.parseWord(id, ctxCommand)
		if p.inherit(id, w) {
			p.truncate(id, p.nodes[id].End)
			return id
		}
		p.nodes[id].End = p.nodes[w].End
	}
	if len(p.nodes[id].Children) == 0 {
		p.nodes = p.nodes[:id]
		siblings := p.nodes[parent].Children
		p.nodes[parent].Children = siblings[:len(siblings)-1]
		return NoNode
	}
	return id
}

func (p *parser) parseWord(parent NodeID, ctx wordCtx) NodeID {
	switch p.peek() {
	case '"':
		return p.parseQuoted(parent)
	case '{':
		return p.parseBraced(parent)
	case '[':
		return p.parseCommandWord(parent)
	}
	return p.parseNormal(parent, ctx)
}

func (p *parser) stops(c byte, ctx wordCtx) bool {
	if isSpace(c) {
		return true
	}
	switch ctx {
	case ctxCommand:
		return c == ';'
	case ctxBracket:
		return c == ';' || c == ']'
	case ctxQuote:
		return c == '"'
	}
	return false
}

func (p *parser) parseNormal(parent NodeID, ctx wordCtx) NodeID {
	id := p.open(KindNormalWord, parent)
	for !p.eof() {
		c := p.peek()
		if p.stops(c, ctx) && p.pos > p.nodes[id].Start {
			break
		}
		switch {
		case c == '\\':
			p.skipEscape()
		case c == '[':
			if child := p.parseCommandWord(id); p.inherit(id, child) {
				return id
			}
		case c == '$' && p.startsVariable():
			if child := p.parseVariable(id); p.inherit(id, child) {
				return id
			}
		default:
			p.advance()
		}
	}
	return p.close(id)
}

func (p *parser) parseQuoted(parent NodeID) NodeID {
	id := p.open(KindQuotedWord, parent)
	p.advance()
	for !p.eof() {
		c := p.peek()
		switch {
		case c == '"':
			p.advance()
			return p.close(id)
		case c == '\\':
			p.skipEscape()
		case c == '[':
			if child := p.parseCommandWord(id); p.inherit(id, child) {
				return id
			}
		case c == '$' && p.startsVariable():
			if child := p.parseVariable(id); p.inherit(id, child) {
				return id
			}
		case isSpace(c):
			p.advance()
		default:
			if child := p.parseNormal(id, ctxQuote); p.inherit(id, child) {
				return id
			}
		}
	}
	return p.fail(id, MsgMissingQuote)
}

func (p *parser) parseBraced(parent NodeID) NodeID {
	id := p.open(KindBracedWord, parent)
	p.advance()
	for !p.eof() {
		c := p.peek()
		switch {
		case c == '}':
			p.advance()
			return p.close(id)
		case c == '\\':
			p.skipEscape()
		case c == '{':
			if child := p.parseBraced(id); p.inherit(id, child) {
				return id
			}
		case isSpace(c):
			p.advance()
		default:
			p.parseBracedRun(id)
		}
	}
	return p.fail(id, MsgMissingBrace)
}

// parseBracedRun records a run of non-space text inside braces as a normal
// word without decomposing it further.
func (p *parser) parseBracedRun(parent NodeID) {
	id := p.open(KindNormalWord, parent)
	for !p.eof() {
		c := p.peek()
		if c == '}' || isSpace(c) {
			break
		}
		switch c {
		case '\\':
			p.skipEscape()
		case '{':
			p.skipBalanced()
		default:
			p.advance()
		}
	}
	p.close(id)
}

// skipBalanced consumes a brace group without creating nodes.
func (p *parser) skipBalanced() {
	depth := 0
	for !p.eof() {
		switch p.peek() {
		case '\\':
			p.skipEscape()
			continue
		case '{':
			depth++
		case '}':
			depth--
		}
		p.advance()
		if depth == 0 {
			return
		}
	}
}

func (p *parser) parseCommandWord(parent NodeID) NodeID {
	id := p.open(KindCommandWord, parent)
	p.advance()
	for !p.eof() {
		c := p.peek()
		switch {
		case c == ']':
			p.advance()
			return p.close(id)
		case c == '\\' && isLineBreak(p.peekAt(1)):
			p.skipEscape()
		case c == ';' || isSpace(c):
			p.advance()
		default:
			if child := p.parseWord(id, ctxBracket); p.inherit(id, child) {
				return id
			}
		}
	}
	return p.fail(id, MsgMissingBracket)
}

func (p *parser) startsVariable() bool {
	c := p.peekAt(1)
	return c == '{' || c == ':' || isNameChar(c)
}

func (p *parser) parseVariable(parent NodeID) NodeID {
	id := p.open(KindVariable, parent)
	p.advance()
	if p.peek() == '{' {
		p.advance()
		name := p.open(KindVariableName, id)
		for !p.eof() && p.peek() != '}' {
			p.advance()
		}
		p.close(name)
		if p.eof() {
			return p.fail(id, MsgMissingBrace)
		}
		p.advance()
		return p.close(id)
	}
	name := p.open(KindVariableName, id)
	for !p.eof() {
		c := p.peek()
		if c == ':' && p.peekAt(1) == ':' {
			p.advance()
			p.advance()
			continue
		}
		if !isNameChar(c) {
			break
		}
		p.advance()
	}
	p.close(name)
	return p.close(id)
}

// skipEscape consumes a backslash sequence. A backslash-newline also swallows
// the indentation that follows it.
func (p *parser) skipEscape() {
	p.advance()
	if !isLineBreak(p.peek()) {
		p.advance()
		return
	}
	p.advance()
	if p.peek() == '\n' {
		p.advance()
	}
	for p.peek() == ' ' || p.peek() == '\t' {
		p.advance()
	}
}

// truncate clamps id and its descendants to end, detaching children that
// start at or after it.
func (p *parser) truncate(id NodeID, end int) {
	if p.nodes[id].End > end {
		p.nodes[id].End = end
	}
	kids := p.nodes[id].Children
	kept := kids[:0]
	for _, c := range kids {
		if p.nodes[c].Start >= end {
			p.orphans = true
			continue
		}
		p.truncate(c, end)
		kept = append(kept, c)
	}
	p.nodes[id].Children = kept
}

// compact rebuilds the arena with only the nodes reachable from the root.
func (p *parser) compact() {
	remap := make(map[NodeID]NodeID, len(p.nodes))
	var order []NodeID
	var visit func(NodeID)
	visit = func(id NodeID) {
		remap[id] = NodeID(len(order))
		order = append(order, id)
		for _, c := range p.nodes[id].Children {
			visit(c)
		}
	}
	visit(0)

	nodes := make([]Node, len(order))
	for i, old := range order {
		n := p.nodes[old]
		if n.Parent != NoNode {
			n.Parent = remap[n.Parent]
		}
		kids := make([]NodeID, len(n.Children))
		for j, c := range n.Children {
			kids[j] = remap[c]
		}
		n.Children = kids
		nodes[i] = n
	}
	p.nodes = nodes
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isLineBreak(c byte) bool { return c == '\n' || c == '\r' }

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isLetter(c) || ('0' <= c && c <= '9') || c == '_'
}

// MatchBracket returns the offset just past the ']' that closes the '['
// at text[open], using the same rules as Parse. It returns -1 when the
// bracket is not terminated.
func MatchBracket(text string, open int) int {
	return matchWith(text, open, '[', (*parser).parseCommandWord)
}

// MatchBrace is MatchBracket for a '{' at text[open].
func MatchBrace(text string, open int) int {
	return matchWith(text, open, '{', (*parser).parseBraced)
}

// MatchQuote is MatchBracket for a '"' at text[open].
func MatchQuote(text string, open int) int {
	return matchWith(text, open, '"', (*parser).parseQuoted)
}

func matchWith(text string, open int, delim byte, parse func(*parser, NodeID) NodeID) int {
	if open < 0 || open >= len(text) || text[open] != delim {
		return -1
	}
	p := &parser{text: text, pos: open, retry: -1}
	root := p.open(KindRoot, NoNode)
	id := parse(p, root)
	if p.nodes[id].Err != nil {
		return -1
	}
	return p.nodes[id].End
}
