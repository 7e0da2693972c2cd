package compiler

// Precedence orders binding strength from loosest to tightest.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment // =
	PrecOr         // or
	PrecAnd        // and
	PrecEquality   // == !=
	PrecComparison // < > <= >=
	PrecTerm       // + -
	PrecFactor     // * /
	PrecUnary      // ! -
	PrecCall       // ()
	PrecPrimary
)

// ruleKind names a parse action. Rules are dispatched by a switch in
// applyRule rather than stored as function values.
type ruleKind int

const (
	ruleNone ruleKind = iota
	ruleGrouping
	ruleCall
	ruleUnary
	ruleBinary
	ruleNumber
	ruleString
	ruleLiteral
	ruleVariable
	ruleAnd
	ruleOr
	ruleUnsupported
)

type parseRule struct {
	prefix     ruleKind
	infix      ruleKind
	precedence Precedence
}

var rules = [tokenTypeCount]parseRule{
	TokenLeftParen:    {ruleGrouping, ruleCall, PrecCall},
	TokenMinus:        {ruleUnary, ruleBinary, PrecTerm},
	TokenPlus:         {ruleNone, ruleBinary, PrecTerm},
	TokenSlash:        {ruleNone, ruleBinary, PrecFactor},
	TokenStar:         {ruleNone, ruleBinary, PrecFactor},
	TokenBang:         {ruleUnary, ruleNone, PrecNone},
	TokenBangEqual:    {ruleNone, ruleBinary, PrecEquality},
	TokenEqualEqual:   {ruleNone, ruleBinary, PrecEquality},
	TokenGreater:      {ruleNone, ruleBinary, PrecComparison},
	TokenGreaterEqual: {ruleNone, ruleBinary, PrecComparison},
	TokenLess:         {ruleNone, ruleBinary, PrecComparison},
	TokenLessEqual:    {ruleNone, ruleBinary, PrecComparison},
	TokenIdentifier:   {ruleVariable, ruleNone, PrecNone},
	TokenString:       {ruleString, ruleNone, PrecNone},
	TokenNumber:       {ruleNumber, ruleNone, PrecNone},
	TokenAnd:          {ruleNone, ruleAnd, PrecAnd},
	TokenOr:           {ruleNone, ruleOr, PrecOr},
	TokenFalse:        {ruleLiteral, ruleNone, PrecNone},
	TokenTrue:         {ruleLiteral, ruleNone, PrecNone},
	TokenNil:          {ruleLiteral, ruleNone, PrecNone},
	TokenThis:         {ruleUnsupported, ruleNone, PrecNone},
	TokenSuper:        {ruleUnsupported, ruleNone, PrecNone},
}

func getRule(t TokenType) parseRule {
	return rules[t]
}

// parsePrecedence parses an expression whose operators bind at least as
// tightly as prec.
func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	prefix := getRule(c.previous.Type).prefix
	if prefix == ruleNone {
		c.errorAtPrevious("Expect expression.")
		return
	}

	canAssign := prec <= PrecAssignment
	c.applyRule(prefix, canAssign)

	for prec <= getRule(c.current.Type).precedence {
		c.advance()
		c.applyRule(getRule(c.previous.Type).infix, canAssign)
	}

	if canAssign && c.match(TokenEqual) {
		c.errorAtPrevious("Invalid assignment target.")
	}
}

func (c *Compiler) applyRule(kind ruleKind, canAssign bool) {
	switch kind {
	case ruleGrouping:
		c.grouping()
	case ruleCall:
		c.call()
	case ruleUnary:
		c.unary()
	case ruleBinary:
		c.binary()
	case ruleNumber:
		c.number()
	case ruleString:
		c.string()
	case ruleLiteral:
		c.literal()
	case ruleVariable:
		c.variable(canAssign)
	case ruleAnd:
		c.and()
	case ruleOr:
		c.or()
	case ruleUnsupported:
		c.errorAtPrevious("Classes are not supported.")
	}
}
