package compiler

import "strconv"

// ---------------------------------------------------------------------------
// Parser: recursive descent over the token stream
// ---------------------------------------------------------------------------

// Parser builds a Program from R+ source.
type Parser struct {
	lexer *Lexer

	curToken  Token
	peekToken Token
}

// NewParser creates a parser over the given source.
func NewParser(source string) *Parser {
	p := &Parser{lexer: NewLexer(source)}
	// Prime curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse consumes the whole input and returns the program.
func Parse(source string) (*Program, error) {
	return NewParser(source).ParseProgram()
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// expect consumes the current token if it has the given type, and
// fails with a syntax error otherwise.
func (p *Parser) expect(t TokenType) (Token, error) {
	if p.curToken.Type != t {
		return Token{}, newError(ErrSyntax, p.curToken.Pos, "expected %s, found %s", t, p.curToken)
	}
	tok := p.curToken
	p.nextToken()
	return tok, nil
}

// ParseProgram parses until EOF.
func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{node: node{Pos: p.curToken.Pos}}

	for p.curToken.Type != TokenEOF {
		if p.curToken.Type == TokenError {
			return nil, newError(ErrSyntax, p.curToken.Pos, "invalid token %q", p.curToken.Literal)
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}
	return prog, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	switch p.curToken.Type {
	case TokenFunction:
		// A function keyword in statement position declares a named
		// function; anonymous functions are expressions.
		if p.peekToken.Type == TokenIdentifier {
			return p.parseFunctionDecl()
		}
		return p.parseSimpleStatement()
	case TokenVar:
		return p.parseVarDecl()
	case TokenIf:
		return p.parseIfStatement()
	case TokenWhile:
		return p.parseWhileStatement()
	case TokenFor:
		return p.parseForStatement()
	case TokenReturn:
		return p.parseReturnStatement()
	case TokenBreak:
		pos := p.curToken.Pos
		p.nextToken()
		if _, err := p.expect(TokenSemicolon); err != nil {
			return nil, err
		}
		return &BreakStmt{node: node{Pos: pos}}, nil
	case TokenContinue:
		pos := p.curToken.Pos
		p.nextToken()
		if _, err := p.expect(TokenSemicolon); err != nil {
			return nil, err
		}
		return &ContinueStmt{node: node{Pos: pos}}, nil
	case TokenLBrace:
		return p.parseBlock()
	case TokenIdentifier:
		if p.curToken.Literal == "class" {
			return p.parseClassDecl()
		}
		if p.curToken.Literal == "throw" {
			return p.parseThrowStatement()
		}
		if p.curToken.Literal == "try" {
			return p.parseTryStatement()
		}
		return p.parseSimpleStatement()
	default:
		return p.parseSimpleStatement()
	}
}

// parseSimpleStatement parses an expression statement or an assignment,
// terminated by a semicolon.
func (p *Parser) parseSimpleStatement() (Stmt, error) {
	stmt, err := p.parseSimpleStatementNoSemi()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseSimpleStatementNoSemi is the semicolon-free variant used by for
// loop headers.
func (p *Parser) parseSimpleStatementNoSemi() (Stmt, error) {
	if p.curToken.Type == TokenVar {
		return p.parseVarDeclNoSemi()
	}

	pos := p.curToken.Pos
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if p.curToken.Type == TokenAssign {
		switch expr.(type) {
		case *Identifier, *IndexExpr:
		default:
			return nil, newError(ErrSyntax, pos, "invalid assignment target")
		}
		p.nextToken()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &AssignStmt{node: node{Pos: pos}, Target: expr, Value: value}, nil
	}

	return &ExprStmt{node: node{Pos: pos}, Expr: expr}, nil
}

func (p *Parser) parseVarDecl() (Stmt, error) {
	stmt, err := p.parseVarDeclNoSemi()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseVarDeclNoSemi() (Stmt, error) {
	pos := p.curToken.Pos
	p.nextToken() // consume var

	name, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}

	decl := &VarDecl{node: node{Pos: pos}, Name: name.Literal}
	if p.curToken.Type == TokenAssign {
		p.nextToken()
		decl.Value, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	return decl, nil
}

func (p *Parser) parseBlock() (*BlockStmt, error) {
	pos := p.curToken.Pos
	if _, err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}

	block := &BlockStmt{node: node{Pos: pos}}
	for p.curToken.Type != TokenRBrace {
		if p.curToken.Type == TokenEOF {
			return nil, newError(ErrSyntax, pos, "unterminated block")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Statements = append(block.Statements, stmt)
	}
	p.nextToken() // consume }
	return block, nil
}

func (p *Parser) parseIfStatement() (Stmt, error) {
	pos := p.curToken.Pos
	p.nextToken() // consume if

	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	stmt := &IfStmt{node: node{Pos: pos}, Cond: cond, Then: then}
	if p.curToken.Type == TokenElse {
		p.nextToken()
		if p.curToken.Type == TokenIf {
			// else if chains as a one-statement else block
			nested, err := p.parseIfStatement()
			if err != nil {
				return nil, err
			}
			stmt.Else = &BlockStmt{node: node{Pos: nested.Position()}, Statements: []Stmt{nested}}
		} else {
			stmt.Else, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
	}
	return stmt, nil
}

func (p *Parser) parseWhileStatement() (Stmt, error) {
	pos := p.curToken.Pos
	p.nextToken() // consume while

	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{node: node{Pos: pos}, Cond: cond, Body: body}, nil
}

func (p *Parser) parseForStatement() (Stmt, error) {
	pos := p.curToken.Pos
	p.nextToken() // consume for

	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	stmt := &ForStmt{node: node{Pos: pos}}
	var err error

	if p.curToken.Type != TokenSemicolon {
		stmt.Init, err = p.parseSimpleStatementNoSemi()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}

	if p.curToken.Type != TokenSemicolon {
		stmt.Cond, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}

	if p.curToken.Type != TokenRParen {
		stmt.Update, err = p.parseSimpleStatementNoSemi()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	stmt.Body, err = p.parseBlock()
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseFunctionDecl() (Stmt, error) {
	pos := p.curToken.Pos
	p.nextToken() // consume function

	name, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &FunctionDecl{node: node{Pos: pos}, Name: name.Literal, Params: params, Body: body}, nil
}

func (p *Parser) parseParamList() ([]string, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var params []string
	for p.curToken.Type != TokenRParen {
		name, err := p.expect(TokenIdentifier)
		if err != nil {
			return nil, err
		}
		params = append(params, name.Literal)
		if p.curToken.Type != TokenComma {
			break
		}
		p.nextToken()
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseReturnStatement() (Stmt, error) {
	pos := p.curToken.Pos
	p.nextToken() // consume return

	stmt := &ReturnStmt{node: node{Pos: pos}}
	if p.curToken.Type != TokenSemicolon {
		var err error
		stmt.Value, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseClassDecl records the class name and skips the braced body.
// Class semantics are not compilable; keeping the node lets the
// compiler report a precise error instead of a parse failure.
func (p *Parser) parseClassDecl() (Stmt, error) {
	pos := p.curToken.Pos
	p.nextToken() // consume class

	name, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	if p.curToken.Type != TokenLBrace {
		return nil, newError(ErrSyntax, p.curToken.Pos, "expected { after class name")
	}

	depth := 0
	for {
		switch p.curToken.Type {
		case TokenLBrace:
			depth++
		case TokenRBrace:
			depth--
		case TokenEOF:
			return nil, newError(ErrSyntax, pos, "unterminated class body")
		}
		p.nextToken()
		if depth == 0 {
			break
		}
	}
	return &ClassDecl{node: node{Pos: pos}, Name: name.Literal}, nil
}

func (p *Parser) parseThrowStatement() (Stmt, error) {
	pos := p.curToken.Pos
	p.nextToken() // consume throw

	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}
	return &ThrowStmt{node: node{Pos: pos}, Value: value}, nil
}

func (p *Parser) parseTryStatement() (Stmt, error) {
	pos := p.curToken.Pos
	p.nextToken() // consume try

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	if p.curToken.Type != TokenIdentifier || p.curToken.Literal != "catch" {
		return nil, newError(ErrSyntax, p.curToken.Pos, "expected catch after try block")
	}
	p.nextToken()

	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	name, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	catch, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &TryStmt{node: node{Pos: pos}, Body: body, CatchName: name.Literal, Catch: catch}, nil
}

// ---------------------------------------------------------------------------
// Expressions, by descending precedence
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression() (Expr, error) {
	return p.parseLogicalOr()
}

// parseBinaryLevel parses a left-associative run of the given operator
// tokens above the next tighter level.
func (p *Parser) parseBinaryLevel(next func() (Expr, error), ops ...TokenType) (Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	for {
		matched := false
		for _, op := range ops {
			if p.curToken.Type == op {
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}

		opTok := p.curToken
		p.nextToken()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{node: node{Pos: opTok.Pos}, Op: opTok.Type, Left: left, Right: right}
	}
}

func (p *Parser) parseLogicalOr() (Expr, error) {
	return p.parseBinaryLevel(p.parseLogicalAnd, TokenOrOr)
}

func (p *Parser) parseLogicalAnd() (Expr, error) {
	return p.parseBinaryLevel(p.parseBitOr, TokenAndAnd)
}

func (p *Parser) parseBitOr() (Expr, error) {
	return p.parseBinaryLevel(p.parseBitXor, TokenPipe)
}

func (p *Parser) parseBitXor() (Expr, error) {
	return p.parseBinaryLevel(p.parseBitAnd, TokenCaret)
}

func (p *Parser) parseBitAnd() (Expr, error) {
	return p.parseBinaryLevel(p.parseEquality, TokenAmpersand)
}

func (p *Parser) parseEquality() (Expr, error) {
	return p.parseBinaryLevel(p.parseComparison, TokenEqual, TokenNotEqual)
}

func (p *Parser) parseComparison() (Expr, error) {
	return p.parseBinaryLevel(p.parseShift, TokenLess, TokenLessEq, TokenGreater, TokenGreaterEq)
}

func (p *Parser) parseShift() (Expr, error) {
	return p.parseBinaryLevel(p.parseAdditive, TokenShiftLeft, TokenShiftRight)
}

func (p *Parser) parseAdditive() (Expr, error) {
	return p.parseBinaryLevel(p.parseMultiplicative, TokenPlus, TokenMinus)
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	return p.parseBinaryLevel(p.parseUnary, TokenStar, TokenSlash, TokenPercent)
}

func (p *Parser) parseUnary() (Expr, error) {
	switch p.curToken.Type {
	case TokenMinus, TokenBang, TokenTilde:
		opTok := p.curToken
		p.nextToken()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{node: node{Pos: opTok.Pos}, Op: opTok.Type, Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any number of
// index suffixes.
func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.curToken.Type == TokenLBracket {
		pos := p.curToken.Pos
		p.nextToken()
		index, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRBracket); err != nil {
			return nil, err
		}
		expr = &IndexExpr{node: node{Pos: pos}, Array: expr, Index: index}
	}
	return expr, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	pos := p.curToken.Pos

	switch p.curToken.Type {
	case TokenNumber:
		literal := p.curToken.Literal
		p.nextToken()
		num, err := strconv.ParseUint(literal, 0, 64)
		if err != nil {
			return nil, newError(ErrSyntax, pos, "invalid number %q", literal)
		}
		return &Literal{node: node{Pos: pos}, Kind: LitNumber, Num: num}, nil

	case TokenString:
		literal := p.curToken.Literal
		p.nextToken()
		return &Literal{node: node{Pos: pos}, Kind: LitString, Str: literal}, nil

	case TokenTrue:
		p.nextToken()
		return &Literal{node: node{Pos: pos}, Kind: LitBool, Bool: true}, nil

	case TokenFalse:
		p.nextToken()
		return &Literal{node: node{Pos: pos}, Kind: LitBool, Bool: false}, nil

	case TokenNull:
		p.nextToken()
		return &Literal{node: node{Pos: pos}, Kind: LitNull}, nil

	case TokenIdentifier:
		name := p.curToken.Literal
		p.nextToken()
		if p.curToken.Type == TokenLParen {
			return p.parseCallArgs(pos, name)
		}
		return &Identifier{node: node{Pos: pos}, Name: name}, nil

	case TokenLParen:
		p.nextToken()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil

	case TokenLBracket:
		return p.parseArrayLiteral(pos)

	case TokenLBrace:
		return p.parseObjectLiteral(pos)

	case TokenFunction:
		return p.parseLambda(pos)

	default:
		return nil, newError(ErrSyntax, pos, "unexpected token %s", p.curToken)
	}
}

func (p *Parser) parseCallArgs(pos Position, name string) (Expr, error) {
	p.nextToken() // consume (

	call := &CallExpr{node: node{Pos: pos}, Name: name}
	for p.curToken.Type != TokenRParen {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.curToken.Type != TokenComma {
			break
		}
		p.nextToken()
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *Parser) parseArrayLiteral(pos Position) (Expr, error) {
	p.nextToken() // consume [

	arr := &ArrayLiteral{node: node{Pos: pos}}
	for p.curToken.Type != TokenRBracket {
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, elem)
		if p.curToken.Type != TokenComma {
			break
		}
		p.nextToken()
	}
	if _, err := p.expect(TokenRBracket); err != nil {
		return nil, err
	}
	return arr, nil
}

func (p *Parser) parseObjectLiteral(pos Position) (Expr, error) {
	p.nextToken() // consume {

	obj := &ObjectLiteral{node: node{Pos: pos}}
	for p.curToken.Type != TokenRBrace {
		var key string
		switch p.curToken.Type {
		case TokenIdentifier, TokenString:
			key = p.curToken.Literal
		default:
			return nil, newError(ErrSyntax, p.curToken.Pos, "expected property name, found %s", p.curToken)
		}
		p.nextToken()

		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}

		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		obj.Keys = append(obj.Keys, key)
		obj.Values = append(obj.Values, value)

		if p.curToken.Type != TokenComma {
			break
		}
		p.nextToken()
	}
	if _, err := p.expect(TokenRBrace); err != nil {
		return nil, err
	}
	return obj, nil
}

func (p *Parser) parseLambda(pos Position) (Expr, error) {
	p.nextToken() // consume function

	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &Lambda{node: node{Pos: pos}, Params: params, Body: body}, nil
}
