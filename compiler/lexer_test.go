package compiler

import "testing"

func TestNextToken(t *testing.T) {
	input := `var x = 42;
if (x >= 10) { x = x << 2; }
while (x != 0) { x = x - 1; }
return "done";`

	expected := []struct {
		typ     TokenType
		literal string
	}{
		{TokenVar, "var"},
		{TokenIdentifier, "x"},
		{TokenAssign, "="},
		{TokenNumber, "42"},
		{TokenSemicolon, ";"},
		{TokenIf, "if"},
		{TokenLParen, "("},
		{TokenIdentifier, "x"},
		{TokenGreaterEq, ">="},
		{TokenNumber, "10"},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenIdentifier, "x"},
		{TokenAssign, "="},
		{TokenIdentifier, "x"},
		{TokenShiftLeft, "<<"},
		{TokenNumber, "2"},
		{TokenSemicolon, ";"},
		{TokenRBrace, "}"},
		{TokenWhile, "while"},
		{TokenLParen, "("},
		{TokenIdentifier, "x"},
		{TokenNotEqual, "!="},
		{TokenNumber, "0"},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenIdentifier, "x"},
		{TokenAssign, "="},
		{TokenIdentifier, "x"},
		{TokenMinus, "-"},
		{TokenNumber, "1"},
		{TokenSemicolon, ";"},
		{TokenRBrace, "}"},
		{TokenReturn, "return"},
		{TokenString, "done"},
		{TokenSemicolon, ";"},
		{TokenEOF, ""},
	}

	lexer := NewLexer(input)
	for i, exp := range expected {
		tok := lexer.NextToken()
		if tok.Type != exp.typ {
			t.Fatalf("token %d: type = %v, want %v (literal %q)", i, tok.Type, exp.typ, tok.Literal)
		}
		if tok.Literal != exp.literal {
			t.Fatalf("token %d: literal = %q, want %q", i, tok.Literal, exp.literal)
		}
	}
}

func TestLexerOperators(t *testing.T) {
	input := "+ - * / % == != < > <= >= && || ! & | ^ ~ << >> : ,"
	expected := []TokenType{
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent,
		TokenEqual, TokenNotEqual, TokenLess, TokenGreater,
		TokenLessEq, TokenGreaterEq, TokenAndAnd, TokenOrOr,
		TokenBang, TokenAmpersand, TokenPipe, TokenCaret, TokenTilde,
		TokenShiftLeft, TokenShiftRight, TokenColon, TokenComma,
		TokenEOF,
	}

	lexer := NewLexer(input)
	for i, want := range expected {
		tok := lexer.NextToken()
		if tok.Type != want {
			t.Errorf("token %d: type = %v, want %v", i, tok.Type, want)
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	input := "if else while for return function var break continue true false null"
	expected := []TokenType{
		TokenIf, TokenElse, TokenWhile, TokenFor, TokenReturn,
		TokenFunction, TokenVar, TokenBreak, TokenContinue,
		TokenTrue, TokenFalse, TokenNull, TokenEOF,
	}

	lexer := NewLexer(input)
	for i, want := range expected {
		tok := lexer.NextToken()
		if tok.Type != want {
			t.Errorf("token %d: type = %v, want %v", i, tok.Type, want)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0", "0"},
		{"42", "42"},
		{"1234567890", "1234567890"},
		{"0x1F", "0x1F"},
		{"0xdeadbeef", "0xdeadbeef"},
	}

	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != TokenNumber {
			t.Errorf("lex(%q): type = %v, want TokenNumber", tt.input, tok.Type)
			continue
		}
		if tok.Literal != tt.want {
			t.Errorf("lex(%q): literal = %q, want %q", tt.input, tok.Literal, tt.want)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"a\nb"`, "a\nb"},
		{`"tab\there"`, "tab\there"},
		{`"quote \" inside"`, `quote " inside`},
		{`"back\\slash"`, `back\slash`},
	}

	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != TokenString {
			t.Errorf("lex(%s): type = %v, want TokenString", tt.input, tok.Type)
			continue
		}
		if tok.Literal != tt.want {
			t.Errorf("lex(%s): literal = %q, want %q", tt.input, tok.Literal, tt.want)
		}
	}
}

func TestLexerUnterminatedString(t *testing.T) {
	tok := NewLexer(`"no closing quote`).NextToken()
	if tok.Type != TokenError {
		t.Errorf("type = %v, want TokenError", tok.Type)
	}
}

func TestLexerComments(t *testing.T) {
	input := `// line comment
x /* block
comment */ y`

	lexer := NewLexer(input)
	first := lexer.NextToken()
	second := lexer.NextToken()
	third := lexer.NextToken()

	if first.Literal != "x" || second.Literal != "y" {
		t.Errorf("tokens = %q, %q, want \"x\", \"y\"", first.Literal, second.Literal)
	}
	if third.Type != TokenEOF {
		t.Errorf("trailing token = %v, want TokenEOF", third.Type)
	}
}

func TestLexerPositions(t *testing.T) {
	input := "var x;\n  y = 1;"
	lexer := NewLexer(input)

	tok := lexer.NextToken() // var
	if tok.Pos.Line != 1 || tok.Pos.Column != 1 {
		t.Errorf("var at %d:%d, want 1:1", tok.Pos.Line, tok.Pos.Column)
	}

	lexer.NextToken() // x
	lexer.NextToken() // ;

	tok = lexer.NextToken() // y
	if tok.Pos.Line != 2 || tok.Pos.Column != 3 {
		t.Errorf("y at %d:%d, want 2:3", tok.Pos.Line, tok.Pos.Column)
	}
}

func TestTokenize(t *testing.T) {
	tokens := NewLexer("a + b;").Tokenize()
	if len(tokens) != 5 {
		t.Fatalf("len(tokens) = %d, want 5", len(tokens))
	}
	if tokens[len(tokens)-1].Type != TokenEOF {
		t.Errorf("last token = %v, want TokenEOF", tokens[len(tokens)-1].Type)
	}
}
