package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the R+ lexer
// ---------------------------------------------------------------------------

// Position identifies a location in source text.
type Position struct {
	Offset int // byte offset, 0-based
	Line   int // 1-based
	Column int // 1-based
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber     // 42, 0xFF
	TokenString     // "hello"
	TokenIdentifier // foo, bar_2

	// Keywords
	TokenIf
	TokenElse
	TokenWhile
	TokenFor
	TokenReturn
	TokenFunction
	TokenVar
	TokenBreak
	TokenContinue
	TokenTrue
	TokenFalse
	TokenNull

	// Operators
	TokenPlus       // +
	TokenMinus      // -
	TokenStar       // *
	TokenSlash      // /
	TokenPercent    // %
	TokenAssign     // =
	TokenEqual      // ==
	TokenNotEqual   // !=
	TokenLess       // <
	TokenGreater    // >
	TokenLessEq     // <=
	TokenGreaterEq  // >=
	TokenAndAnd     // &&
	TokenOrOr       // ||
	TokenBang       // !
	TokenAmpersand  // &
	TokenPipe       // |
	TokenCaret      // ^
	TokenTilde      // ~
	TokenShiftLeft  // <<
	TokenShiftRight // >>

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenSemicolon // ;
	TokenComma     // ,
	TokenColon     // :
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNumber:     "NUMBER",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenFor:        "for",
	TokenReturn:     "return",
	TokenFunction:   "function",
	TokenVar:        "var",
	TokenBreak:      "break",
	TokenContinue:   "continue",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenNull:       "null",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenPercent:    "%",
	TokenAssign:     "=",
	TokenEqual:      "==",
	TokenNotEqual:   "!=",
	TokenLess:       "<",
	TokenGreater:    ">",
	TokenLessEq:     "<=",
	TokenGreaterEq:  ">=",
	TokenAndAnd:     "&&",
	TokenOrOr:       "||",
	TokenBang:       "!",
	TokenAmpersand:  "&",
	TokenPipe:       "|",
	TokenCaret:      "^",
	TokenTilde:      "~",
	TokenShiftLeft:  "<<",
	TokenShiftRight: ">>",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenLBracket:   "[",
	TokenRBracket:   "]",
	TokenSemicolon:  ";",
	TokenComma:      ",",
	TokenColon:      ":",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"for":      TokenFor,
	"return":   TokenReturn,
	"function": TokenFunction,
	"var":      TokenVar,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"null":     TokenNull,
}
