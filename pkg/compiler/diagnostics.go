package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Severity classifies a compiler message.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInternalError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInternalError:
		return "internal error"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ErrorCode identifies the kind of problem a message reports.
type ErrorCode int

const (
	ErrNone ErrorCode = iota
	InternalError
	UnexpectedToken
	UnknownPreprocessorDirective
	MacroNameMissing
	MacroNameInvalid
	MacroAlreadyExists
	MacroDoesNotExist
	IfWithoutEndIf
	EndIfWithoutIf
	ElseWithoutIf
	InvalidVersionNumber
	UserDefinedError
	LineTooLong
	IncludeNotFound
	CircularInclude
	CircularReference
	StructInsideItself
	ConstIntExpected
	CannotExtendPrototypeStruct
	MemberFunctionNotDefined
	DifferentModifierInPrototype
	NewDefinitionIsDifferent
	AttributesMustBeImported
	AnonymousParameterInFunctionBody
	VariableDeclarationNotAllowedHere
	ParentIsNotAStruct
	StructNameExpected
	TokenAlreadyDefined
	VariableTypeExpected
	GlobalVariableExpected
	OperatorExpectsLeftHandSide
	OperatorExpectsRightHandSide
	OperatorDoesNotExpectLeftHandSide
	EndOfInputReached
	InvalidUseOfKeyword
	InvalidUseOfStruct
	CannotPassStructToFunction
	CannotReturnStructFromFunction
	CannotUseTypeInStruct
	VariableAlreadyImported
	InvalidModifier
	UndefinedToken
	TypeMismatch
	WrongNumberOfArguments
	FunctionNotDefined
	LoopControlOutsideLoop
	ReturnValueMismatch
	MismatchedBracket
	ExpressionHasNoEffect
)

var errorCodeNames = map[ErrorCode]string{
	InternalError:                     "InternalError",
	UnexpectedToken:                   "UnexpectedToken",
	UnknownPreprocessorDirective:      "UnknownPreprocessorDirective",
	MacroNameMissing:                  "MacroNameMissing",
	MacroNameInvalid:                  "MacroNameInvalid",
	MacroAlreadyExists:                "MacroAlreadyExists",
	MacroDoesNotExist:                 "MacroDoesNotExist",
	IfWithoutEndIf:                    "IfWithoutEndIf",
	EndIfWithoutIf:                    "EndIfWithoutIf",
	ElseWithoutIf:                     "ElseWithoutIf",
	InvalidVersionNumber:              "InvalidVersionNumber",
	UserDefinedError:                  "UserDefinedError",
	LineTooLong:                       "LineTooLong",
	IncludeNotFound:                   "IncludeNotFound",
	CircularInclude:                   "CircularInclude",
	CircularReference:                 "CircularReference",
	StructInsideItself:                "StructInsideItself",
	ConstIntExpected:                  "ConstIntExpected",
	CannotExtendPrototypeStruct:       "CannotExtendPrototypeStruct",
	MemberFunctionNotDefined:          "MemberFunctionNotDefined",
	DifferentModifierInPrototype:      "DifferentModifierInPrototype",
	NewDefinitionIsDifferent:          "NewDefinitionIsDifferent",
	AttributesMustBeImported:          "AttributesMustBeImported",
	AnonymousParameterInFunctionBody:  "AnonymousParameterInFunctionBody",
	VariableDeclarationNotAllowedHere: "VariableDeclarationNotAllowedHere",
	ParentIsNotAStruct:                "ParentIsNotAStruct",
	StructNameExpected:                "StructNameExpected",
	TokenAlreadyDefined:               "TokenAlreadyDefined",
	VariableTypeExpected:              "VariableTypeExpected",
	GlobalVariableExpected:            "GlobalVariableExpected",
	OperatorExpectsLeftHandSide:       "OperatorExpectsLeftHandSide",
	OperatorExpectsRightHandSide:      "OperatorExpectsRightHandSide",
	OperatorDoesNotExpectLeftHandSide: "OperatorDoesNotExpectLeftHandSide",
	EndOfInputReached:                 "EndOfInputReached",
	InvalidUseOfKeyword:               "InvalidUseOfKeyword",
	InvalidUseOfStruct:                "InvalidUseOfStruct",
	CannotPassStructToFunction:        "CannotPassStructToFunction",
	CannotReturnStructFromFunction:    "CannotReturnStructFromFunction",
	CannotUseTypeInStruct:             "CannotUseTypeInStruct",
	VariableAlreadyImported:           "VariableAlreadyImported",
	InvalidModifier:                   "InvalidModifier",
	UndefinedToken:                    "UndefinedToken",
	TypeMismatch:                      "TypeMismatch",
	WrongNumberOfArguments:            "WrongNumberOfArguments",
	FunctionNotDefined:                "FunctionNotDefined",
	LoopControlOutsideLoop:            "LoopControlOutsideLoop",
	ReturnValueMismatch:               "ReturnValueMismatch",
	MismatchedBracket:                 "MismatchedBracket",
	ExpressionHasNoEffect:             "ExpressionHasNoEffect",
}

func (c ErrorCode) String() string {
	if n, ok := errorCodeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Message is a single diagnostic. It implements error so parser helpers can
// return it through ordinary error results.
type Message struct {
	Severity Severity
	Code     ErrorCode
	Text     string
	Line     int
	Unit     string
}

func (m *Message) Error() string {
	var sb strings.Builder
	if m.Unit != "" {
		sb.WriteString(m.Unit)
		sb.WriteByte(':')
	}
	fmt.Fprintf(&sb, "%d: %s: %s", m.Line, m.Severity, m.Text)
	return sb.String()
}

// IsInternal reports whether the message stops compilation of its unit.
func (m *Message) IsInternal() bool {
	return m.Severity == SeverityInternalError
}

func newError(code ErrorCode, format string, args ...any) *Message {
	return &Message{Severity: SeverityError, Code: code, Text: fmt.Sprintf(format, args...)}
}

func newWarning(code ErrorCode, format string, args ...any) *Message {
	return &Message{Severity: SeverityWarning, Code: code, Text: fmt.Sprintf(format, args...)}
}

// internalError is the only way to build a message with the InternalError code.
func internalError(format string, args ...any) *Message {
	return &Message{Severity: SeverityInternalError, Code: InternalError, Text: fmt.Sprintf(format, args...)}
}

// Results accumulates the messages produced while compiling one unit.
type Results struct {
	Messages []*Message
}

// Add appends m to the results.
func (r *Results) Add(m *Message) {
	r.Messages = append(r.Messages, m)
}

// HasErrors reports whether any message is an error or an internal error.
func (r *Results) HasErrors() bool {
	for _, m := range r.Messages {
		if m.Severity != SeverityWarning {
			return true
		}
	}
	return false
}

// Errors returns the error and internal error messages in order.
func (r *Results) Errors() []*Message {
	var out []*Message
	for _, m := range r.Messages {
		if m.Severity != SeverityWarning {
			out = append(out, m)
		}
	}
	return out
}

// Warnings returns the warning messages in order.
func (r *Results) Warnings() []*Message {
	var out []*Message
	for _, m := range r.Messages {
		if m.Severity == SeverityWarning {
			out = append(out, m)
		}
	}
	return out
}

// Err joins every error message into one error, or returns nil.
func (r *Results) Err() error {
	var errs []error
	for _, m := range r.Errors() {
		errs = append(errs, m)
	}
	return errors.Join(errs...)
}
