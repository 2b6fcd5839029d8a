package errors

// ErrorDef defines an error in the catalog.
type ErrorDef struct {
	Class    ErrorClass
	Severity Severity
	Template string   // Message template with {{.placeholders}}
	Hints    []string // Hint templates
}

// ErrorCatalog maps error codes to their definitions.
var ErrorCatalog = map[string]ErrorDef{
	// ========================================
	// Lexer errors (LEX-0xxx)
	// ========================================
	"LEX-0001": {
		Class:    ClassLex,
		Template: "unterminated string, expecting a closing {{.Quote}}",
	},
	"LEX-0002": {
		Class:    ClassLex,
		Template: "invalid escape sequence '{{.Escape}}'",
		Hints:    []string{"valid escapes are ^n ^r ^t ^b ^a ^v ^0 ^^ ^\" ^' ^uXXXX and ^xHH"},
	},
	"LEX-0003": {
		Class:    ClassLex,
		Template: "unexpected '}' without a matching '{'",
	},
	"LEX-0004": {
		Class:    ClassLex,
		Template: "expecting a digit after the exponent in '{{.Literal}}'",
	},
	"LEX-0005": {
		Class:    ClassLex,
		Template: "unterminated escape block, expecting '{{.Fence}}'",
	},
	"LEX-0006": {
		Class:    ClassLex,
		Template: "missing {% {{.Tag}} %} to close the block",
	},
	"LEX-0007": {
		Class:    ClassLex,
		Template: "unexpected character '{{.Char}}'",
	},
	"LEX-0008": {
		Class:    ClassLex,
		Template: "expecting front matter marker '{{.Marker}}'",
	},
	"LEX-0009": {
		Class:    ClassLex,
		Template: "unterminated verbatim string, expecting a closing `",
	},

	// ========================================
	// Parse errors (PARSE-0xxx)
	// ========================================
	"PARSE-0001": {
		Class:    ClassParse,
		Template: "expecting {{.Expected}} instead of '{{.Got}}'",
	},
	"PARSE-0002": {
		Class:    ClassParse,
		Template: "unexpected token '{{.Token}}'",
	},
	"PARSE-0003": {
		Class:    ClassParse,
		Template: "missing '{{or .End \"end\"}}' for '{{.Statement}}' statement",
		Hints:    []string{"close the block with {{`{{`}} {{or .End \"end\"}} {{`}}`}}"},
	},
	"PARSE-0004": {
		Class:    ClassParse,
		Template: "'{{.Keyword}}' found without a matching '{{.Block}}'",
	},
	"PARSE-0005": {
		Class:    ClassParse,
		Template: "the expression depth limit of {{.Limit}} was exceeded",
	},
	"PARSE-0006": {
		Class:    ClassParse,
		Template: "invalid number '{{.Literal}}'",
	},
	"PARSE-0007": {
		Class:    ClassParse,
		Template: "missing closing '}}' for code block",
	},
	"PARSE-0008": {
		Class:    ClassParse,
		Template: "'{{.Target}}' cannot be assigned to",
	},
	"PARSE-0009": {
		Class:    ClassParse,
		Template: "expecting an expression instead of '{{.Got}}'",
	},
	"PARSE-0010": {
		Class:    ClassParse,
		Template: "'{{.Keyword}}' is only allowed inside a {{.Context}}",
	},
	"PARSE-0011": {
		Class:    ClassParse,
		Template: "parameter '{{.Name}}' is declared more than once",
	},
	"PARSE-0012": {
		Class:    ClassParse,
		Template: "required parameter '{{.Name}}' cannot follow optional parameters",
	},
	"PARSE-0013": {
		Class:    ClassParse,
		Template: "unsupported liquid tag '{{.Tag}}'",
	},
	"PARSE-0014": {
		Class:    ClassParse,
		Severity: SeverityWarning,
		Template: "empty code block",
	},
	"PARSE-0015": {
		Class:    ClassParse,
		Template: "the variadic parameter '{{.Name}}' must be the last parameter",
	},

	// ========================================
	// Undefined errors (UNDEF-0xxx)
	// ========================================
	"UNDEF-0001": {
		Class:    ClassUndefined,
		Template: "the variable or function '{{.Name}}' was not found",
	},
	"UNDEF-0002": {
		Class:    ClassUndefined,
		Template: "cannot find member '{{.Member}}' on {{.Type}}",
	},
	"UNDEF-0003": {
		Class:    ClassUndefined,
		Template: "cannot get member '{{.Member}}' of null",
	},
	"UNDEF-0004": {
		Class:    ClassUndefined,
		Template: "cannot index null with [{{.Index}}]",
	},

	// ========================================
	// Type errors (TYPE-0xxx)
	// ========================================
	"TYPE-0001": {
		Class:    ClassType,
		Template: "cannot convert {{.From}} to {{.To}}",
	},
	"TYPE-0002": {
		Class:    ClassType,
		Template: "'{{.Name}}' is not a function",
	},
	"TYPE-0003": {
		Class:    ClassType,
		Template: "{{.Type}} cannot be indexed",
	},
	"TYPE-0004": {
		Class:    ClassType,
		Template: "cannot iterate over {{.Type}}",
	},
	"TYPE-0005": {
		Class:    ClassType,
		Template: "{{.Type}} has no members",
	},
	"TYPE-0006": {
		Class:    ClassType,
		Template: "index {{.Index}} is out of range for {{.Type}}",
	},

	// ========================================
	// Operator errors (OP-0xxx)
	// ========================================
	"OP-0001": {
		Class:    ClassOperator,
		Template: "operator '{{.Operator}}' is not supported between {{.Left}} and {{.Right}}",
	},
	"OP-0002": {
		Class:    ClassOperator,
		Template: "operator '{{.Operator}}' is not supported on {{.Type}}",
	},
	"OP-0003": {
		Class:    ClassOperator,
		Template: "division by zero",
	},

	// ========================================
	// Arity errors (ARITY-0xxx)
	// ========================================
	"ARITY-0001": {
		Class:    ClassArity,
		Template: "invalid number of arguments {{.Got}} passed to '{{.Name}}', at least {{.Min}} argument(s) must be specified",
	},
	"ARITY-0002": {
		Class:    ClassArity,
		Template: "invalid number of arguments {{.Got}} passed to '{{.Name}}', at most {{.Max}} argument(s) are accepted",
	},
	"ARITY-0003": {
		Class:    ClassArity,
		Template: "'{{.Name}}' has no parameter named '{{.Param}}'",
	},
	"ARITY-0004": {
		Class:    ClassArity,
		Template: "parameter '{{.Param}}' of '{{.Name}}' is given more than once",
	},
	"ARITY-0005": {
		Class:    ClassArity,
		Template: "cannot convert argument '{{.Param}}' of '{{.Name}}' to {{.To}}",
	},
	"ARITY-0006": {
		Class:    ClassArity,
		Template: "'{{.Name}}' declares more than {{.Max}} parameters",
	},

	// ========================================
	// Read-only errors (RO-0xxx)
	// ========================================
	"RO-0001": {
		Class:    ClassReadOnly,
		Template: "cannot set '{{.Member}}': the member is read-only",
	},
	"RO-0002": {
		Class:    ClassReadOnly,
		Template: "cannot modify a read-only {{.Type}}",
	},
	"RO-0003": {
		Class:    ClassReadOnly,
		Template: "cannot set member '{{.Member}}' on {{.Type}}",
	},

	// ========================================
	// Limit errors (LIMIT-0xxx)
	// ========================================
	"LIMIT-0001": {
		Class:    ClassLimit,
		Template: "exceeding the number of iterations limit of {{.Limit}} for loops",
	},
	"LIMIT-0002": {
		Class:    ClassLimit,
		Template: "exceeding the recursion limit of {{.Limit}}",
	},
	"LIMIT-0003": {
		Class:    ClassLimit,
		Template: "the evaluation was aborted: {{.Reason}}",
	},

	// ========================================
	// Include errors (INCL-0xxx)
	// ========================================
	"INCL-0001": {
		Class:    ClassInclude,
		Template: "include requires a template name",
	},
	"INCL-0002": {
		Class:    ClassInclude,
		Template: "the template '{{.Name}}' was not found",
	},
	"INCL-0003": {
		Class:    ClassInclude,
		Template: "failed to load the template '{{.Name}}'",
	},
	"INCL-0004": {
		Class:    ClassInclude,
		Template: "the template '{{.Name}}' has errors",
	},
	"INCL-0005": {
		Class:    ClassInclude,
		Template: "no template loader is configured to include '{{.Name}}'",
	},
	"INCL-0006": {
		Class:    ClassInclude,
		Template: "error while rendering the template '{{.Name}}'",
	},

	// ========================================
	// Invocation errors (INVOKE-0xxx)
	// ========================================
	"INVOKE-0001": {
		Class:    ClassInvoke,
		Template: "unexpected error while calling '{{.Name}}'",
	},

	// ========================================
	// State errors (STATE-0xxx)
	// ========================================
	"STATE-0001": {
		Class:    ClassState,
		Template: "the template has errors and cannot be evaluated",
	},
	"STATE-0002": {
		Class:    ClassState,
		Template: "'{{.Keyword}}' used outside of a {{.Context}}",
	},
}
