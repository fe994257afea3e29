package history

// Category is the coarse classification of an execution failure, derived
// from errorCode (spec.md §4.H, glossary "ErrorCategory").
type Category string

const (
	CategorySyntax    Category = "SYNTAX"
	CategoryImport    Category = "IMPORT"
	CategoryRuntime   Category = "RUNTIME"
	CategoryTimeout   Category = "TIMEOUT"
	CategoryTransport Category = "TRANSPORT"
	CategoryCanceled  Category = "CANCELED"
	CategoryOther     Category = "OTHER"
)

// CategoryForErrorCode implements the pinned errorCode → category mapping
// (DESIGN.md Open Question decision 3):
//
//	0          success, no category
//	100-199    SYNTAX
//	200-299    IMPORT
//	300-399    RUNTIME
//	400        TIMEOUT
//	410        TRANSPORT
//	420        CANCELED
//	otherwise  OTHER
//
// This is the single source of truth for the mapping: Store.Append uses it
// to set each entry's Category from its errorCode, and Query's category
// filter matches on that stored Category. The emitter (internal/execution)
// does not call it; its ErrorCode constants are chosen from these ranges.
func CategoryForErrorCode(code int) (cat Category, ok bool) {
	switch {
	case code == 0:
		return "", false
	case code >= 100 && code <= 199:
		return CategorySyntax, true
	case code >= 200 && code <= 299:
		return CategoryImport, true
	case code >= 300 && code <= 399:
		return CategoryRuntime, true
	case code == 400:
		return CategoryTimeout, true
	case code == 410:
		return CategoryTransport, true
	case code == 420:
		return CategoryCanceled, true
	default:
		return CategoryOther, true
	}
}
