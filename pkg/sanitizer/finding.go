package sanitizer

import (
	"fmt"
	"strings"
)

// Kind classifies a sanitizer finding. AddressSanitizer kinds are one
// of the constants below; undefined behavior findings carry their
// runtime error message.
type Kind string

const (
	HeapBufferOverflow        Kind = "heap-buffer-overflow"
	HeapUseAfterFree          Kind = "heap-use-after-free"
	StackBufferOverflow       Kind = "stack-buffer-overflow"
	GlobalBufferOverflow      Kind = "global-buffer-overflow"
	StackUseAfterReturn       Kind = "stack-use-after-return"
	InitializationOrderFiasco Kind = "initialization-order-fiasco"
	StackUseAfterScope        Kind = "stack-use-after-scope"

	undefinedBehaviorPrefix = "runtime error: "
)

// AddressKinds lists the AddressSanitizer kinds that are recognized.
var AddressKinds = []Kind{
	HeapBufferOverflow,
	HeapUseAfterFree,
	StackBufferOverflow,
	GlobalBufferOverflow,
	StackUseAfterReturn,
	InitializationOrderFiasco,
	StackUseAfterScope,
}

// UndefinedBehavior returns the Kind of an undefined behavior finding
// with the given message.
func UndefinedBehavior(message string) Kind {
	return Kind(undefinedBehaviorPrefix + strings.TrimSpace(message))
}

// IsUndefinedBehavior reports whether k came from UndefinedBehavior.
func (k Kind) IsUndefinedBehavior() bool {
	return strings.HasPrefix(string(k), undefinedBehaviorPrefix)
}

// Label returns a bounded-cardinality name for metrics: the kind itself
// for address findings and "undefined-behavior" otherwise.
func (k Kind) Label() string {
	if k.IsUndefinedBehavior() {
		return "undefined-behavior"
	}
	return string(k)
}

// Finding is one sanitizer diagnostic. Location is an opaque token
// (source position or address) that is only ever compared.
type Finding struct {
	Kind     Kind
	Location string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s at %s", f.Kind, f.Location)
}

// Findings is the set of findings produced by one run.
type Findings []Finding

// CoveredBy reports whether every finding in fs also occurs, by kind
// and location, in known. An empty set is trivially covered.
func (fs Findings) CoveredBy(known map[Finding]int) bool {
	for _, f := range fs {
		if known[f] == 0 {
			return false
		}
	}
	return true
}

// String renders one finding per line, the persisted form.
func (fs Findings) String() string {
	var b strings.Builder
	for _, f := range fs {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	return b.String()
}
