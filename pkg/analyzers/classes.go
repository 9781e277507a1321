package analyzers

import "strings"

// Vulnerability classes shared by all normalizers, so that analyzers
// naming the same issue differently still agree in the consensus engine.
const (
	ClassReentrancy    = "reentrancy"
	ClassAccessControl = "access-control"
	ClassTxOrigin      = "tx-origin"
	ClassUncheckedCall = "unchecked-call"
	ClassArithmetic    = "arithmetic"
	ClassTimestamp     = "timestamp"
	ClassRandomness    = "weak-randomness"
	ClassDelegatecall  = "delegatecall"
	ClassSelfdestruct  = "selfdestruct"
	ClassDoS           = "denial-of-service"
)

var slitherClasses = map[string]string{
	"reentrancy-eth":           ClassReentrancy,
	"reentrancy-no-eth":        ClassReentrancy,
	"reentrancy-benign":        ClassReentrancy,
	"reentrancy-events":        ClassReentrancy,
	"reentrancy-unlimited-gas": ClassReentrancy,
	"arbitrary-send":           ClassAccessControl,
	"arbitrary-send-eth":       ClassAccessControl,
	"arbitrary-send-erc20":     ClassAccessControl,
	"unprotected-upgrade":      ClassAccessControl,
	"suicidal":                 ClassSelfdestruct,
	"tx-origin":                ClassTxOrigin,
	"unchecked-lowlevel":       ClassUncheckedCall,
	"unchecked-send":           ClassUncheckedCall,
	"unchecked-transfer":       ClassUncheckedCall,
	"unused-return":            ClassUncheckedCall,
	"divide-before-multiply":   ClassArithmetic,
	"timestamp":                ClassTimestamp,
	"weak-prng":                ClassRandomness,
	"controlled-delegatecall":  ClassDelegatecall,
	"delegatecall-loop":        ClassDelegatecall,
	"calls-loop":               ClassDoS,
	"msg-value-loop":           ClassDoS,
}

var swcClasses = map[string]string{
	"101": ClassArithmetic,
	"104": ClassUncheckedCall,
	"105": ClassAccessControl,
	"106": ClassSelfdestruct,
	"107": ClassReentrancy,
	"112": ClassDelegatecall,
	"113": ClassDoS,
	"115": ClassTxOrigin,
	"116": ClassTimestamp,
	"120": ClassRandomness,
	"128": ClassDoS,
}

// classFromKeywords is the fallback for analyzers with free-form rule ids.
var classFromKeywords = []struct {
	keyword string
	class   string
}{
	{"reentran", ClassReentrancy},
	{"tx-origin", ClassTxOrigin},
	{"tx.origin", ClassTxOrigin},
	{"delegatecall", ClassDelegatecall},
	{"selfdestruct", ClassSelfdestruct},
	{"overflow", ClassArithmetic},
	{"underflow", ClassArithmetic},
	{"unchecked", ClassUncheckedCall},
	{"access-control", ClassAccessControl},
	{"only-owner", ClassAccessControl},
	{"timestamp", ClassTimestamp},
	{"randomness", ClassRandomness},
}

func slitherClass(check string) string {
	if c, ok := slitherClasses[strings.ToLower(check)]; ok {
		return c
	}
	return keywordClass(check)
}

func swcClass(id string) string {
	id = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(id)), "SWC-")
	return swcClasses[id]
}

func keywordClass(s string) string {
	s = strings.ToLower(s)
	for _, k := range classFromKeywords {
		if strings.Contains(s, k.keyword) {
			return k.class
		}
	}
	return ""
}

// CanonicalClass maps any analyzer's class label onto the shared set,
// returning the label unchanged when nothing matches.
func CanonicalClass(label string) string {
	if c := slitherClass(label); c != "" {
		return c
	}
	if c := swcClass(label); c != "" {
		return c
	}
	return strings.ToLower(strings.TrimSpace(label))
}
