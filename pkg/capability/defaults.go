package capability

import (
	_ "embed"
	"fmt"
)

//go:embed descriptions/traction.yaml
var tractionDescription []byte

// DefaultDescription returns the built-in description of the Traction
// multitenant admin API. It is parsed on every call so callers may
// mutate the result freely.
func DefaultDescription() *Description {
	desc, err := ParseDescription(tractionDescription)
	if err != nil {
		panic(fmt.Sprintf("embedded traction description is invalid: %v", err))
	}
	return desc
}
