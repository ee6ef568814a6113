package commands

import (
	"encoding/json"
	"fmt"
)

// printResult writes v as pretty-printed JSON to stdout. CLI commands here
// are thin operational wrappers around the HTTP command surface's own
// Store/Adapter calls, not a scriptable JSON action API, so there is no
// envelope beyond the payload itself.
func printResult(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
