package mcp

import (
	"fmt"

	"github.com/fyrsmithlabs/recalld/internal/faults"
)

// protocolError prefixes a failure with its stable machine-readable code so
// clients can branch on the bracketed tag without parsing the message.
func protocolError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %w", faults.KindOf(err), err)
}
