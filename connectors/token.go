package connectors

import (
	"fmt"
	"strconv"
	"strings"
)

// Composite page tokens for entity types whose source API paginates per
// parent (comments per task, notes per issue): the token carries the index
// into the parent list plus the source's own sub-token.
func EncodeIndexToken(index int, sub string) string {
	if sub == "" {
		return strconv.Itoa(index)
	}
	return strconv.Itoa(index) + ":" + sub
}

func DecodeIndexToken(token string) (int, string, error) {
	if token == "" {
		return 0, "", nil
	}
	idxStr, sub, _ := strings.Cut(token, ":")
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return 0, "", fmt.Errorf("malformed page token %q: %w", token, err)
	}
	return idx, sub, nil
}
