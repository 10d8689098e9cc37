package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const tokenIDPrefix = "token-"

// TokenID = "token-<category>-<index>"
func MakeTokenID(category Category, index int) string {
	return fmt.Sprintf("%s%s-%d", tokenIDPrefix, category, index)
}

type ParsedTokenID struct {
	Category Category
	Index    int
}

func ParseTokenID(id string) (ParsedTokenID, error) {
	var out ParsedTokenID
	if !strings.HasPrefix(id, tokenIDPrefix) {
		return out, fmt.Errorf("invalid token id format: %s", id)
	}

	rest := strings.TrimPrefix(id, tokenIDPrefix)
	sep := strings.LastIndex(rest, "-")
	if sep <= 0 {
		return out, fmt.Errorf("invalid token id format: %s", id)
	}

	category := Category(rest[:sep])
	if !category.Valid() {
		return out, fmt.Errorf("invalid token category: %s", rest[:sep])
	}

	idx, err := strconv.Atoi(rest[sep+1:])
	if err != nil || idx < 0 {
		return out, fmt.Errorf("invalid token index, err=%v", err)
	}

	out.Category = category
	out.Index = idx

	return out, nil
}
