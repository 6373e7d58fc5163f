package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

func itoa(i int) string { return strconv.Itoa(i) }

// similarityName is the unqualified type name shown in explanations.
func similarityName(sim search.Similarity) string {
	name := fmt.Sprintf("%T", sim)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
