package querytree

import (
	"fmt"
	"strconv"
	"strings"
)

// Fingerprint produces a stable identifier for a tree's structure: two
// trees with the same aliases, column sets, and relation shapes hash
// identically; any change to kinds, columns, relations, or aliases moves
// the hash with overwhelming probability. The result contains digits only,
// so it is safe inside SQL identifiers.
func Fingerprint(root *Node) string {
	parts := make([]string, 0, 8)
	queue := []*Node{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		parts = append(parts, fmt.Sprintf("%s-%s-%s", node.Kind, node.Alias, metaDesc(node)))
		queue = append(queue, node.Children...)
	}
	return digitsOnly(hashString(strings.Join(parts, ":")))
}

func metaDesc(node *Node) string {
	if node.Meta == nil {
		return "root"
	}

	props := make([]string, len(node.Meta.Columns))
	for i, col := range node.Meta.Columns {
		props[i] = col.Property
	}

	rels := make([]string, len(node.Meta.Relations))
	for i, rel := range node.Meta.Relations {
		rels[i] = fmt.Sprintf("%s:%s:%s:%s:%t", rel.Property, node.Meta.Table, rel.Inverse.Table, rel.Kind, rel.Owning)
	}

	return node.Meta.Table + ":" + strings.Join(props, ":") + ":" + strings.Join(rels, ",")
}

// hashString is the 31-polynomial 32-bit string hash, decimalized from its
// absolute value.
func hashString(s string) string {
	var h int32
	for _, r := range s {
		h = 31*h + r
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 10)
}

// digitsOnly replaces anything a hash edge case might leave behind (such as
// a sign) with '0', keeping the suffix a legal identifier fragment.
func digitsOnly(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c < '0' || c > '9' {
			out[i] = '0'
		}
	}
	return string(out)
}
