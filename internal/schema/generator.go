package schema

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// fieldHeuristic produces a realistic-looking value for a primitive leaf
// based on its field name, independent of the recorded example. Patterns
// are matched case-insensitively against substrings/suffixes of the name.
type fieldHeuristic struct {
	match func(name string) bool
	gen   func() any
}

var heuristics = []fieldHeuristic{
	{
		match: func(n string) bool { return strings.Contains(n, "email") },
		gen:   func() any { return fmt.Sprintf("user%d@example.com", rand.Intn(10000)) },
	},
	{
		match: func(n string) bool { return n == "id" || strings.HasSuffix(n, "_id") },
		gen:   func() any { return rand.Intn(100000) + 1 },
	},
	{
		match: func(n string) bool {
			return strings.HasSuffix(n, "_at") || strings.Contains(n, "date") || strings.Contains(n, "time")
		},
		gen: func() any { return time.Now().UTC().Add(-time.Duration(rand.Intn(30*24)) * time.Hour).Format(time.RFC3339) },
	},
	{
		match: func(n string) bool {
			return strings.Contains(n, "price") || strings.Contains(n, "amount") || strings.Contains(n, "cost")
		},
		gen: func() any { return float64(rand.Intn(99900)+100) / 100.0 },
	},
	{
		match: func(n string) bool { return strings.Contains(n, "url") || strings.Contains(n, "link") },
		gen:   func() any { return fmt.Sprintf("https://example.com/resource/%d", rand.Intn(10000)) },
	},
	{
		match: func(n string) bool { return strings.Contains(n, "city") },
		gen: func() any {
			cities := []string{"Springfield", "Riverside", "Franklin", "Georgetown", "Clinton"}
			return cities[rand.Intn(len(cities))]
		},
	},
	{
		match: func(n string) bool { return strings.Contains(n, "uuid") || strings.Contains(n, "guid") },
		gen: func() any {
			return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
				rand.Uint32(), rand.Intn(1<<16), rand.Intn(1<<16), rand.Intn(1<<16), rand.Int63n(1<<48))
		},
	},
	{
		match: func(n string) bool { return strings.Contains(n, "name") },
		gen: func() any {
			names := []string{"Alex", "Jordan", "Taylor", "Morgan", "Casey"}
			return names[rand.Intn(len(names))]
		},
	},
	{
		match: func(n string) bool { return strings.Contains(n, "phone") },
		gen:   func() any { return fmt.Sprintf("+1-555-%04d", rand.Intn(10000)) },
	},
}

// Generate synthesizes a value from a learned schema node. requestBody, when
// non-nil, supplies scalars to echo back for fields the caller named
// explicitly — this keeps identity-preserving routes (e.g. "update this
// resource, return it") looking consistent.
func Generate(node *Node, requestBody any) any {
	return generateNode(node, "", requestBody)
}

func generateNode(node *Node, fieldName string, reqVal any) any {
	if node == nil {
		return nil
	}
	t := node.Meta.PrimaryType()

	switch t {
	case "object":
		out := make(map[string]any, len(node.Children))
		reqObj, _ := reqVal.(map[string]any)
		for k, child := range node.Children {
			var childReq any
			if reqObj != nil {
				childReq = reqObj[k]
			}
			out[k] = generateNode(child, k, childReq)
		}
		return out

	case "array":
		n := 1 + rand.Intn(4)
		arr := make([]any, 0, n)
		for i := 0; i < n; i++ {
			arr = append(arr, generateNode(node.Items, fieldName, nil))
		}
		return arr

	case "":
		return nil

	default:
		if reqVal != nil && isScalar(reqVal) {
			return reqVal
		}
		return generatePrimitive(t, fieldName, node.Meta.Example)
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any, nil:
		return false
	default:
		return true
	}
}

func generatePrimitive(t, fieldName string, example any) any {
	name := strings.ToLower(fieldName)
	for _, h := range heuristics {
		if h.match(name) {
			return h.gen()
		}
	}
	if example != nil {
		return example
	}
	switch t {
	case "string":
		return "sample-" + strconv.Itoa(rand.Intn(1000))
	case "integer":
		return rand.Intn(1000)
	case "number":
		return float64(rand.Intn(10000)) / 100.0
	case "boolean":
		return rand.Intn(2) == 0
	default:
		return nil
	}
}
