package schema

// Learn walks value and merges it into node, creating nodes as needed.
// Object children and every array element are recursed into — not just
// the first element, so arrays of heterogeneous objects build a merged
// picture of every field ever seen.
func Learn(node *Node, value any) *Node {
	if node == nil {
		node = &Node{}
	}
	node.Meta.Observe(value)

	switch v := value.(type) {
	case map[string]any:
		learnObject(node, v)
	case []any:
		learnArray(node, v)
	}
	return node
}

func learnObject(node *Node, obj map[string]any) {
	if node.Children == nil {
		node.Children = make(map[string]*Node, len(obj))
	}
	for k, v := range obj {
		node.Children[k] = Learn(node.Children[k], v)
	}
}

func learnArray(node *Node, arr []any) {
	for _, item := range arr {
		node.Items = Learn(node.Items, item)
	}
}
