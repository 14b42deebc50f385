// Package hierarchy turns flat department membership rows into nested org-chart trees.
package hierarchy

// Member is one department membership row. ManagerID points at another member's ID.
type Member struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	ManagerID *string `json:"manager_id"`
	Role      string  `json:"role"`
	UserName  string  `json:"user_name"`
	Position  string  `json:"position"`
}

// Node is a member with its direct reports in input order.
type Node struct {
	Member
	Children []*Node `json:"children"`
}

const noParent = -1

// BuildTree returns a forest of every member. Roots are members without a manager, members whose
// manager is not in the input, and one member per manager cycle. It never fails and never drops
// or duplicates a member.
func BuildTree(members []Member) []*Node {
	if len(members) == 0 {
		return []*Node{}
	}

	index := make(map[string]int, len(members))
	for i, m := range members {
		if _, exists := index[m.ID]; !exists {
			index[m.ID] = i
		}
	}

	parent := make([]int, len(members))
	for i, m := range members {
		parent[i] = noParent
		if m.ManagerID == nil {
			continue
		}
		if p, ok := index[*m.ManagerID]; ok && p != i {
			parent[i] = p
		}
	}

	reached := make([]bool, len(members))
	children := childLists(parent)
	for i := range members {
		if parent[i] == noParent {
			mark(i, children, reached)
		}
	}

	// Whatever is still unreached hangs off a cycle. Walk up from the earliest such member until a
	// member repeats on the path; that member is on the cycle and becomes a root.
	for i := range members {
		if reached[i] {
			continue
		}
		onPath := make(map[int]struct{})
		cur := i
		for {
			if _, seen := onPath[cur]; seen {
				break
			}
			onPath[cur] = struct{}{}
			cur = parent[cur]
		}
		parent[cur] = noParent
		children = childLists(parent)
		mark(cur, children, reached)
	}

	nodes := make([]*Node, len(members))
	for i, m := range members {
		nodes[i] = &Node{Member: m, Children: []*Node{}}
	}
	roots := make([]*Node, 0)
	for i := range members {
		if parent[i] == noParent {
			roots = append(roots, nodes[i])
			continue
		}
		p := nodes[parent[i]]
		p.Children = append(p.Children, nodes[i])
	}
	return roots
}

// Count returns the number of nodes in the forest.
func Count(forest []*Node) int {
	total := 0
	stack := append([]*Node(nil), forest...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total++
		stack = append(stack, n.Children...)
	}
	return total
}

func childLists(parent []int) [][]int {
	children := make([][]int, len(parent))
	for i, p := range parent {
		if p != noParent {
			children[p] = append(children[p], i)
		}
	}
	return children
}

func mark(root int, children [][]int, reached []bool) {
	stack := []int{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[cur] {
			continue
		}
		reached[cur] = true
		stack = append(stack, children[cur]...)
	}
}
