package topology

// Permutations lists the node permutations that preserve t's edge structure.
// Entry p describes the reordering whose i-th node is original node p[i]; the
// identity is always entry 0.
func (t *CellTopology) Permutations() [][]int {
	t.permOnce.Do(func() {
		n := len(t.nodes)
		used := make([]bool, n)
		current := make([]int, 0, n)
		var walk func()
		walk = func() {
			if len(current) == n {
				if t.preservesEdges(current) {
					t.perms = append(t.perms, append([]int(nil), current...))
				}
				return
			}
			for i := 0; i < n; i++ {
				if used[i] {
					continue
				}
				used[i] = true
				current = append(current, i)
				walk()
				current = current[:len(current)-1]
				used[i] = false
			}
		}
		walk()
	})
	return t.perms
}

func (t *CellTopology) preservesEdges(p []int) bool {
	if t.dim < 2 {
		return true
	}
	for _, e := range t.subcells[1] {
		if t.FindSubcellOrdinal(1, []int{p[e[0]], p[e[1]]}) < 0 {
			return false
		}
	}
	return true
}

// PermutationMatchingOrder returns the ordinal of the permutation that turns
// the stored node ordering into the requested one, or -1 when no permutation
// of t does.
func (t *CellTopology) PermutationMatchingOrder(stored, requested []int) int {
	if len(stored) != len(requested) {
		return -1
	}
	for ord, p := range t.Permutations() {
		match := true
		for i := range requested {
			if requested[i] != stored[p[i]] {
				match = false
				break
			}
		}
		if match {
			return ord
		}
	}
	return -1
}
