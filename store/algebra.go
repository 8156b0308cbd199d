package store

import "github.com/pior/setstream/resp"

// setOp combines the member lists of several sets. Absent keys are empty sets.
type setOp func(sets [][][]byte) [][]byte

func loadSets(tx Tx, keys [][]byte) ([][][]byte, error) {
	if err := setKind(tx, keys...); err != nil {
		return nil, err
	}
	sets := make([][][]byte, len(keys))
	for i, key := range keys {
		members, err := tx.Members(key)
		if err != nil {
			return nil, err
		}
		sets[i] = members
	}
	return sets, nil
}

func index(members [][]byte) map[string]struct{} {
	idx := make(map[string]struct{}, len(members))
	for _, m := range members {
		idx[string(m)] = struct{}{}
	}
	return idx
}

func intersect(sets [][][]byte) [][]byte {
	others := make([]map[string]struct{}, 0, len(sets)-1)
	for _, set := range sets[1:] {
		if len(set) == 0 {
			return nil
		}
		others = append(others, index(set))
	}

	var out [][]byte
next:
	for _, m := range sets[0] {
		for _, other := range others {
			if _, ok := other[string(m)]; !ok {
				continue next
			}
		}
		out = append(out, m)
	}
	return out
}

func union(sets [][][]byte) [][]byte {
	seen := make(map[string]struct{})
	var out [][]byte
	for _, set := range sets {
		for _, m := range set {
			if _, ok := seen[string(m)]; ok {
				continue
			}
			seen[string(m)] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

func difference(sets [][][]byte) [][]byte {
	excluded := index(union(sets[1:]))
	var out [][]byte
	for _, m := range sets[0] {
		if _, ok := excluded[string(m)]; !ok {
			out = append(out, m)
		}
	}
	return out
}

func algebra(op setOp) func(*Store, Tx, [][]byte) (*resp.Reply, error) {
	return func(_ *Store, tx Tx, keys [][]byte) (*resp.Reply, error) {
		sets, err := loadSets(tx, keys)
		if err != nil {
			return nil, err
		}
		return resp.Array(op(sets)), nil
	}
}

// algebraStore replaces destination with the result, whatever it held before.
// An empty result deletes destination.
func algebraStore(op setOp) func(*Store, Tx, [][]byte) (*resp.Reply, error) {
	return func(_ *Store, tx Tx, args [][]byte) (*resp.Reply, error) {
		dst := args[0]
		sets, err := loadSets(tx, args[1:])
		if err != nil {
			return nil, err
		}
		result := op(sets)

		if _, err := tx.Delete(dst); err != nil {
			return nil, err
		}
		for _, m := range result {
			if _, err := tx.Add(dst, m); err != nil {
				return nil, err
			}
		}
		return resp.Integer(int64(len(result))), nil
	}
}
