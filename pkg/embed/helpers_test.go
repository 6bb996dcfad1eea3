package embed

import "github.com/OFFIS-RIT/kgraph/pkg/store"

func storeFilter(documentID string) store.VectorFilter {
	return store.VectorFilter{DocumentIDs: []string{documentID}}
}
