package relate

import "github.com/OFFIS-RIT/kgraph/pkg/store"

func storeFilterAll() store.RelationshipFilter {
	return store.RelationshipFilter{}
}
