package sqlstore

import "github.com/goliatone/go-accounts/core"

var (
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)

	_ core.ReadThroughCache[core.FrameworkTaxonomy] = (*CachedReadThrough[core.FrameworkTaxonomy])(nil)
)
