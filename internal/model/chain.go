package model

import (
	"fmt"
	"sort"
)

// Chain keys identify one role-to-role distribution path
const (
	ChainDirectShowroom            = "direct_showroom"
	ChainDirectRepresentative      = "direct_representative"
	ChainDistributor               = "distributor"
	ChainDistributorRepresentative = "distributor_representative"
)

// ChainProfile describes how one chain stores its ledger.
// Upstream is the chain whose owners dispatch to this one; empty means Head Office,
// which is not tracked as a ledger.
type ChainProfile struct {
	Key            string
	Prefix         string
	CarriesPricing bool
	Upstream       string
}

var chainProfiles = map[string]ChainProfile{
	ChainDirectShowroom: {
		Key:    ChainDirectShowroom,
		Prefix: "directShowroomStock",
	},
	ChainDirectRepresentative: {
		Key:    ChainDirectRepresentative,
		Prefix: "directRepresentativeStock",
	},
	ChainDistributor: {
		Key:            ChainDistributor,
		Prefix:         "distributorStock",
		CarriesPricing: true,
	},
	ChainDistributorRepresentative: {
		Key:            ChainDistributorRepresentative,
		Prefix:         "distributorRepresentativeStock",
		CarriesPricing: true,
		Upstream:       ChainDistributor,
	},
}

// LookupChain returns the profile registered under key
func LookupChain(key string) (ChainProfile, bool) {
	p, ok := chainProfiles[key]
	return p, ok
}

// Chains lists every registered chain key in stable order
func Chains() []string {
	keys := make([]string, 0, len(chainProfiles))
	for k := range chainProfiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasUpstreamLedger reports whether dispatching into this chain deducts from a tracked ledger
func (p ChainProfile) HasUpstreamLedger() bool {
	return p.Upstream != ""
}

// EntryPath is the logical key of one entry, e.g. distributorStock/users/u1/entries/<id>
func (p ChainProfile) EntryPath(ownerID, entryID string) string {
	return fmt.Sprintf("%s/users/%s/entries/%s", p.Prefix, ownerID, entryID)
}

// SummaryPath is the logical key of one (owner, product) summary
func (p ChainProfile) SummaryPath(ownerID, productID string) string {
	return fmt.Sprintf("%s/users/%s/summary/%s", p.Prefix, ownerID, productID)
}

// OwnerPath is the logical root of one owner's ledger
func (p ChainProfile) OwnerPath(ownerID string) string {
	return fmt.Sprintf("%s/users/%s", p.Prefix, ownerID)
}
