package model

import "fmt"

// Bucket identifies an aging bucket by the number of days overdue.
type Bucket int

const (
	Bucket30 Bucket = 30
	Bucket45 Bucket = 45
)

// Buckets lists the aging buckets in the order they are fetched and enriched.
var Buckets = []Bucket{Bucket30, Bucket45}

// Days returns the bucket as a plain day count.
func (b Bucket) Days() int { return int(b) }

func (b Bucket) String() string {
	return fmt.Sprintf("%d_days", int(b))
}

// DefaultPlan is written when a verification response carries a status but no plan.
const DefaultPlan = "Unknown"

// Account is one delinquent account row within an aging bucket.
type Account struct {
	ContractCode      string      `json:"contract_code"`
	ConnectionBlocked bool        `json:"connection_blocked"`
	IsReduced         bool        `json:"is_reduced"`
	NetworkAddress    string      `json:"network_address"`
	CustomerName      string      `json:"customer_name"`
	ResellerName      string      `json:"reseller_name"`
	Username          string      `json:"username"`
	Enrichment        *Enrichment `json:"enrichment,omitempty"` // nil until a verification lookup succeeds
}

// Enriched reports whether verification data has been written onto the row.
func (a Account) Enriched() bool {
	return a.Enrichment != nil
}

// Enrichment holds the verified status and plan for an account.
type Enrichment struct {
	Status string `json:"status"`
	Plan   string `json:"plan"`
}

// Candidate is a unique (username, network address) pair queued for verification.
type Candidate struct {
	Username       string
	NetworkAddress string
	Bucket         Bucket // bucket the candidate was first seen in
}

// LookupKind tags the outcome of a single verification lookup.
type LookupKind int

const (
	LookupEnriched LookupKind = iota // response carried a status
	LookupEmpty                      // response had no status
	LookupFailed                     // transport, HTTP or decode failure
)

func (k LookupKind) String() string {
	switch k {
	case LookupEnriched:
		return "enriched"
	case LookupEmpty:
		return "empty"
	case LookupFailed:
		return "failed"
	default:
		return fmt.Sprintf("LookupKind(%d)", int(k))
	}
}

// LookupOutcome is the tagged result of verifying one account.
type LookupOutcome struct {
	Kind       LookupKind
	Enrichment Enrichment // set when Kind == LookupEnriched
	Err        error      // set when Kind == LookupFailed
}
