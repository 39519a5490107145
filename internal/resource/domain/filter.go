package domain

// Scope restricts a query to what an actor may see. Empty fields do not filter.
type Scope struct {
	RequesterID string
	FarmerID    string
	CellID      string
	DistrictID  string
}

// RequestFilter filters request listings
type RequestFilter struct {
	Scope
	Status    RequestStatus
	Season    Season
	Year      int
	ProductID string
	Page      int
	PerPage   int
}

// BatchFilter filters district batch listings
type BatchFilter struct {
	DistrictID string
	ProductID  string
	Page       int
	PerPage    int
}

// BalanceFilter filters cell and farmer balance listings
type BalanceFilter struct {
	Scope
	ProductID string
	Page      int
	PerPage   int
}

// Offset converts page/per_page into a SQL offset
func Offset(page, perPage int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * perPage
}
