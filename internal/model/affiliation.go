package model

// AccountAffiliation is a read-only projection maintained by the organization
// directory. Province/region/community are nil for accounts with no placement;
// such accounts are still reachable by user and all rules.
type AccountAffiliation struct {
	AccountID   int64
	Active      bool
	ProvinceID  *int64
	RegionID    *int64
	CommunityID *int64
}
