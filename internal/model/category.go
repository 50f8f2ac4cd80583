package model

// Category names a set of already processed targets in the state file.
type Category struct {
	Workflow string
	Key      string
}

func (c Category) String() string {
	return c.Workflow + "/" + c.Key
}

var (
	CategoryBlackBox          = Category{Workflow: "BlackBox", Key: "scanned_subnets"}
	CategoryGrayBox           = Category{Workflow: "GrayBox", Key: "scanned_dchosts"}
	CategoryManSpiderStandard = Category{Workflow: "ManSpider", Key: "standard_scanned"}
	CategoryManSpiderCreds    = Category{Workflow: "ManSpider", Key: "creds_scanned"}
)

// Categories are all the categories created by a fresh state file.
func Categories() []Category {
	return []Category{
		CategoryBlackBox,
		CategoryGrayBox,
		CategoryManSpiderStandard,
		CategoryManSpiderCreds,
	}
}
