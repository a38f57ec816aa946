package transcode

import "brand-studio/server/internal/models"

// Wire keys that are not questionnaire fields.
const (
	KeyLanguage = "language"
	KeyCategory = "category"

	TitleSalesperson    = "Salesperson"
	TitleCustomerID     = "Customer ID"
	TitlePackForm       = "Product Pack Form"
	TitlePackImages     = "Pack Images"
	TitleFullTranscript = "Full Transcript"
	TitleRegion         = "Region"
	TitleSessionID      = "App Session ID"
)

// Form paths referenced outside the schema tables.
const (
	PathSalesperson    = "salesperson"
	PathCustomerID     = "customerId"
	PathBrandName      = "brandName"
	PathProductName    = "productName"
	PathPackForm       = "packForm"
	PathFullTranscript = "fullTranscript"
)

type FieldKind int

const (
	// KindText is a free-text scalar.
	KindText FieldKind = iota
	// KindMulti is a multi-select of option keys.
	KindMulti
	// KindDetail is a multi-select whose selected keys may carry free text.
	KindDetail
)

// Field binds a form path to its external title and option set.
type Field struct {
	Path    string
	Title   string
	Kind    FieldKind
	Options string
}

type Schema struct {
	Category models.Category
	Fields   []Field
}

func (s *Schema) Field(path string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Path == path {
			return f, true
		}
	}
	return Field{}, false
}

var commonHead = []Field{
	{Path: PathSalesperson, Title: TitleSalesperson, Kind: KindText},
	{Path: PathCustomerID, Title: TitleCustomerID, Kind: KindText},
	{Path: PathBrandName, Title: "Brand Name", Kind: KindText},
	{Path: PathProductName, Title: "Product Name", Kind: KindText},
	{Path: PathPackForm, Title: TitlePackForm, Kind: KindDetail, Options: "pack_form"},
	{Path: "productDescription", Title: "Product Description", Kind: KindText},
	{Path: "usp", Title: "Unique Selling Points", Kind: KindText},
	{Path: "competitors", Title: "Main Competitors", Kind: KindText},
	{Path: "priceTier", Title: "Price Positioning", Kind: KindMulti, Options: "price_tier"},
	{Path: "channels", Title: "Sales Channels", Kind: KindDetail, Options: "channels"},
	{Path: "consumer.age", Title: "Consumer - Age", Kind: KindMulti, Options: "age"},
	{Path: "consumer.gender", Title: "Consumer - Gender", Kind: KindMulti, Options: "gender"},
	{Path: "consumer.income", Title: "Consumer - Income", Kind: KindMulti, Options: "income"},
	{Path: "consumer.lifestyle", Title: "Consumer - Lifestyle", Kind: KindDetail, Options: "lifestyle"},
	{Path: "brandPersonality", Title: "Brand Personality", Kind: KindDetail, Options: "personality"},
	{Path: "functionalProblems", Title: "Functional Problems Solved", Kind: KindDetail, Options: "functional_problem"},
}

var commonTail = []Field{
	{Path: "additionalNotes", Title: "Additional Notes", Kind: KindText},
	{Path: PathFullTranscript, Title: TitleFullTranscript, Kind: KindText},
}

var schemas = map[models.Category]*Schema{
	models.CategoryFMCG: buildSchema(models.CategoryFMCG,
		Field{Path: "fmcg.flavorProfile", Title: "Flavor / Scent Profile", Kind: KindDetail, Options: "flavor"},
		Field{Path: "fmcg.consumptionOccasion", Title: "Consumption Occasion", Kind: KindDetail, Options: "occasion"},
		Field{Path: "fmcg.purchaseFrequency", Title: "Purchase Frequency", Kind: KindMulti, Options: "frequency"},
	),
	models.CategoryIndustrial: buildSchema(models.CategoryIndustrial,
		Field{Path: "household.type", Title: "Typical Household Type", Kind: KindDetail, Options: "household_type"},
		Field{Path: "buyer.role", Title: "Buyer - Role", Kind: KindDetail, Options: "buyer_role"},
		Field{Path: "industrial.applicationArea", Title: "Application Area", Kind: KindDetail, Options: "application"},
		Field{Path: "industrial.certifications", Title: "Certifications", Kind: KindText},
	),
	models.CategoryApparel: buildSchema(models.CategoryApparel,
		Field{Path: "apparel.garmentType", Title: "Garment Type", Kind: KindDetail, Options: "garment"},
		Field{Path: "apparel.fabric", Title: "Fabric / Material", Kind: KindDetail, Options: "fabric"},
		Field{Path: "apparel.fit", Title: "Fit Style", Kind: KindMulti, Options: "fit"},
		Field{Path: "apparel.season", Title: "Season", Kind: KindMulti, Options: "season"},
	),
}

func buildSchema(cat models.Category, specific ...Field) *Schema {
	fields := make([]Field, 0, len(commonHead)+len(specific)+len(commonTail))
	fields = append(fields, commonHead...)
	fields = append(fields, specific...)
	fields = append(fields, commonTail...)
	return &Schema{Category: cat, Fields: fields}
}

// SchemaFor returns the field schema of a category, or nil if unknown.
func SchemaFor(cat models.Category) *Schema {
	return schemas[cat]
}

// detectionOrder lists category-unique titles in priority order.
var detectionOrder = []struct {
	Title    string
	Category models.Category
}{
	{"Typical Household Type", models.CategoryIndustrial},
	{"Application Area", models.CategoryIndustrial},
	{"Garment Type", models.CategoryApparel},
	{"Fabric / Material", models.CategoryApparel},
	{"Flavor / Scent Profile", models.CategoryFMCG},
	{"Consumption Occasion", models.CategoryFMCG},
}
