package domain

// Demographic is the result of a demographic lookup keyed by canonical
// postal code. Found is false for the explicit "no data" marker.
type Demographic struct {
	ZipCode               string   `json:"zip_code"`
	Found                 bool     `json:"found"`
	MedianHomeValue       *float64 `json:"median_home_value,omitempty"`
	MedianHouseholdIncome *float64 `json:"median_household_income,omitempty"`
	Population            *int64   `json:"population,omitempty"`
}

// NoData returns the explicit "no data" marker for zip
func NoData(zip string) Demographic {
	return Demographic{ZipCode: zip}
}

// EnrichedRecord is a record left-joined with its demographic data
type EnrichedRecord struct {
	Record
	Demographic Demographic `json:"demographic"`
}

// Demographic output column names, appended after the record columns
const (
	ColumnMedianHomeValue       = "median_home_value"
	ColumnMedianHouseholdIncome = "median_household_income"
	ColumnPopulation            = "population"
)

// DemographicColumns lists the demographic columns in output order
var DemographicColumns = []string{
	ColumnMedianHomeValue,
	ColumnMedianHouseholdIncome,
	ColumnPopulation,
}
